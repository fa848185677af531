// Package crypto provides the encryption engines behind the vault.
//
// The symmetric engine seals a whole plaintext document under a passphrase
// using Argon2id key derivation and AES-256-GCM. The sealed blob is
// self-contained: [magic || salt || nonce || ciphertext], so a vault file
// needs nothing beside itself to be opened.
//
// Callers treat failures opaquely: a wrong passphrase and a corrupt blob
// are indistinguishable by design.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters following OWASP recommendations.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// SaltLength is the length of KDF salts in bytes (128 bits).
	SaltLength = 16

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12
)

// blobMagic prefixes every sealed vault blob.
var blobMagic = []byte("LBX1")

// Sentinel errors returned by the engines.
var (
	// ErrDecryptionFailed indicates a wrong passphrase or a corrupt blob.
	// The two cases are deliberately indistinguishable.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")

	// ErrBlobTooShort indicates the blob cannot even hold the header.
	ErrBlobTooShort = errors.New("crypto: sealed blob too short")
)

// Engine is the narrow symmetric capability the vault store depends on.
// Any implementation (native, or a subprocess wrapper around an external
// tool) satisfies the same two operations.
type Engine interface {
	// Seal encrypts plaintext under the passphrase.
	Seal(pass *Passphrase, plaintext []byte) ([]byte, error)
	// Open decrypts a sealed blob. Fails with ErrDecryptionFailed on a
	// wrong passphrase or tampered data.
	Open(pass *Passphrase, blob []byte) ([]byte, error)
}

// AESEngine is the native Engine: Argon2id + AES-256-GCM.
type AESEngine struct{}

// NewAESEngine returns the native symmetric engine.
func NewAESEngine() *AESEngine {
	return &AESEngine{}
}

// DeriveKey derives a 256-bit key from a passphrase using Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, Argon2Time, Argon2Memory, Argon2Threads, KeyLength)
}

// Seal encrypts plaintext under the passphrase with a fresh salt and nonce.
func (e *AESEngine) Seal(pass *Passphrase, plaintext []byte) ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}

	key := DeriveKey(pass.Bytes(), salt)
	defer SecureWipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(blobMagic)+SaltLength+NonceLength+len(plaintext)+gcm.Overhead())
	out = append(out, blobMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, blobMagic)
	return out, nil
}

// Open decrypts a blob produced by Seal.
func (e *AESEngine) Open(pass *Passphrase, blob []byte) ([]byte, error) {
	header := len(blobMagic) + SaltLength + NonceLength
	if len(blob) < header {
		return nil, ErrBlobTooShort
	}
	if !bytes.Equal(blob[:len(blobMagic)], blobMagic) {
		return nil, ErrDecryptionFailed
	}

	salt := blob[len(blobMagic) : len(blobMagic)+SaltLength]
	nonce := blob[len(blobMagic)+SaltLength : header]
	ciphertext := blob[header:]

	key := DeriveKey(pass.Bytes(), salt)
	defer SecureWipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, blobMagic)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}
