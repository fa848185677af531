// Package recovery implements the asymmetric recovery envelope: an X25519
// keypair whose public half lives inside the vault and whose private half
// stays with the owner, plus a capsule holding the master passphrase sealed
// under the public key.
//
// The capsule uses an ECIES-style construction: an ephemeral X25519 key
// agreement, HKDF-SHA256 key derivation, and AES-256-GCM. Capsule layout:
// [ephemeral public key || nonce || ciphertext].
package recovery

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"

	lbcrypto "github.com/forest6511/lockbox/pkg/crypto"
)

const (
	// KeyFileName is the conventional private key artifact name. It lives
	// in the working directory so it travels with portable bundles, and
	// never inside the vault itself.
	KeyFileName = "lockbox_recovery.key"

	// CapsuleSuffix is appended to the vault path to name the capsule file.
	CapsuleSuffix = ".recovery"

	// keyFilePrefix tags the artifact so doctor can recognize it.
	keyFilePrefix = "LOCKBOX-RECOVERY-KEY-V1:"

	publicKeySize = 32
	nonceSize     = 12
	hkdfInfo      = "lockbox/capsule/v1"
)

// Sentinel errors.
var (
	// ErrKeyMismatch indicates the private key cannot open the capsule.
	ErrKeyMismatch = errors.New("recovery: private key does not match capsule")

	// ErrKeyMissing indicates no private key artifact exists.
	ErrKeyMissing = errors.New("recovery: private key artifact not found")

	// ErrCapsuleMissing indicates no recovery capsule exists beside the vault.
	ErrCapsuleMissing = errors.New("recovery: capsule file not found")

	// ErrMalformedKey indicates the key artifact is not a recovery key file.
	ErrMalformedKey = errors.New("recovery: malformed private key artifact")

	// ErrMalformedCapsule indicates the capsule is too short to decode.
	ErrMalformedCapsule = errors.New("recovery: malformed capsule")
)

// Engine is the narrow asymmetric capability the recovery flow depends on.
type Engine interface {
	// Seal encrypts a secret under a public key.
	Seal(publicKey, secret []byte) ([]byte, error)
	// Open decrypts a capsule with a private key. Fails with
	// ErrKeyMismatch when the key cannot open it.
	Open(privateKey, capsule []byte) ([]byte, error)
}

// X25519Engine is the native Engine.
type X25519Engine struct{}

// NewX25519Engine returns the native asymmetric engine.
func NewX25519Engine() *X25519Engine {
	return &X25519Engine{}
}

// GenerateKeypair returns a fresh (publicKey, privateKey) pair as raw bytes.
func GenerateKeypair() (publicKey, privateKey []byte, err error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("recovery: failed to generate keypair: %w", err)
	}
	return priv.PublicKey().Bytes(), priv.Bytes(), nil
}

// Seal encrypts secret under publicKey with an ephemeral key agreement.
func (e *X25519Engine) Seal(publicKey, secret []byte) ([]byte, error) {
	curve := ecdh.X25519()
	peer, err := curve.NewPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("recovery: invalid public key: %w", err)
	}

	eph, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("recovery: failed to generate ephemeral key: %w", err)
	}

	shared, err := eph.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("recovery: key agreement failed: %w", err)
	}
	defer lbcrypto.SecureWipe(shared)

	ephPub := eph.PublicKey().Bytes()
	key, err := deriveCapsuleKey(shared, ephPub, publicKey)
	if err != nil {
		return nil, err
	}
	defer lbcrypto.SecureWipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("recovery: failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, publicKeySize+nonceSize+len(secret)+gcm.Overhead())
	out = append(out, ephPub...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, secret, ephPub)
	return out, nil
}

// Open decrypts a capsule produced by Seal.
func (e *X25519Engine) Open(privateKey, capsule []byte) ([]byte, error) {
	if len(capsule) < publicKeySize+nonceSize {
		return nil, ErrMalformedCapsule
	}

	curve := ecdh.X25519()
	priv, err := curve.NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("recovery: invalid private key: %w", err)
	}

	ephPub := capsule[:publicKeySize]
	nonce := capsule[publicKeySize : publicKeySize+nonceSize]
	ciphertext := capsule[publicKeySize+nonceSize:]

	peer, err := curve.NewPublicKey(ephPub)
	if err != nil {
		return nil, ErrMalformedCapsule
	}

	shared, err := priv.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("recovery: key agreement failed: %w", err)
	}
	defer lbcrypto.SecureWipe(shared)

	key, err := deriveCapsuleKey(shared, ephPub, priv.PublicKey().Bytes())
	if err != nil {
		return nil, err
	}
	defer lbcrypto.SecureWipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	secret, err := gcm.Open(nil, nonce, ciphertext, ephPub)
	if err != nil {
		return nil, ErrKeyMismatch
	}
	return secret, nil
}

// deriveCapsuleKey binds the AES key to both sides of the key agreement.
func deriveCapsuleKey(shared, ephPub, recipientPub []byte) ([]byte, error) {
	salt := make([]byte, 0, len(ephPub)+len(recipientPub))
	salt = append(salt, ephPub...)
	salt = append(salt, recipientPub...)

	stream := hkdf.New(sha256.New, shared, salt, []byte(hkdfInfo))
	key := make([]byte, lbcrypto.KeyLength)
	if _, err := io.ReadFull(stream, key); err != nil {
		return nil, fmt.Errorf("recovery: key derivation failed: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("recovery: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("recovery: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// WriteKeyFile stores a private key artifact at path with owner-only
// permissions. If a key artifact already exists it is never overwritten:
// the existing key is loaded and returned with created=false, which is a
// warning condition for the caller, not an error.
func WriteKeyFile(path string, privateKey []byte) (existing []byte, created bool, err error) {
	if prev, loadErr := ReadKeyFile(path); loadErr == nil {
		return prev, false, nil
	} else if !errors.Is(loadErr, ErrKeyMissing) {
		return nil, false, loadErr
	}

	line := keyFilePrefix + base64.StdEncoding.EncodeToString(privateKey) + "\n"
	if err := os.WriteFile(path, []byte(line), 0600); err != nil {
		return nil, false, fmt.Errorf("recovery: failed to write key artifact: %w", err)
	}
	return privateKey, true, nil
}

// ReadKeyFile loads a private key artifact written by WriteKeyFile.
func ReadKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyMissing
		}
		return nil, fmt.Errorf("recovery: failed to read key artifact: %w", err)
	}

	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, keyFilePrefix) {
		return nil, ErrMalformedKey
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, keyFilePrefix))
	if err != nil || len(key) != publicKeySize {
		return nil, ErrMalformedKey
	}
	return key, nil
}

// PublicKeyFor derives the public half from a stored private key.
func PublicKeyFor(privateKey []byte) ([]byte, error) {
	priv, err := ecdh.X25519().NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("recovery: invalid private key: %w", err)
	}
	return priv.PublicKey().Bytes(), nil
}

// ReadCapsule loads the capsule file beside the vault.
func ReadCapsule(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCapsuleMissing
		}
		return nil, fmt.Errorf("recovery: failed to read capsule: %w", err)
	}
	return data, nil
}

// WriteCapsule stores the capsule with owner-only permissions.
func WriteCapsule(path string, capsule []byte) error {
	if err := os.WriteFile(path, capsule, 0600); err != nil {
		return fmt.Errorf("recovery: failed to write capsule: %w", err)
	}
	return nil
}
