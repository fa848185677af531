// Package vault owns the lifecycle of the encrypted vault file: locate,
// open to a transient scratch document, mutate, commit with a backup
// sidecar and an atomic replace, and secure-discard the scratch copy.
//
// The on-disk file is always either fully absent, the ciphertext of the
// last successful commit, or accompanied by a .bak copy of the prior valid
// ciphertext. A commit never exposes a partially-written vault.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest6511/lockbox/pkg/audit"
	"github.com/forest6511/lockbox/pkg/crypto"
	"github.com/forest6511/lockbox/pkg/record"
	"github.com/forest6511/lockbox/pkg/recovery"
)

// Constants.
const (
	VaultFileName = "lockbox.vault" // conventional local bundle path
	HomeDirName   = ".lockbox"      // home-directory default lives here
	BackupSuffix  = ".bak"
	FileMode      = 0600 // Owner read/write only
	DirMode       = 0700 // Owner read/write/execute only
)

// Errors.
var (
	ErrVaultExists          = errors.New("vault: vault already exists at this path")
	ErrVaultMissing         = errors.New("vault: no vault found at this path")
	ErrAuthenticationFailed = errors.New("vault: wrong passphrase or corrupt vault")
	ErrEngineUnavailable    = errors.New("vault: encryption engine unavailable")
	ErrCommitFailed         = errors.New("vault: commit failed, original vault preserved")
	ErrVaultBusy            = errors.New("vault: vault is in use by another operation")
	ErrNotFound             = errors.New("vault: record not found")
	ErrInvalidInput         = errors.New("vault: required field is empty")
	ErrInvalidCharacter     = errors.New("vault: field contains a tab or newline character")
	ErrDuplicateEntry       = errors.New("vault: an entry for this service and username already exists")
	ErrRecoveryUnavailable  = errors.New("vault: no recovery public key embedded in vault")
	ErrRecoveryKeyMismatch  = errors.New("vault: recovery key cannot open capsule")
	ErrRecoveryInconsistent = errors.New("vault: recovered passphrase does not open the vault")
)

// Store manages one vault file. The path is threaded in explicitly at
// construction; nothing is resolved from ambient process state after that.
type Store struct {
	path        string
	eng         crypto.Engine
	rec         recovery.Engine
	keyPath     string
	capsulePath string
	audit       *audit.Logger
	source      string
}

// New creates a Store for the vault at path using the given engines.
func New(path string, eng crypto.Engine, rec recovery.Engine) *Store {
	return &Store{
		path:        path,
		eng:         eng,
		rec:         rec,
		keyPath:     recovery.KeyFileName,
		capsulePath: path + recovery.CapsuleSuffix,
		source:      audit.SourceCLI,
	}
}

// SetAudit attaches a best-effort audit logger and the source tag used for
// events produced by this store.
func (s *Store) SetAudit(l *audit.Logger, source string) {
	s.audit = l
	s.source = source
}

// SetKeyPath overrides the private key artifact location.
func (s *Store) SetKeyPath(path string) {
	s.keyPath = path
}

// Path returns the vault file path.
func (s *Store) Path() string { return s.path }

// CapsulePath returns the recovery capsule path beside the vault.
func (s *Store) CapsulePath() string { return s.capsulePath }

// KeyPath returns the private key artifact path.
func (s *Store) KeyPath() string { return s.keyPath }

// ResolvePath resolves the vault location with deterministic precedence:
// an explicitly configured path, else a vault file in the working
// directory (portable bundles), else the home-directory default.
func ResolvePath(configured string) string {
	if configured != "" {
		return configured
	}
	if _, err := os.Stat(VaultFileName); err == nil {
		return VaultFileName
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return VaultFileName
	}
	return filepath.Join(home, HomeDirName, VaultFileName)
}

// Exists reports whether a vault file is present at the resolved path.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Open decrypts the vault to a scratch document. The caller must finish
// the cycle with Commit or Discard. Decryption failure is reported as
// ErrAuthenticationFailed; wrong passphrase and corrupt ciphertext are
// indistinguishable.
func (s *Store) Open(pass *crypto.Passphrase) (*Scratch, error) {
	if s.eng == nil {
		return nil, ErrEngineUnavailable
	}

	blob, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrVaultMissing
		}
		return nil, fmt.Errorf("vault: failed to read vault file: %w", err)
	}

	plaintext, err := s.eng.Open(pass, blob)
	if err != nil {
		_ = s.audit.LogError(audit.OpVaultOpenFail, s.source, "", "decryption failed")
		return nil, ErrAuthenticationFailed
	}

	return &Scratch{doc: record.Parse(plaintext), plaintext: plaintext}, nil
}

// Commit re-encrypts the scratch document and atomically replaces the
// vault file:
// 1. Serialize and seal the document.
// 2. Copy the current ciphertext to the .bak sidecar (best-effort).
// 3. Write the new ciphertext to a temp file and rename it into place.
// 4. Securely destroy the scratch copy.
// On any seal or write failure the original vault file is untouched and
// the scratch document is retained for the caller instead of destroyed.
func (s *Store) Commit(pass *crypto.Passphrase, sc *Scratch) error {
	if s.eng == nil {
		return ErrEngineUnavailable
	}

	plaintext := sc.doc.Serialize()
	blob, err := s.eng.Seal(pass, plaintext)
	crypto.SecureWipe(plaintext)
	if err != nil {
		sc.retained = true
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, DirMode); err != nil {
		sc.retained = true
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	s.backup()

	tmp, err := os.CreateTemp(dir, ".lockbox-commit-*")
	if err != nil {
		sc.retained = true
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	tmpPath := tmp.Name()

	if err := writeAndClose(tmp, blob); err != nil {
		os.Remove(tmpPath)
		sc.retained = true
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		sc.retained = true
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	_ = s.audit.LogSuccess(audit.OpVaultCommit, s.source, "")
	s.Discard(sc)
	return nil
}

func writeAndClose(f *os.File, data []byte) error {
	if err := f.Chmod(FileMode); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// backup copies the current ciphertext to the .bak sidecar. Best-effort:
// a failed backup never blocks the commit, but it is observable.
func (s *Store) backup() {
	src, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: failed to read vault for backup: %v\n", err)
		}
		return
	}
	if err := os.WriteFile(s.path+BackupSuffix, src, FileMode); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write vault backup: %v\n", err)
	}
}

// Discard securely destroys a scratch copy. Safe to call on every exit
// path, including after Commit.
func (s *Store) Discard(sc *Scratch) {
	if sc == nil {
		return
	}
	sc.wipe()
}

// Init creates a new vault: generates (or reuses) the recovery keypair,
// embeds the public key in a fresh document, commits it under the given
// passphrase, and seals the recovery capsule.
//
// keyCreated is false when an existing private key artifact was reused,
// which is a warning condition for the caller, not an error.
func (s *Store) Init(pass *crypto.Passphrase) (keyCreated bool, err error) {
	mu := pathLock(s.path)
	mu.Lock()
	defer mu.Unlock()

	if s.Exists() {
		return false, ErrVaultExists
	}
	if s.eng == nil || s.rec == nil {
		return false, ErrEngineUnavailable
	}

	// 1. Generate the envelope keypair; never overwrite an existing artifact.
	pub, priv, err := recovery.GenerateKeypair()
	if err != nil {
		return false, err
	}
	storedPriv, created, err := recovery.WriteKeyFile(s.keyPath, priv)
	if err != nil {
		crypto.SecureWipe(priv)
		return false, err
	}
	if !created {
		// Reuse the existing key; the freshly generated one is dropped.
		crypto.SecureWipe(priv)
		if pub, err = recovery.PublicKeyFor(storedPriv); err != nil {
			return false, err
		}
	}

	// 2. Commit an empty document carrying the recovery metadata.
	doc := &record.Document{}
	doc.SetRecovery(&record.RecoveryMeta{PublicKey: pub})
	if err := s.Commit(pass, &Scratch{doc: doc}); err != nil {
		return created, err
	}

	// 3. Seal the capsule under the public key.
	capsule, err := s.rec.Seal(pub, pass.Bytes())
	if err != nil {
		return created, fmt.Errorf("vault: failed to seal recovery capsule: %w", err)
	}
	if err := recovery.WriteCapsule(s.capsulePath, capsule); err != nil {
		return created, err
	}

	_ = s.audit.LogSuccess(audit.OpVaultInit, s.source, "")
	return created, nil
}

// mutate runs one serialized open→mutate→commit cycle. The per-path lock
// is held until commit or discard completes, so decrypt→edit→encrypt
// cycles never interleave.
func (s *Store) mutate(pass *crypto.Passphrase, fn func(doc *record.Document) error) error {
	mu := pathLock(s.path)
	mu.Lock()
	defer mu.Unlock()
	return s.mutateLocked(pass, fn)
}

func (s *Store) mutateLocked(pass *crypto.Passphrase, fn func(doc *record.Document) error) error {
	sc, err := s.Open(pass)
	if err != nil {
		return err
	}
	if err := fn(sc.doc); err != nil {
		s.Discard(sc)
		return err
	}
	return s.Commit(pass, sc)
}

// view runs one read-only open→read→discard cycle. Reads may proceed
// concurrently with each other but not with a mutation.
func (s *Store) view(pass *crypto.Passphrase, fn func(doc *record.Document) error) error {
	mu := pathLock(s.path)
	mu.RLock()
	defer mu.RUnlock()

	sc, err := s.Open(pass)
	if err != nil {
		return err
	}
	defer s.Discard(sc)
	return fn(sc.doc)
}
