package vault

import (
	"errors"
	"fmt"
	"os"

	"github.com/forest6511/lockbox/pkg/audit"
	"github.com/forest6511/lockbox/pkg/crypto"
	"github.com/forest6511/lockbox/pkg/record"
	"github.com/forest6511/lockbox/pkg/recovery"
)

// ChangePassphrase re-encrypts the vault under newPass and reseals the
// recovery capsule so recovery always yields the current passphrase.
//
// The capsule is written to a sidecar first and only renamed into place
// after the vault commit succeeds, so a crash between the two steps never
// leaves a capsule pointing at a passphrase the vault no longer uses.
//
// resealed is false when the vault carries no recovery public key; the
// passphrase change itself still succeeds and the caller should warn that
// recovery is no longer possible.
func (s *Store) ChangePassphrase(oldPass, newPass *crypto.Passphrase) (resealed bool, err error) {
	if newPass == nil || newPass.Empty() {
		return false, ErrInvalidInput
	}

	mu := pathLock(s.path)
	mu.Lock()
	defer mu.Unlock()

	sc, err := s.Open(oldPass)
	if err != nil {
		return false, err
	}

	// 1. Seal the new capsule to a sidecar before touching the vault.
	capsuleTmp := ""
	if meta := sc.doc.Recovery(); meta != nil {
		if s.rec == nil {
			s.Discard(sc)
			return false, ErrEngineUnavailable
		}
		capsule, sealErr := s.rec.Seal(meta.PublicKey, newPass.Bytes())
		if sealErr != nil {
			s.Discard(sc)
			return false, fmt.Errorf("vault: failed to seal recovery capsule: %w", sealErr)
		}
		capsuleTmp = s.capsulePath + ".tmp"
		if err := recovery.WriteCapsule(capsuleTmp, capsule); err != nil {
			s.Discard(sc)
			return false, err
		}
	}

	// 2. Commit the vault under the new passphrase.
	if err := s.Commit(newPass, sc); err != nil {
		if capsuleTmp != "" {
			os.Remove(capsuleTmp)
		}
		return false, err
	}

	// 3. Promote the new capsule. The rename is atomic on one filesystem.
	if capsuleTmp != "" {
		if err := os.Rename(capsuleTmp, s.capsulePath); err != nil {
			return false, fmt.Errorf("vault: vault re-encrypted but capsule update failed: %w", err)
		}
		resealed = true
	}

	_ = s.audit.LogSuccess(audit.OpMasterChange, s.source, "")
	return resealed, nil
}

// RecoverPassphrase opens the recovery capsule with the local private key
// artifact and returns the master passphrase. The recovered passphrase is
// validated against the vault before being handed back; a capsule that
// opens but holds a stale passphrase is reported as ErrRecoveryInconsistent.
func (s *Store) RecoverPassphrase() (*crypto.Passphrase, error) {
	if s.rec == nil {
		return nil, ErrEngineUnavailable
	}
	if !s.Exists() {
		return nil, ErrVaultMissing
	}

	priv, err := recovery.ReadKeyFile(s.keyPath)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(priv)

	capsule, err := recovery.ReadCapsule(s.capsulePath)
	if err != nil {
		return nil, err
	}

	secret, err := s.rec.Open(priv, capsule)
	if err != nil {
		if errors.Is(err, recovery.ErrKeyMismatch) {
			_ = s.audit.LogError(audit.OpMasterRecover, s.source, "", "key mismatch")
			return nil, ErrRecoveryKeyMismatch
		}
		return nil, err
	}
	pass := crypto.NewPassphrase(secret)

	// Validate against the vault itself; the capsule may predate a
	// passphrase change that failed to reseal it.
	sc, err := s.Open(pass)
	if err != nil {
		pass.Wipe()
		if errors.Is(err, ErrAuthenticationFailed) {
			_ = s.audit.LogError(audit.OpMasterRecover, s.source, "", "stale capsule")
			return nil, ErrRecoveryInconsistent
		}
		return nil, err
	}
	s.Discard(sc)

	_ = s.audit.LogSuccess(audit.OpMasterRecover, s.source, "")
	return pass, nil
}

// RecoveryMeta returns the embedded recovery public key, or
// ErrRecoveryUnavailable when the vault carries none.
func (s *Store) RecoveryMeta(pass *crypto.Passphrase) (*record.RecoveryMeta, error) {
	var out *record.RecoveryMeta
	err := s.view(pass, func(doc *record.Document) error {
		meta := doc.Recovery()
		if meta == nil {
			return ErrRecoveryUnavailable
		}
		copied := *meta
		copied.PublicKey = append([]byte(nil), meta.PublicKey...)
		out = &copied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
