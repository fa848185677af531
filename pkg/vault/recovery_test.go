package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/forest6511/lockbox/pkg/crypto"
	"github.com/forest6511/lockbox/pkg/recovery"
)

func TestRecoverPassphrase(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	recovered, err := s.RecoverPassphrase()
	if err != nil {
		t.Fatalf("RecoverPassphrase failed: %v", err)
	}
	defer recovered.Wipe()

	if !bytes.Equal(recovered.Bytes(), pass.Bytes()) {
		t.Error("recovered passphrase differs from the one used at init")
	}
}

func TestRecoverWithWrongKey(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	// Replace the key artifact with a different keypair's private half.
	_, otherPriv, err := recovery.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(s.KeyPath()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := recovery.WriteKeyFile(s.KeyPath(), otherPriv); err != nil {
		t.Fatal(err)
	}

	if _, err := s.RecoverPassphrase(); !errors.Is(err, ErrRecoveryKeyMismatch) {
		t.Errorf("RecoverPassphrase with wrong key = %v, want ErrRecoveryKeyMismatch", err)
	}
}

func TestRecoverMissingArtifacts(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	if err := os.Remove(s.CapsulePath()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecoverPassphrase(); !errors.Is(err, recovery.ErrCapsuleMissing) {
		t.Errorf("RecoverPassphrase without capsule = %v, want ErrCapsuleMissing", err)
	}

	if err := os.Remove(s.KeyPath()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecoverPassphrase(); !errors.Is(err, recovery.ErrKeyMissing) {
		t.Errorf("RecoverPassphrase without key = %v, want ErrKeyMissing", err)
	}
}

func TestChangePassphraseResealsCapsule(t *testing.T) {
	s, oldPass := initTestVault(t)
	defer oldPass.Wipe()

	if _, _, _, err := s.AddPassword(oldPass, "svc", "u", "pw", "", false); err != nil {
		t.Fatal(err)
	}

	newPass := crypto.NewPassphraseString("new passphrase")
	resealed, err := s.ChangePassphrase(oldPass, newPass)
	if err != nil {
		t.Fatalf("ChangePassphrase failed: %v", err)
	}
	if !resealed {
		t.Error("ChangePassphrase reported resealed=false for a vault with recovery metadata")
	}

	// Old passphrase no longer opens the vault; new one does, with records intact.
	if _, err := s.Open(oldPass); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Open with old passphrase = %v, want ErrAuthenticationFailed", err)
	}
	records, err := s.ListPasswords(newPass)
	if err != nil {
		t.Fatalf("ListPasswords with new passphrase failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records after passphrase change, want 1", len(records))
	}

	// Recovery yields the new passphrase, not the old one.
	recovered, err := s.RecoverPassphrase()
	if err != nil {
		t.Fatalf("RecoverPassphrase failed: %v", err)
	}
	defer recovered.Wipe()
	if !bytes.Equal(recovered.Bytes(), newPass.Bytes()) {
		t.Error("recovery returned the old passphrase after a change")
	}

	if _, err := os.Stat(s.CapsulePath() + ".tmp"); !os.IsNotExist(err) {
		t.Error("capsule sidecar left behind after a successful change")
	}
}

func TestChangePassphraseWithoutRecoveryMeta(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	// Strip the recovery line through a raw edit.
	err := s.EditRaw(pass, func(scratchPath string) error {
		return os.WriteFile(scratchPath, []byte{}, 0600)
	})
	if err != nil {
		t.Fatal(err)
	}

	newPass := crypto.NewPassphraseString("new")
	resealed, err := s.ChangePassphrase(pass, newPass)
	if err != nil {
		t.Fatalf("ChangePassphrase failed: %v", err)
	}
	if resealed {
		t.Error("resealed=true for a vault with no recovery metadata")
	}
	if _, err := s.Open(newPass); err != nil {
		t.Errorf("vault does not open under the new passphrase: %v", err)
	}
}

func TestChangePassphraseRejectsEmpty(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	empty := crypto.NewPassphraseString("")
	if _, err := s.ChangePassphrase(pass, empty); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ChangePassphrase with empty new passphrase = %v, want ErrInvalidInput", err)
	}
}

func TestRecoverStaleCapsule(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	// Re-encrypt the vault without resealing the capsule, as a crashed or
	// interrupted tool might leave it.
	sc, err := s.Open(pass)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(crypto.NewPassphraseString("drifted"), sc); err != nil {
		t.Fatal(err)
	}

	if _, err := s.RecoverPassphrase(); !errors.Is(err, ErrRecoveryInconsistent) {
		t.Errorf("RecoverPassphrase with stale capsule = %v, want ErrRecoveryInconsistent", err)
	}
}

func TestRecoveryMetaAccessor(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	meta, err := s.RecoveryMeta(pass)
	if err != nil {
		t.Fatalf("RecoveryMeta failed: %v", err)
	}
	if len(meta.PublicKey) != 32 {
		t.Errorf("public key length = %d, want 32", len(meta.PublicKey))
	}

	priv, err := recovery.ReadKeyFile(s.KeyPath())
	if err != nil {
		t.Fatal(err)
	}
	pub, err := recovery.PublicKeyFor(priv)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(meta.PublicKey, pub) {
		t.Error("embedded public key does not match the key artifact")
	}
}

func TestDoctorHealthyVault(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	// Produce a .bak so every check can pass.
	if _, _, _, err := s.AddPassword(pass, "svc", "u", "pw", "", false); err != nil {
		t.Fatal(err)
	}

	report := s.Doctor()
	if !report.Healthy() {
		for _, c := range report.Checks {
			t.Logf("%s: %s (%s)", c.Name, c.Status, c.Detail)
		}
		t.Error("Doctor reported an unhealthy freshly-initialized vault")
	}
}

func TestDoctorDetectsStaleCapsule(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	sc, err := s.Open(pass)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(crypto.NewPassphraseString("drifted"), sc); err != nil {
		t.Fatal(err)
	}

	report := s.Doctor()
	if report.Healthy() {
		t.Error("Doctor did not flag a stale recovery capsule")
	}
}

func TestDoctorMissingVault(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), VaultFileName), crypto.NewAESEngine(), recovery.NewX25519Engine())
	report := s.Doctor()
	if report.Healthy() {
		t.Error("Doctor did not flag a missing vault")
	}
}
