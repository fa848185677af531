package vault

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forest6511/lockbox/pkg/crypto"
	"github.com/forest6511/lockbox/pkg/record"
	"github.com/forest6511/lockbox/pkg/recovery"
	"github.com/forest6511/lockbox/pkg/security"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s := New(filepath.Join(dir, VaultFileName), crypto.NewAESEngine(), recovery.NewX25519Engine())
	s.SetKeyPath(filepath.Join(dir, recovery.KeyFileName))
	return s
}

func initTestVault(t *testing.T) (*Store, *crypto.Passphrase) {
	t.Helper()
	s := newTestStore(t)
	pass := crypto.NewPassphraseString("test passphrase")
	if _, err := s.Init(pass); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s, pass
}

func TestInitCreatesVaultAndArtifacts(t *testing.T) {
	s := newTestStore(t)
	pass := crypto.NewPassphraseString("pw")

	keyCreated, err := s.Init(pass)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !keyCreated {
		t.Error("Init reported keyCreated=false for a fresh key")
	}

	for _, path := range []string{s.Path(), s.KeyPath(), s.CapsulePath()} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected artifact missing: %s", path)
		}
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != FileMode {
		t.Errorf("vault mode = %04o, want %04o", perm, FileMode)
	}

	if _, err := s.Init(pass); !errors.Is(err, ErrVaultExists) {
		t.Errorf("second Init = %v, want ErrVaultExists", err)
	}
}

func TestInitReusesExistingKey(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, recovery.KeyFileName)

	_, priv, err := recovery.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := recovery.WriteKeyFile(keyPath, priv); err != nil {
		t.Fatal(err)
	}

	s := New(filepath.Join(dir, VaultFileName), crypto.NewAESEngine(), recovery.NewX25519Engine())
	s.SetKeyPath(keyPath)

	keyCreated, err := s.Init(crypto.NewPassphraseString("pw"))
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if keyCreated {
		t.Error("Init reported keyCreated=true despite an existing artifact")
	}

	// The reused key must still open the capsule.
	pass, err := s.RecoverPassphrase()
	if err != nil {
		t.Fatalf("RecoverPassphrase failed: %v", err)
	}
	defer pass.Wipe()
	if string(pass.Bytes()) != "pw" {
		t.Error("recovered passphrase mismatch")
	}
}

func TestOpenErrors(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	if _, err := s.Open(crypto.NewPassphraseString("wrong")); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Open with wrong passphrase = %v, want ErrAuthenticationFailed", err)
	}

	missing := newTestStore(t)
	if _, err := missing.Open(pass); !errors.Is(err, ErrVaultMissing) {
		t.Errorf("Open on missing vault = %v, want ErrVaultMissing", err)
	}
}

func TestAddAndGetPassword(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	id, stored, generated, err := s.AddPassword(pass, "github", "alice", "hunter2", "work", false)
	if err != nil {
		t.Fatalf("AddPassword failed: %v", err)
	}
	if id != 1 {
		t.Errorf("first ID = %d, want 1", id)
	}
	if generated || stored != "hunter2" {
		t.Errorf("stored = %q generated = %v, want explicit secret", stored, generated)
	}

	rec, err := s.GetPassword(pass, id)
	if err != nil {
		t.Fatalf("GetPassword failed: %v", err)
	}
	if rec.Service != "github" || rec.Username != "alice" || rec.Secret != "hunter2" || rec.Note != "work" {
		t.Errorf("unexpected record: %+v", rec)
	}

	// Idempotent read.
	again, err := s.GetPassword(pass, id)
	if err != nil {
		t.Fatal(err)
	}
	if *again != *rec {
		t.Error("two reads with no mutation returned different records")
	}

	if _, err := s.GetPassword(pass, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPassword(99) = %v, want ErrNotFound", err)
	}
}

func TestAddPasswordGeneratesSecret(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	_, stored, generated, err := s.AddPassword(pass, "svc", "user", "", "", false)
	if err != nil {
		t.Fatalf("AddPassword failed: %v", err)
	}
	if !generated {
		t.Error("empty secret did not trigger generation")
	}
	if len(stored) != security.GeneratedSecretLength {
		t.Errorf("generated secret length = %d, want %d", len(stored), security.GeneratedSecretLength)
	}
}

func TestAddPasswordValidation(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	if _, _, _, err := s.AddPassword(pass, "  ", "u", "pw", "", false); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty service = %v, want ErrInvalidInput", err)
	}

	if _, _, _, err := s.AddPassword(pass, "svc", "alice", "pw", "", false); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := s.AddPassword(pass, "SVC", "Alice", "pw2", "", false); !errors.Is(err, ErrDuplicateEntry) {
		t.Errorf("case-folded duplicate = %v, want ErrDuplicateEntry", err)
	}
	if _, _, _, err := s.AddPassword(pass, "SVC", "Alice", "pw2", "", true); err != nil {
		t.Errorf("forced duplicate failed: %v", err)
	}
}

func TestAddPasswordRejectsDelimiterFields(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	// A tab or newline inside a field would shift the line's field count
	// and demote the committed record to an unreachable opaque line.
	cases := []struct {
		name                            string
		service, username, secret, note string
	}{
		{"tab in secret", "svc", "u", "pw\twith-tab", ""},
		{"newline in secret", "svc", "u", "pw\nwith-newline", ""},
		{"tab in service", "svc\tx", "u", "pw", ""},
		{"newline in username", "svc", "u\nx", "pw", ""},
		{"tab in note", "svc", "u", "pw", "a\tb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := s.AddPassword(pass, tc.service, tc.username, tc.secret, tc.note, false)
			if !errors.Is(err, ErrInvalidCharacter) {
				t.Errorf("AddPassword = %v, want ErrInvalidCharacter", err)
			}
		})
	}

	// The rejected adds left no trace: the first clean add gets ID 1 and
	// stays reachable.
	id, _, _, err := s.AddPassword(pass, "svc", "u", "pw", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("first clean add got ID %d, want 1", id)
	}
	if _, err := s.GetPassword(pass, id); err != nil {
		t.Errorf("GetPassword after rejected adds failed: %v", err)
	}

	if err := s.UpdatePassword(pass, id, "svc", "u\tx", "", ""); !errors.Is(err, ErrInvalidCharacter) {
		t.Errorf("UpdatePassword with tab = %v, want ErrInvalidCharacter", err)
	}
	rec, err := s.GetPassword(pass, id)
	if err != nil {
		t.Fatalf("record unreachable after rejected update: %v", err)
	}
	if rec.Username != "u" {
		t.Errorf("rejected update changed the record: %+v", rec)
	}
}

func TestSearchPasswords(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	for _, svc := range []string{"GitHub", "gitlab", "bank"} {
		if _, _, _, err := s.AddPassword(pass, svc, "alice", "pw", "", false); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := s.SearchPasswords(pass, "GIT")
	if err != nil {
		t.Fatalf("SearchPasswords failed: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("search for GIT matched %d records, want 2", len(matches))
	}

	// Secrets are never matched.
	matches, err = s.SearchPasswords(pass, "pw")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("search matched against secrets: %d records", len(matches))
	}
}

func TestUpdatePassword(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	id, _, _, err := s.AddPassword(pass, "svc", "user", "old", "", false)
	if err != nil {
		t.Fatal(err)
	}

	// Empty secret keeps the stored one.
	if err := s.UpdatePassword(pass, id, "svc2", "user2", "", "note"); err != nil {
		t.Fatalf("UpdatePassword failed: %v", err)
	}
	rec, err := s.GetPassword(pass, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Service != "svc2" || rec.Secret != "old" || rec.Note != "note" {
		t.Errorf("unexpected record after update: %+v", rec)
	}

	if err := s.UpdatePassword(pass, 99, "x", "", "", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePassword(99) = %v, want ErrNotFound", err)
	}
}

func TestDeletePreservesOtherLines(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	// Inject an opaque line the codec does not understand.
	err := s.EditRaw(pass, func(scratchPath string) error {
		data, err := os.ReadFile(scratchPath)
		if err != nil {
			return err
		}
		data = append(data, []byte("some unrecognized line\n")...)
		return os.WriteFile(scratchPath, data, 0600)
	})
	if err != nil {
		t.Fatalf("EditRaw failed: %v", err)
	}

	id1, _, _, err := s.AddPassword(pass, "a", "u", "pw", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := s.AddPassword(pass, "b", "u", "pw", "", false); err != nil {
		t.Fatal(err)
	}

	var before []byte
	err = s.EditRaw(pass, func(scratchPath string) error {
		var err error
		before, err = os.ReadFile(scratchPath)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeletePassword(pass, id1); err != nil {
		t.Fatalf("DeletePassword failed: %v", err)
	}
	if err := s.DeletePassword(pass, id1); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}

	var after []byte
	err = s.EditRaw(pass, func(scratchPath string) error {
		var err error
		after, err = os.ReadFile(scratchPath)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	// Exactly the deleted record's line is gone.
	wantLines := make([]string, 0)
	for _, line := range strings.SplitAfter(string(before), "\n") {
		if strings.HasPrefix(line, fmt.Sprintf("%d\t", id1)) {
			continue
		}
		wantLines = append(wantLines, line)
	}
	if got, want := string(after), strings.Join(wantLines, ""); got != want {
		t.Errorf("delete disturbed other lines:\n got: %q\nwant: %q", got, want)
	}
	if !strings.Contains(string(after), "some unrecognized line\n") {
		t.Error("opaque line lost across mutations")
	}
}

func TestCommitWritesBackup(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	original, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}

	if _, _, _, err := s.AddPassword(pass, "svc", "u", "pw", "", false); err != nil {
		t.Fatal(err)
	}

	backup, err := os.ReadFile(s.Path() + BackupSuffix)
	if err != nil {
		t.Fatalf("backup sidecar missing: %v", err)
	}
	if !bytes.Equal(backup, original) {
		t.Error("backup does not hold the prior ciphertext")
	}
}

func TestConcurrentAddsBothPresent(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, _, errs[i] = s.AddPassword(pass, fmt.Sprintf("svc%d", i), "u", "pw", "", false)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent add %d failed: %v", i, err)
		}
	}

	records, err := s.ListPasswords(pass)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records after concurrent adds, want 2", len(records))
	}
	if records[0].ID == records[1].ID {
		t.Error("concurrent adds were assigned the same ID")
	}
}

// failSealEngine wraps the real engine and fails Seal on demand.
type failSealEngine struct {
	inner crypto.Engine
	fail  bool
}

func (f *failSealEngine) Seal(pass *crypto.Passphrase, plaintext []byte) ([]byte, error) {
	if f.fail {
		return nil, errors.New("engine crashed")
	}
	return f.inner.Seal(pass, plaintext)
}

func (f *failSealEngine) Open(pass *crypto.Passphrase, blob []byte) ([]byte, error) {
	return f.inner.Open(pass, blob)
}

func TestCommitFailureRetainsScratchAndVault(t *testing.T) {
	dir := t.TempDir()
	eng := &failSealEngine{inner: crypto.NewAESEngine()}
	s := New(filepath.Join(dir, VaultFileName), eng, recovery.NewX25519Engine())
	s.SetKeyPath(filepath.Join(dir, recovery.KeyFileName))

	pass := crypto.NewPassphraseString("pw")
	if _, err := s.Init(pass); err != nil {
		t.Fatal(err)
	}
	original, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}

	eng.fail = true

	sc, err := s.Open(pass)
	if err != nil {
		t.Fatal(err)
	}
	sc.Doc().AppendPassword(&record.PasswordRecord{
		ID: sc.Doc().NextPasswordID(), Service: "svc", Secret: "pw", CreatedAt: time.Now().UTC(),
	})
	err = s.Commit(pass, sc)
	if !errors.Is(err, ErrCommitFailed) {
		t.Fatalf("Commit with failing engine = %v, want ErrCommitFailed", err)
	}

	// The scratch is the only copy of the edit; it must survive.
	if !sc.Retained() {
		t.Error("failed commit did not retain the scratch document")
	}
	if sc.Doc() == nil {
		t.Error("scratch document destroyed despite failed commit")
	}

	// The on-disk vault is untouched and still opens.
	onDisk, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, original) {
		t.Error("failed commit modified the vault file")
	}

	eng.fail = false
	if err := s.Commit(pass, sc); err != nil {
		t.Fatalf("retry commit failed: %v", err)
	}
	records, err := s.ListPasswords(pass)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records after retried commit, want 1", len(records))
	}
}

func TestEditRawBusy(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.EditRaw(pass, func(string) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := s.EditRaw(pass, func(string) error { return nil })
	if !errors.Is(err, ErrVaultBusy) {
		t.Errorf("concurrent EditRaw = %v, want ErrVaultBusy", err)
	}
	close(release)
}

func TestEditRawCommitFailurePreservesScratch(t *testing.T) {
	dir := t.TempDir()
	eng := &failSealEngine{inner: crypto.NewAESEngine()}
	s := New(filepath.Join(dir, VaultFileName), eng, recovery.NewX25519Engine())
	s.SetKeyPath(filepath.Join(dir, recovery.KeyFileName))

	pass := crypto.NewPassphraseString("pw")
	if _, err := s.Init(pass); err != nil {
		t.Fatal(err)
	}
	original, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}

	eng.fail = true

	const edits = "1\tsvc\tu\tpw\t-\t2026-01-02T03:04:05Z\n"
	var scratch string
	err = s.EditRaw(pass, func(scratchPath string) error {
		scratch = scratchPath
		return os.WriteFile(scratchPath, []byte(edits), 0600)
	})
	if !errors.Is(err, ErrCommitFailed) {
		t.Fatalf("EditRaw with failing engine = %v, want ErrCommitFailed", err)
	}
	if !strings.Contains(err.Error(), scratch) {
		t.Errorf("error %q does not report the surviving scratch path %q", err, scratch)
	}

	// The scratch file is the only copy of the edits; it must survive a
	// failed commit intact.
	data, err := os.ReadFile(scratch)
	if err != nil {
		t.Fatalf("scratch file destroyed despite failed commit: %v", err)
	}
	if string(data) != edits {
		t.Errorf("scratch content = %q, want %q", data, edits)
	}

	// The on-disk vault is untouched.
	onDisk, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, original) {
		t.Error("failed edit commit modified the vault file")
	}

	// A retried edit with a healthy engine commits and cleans up.
	eng.fail = false
	err = s.EditRaw(pass, func(scratchPath string) error {
		return os.WriteFile(scratchPath, []byte(edits), 0600)
	})
	if err != nil {
		t.Fatalf("retry EditRaw failed: %v", err)
	}
	if _, err := s.GetPassword(pass, 1); err != nil {
		t.Errorf("edited record unreachable after retry: %v", err)
	}
}

func TestEditRawCleansScratch(t *testing.T) {
	s, pass := initTestVault(t)
	defer pass.Wipe()

	var scratch string
	err := s.EditRaw(pass, func(scratchPath string) error {
		scratch = scratchPath
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Error("scratch file survived the edit cycle")
	}
}
