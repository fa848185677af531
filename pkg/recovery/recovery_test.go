package recovery

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCapsuleRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}

	eng := NewX25519Engine()
	secret := []byte("correct horse battery staple")

	capsule, err := eng.Seal(pub, secret)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Contains(capsule, secret) {
		t.Fatal("capsule contains plaintext secret")
	}

	got, err := eng.Open(priv, capsule)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("Open returned %q, want %q", got, secret)
	}
}

func TestOpenWithWrongKey(t *testing.T) {
	pub, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}
	_, otherPriv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}

	eng := NewX25519Engine()
	capsule, err := eng.Seal(pub, []byte("secret"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if _, err := eng.Open(otherPriv, capsule); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("Open with wrong key = %v, want ErrKeyMismatch", err)
	}
}

func TestOpenMalformedCapsule(t *testing.T) {
	_, priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}

	eng := NewX25519Engine()
	if _, err := eng.Open(priv, []byte("short")); !errors.Is(err, ErrMalformedCapsule) {
		t.Errorf("Open with short capsule = %v, want ErrMalformedCapsule", err)
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.key")
	_, priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}

	stored, created, err := WriteKeyFile(path, priv)
	if err != nil {
		t.Fatalf("WriteKeyFile failed: %v", err)
	}
	if !created {
		t.Error("first write reported created=false")
	}
	if !bytes.Equal(stored, priv) {
		t.Error("stored key differs from input")
	}

	loaded, err := ReadKeyFile(path)
	if err != nil {
		t.Fatalf("ReadKeyFile failed: %v", err)
	}
	if !bytes.Equal(loaded, priv) {
		t.Error("loaded key differs from written key")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key artifact mode = %04o, want 0600", perm)
	}
}

func TestWriteKeyFileNeverOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.key")
	_, first, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := WriteKeyFile(path, first); err != nil {
		t.Fatalf("WriteKeyFile failed: %v", err)
	}

	_, second, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	existing, created, err := WriteKeyFile(path, second)
	if err != nil {
		t.Fatalf("second WriteKeyFile failed: %v", err)
	}
	if created {
		t.Error("second write reported created=true")
	}
	if !bytes.Equal(existing, first) {
		t.Error("second write did not return the original key")
	}
}

func TestReadKeyFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadKeyFile(filepath.Join(dir, "absent.key")); !errors.Is(err, ErrKeyMissing) {
		t.Errorf("ReadKeyFile on absent file = %v, want ErrKeyMissing", err)
	}

	bad := filepath.Join(dir, "bad.key")
	if err := os.WriteFile(bad, []byte("not a key file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadKeyFile(bad); !errors.Is(err, ErrMalformedKey) {
		t.Errorf("ReadKeyFile on garbage = %v, want ErrMalformedKey", err)
	}
}

func TestPublicKeyFor(t *testing.T) {
	pub, priv, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	derived, err := PublicKeyFor(priv)
	if err != nil {
		t.Fatalf("PublicKeyFor failed: %v", err)
	}
	if !bytes.Equal(derived, pub) {
		t.Error("derived public key differs from generated one")
	}
}

func TestReadCapsuleMissing(t *testing.T) {
	if _, err := ReadCapsule(filepath.Join(t.TempDir(), "absent")); !errors.Is(err, ErrCapsuleMissing) {
		t.Errorf("ReadCapsule on absent file = %v, want ErrCapsuleMissing", err)
	}
}
