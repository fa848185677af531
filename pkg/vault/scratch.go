package vault

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest6511/lockbox/pkg/crypto"
	"github.com/forest6511/lockbox/pkg/record"
)

// Scratch is a transient decrypted copy of the vault. It must never
// outlive one open→commit/discard cycle; the store guarantees destruction
// on every exit path except a failed commit, where the document is
// retained so recent edits are not the only copy lost.
type Scratch struct {
	doc       *record.Document
	plaintext []byte
	retained  bool
}

// Doc returns the parsed document for mutation or reading.
func (sc *Scratch) Doc() *record.Document {
	return sc.doc
}

// Retained reports whether a failed commit left this scratch as the only
// copy of recent edits.
func (sc *Scratch) Retained() bool {
	return sc.retained
}

func (sc *Scratch) wipe() {
	crypto.SecureWipe(sc.plaintext)
	sc.plaintext = nil
	sc.doc = nil
	sc.retained = false
}

// osCreateScratch creates a scratch file next to the vault with owner-only
// permissions. Same-directory placement keeps the later rename-free cleanup
// on one filesystem.
func osCreateScratch(vaultPath string) (*os.File, error) {
	f, err := os.CreateTemp(filepath.Dir(vaultPath), ".lockbox-edit-*")
	if err != nil {
		return nil, fmt.Errorf("vault: failed to create scratch file: %w", err)
	}
	if err := f.Chmod(FileMode); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("vault: failed to restrict scratch file: %w", err)
	}
	return f, nil
}

func osReadScratch(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read scratch file: %w", err)
	}
	return data, nil
}

// secureRemove overwrites a scratch file with zeros before unlinking it,
// so plaintext does not linger on durable storage.
func secureRemove(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if f, err := os.OpenFile(path, os.O_WRONLY, FileMode); err == nil {
		zeros := make([]byte, info.Size())
		if _, err := f.Write(zeros); err == nil {
			_ = f.Sync()
		}
		f.Close()
	}
	if err := os.Remove(path); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to remove scratch file %s: %v\n", path, err)
	}
}
