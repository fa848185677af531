package vault

import (
	"path/filepath"
	"sync"
)

// vaultLocks serializes vault cycles per vault path. The vault file is the
// sole shared mutable resource; every mutating cycle takes the write lock
// and read-only cycles share the read lock.
var vaultLocks = struct {
	mu sync.Mutex
	m  map[string]*sync.RWMutex
}{m: make(map[string]*sync.RWMutex)}

// pathLock returns the lock for a vault path, keyed by its absolute form
// so differently-spelled paths to the same file share one lock.
func pathLock(path string) *sync.RWMutex {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	vaultLocks.mu.Lock()
	defer vaultLocks.mu.Unlock()

	mu, ok := vaultLocks.m[path]
	if !ok {
		mu = &sync.RWMutex{}
		vaultLocks.m[path] = mu
	}
	return mu
}
