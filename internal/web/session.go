package web

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/forest6511/lockbox/pkg/crypto"
)

const tokenBytes = 32

// session holds one authenticated browser session. The passphrase lives
// only here, in memory, for the session's lifetime.
type session struct {
	pass     *crypto.Passphrase
	lastSeen time.Time
}

// SessionManager owns the in-memory session table. Sessions expire after
// an idle interval; every successful lookup refreshes the clock.
type SessionManager struct {
	mu   sync.Mutex
	m    map[string]*session
	idle time.Duration
	now  func() time.Time

	stop chan struct{}
	once sync.Once

	// onExpire is called outside the lock for each session the janitor
	// or a lazy lookup expires.
	onExpire func()
}

// NewSessionManager returns a manager with the given idle expiry.
func NewSessionManager(idle time.Duration) *SessionManager {
	return &SessionManager{
		m:    make(map[string]*session),
		idle: idle,
		now:  time.Now,
		stop: make(chan struct{}),
	}
}

// Login mints a session bound to the verified passphrase and returns the
// opaque token. The passphrase is owned by the manager from here on.
func (sm *SessionManager) Login(pass *crypto.Passphrase) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	sm.mu.Lock()
	sm.m[token] = &session{pass: pass, lastSeen: sm.now()}
	sm.mu.Unlock()
	return token, nil
}

// Lookup returns an independent copy of the passphrase for a live session
// and refreshes its idle clock. The copy keeps a concurrent logout or
// janitor sweep from wiping bytes out from under an in-flight request; the
// caller wipes it when done. Expired sessions are destroyed lazily here
// even if the janitor has not swept them yet.
func (sm *SessionManager) Lookup(token string) (*crypto.Passphrase, bool) {
	sm.mu.Lock()
	s, ok := sm.m[token]
	if !ok {
		sm.mu.Unlock()
		return nil, false
	}
	if sm.now().Sub(s.lastSeen) > sm.idle {
		delete(sm.m, token)
		s.pass.Wipe()
		sm.mu.Unlock()
		if sm.onExpire != nil {
			sm.onExpire()
		}
		return nil, false
	}
	s.lastSeen = sm.now()
	pass := crypto.NewPassphrase(s.pass.Bytes())
	sm.mu.Unlock()
	return pass, true
}

// Logout destroys a session and wipes its passphrase.
func (sm *SessionManager) Logout(token string) {
	sm.mu.Lock()
	if s, ok := sm.m[token]; ok {
		delete(sm.m, token)
		s.pass.Wipe()
	}
	sm.mu.Unlock()
}

// StartJanitor sweeps expired sessions in the background until Close.
func (sm *SessionManager) StartJanitor(interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				sm.sweep()
			case <-sm.stop:
				return
			}
		}
	}()
}

func (sm *SessionManager) sweep() {
	var expired int
	sm.mu.Lock()
	now := sm.now()
	for token, s := range sm.m {
		if now.Sub(s.lastSeen) > sm.idle {
			delete(sm.m, token)
			s.pass.Wipe()
			expired++
		}
	}
	sm.mu.Unlock()
	if sm.onExpire != nil {
		for i := 0; i < expired; i++ {
			sm.onExpire()
		}
	}
}

// Close stops the janitor and destroys every live session.
func (sm *SessionManager) Close() {
	sm.once.Do(func() { close(sm.stop) })

	sm.mu.Lock()
	for token, s := range sm.m {
		delete(sm.m, token)
		s.pass.Wipe()
	}
	sm.mu.Unlock()
}
