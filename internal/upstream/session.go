package upstream

import (
	"math/rand"
	"strconv"
	"sync"
	"time"
)

const tokenPrefixLen = 5

// SessionKeeper owns the single shared upstream session token. All reads
// and writes go through its mutex; workers never touch the token directly.
type SessionKeeper struct {
	mu           sync.Mutex
	ttl          time.Duration
	token        string
	createdAt    time.Time
	lastActivity time.Time

	now func() time.Time // overridable for tests
}

// NewSessionKeeper creates a keeper with the given validity window.
// No token exists until the first Ensure call.
func NewSessionKeeper(ttl time.Duration) *SessionKeeper {
	return &SessionKeeper{
		ttl: ttl,
		now: time.Now,
	}
}

// Ensure returns the current valid token, minting a new one if none exists
// or the existing one has aged out of its validity window.
func (k *SessionKeeper) Ensure() string {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if k.token == "" || now.Sub(k.lastActivity) >= k.ttl {
		k.token = generateToken(now)
		k.createdAt = now
		k.lastActivity = now
	}
	return k.token
}

// NotifyActivity extends the session after a successful upstream call.
// An already-expired session is never revived; the next Ensure replaces it.
func (k *SessionKeeper) NotifyActivity() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.token == "" {
		return
	}
	now := k.now()
	if now.Sub(k.lastActivity) < k.ttl {
		k.lastActivity = now
	}
}

// Invalidate discards the current token so the next Ensure mints a fresh
// one. Called when the upstream rejects the session before its window ends.
func (k *SessionKeeper) Invalidate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.token = ""
}

// Age returns how long the current session has existed, or zero when no
// session is active. Exposed for the health endpoint.
func (k *SessionKeeper) Age() time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.token == "" {
		return 0
	}
	return k.now().Sub(k.createdAt)
}

// generateToken mimics the upstream's own session IDs: a short random
// alphabetic prefix followed by a millisecond epoch.
func generateToken(now time.Time) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	prefix := make([]byte, tokenPrefixLen)
	for i := range prefix {
		prefix[i] = letters[rand.Intn(len(letters))]
	}
	return string(prefix) + strconv.FormatInt(now.UnixMilli(), 10)
}
