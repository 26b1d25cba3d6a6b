package google

import (
	"errors"
	"sync"
	"time"
)

// ErrAllKeysCoolingDown is returned by KeyRing.Acquire when every configured
// key is currently in its cooldown window.
var ErrAllKeysCoolingDown = errors.New("google: all api keys are cooling down")

// KeyRing round-robins across a fixed set of API keys, pulling a key out of
// rotation for Cooldown after it reports a rate limit or auth failure.
type KeyRing struct {
	mu       sync.Mutex
	keys     []string
	cooldown time.Duration
	next     int
	until    map[int]time.Time
}

// NewKeyRing builds a KeyRing over the given keys. cooldown is how long a key
// is skipped after MarkFailed is called on it.
func NewKeyRing(keys []string, cooldown time.Duration) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, errors.New("google: at least one api key is required")
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &KeyRing{
		keys:     keys,
		cooldown: cooldown,
		until:    make(map[int]time.Time),
	}, nil
}

// Acquire returns the next available key index and its value, skipping keys
// still in cooldown. It returns ErrAllKeysCoolingDown if none are available.
func (r *KeyRing) Acquire() (int, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for i := 0; i < len(r.keys); i++ {
		idx := (r.next + i) % len(r.keys)
		if until, cooling := r.until[idx]; cooling && now.Before(until) {
			continue
		}
		r.next = (idx + 1) % len(r.keys)
		return idx, r.keys[idx], nil
	}
	return -1, "", ErrAllKeysCoolingDown
}

// MarkFailed pulls the key at idx out of rotation until its cooldown elapses.
func (r *KeyRing) MarkFailed(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.keys) {
		return
	}
	r.until[idx] = time.Now().Add(r.cooldown)
}

// MarkSucceeded clears any cooldown on the key at idx.
func (r *KeyRing) MarkSucceeded(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.until, idx)
}

// Len reports the number of configured keys.
func (r *KeyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
