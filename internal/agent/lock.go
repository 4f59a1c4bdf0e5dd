package agent

import "sync"

// LockRegistry serializes reply processing per (instance, sender). A
// flush that arrives while the previous one is still being answered is
// dropped, not queued.
type LockRegistry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{held: make(map[string]struct{})}
}

// TryAcquire takes the slot if free and reports whether it did.
func (l *LockRegistry) TryAcquire(instanceID, sender string) bool {
	key := instanceID + ":" + sender
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

// Release frees the slot.
func (l *LockRegistry) Release(instanceID, sender string) {
	key := instanceID + ":" + sender
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
