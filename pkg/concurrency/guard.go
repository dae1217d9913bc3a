package concurrency

import (
	"errors"
	"sync"
)

var ErrBusy = errors.New("operation already in progress")

// ConcurrencyGuard rejects overlapping executions instead of queueing them.
// Used where a second concurrent attempt is a caller mistake rather than
// work to be ordered.
type ConcurrencyGuard struct {
	mu     sync.Mutex
	isBusy bool
}

func NewConcurrencyGuard() *ConcurrencyGuard {
	return &ConcurrencyGuard{}
}

func (g *ConcurrencyGuard) Execute(task func() error) error {
	g.mu.Lock()
	if g.isBusy {
		g.mu.Unlock()
		return ErrBusy
	}
	g.isBusy = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.isBusy = false
		g.mu.Unlock()
	}()
	return task()
}

// KeyedGuard serializes work per key while leaving distinct keys fully
// independent. Unlike ConcurrencyGuard it queues rather than rejects:
// SDP negotiation steps for one peer must run in order, not fail.
//
// Lock entries live for the guard's lifetime, so every caller for a key
// contends on the same mutex. The map is bounded by the caller's key
// population.
type KeyedGuard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedGuard() *KeyedGuard {
	return &KeyedGuard{locks: make(map[string]*sync.Mutex)}
}

func (g *KeyedGuard) lockFor(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	return l
}

// Execute runs task holding the lock for key. Calls with the same key run
// one at a time; calls with different keys do not block each other.
func (g *KeyedGuard) Execute(key string, task func() error) error {
	l := g.lockFor(key)
	l.Lock()
	defer l.Unlock()
	return task()
}
