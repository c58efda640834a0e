package httpmw

import (
	"net/http"
	"sync"
)

// KeyedMutex grants mutual exclusion per key instead of globally. Ledger
// uses this to lock wallets in ascending-id order during transfers
// (avoiding the classic two-wallet deadlock), and Voice uses it with a
// single constant key to guard its rejection-stock manifest.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu      sync.Mutex
	waiters int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key, creating it if necessary.
func (km *KeyedMutex) Lock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.waiters++
	km.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the lock for key and garbage-collects it once no
// goroutine is waiting on it anymore.
func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		km.mu.Unlock()
		return
	}
	l.waiters--
	if l.waiters <= 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()

	l.mu.Unlock()
}

// LockMulti acquires locks for every key in keys, in ascending sorted
// order, so that concurrent calls covering overlapping key sets can
// never deadlock against each other.
func (km *KeyedMutex) LockMulti(keys ...string) {
	sorted := append([]string(nil), keys...)
	sortStrings(sorted)
	for _, k := range sorted {
		km.Lock(k)
	}
}

// UnlockMulti releases locks acquired via LockMulti. Order does not
// matter for correctness but we reverse it to release most-recently
// acquired first.
func (km *KeyedMutex) UnlockMulti(keys ...string) {
	sorted := append([]string(nil), keys...)
	sortStrings(sorted)
	for i := len(sorted) - 1; i >= 0; i-- {
		km.Unlock(sorted[i])
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Semaphore bounds concurrency per key via a buffered channel.
type Semaphore struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	limit int
}

// NewSemaphore creates a Semaphore allowing limit concurrent holders per key.
func NewSemaphore(limit int) *Semaphore {
	return &Semaphore{slots: make(map[string]chan struct{}), limit: limit}
}

// Acquire blocks until a slot for key is available, then takes it.
func (s *Semaphore) Acquire(key string) {
	s.mu.Lock()
	ch, ok := s.slots[key]
	if !ok {
		ch = make(chan struct{}, s.limit)
		s.slots[key] = ch
	}
	s.mu.Unlock()
	ch <- struct{}{}
}

// Release frees one slot for key.
func (s *Semaphore) Release(key string) {
	s.mu.Lock()
	ch, ok := s.slots[key]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ch:
	default:
	}
}

// ConcurrencyGuard is a chi-style middleware limiting simultaneous
// in-flight requests sharing a key derived from the request.
func ConcurrencyGuard(sem *Semaphore, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			sem.Acquire(key)
			defer sem.Release(key)
			next.ServeHTTP(w, r)
		})
	}
}
