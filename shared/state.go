// Package shared holds the single mutex-guarded container that the
// peer handler and the janitor both operate on, per spec §3/§5: one
// lock over the whole registry, no lock-free paths, no read-write
// split. Grounded on chihaya's storage.PeerStore wiring in
// cmd/chihaya/main.go, simplified to the single-mutex model spec §5
// mandates instead of chihaya's sharded store.
package shared

import (
	"sync"
	"time"

	"github.com/Anshorei/zeronet-tracker/storage"
)

// State is the process-wide shared state: the peer database, the
// process start time (used by the janitor's startup guard), and the
// single mutex serializing every handler and janitor access.
type State struct {
	mu sync.Mutex

	db        storage.PeerDatabase
	startTime time.Time
}

// New wraps db in a State, recording now as the process start time.
func New(db storage.PeerDatabase) *State {
	return &State{db: db, startTime: time.Now()}
}

// StartTime returns the process start time recorded at construction.
func (s *State) StartTime() time.Time {
	return s.startTime
}

// Lock acquires the single state mutex and returns the underlying
// database for the duration of the critical section. Callers must
// call the returned unlock func exactly once.
//
// Usage:
//
//	db, unlock := state.Lock()
//	defer unlock()
func (s *State) Lock() (storage.PeerDatabase, func()) {
	s.mu.Lock()
	return s.db, s.mu.Unlock
}

// Close releases the underlying database's resources. Callers must
// ensure no handler or janitor goroutine is still running.
func (s *State) Close() error {
	return s.db.Close()
}
