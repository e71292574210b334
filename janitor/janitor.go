// Package janitor implements the periodic sweeper of spec §4.3: one
// background task for the life of the process, bounding the database
// in time by evicting peers unheard-from past a timeout and reclaiming
// hashes orphaned by that eviction. Grounded on chihaya's
// storage/memory GC goroutine (time.After loop selecting on a closed
// channel) and original_source/src/janitor.rs for the start-time guard
// and cleanup ordering.
package janitor

import (
	"time"

	"github.com/Anshorei/zeronet-tracker/pkg/log"
	"github.com/Anshorei/zeronet-tracker/pkg/stop"
	"github.com/Anshorei/zeronet-tracker/shared"
)

// Config configures the janitor's sweep cadence.
type Config struct {
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
}

// LogFields implements log.Fielder.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"interval": cfg.Interval.String(),
		"timeout":  cfg.Timeout.String(),
	}
}

// Janitor runs the sweep loop on its own goroutine until Stop is
// called.
type Janitor struct {
	cfg   Config
	state *shared.State

	closed chan struct{}
	done   chan struct{}
}

// New constructs a Janitor bound to state. Call Run to start the loop.
func New(cfg Config, state *shared.State) *Janitor {
	return &Janitor{
		cfg:    cfg,
		state:  state,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run executes the sweep loop described in spec §4.3. It blocks until
// Stop is called; callers should invoke it on its own goroutine.
func (j *Janitor) Run() {
	defer close(j.done)

	for {
		select {
		case <-j.closed:
			return
		case <-time.After(j.cfg.Interval):
		}

		j.sweep()
	}
}

func (j *Janitor) sweep() {
	cutoff := time.Now().Add(-j.cfg.Timeout)
	if cutoff.Before(j.state.StartTime()) {
		// Avoids evicting peers that have not had a chance to
		// re-announce since the tracker just started.
		return
	}

	db, unlock := j.state.Lock()
	nPeers, err := db.CleanupPeers(cutoff)
	if err != nil {
		unlock()
		log.Error("cleanup_peers failed", log.Err(err))
		return
	}
	nHashes, err := db.CleanupHashes()
	unlock()
	if err != nil {
		log.Error("cleanup_hashes failed", log.Err(err))
		return
	}

	if nPeers != 0 || nHashes != 0 {
		log.Info("janitor sweep", log.Fields{"peers_removed": nPeers, "hashes_removed": nHashes})
	}
}

// Stop implements stop.Stopper: it signals the loop to exit and waits
// for the in-flight sweep, if any, to finish.
func (j *Janitor) Stop() <-chan error {
	c := make(chan error)
	go func() {
		defer close(c)
		close(j.closed)
		<-j.done
	}()
	return c
}

var _ stop.Stopper = (*Janitor)(nil)
