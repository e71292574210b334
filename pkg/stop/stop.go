// Package stop coordinates the shutdown of the daemon's background
// workers (the peer listener, the janitor loop, the metrics and
// status-page servers) from one call site instead of each caller
// tracking its own set of goroutines to wait on.
package stop

import "sync"

// closedChan is a permanently-closed error channel: reading from it
// never blocks and always yields the zero value (no error).
var closedChan = func() <-chan error {
	c := make(chan error)
	close(c)
	return c
}()

// AlreadyStopped is the channel a Stopper can return from Stop when it
// has nothing left to shut down.
var AlreadyStopped = closedChan

// AlreadyStoppedFunc adapts AlreadyStopped into a Func.
func AlreadyStoppedFunc() <-chan error { return AlreadyStopped }

// Stopper is implemented by anything with a shutdown sequence to run.
type Stopper interface {
	// Stop must return immediately, performing the actual shutdown on
	// a separate goroutine. The returned channel yields at most one
	// error, then closes.
	Stop() <-chan error
}

// Func adapts a plain shutdown function to the Stopper contract.
type Func func() <-chan error

// Group holds a set of Stoppers and shuts them all down together.
type Group struct {
	mu      sync.Mutex
	members []Func
}

// NewGroup allocates an empty Group.
func NewGroup() *Group {
	return &Group{}
}

// Add registers s with the Group.
func (g *Group) Add(s Stopper) {
	g.AddFunc(s.Stop)
}

// AddFunc registers f with the Group directly, for callers that don't
// have a Stopper value handy.
func (g *Group) AddFunc(f Func) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members = append(g.members, f)
}

// Stop asks every registered member to begin shutting down, then
// blocks until all of them report completion, returning every error
// encountered (in no particular order).
func (g *Group) Stop() []error {
	g.mu.Lock()
	members := append([]Func(nil), g.members...)
	g.mu.Unlock()

	results := make([]error, len(members))
	var wg sync.WaitGroup
	wg.Add(len(members))

	for i, stop := range members {
		waitFor := stop()
		if waitFor == nil {
			panic("stop: a Stopper returned a nil channel")
		}
		go func(i int, waitFor <-chan error) {
			defer wg.Done()
			results[i] = <-waitFor
		}(i, waitFor)
	}
	wg.Wait()

	var errs []error
	for _, err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
