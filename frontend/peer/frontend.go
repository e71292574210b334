package peer

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"sync"
	"time"

	"github.com/Anshorei/zeronet-tracker/metrics"
	"github.com/Anshorei/zeronet-tracker/pkg/log"
	"github.com/Anshorei/zeronet-tracker/pkg/stop"
	"github.com/Anshorei/zeronet-tracker/shared"
	"github.com/Anshorei/zeronet-tracker/wire"
)

// Config configures the peer-protocol frontend (spec §6 CLI surface,
// address/port fields).
type Config struct {
	Addr string `json:"addr"`
}

// LogFields implements log.Fielder, grounded on chihaya frontend
// configs exposing their own field set for structured logging.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{"addr": cfg.Addr}
}

// Frontend is the peer-protocol listener: it accepts connections and
// spawns one connHandler per connection bound to the shared state,
// grounded on frontend/http/frontend.go's Frontend/NewFrontend/
// ListenAndServe/Stop shape, adapted from net/http to a raw
// net.Listener since the peer protocol is not HTTP.
type Frontend struct {
	cfg    Config
	state  *shared.State
	peerID string

	listener net.Listener
	wg       sync.WaitGroup
	closed   chan struct{}
}

// NewFrontend constructs a Frontend bound to state. It does not start
// listening; call ListenAndServe.
func NewFrontend(cfg Config, state *shared.State) *Frontend {
	return &Frontend{
		cfg:    cfg,
		state:  state,
		peerID: generatePeerID(),
		closed: make(chan struct{}),
	}
}

// generatePeerID synthesizes a stable per-process identifier, per
// spec §9's note that the source's empty-string peer_id placeholder
// "may" be replaced by a conforming rewrite with a real identifier.
func generatePeerID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "-ZN0001-00000000000000000000"
	}
	return "-ZN0001-" + hex.EncodeToString(b) + "000000"
}

// Listen binds the listening socket. Callers that need to detect a
// bind failure before the process commits to running (spec §6.3's
// non-zero exit on startup failure) should call Listen synchronously
// and only start Serve once it succeeds.
func (f *Frontend) Listen() error {
	l, err := net.Listen("tcp", f.cfg.Addr)
	if err != nil {
		return err
	}
	f.listener = l
	return nil
}

// ListenAndServe binds the listener and accepts connections until
// Stop is called. It blocks until the listener closes.
func (f *Frontend) ListenAndServe() error {
	if f.listener == nil {
		if err := f.Listen(); err != nil {
			return err
		}
	}
	return f.Serve()
}

// Serve accepts connections on a listener already bound by Listen,
// until Stop is called. It blocks until the listener closes.
func (f *Frontend) Serve() error {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			select {
			case <-f.closed:
				return nil
			default:
				log.Error("accept failed", log.Err(err))
				continue
			}
		}

		f.wg.Add(1)
		go f.handleConn(conn)
	}
}

func (f *Frontend) handleConn(conn net.Conn) {
	defer f.wg.Done()
	defer conn.Close()

	opened := time.Now()
	metrics.OpenedConnections.Inc()

	current, err := transportAddress(conn)
	if err != nil {
		log.Error("could not resolve transport address", log.Err(err))
		metrics.ClosedConnections.WithLabelValues("bad_address").Inc()
		return
	}

	h := &connHandler{
		conn:    wire.NewConn(conn),
		state:   f.state,
		peerID:  f.peerID,
		current: current,
		recordRequest: func(cmd string) {
			metrics.RequestsTotal.WithLabelValues(cmd).Inc()
		},
	}

	reason := "eof"
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panicked", log.Err(asError(r)))
				reason = "backend_error"
			}
		}()
		h.serve()
	}()

	metrics.ClosedConnections.WithLabelValues(reason).Inc()
	metrics.ConnectionDuration.Observe(time.Since(opened).Seconds())
	log.Info("connection closed", log.Fields{"reason": reason})
}

func asError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errUnknownPanic{r}
}

type errUnknownPanic struct{ v interface{} }

func (e errUnknownPanic) Error() string {
	return "panic: " + toString(e.v)
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown"
}

// Stop closes the listener and waits for in-flight handlers to
// return their goroutines (the connections themselves are not torn
// down, per spec §5's "cancellation: none" rule — only the accept
// loop is asked to stop).
func (f *Frontend) Stop() <-chan error {
	c := make(chan error)
	go func() {
		defer close(c)
		close(f.closed)
		if f.listener != nil {
			if err := f.listener.Close(); err != nil {
				c <- err
				return
			}
		}
		f.wg.Wait()
	}()
	return c
}

var _ stop.Stopper = (*Frontend)(nil)
