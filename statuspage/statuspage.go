// Package statuspage serves the read-only HTTP status endpoints of
// SPEC_FULL §4.6 (/peers, /hashes, /stats), grounded on chihaya's
// frontend/http status-page wiring which uses julienschmidt/httprouter
// for a small number of fixed routes without the overhead of net/http's
// default mux.
package statuspage

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Anshorei/zeronet-tracker/metrics"
	"github.com/Anshorei/zeronet-tracker/pkg/log"
	"github.com/Anshorei/zeronet-tracker/pkg/stop"
	"github.com/Anshorei/zeronet-tracker/shared"
)

// Config configures the status-page HTTP server (SPEC_FULL §4.6,
// spec §6's rocket_port flag).
type Config struct {
	Addr string `json:"addr"`
}

func (cfg Config) LogFields() log.Fields {
	return log.Fields{"addr": cfg.Addr}
}

// Server serves /peers, /hashes, /stats against the shared state.
type Server struct {
	cfg   Config
	state *shared.State
	srv   *http.Server
}

// NewServer constructs and starts a status-page Server listening on
// cfg.Addr.
func NewServer(cfg Config, state *shared.State) *Server {
	router := httprouter.New()
	s := &Server{cfg: cfg, state: state}

	router.GET("/peers", s.handlePeers)
	router.GET("/hashes", s.handleHashes)
	router.GET("/stats", s.handleStats)

	s.srv = &http.Server{Addr: cfg.Addr, Handler: router}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("status page server failed", log.Err(err))
		}
	}()

	return s
}

type peerView struct {
	Address   string    `json:"address"`
	DateAdded time.Time `json:"date_added"`
	LastSeen  time.Time `json:"last_seen"`
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	db, unlock := s.state.Lock()
	peers, err := db.GetPeers()
	unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]peerView, len(peers))
	for i, p := range peers {
		out[i] = peerView{Address: p.Address.Format(), DateAdded: p.DateAdded, LastSeen: p.LastSeen}
	}
	writeJSON(w, out)
}

type hashView struct {
	Hash  string `json:"hash"`
	Peers int    `json:"peers"`
}

func (s *Server) handleHashes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	db, unlock := s.state.Lock()
	hashes, err := db.GetHashes()
	unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]hashView, len(hashes))
	for i, h := range hashes {
		out[i] = hashView{Hash: string(h.Hash), Peers: h.Count}
	}
	writeJSON(w, out)
}

type statsView struct {
	Peers     int       `json:"peers"`
	Hashes    int       `json:"hashes"`
	StartTime time.Time `json:"start_time"`
	Uptime    string    `json:"uptime"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	db, unlock := s.state.Lock()
	peerCount, err := db.GetPeerCount()
	if err != nil {
		unlock()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hashCount, err := db.GetHashCount()
	unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Refresh the gauges from the same snapshot, per spec §5's "lazily
	// from a snapshot" rule for gauge metrics.
	metrics.Peers.Set(float64(peerCount))
	metrics.Hashes.Set(float64(hashCount))

	writeJSON(w, statsView{
		Peers:     peerCount,
		Hashes:    hashCount,
		StartTime: s.state.StartTime(),
		Uptime:    time.Since(s.state.StartTime()).String(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write status page response", log.Err(err))
	}
}

// Stop implements stop.Stopper.
func (s *Server) Stop() <-chan error {
	c := make(chan error)
	go func() {
		defer close(c)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(ctx); err != nil {
			c <- err
		}
	}()
	return c
}

var _ stop.Stopper = (*Server)(nil)
