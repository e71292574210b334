// Package memory implements storage.PeerDatabase as an in-process
// registry guarded by a single mutex, per spec §5. Unlike chihaya's
// sharded memory store (storage/memory/peer_store.go in the teacher
// repo), a tracker daemon of this size has no need for shard-level
// lock striping; correctness and a readable implementation win over
// squeezing out the last bit of concurrent throughput.
package memory

import (
	"sync"
	"time"

	"github.com/Anshorei/zeronet-tracker/address"
	"github.com/Anshorei/zeronet-tracker/storage"
)

type record struct {
	peer   storage.Peer
	hashes map[storage.Hash]struct{}
}

// Store is the in-memory PeerDatabase implementation.
type Store struct {
	mu sync.Mutex

	peers  map[string]*record                    // keyed by address.Format()
	hashes map[storage.Hash]map[string]struct{} // hash -> set of peer keys
}

var _ storage.PeerDatabase = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		peers:  make(map[string]*record),
		hashes: make(map[storage.Hash]map[string]struct{}),
	}
}

func key(addr address.PeerAddress) string {
	return addr.Format()
}

func (s *Store) UpdatePeer(peer storage.Peer, hashes []storage.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(peer.Address)
	rec, existed := s.peers[k]
	if !existed {
		rec = &record{
			peer:   peer,
			hashes: make(map[storage.Hash]struct{}),
		}
		s.peers[k] = rec
	} else {
		dateAdded := rec.peer.DateAdded
		rec.peer = peer
		rec.peer.DateAdded = dateAdded
	}

	for _, h := range hashes {
		rec.hashes[h] = struct{}{}

		set, ok := s.hashes[h]
		if !ok {
			set = make(map[string]struct{})
			s.hashes[h] = set
		}
		set[k] = struct{}{}
	}

	return existed, nil
}

func (s *Store) RemovePeer(addr address.PeerAddress) (*storage.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(addr)
	rec, ok := s.peers[k]
	if !ok {
		return nil, nil
	}
	delete(s.peers, k)

	for h := range rec.hashes {
		if set, ok := s.hashes[h]; ok {
			delete(set, k)
		}
	}

	peer := rec.peer
	return &peer, nil
}

func (s *Store) GetPeer(addr address.PeerAddress) (*storage.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.peers[key(addr)]
	if !ok {
		return nil, nil
	}
	peer := rec.peer
	return &peer, nil
}

func (s *Store) GetPeers() ([]storage.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storage.Peer, 0, len(s.peers))
	for _, rec := range s.peers {
		out = append(out, rec.peer)
	}
	return out, nil
}

func (s *Store) GetPeersForHash(hash storage.Hash) ([]storage.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.hashes[hash]
	if !ok {
		return []storage.Peer{}, nil
	}
	out := make([]storage.Peer, 0, len(set))
	for k := range set {
		if rec, ok := s.peers[k]; ok {
			out = append(out, rec.peer)
		}
	}
	return out, nil
}

func (s *Store) GetHashes() ([]storage.HashCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storage.HashCount, 0, len(s.hashes))
	for h, set := range s.hashes {
		out = append(out, storage.HashCount{Hash: h, Count: len(set)})
	}
	return out, nil
}

func (s *Store) GetPeerCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers), nil
}

func (s *Store) GetHashCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hashes), nil
}

// CleanupPeers removes every peer whose LastSeen precedes cutoff.
func (s *Store) CleanupPeers(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, rec := range s.peers {
		if rec.peer.LastSeen.Before(cutoff) {
			delete(s.peers, k)
			for h := range rec.hashes {
				if set, ok := s.hashes[h]; ok {
					delete(set, k)
				}
			}
			removed++
		}
	}
	return removed, nil
}

// CleanupHashes removes every hash with no remaining peers.
func (s *Store) CleanupHashes() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for h, set := range s.hashes {
		if len(set) == 0 {
			delete(s.hashes, h)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Close() error {
	return nil
}
