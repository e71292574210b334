// Package storage defines the PeerDatabase contract shared by the two
// backends (in-memory and SQLite): the indexed store of peers, hashes,
// and the many-to-many linkage between them described in spec §3/§4.2.
package storage

import (
	"errors"
	"time"

	"github.com/Anshorei/zeronet-tracker/address"
)

// Hash is an opaque content identifier. Implementations must not
// interpret its contents; its expected length follows the source
// protocol (typically 20 bytes) but is not enforced.
type Hash string

// Peer is one entry in the registry: an endpoint plus the timestamps
// that drive liveness and the janitor sweep.
type Peer struct {
	Address   address.PeerAddress
	DateAdded time.Time
	LastSeen  time.Time
}

// StoredHash is one entry in the hash index.
type StoredHash struct {
	Hash      Hash
	DateAdded time.Time
}

// HashCount pairs a hash with the number of peers currently seeding it.
type HashCount struct {
	Hash  Hash
	Count int
}

// ErrNotFound is returned by operations that look up a single record
// that does not exist, where the contract does not already express
// absence through a bool/ok-style return.
var ErrNotFound = errors.New("storage: not found")

// PeerDatabase is the contract implemented by both the in-memory and
// SQL-backed stores (spec §4.2). All index-consistency invariants in
// spec §3 must hold after every call returns.
type PeerDatabase interface {
	// UpdatePeer upserts peer and links it to every hash in hashes,
	// inserting any hash not already known. It reports whether the
	// peer address was already known (true) or newly inserted
	// (false). On update, LastSeen is refreshed from peer and
	// DateAdded is preserved from the existing record; on insert,
	// DateAdded is taken from peer.
	UpdatePeer(peer Peer, hashes []Hash) (bool, error)

	// RemovePeer deletes peer, unlinking it from every hash it was
	// seeding, and returns the removed record if it existed. Hashes
	// are not deleted even if they become peerless.
	RemovePeer(addr address.PeerAddress) (*Peer, error)

	// GetPeer returns a copy of the peer record for addr, if any.
	GetPeer(addr address.PeerAddress) (*Peer, error)

	// GetPeers returns a snapshot of every peer, order unspecified.
	GetPeers() ([]Peer, error)

	// GetPeersForHash returns a snapshot of the peers seeding hash;
	// an empty slice if hash is unknown.
	GetPeersForHash(hash Hash) ([]Peer, error)

	// GetHashes returns a snapshot of every known hash with its
	// current peer count.
	GetHashes() ([]HashCount, error)

	GetPeerCount() (int, error)
	GetHashCount() (int, error)

	// CleanupPeers removes every peer with LastSeen before cutoff and
	// reports how many were removed. Hashes orphaned by the sweep are
	// not cleaned here; the caller is expected to call CleanupHashes
	// next, within the same locked region, per spec §4.3.
	CleanupPeers(cutoff time.Time) (int, error)

	// CleanupHashes removes every hash with an empty peer set and
	// reports how many were removed.
	CleanupHashes() (int, error)

	// Close releases any resources (file handles, connections) held
	// by the backend.
	Close() error
}
