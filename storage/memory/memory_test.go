package memory

import (
	"testing"
	"time"

	"github.com/Anshorei/zeronet-tracker/address"
	"github.com/Anshorei/zeronet-tracker/storage"
	"github.com/stretchr/testify/require"
)

func mustAddr(t *testing.T, s string) address.PeerAddress {
	t.Helper()
	a, err := address.Parse(s)
	require.NoError(t, err)
	return a
}

func TestUpdatePeerInsertThenUpdate(t *testing.T) {
	s := New()
	addr := mustAddr(t, "1.2.3.4:15441")
	t0 := time.Now().Add(-time.Hour)

	existed, err := s.UpdatePeer(storage.Peer{Address: addr, DateAdded: t0, LastSeen: t0}, []storage.Hash{"hash1"})
	require.NoError(t, err)
	require.False(t, existed)

	t1 := time.Now()
	existed, err = s.UpdatePeer(storage.Peer{Address: addr, DateAdded: t1, LastSeen: t1}, []storage.Hash{"hash2"})
	require.NoError(t, err)
	require.True(t, existed)

	peer, err := s.GetPeer(addr)
	require.NoError(t, err)
	require.NotNil(t, peer)
	require.Equal(t, t0.Unix(), peer.DateAdded.Unix())
	require.Equal(t, t1.Unix(), peer.LastSeen.Unix())

	hashes, err := s.GetHashes()
	require.NoError(t, err)
	require.Len(t, hashes, 2)
}

func TestRemovePeerUnlinksHashes(t *testing.T) {
	s := New()
	addr := mustAddr(t, "1.2.3.4:15441")
	now := time.Now()

	_, err := s.UpdatePeer(storage.Peer{Address: addr, DateAdded: now, LastSeen: now}, []storage.Hash{"hash1"})
	require.NoError(t, err)

	removed, err := s.RemovePeer(addr)
	require.NoError(t, err)
	require.NotNil(t, removed)

	peers, err := s.GetPeersForHash("hash1")
	require.NoError(t, err)
	require.Empty(t, peers)

	again, err := s.RemovePeer(addr)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestCleanupPeersThenHashes(t *testing.T) {
	s := New()
	stale := mustAddr(t, "1.2.3.4:15441")
	fresh := mustAddr(t, "5.6.7.8:15441")

	past := time.Now().Add(-time.Hour)
	now := time.Now()

	_, err := s.UpdatePeer(storage.Peer{Address: stale, DateAdded: past, LastSeen: past}, []storage.Hash{"onlystale"})
	require.NoError(t, err)
	_, err = s.UpdatePeer(storage.Peer{Address: fresh, DateAdded: now, LastSeen: now}, []storage.Hash{"shared"})
	require.NoError(t, err)
	_, err = s.UpdatePeer(storage.Peer{Address: stale, DateAdded: past, LastSeen: past}, []storage.Hash{"shared"})
	require.NoError(t, err)

	cutoff := time.Now().Add(-time.Minute)
	removedPeers, err := s.CleanupPeers(cutoff)
	require.NoError(t, err)
	require.Equal(t, 1, removedPeers)

	removedHashes, err := s.CleanupHashes()
	require.NoError(t, err)
	require.Equal(t, 1, removedHashes)

	hashes, err := s.GetHashes()
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	require.Equal(t, storage.Hash("shared"), hashes[0].Hash)
}

func TestGetPeerCountAndHashCount(t *testing.T) {
	s := New()
	now := time.Now()
	_, err := s.UpdatePeer(storage.Peer{Address: mustAddr(t, "1.2.3.4:1"), DateAdded: now, LastSeen: now}, []storage.Hash{"a", "b"})
	require.NoError(t, err)

	count, err := s.GetPeerCount()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	hashCount, err := s.GetHashCount()
	require.NoError(t, err)
	require.Equal(t, 2, hashCount)
}
