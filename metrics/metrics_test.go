package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	peers, hashes int
	err           error
}

func (f fakeSource) GetPeerCount() (int, error)  { return f.peers, f.err }
func (f fakeSource) GetHashCount() (int, error) { return f.hashes, f.err }

func TestRefreshSetsGauges(t *testing.T) {
	Refresh(fakeSource{peers: 3, hashes: 2})

	require.Equal(t, float64(3), testutil.ToFloat64(Peers))
	require.Equal(t, float64(2), testutil.ToFloat64(Hashes))
}

func TestRefreshIgnoresError(t *testing.T) {
	Refresh(fakeSource{peers: 99, hashes: 99})
	Refresh(fakeSource{err: errors.New("boom")})

	require.Equal(t, float64(99), testutil.ToFloat64(Peers))
	require.Equal(t, float64(99), testutil.ToFloat64(Hashes))
}
