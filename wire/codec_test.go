package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := Dict{
		"cmd":    "announce",
		"req_id": int64(7),
		"delete": false,
		"port":   int64(15441),
		"hashes": [][]byte{{1, 2, 3}, {4, 5, 6}},
		"onions": []string{"aaaa", "bbbb"},
	}

	encoded, err := Marshal(in)
	require.NoError(t, err)

	decoded, err := Unmarshal(encoded)
	require.NoError(t, err)

	cmd, ok := getString(decoded, "cmd")
	require.True(t, ok)
	require.Equal(t, "announce", cmd)

	reqID, ok := getInt64(decoded, "req_id")
	require.True(t, ok)
	require.Equal(t, int64(7), reqID)

	require.False(t, getBool(decoded, "delete"))

	hashes, ok := getBytesList(decoded, "hashes")
	require.True(t, ok)
	require.Equal(t, [][]byte{{1, 2, 3}, {4, 5, 6}}, hashes)

	onions, ok := getStringList(decoded, "onions")
	require.True(t, ok)
	require.Equal(t, []string{"aaaa", "bbbb"}, onions)
}

func TestMarshalBool(t *testing.T) {
	encoded, err := Marshal(Dict{"delete": true})
	require.NoError(t, err)

	decoded, err := Unmarshal(encoded)
	require.NoError(t, err)
	require.True(t, getBool(decoded, "delete"))
}

func TestUnmarshalTruncated(t *testing.T) {
	_, err := Unmarshal([]byte("d3:cmd"))
	require.Error(t, err)
}

func TestNestedDict(t *testing.T) {
	in := Dict{
		"peers": []interface{}{
			map[string]interface{}{
				"ip_v4":    [][]byte{{1, 2, 3, 4, 0, 80}},
				"ip_v6":    [][]byte{},
				"onion_v2": [][]byte{},
			},
		},
	}

	encoded, err := Marshal(in)
	require.NoError(t, err)
	decoded, err := Unmarshal(encoded)
	require.NoError(t, err)

	peersVal, ok := decoded["peers"].([]interface{})
	require.True(t, ok)
	require.Len(t, peersVal, 1)

	entry, ok := peersVal[0].(Dict)
	require.True(t, ok)
	ipv4, ok := getBytesList(entry, "ip_v4")
	require.True(t, ok)
	require.Equal(t, [][]byte{{1, 2, 3, 4, 0, 80}}, ipv4)
}
