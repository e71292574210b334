package address

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		family Family
	}{
		{"ipv4", "127.0.0.1:15441", IPv4},
		{"ipv4_public", "203.0.113.9:15441", IPv4},
		{"ipv6", "[::1]:15441", IPv6},
		{"onion_v2", "zp2ynpztyxj2kw7x.onion:15441", OnionV2},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			addr, err := Parse(c.input)
			require.NoError(t, err)
			require.Equal(t, c.family, addr.Family)
			require.Equal(t, uint16(15441), addr.GetPort())
			require.Equal(t, c.input, addr.Format())
		})
	}
}

func TestParseOnionV3(t *testing.T) {
	// 56-char base32 identity decodes to 35 bytes (32-byte pubkey + 2-byte checksum + 1-byte version).
	onion := "vww6ybal4bd7szmgncyruucpgfkqahzddi37ktceo3ah7ngmcopnpyyd"
	addr, err := Parse(onion + ".onion:443")
	require.NoError(t, err)
	require.Equal(t, OnionV3, addr.Family)
	require.Len(t, addr.Onion, 35)
	require.Equal(t, uint16(443), addr.GetPort())
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not-an-address")
	require.Error(t, err)

	_, err = Parse("256.256.256.256:80")
	require.Error(t, err)

	_, err = Parse("toolong0000000000000000000000000000000000000000000000000000000.onion:80")
	require.Error(t, err)
}

func TestWithPort(t *testing.T) {
	addr, err := Parse("10.0.0.5:1000")
	require.NoError(t, err)

	moved := addr.WithPort(2000)
	require.Equal(t, uint16(2000), moved.GetPort())
	require.Equal(t, addr.Family, moved.Family)
	require.True(t, addr.IP.Equal(moved.IP))
	require.Equal(t, uint16(1000), addr.GetPort(), "original must be unchanged")
}

func TestPack(t *testing.T) {
	addr, err := Parse("10.0.0.5:1000")
	require.NoError(t, err)
	packed := addr.Pack()
	require.Len(t, packed, 6)
	require.Equal(t, []byte{10, 0, 0, 5}, packed[:4])
	require.Equal(t, byte(1000>>8), packed[4])
	require.Equal(t, byte(1000&0xff), packed[5])
}

func TestEqual(t *testing.T) {
	a, _ := Parse("10.0.0.5:1000")
	b, _ := Parse("10.0.0.5:1000")
	c, _ := Parse("10.0.0.5:1001")
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestIsLoopbackOrPrivate(t *testing.T) {
	loop, _ := Parse("127.0.0.1:1")
	priv, _ := Parse("192.168.1.5:1")
	pub, _ := Parse("8.8.8.8:1")
	require.True(t, loop.IsLoopbackOrPrivate())
	require.True(t, priv.IsLoopbackOrPrivate())
	require.False(t, pub.IsLoopbackOrPrivate())
}

func TestFromOnionIdentity(t *testing.T) {
	identity := make([]byte, 10)
	for i := range identity {
		identity[i] = byte(i)
	}
	addr, err := FromOnionIdentity(identity, 15441)
	require.NoError(t, err)
	require.Equal(t, OnionV2, addr.Family)

	roundTripped, err := ParseOnionString(strings.TrimSuffix(addr.Format(), ":15441"), 15441)
	require.NoError(t, err)
	require.True(t, addr.Equal(roundTripped))
}
