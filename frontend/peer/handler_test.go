package peer

import (
	"net"
	"testing"

	"github.com/Anshorei/zeronet-tracker/address"
	"github.com/Anshorei/zeronet-tracker/shared"
	"github.com/Anshorei/zeronet-tracker/storage/memory"
	"github.com/Anshorei/zeronet-tracker/wire"
	"github.com/stretchr/testify/require"
)

// netPipe returns a pair of in-memory net.Conns for driving a
// connHandler without a real listener.
func netPipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	return server, client
}

func newHandler(t *testing.T, serverConn net.Conn, current address.PeerAddress) (*connHandler, *shared.State) {
	t.Helper()
	state := shared.New(memory.New())
	h := &connHandler{
		conn:    wire.NewConn(serverConn),
		state:   state,
		peerID:  "-ZN0001-test",
		current: current,
	}
	return h, state
}

func mustAddr(t *testing.T, s string) address.PeerAddress {
	t.Helper()
	a, err := address.Parse(s)
	require.NoError(t, err)
	return a
}

// requestDict wraps body in the {cmd, req_id, ...fields} request
// envelope described in spec §6.
func requestDict(cmd string, reqID int64, body wire.Dict) wire.Dict {
	out := wire.Dict{"cmd": cmd, "req_id": reqID}
	for k, v := range body {
		out[k] = v
	}
	return out
}

func announceDict(reqID int64, ann wire.Announce) wire.Dict {
	body := wire.Dict{
		"port":   int64(ann.Port),
		"hashes": ann.Hashes,
	}
	if ann.NeedTypes != nil {
		body["need_types"] = ann.NeedTypes
	}
	if ann.Onions != nil {
		body["onions"] = ann.Onions
	}
	if ann.Delete {
		body["delete"] = true
	}
	return requestDict("announce", reqID, body)
}

func TestHandshakeAndEmptyAnnounce(t *testing.T) {
	server, client := netPipe(t)
	defer client.Close()

	h, _ := newHandler(t, server, mustAddr(t, "8.8.8.8:9999"))
	go h.serve()

	clientConn := wire.NewConn(client)

	hs := wire.Handshake{FileserverPort: 15441, Protocol: "v2", PortOpened: true, Version: "0.7.1"}
	require.NoError(t, clientConn.WriteMessage(requestDict("handshake", 1, hs.ToDict())))

	resp, err := clientConn.ReadMessage()
	require.NoError(t, err)
	got, err := wire.HandshakeFromDict(resp)
	require.NoError(t, err)
	require.NotEmpty(t, got.PeerID)

	ann := wire.Announce{Port: 15441, NeedTypes: []string{"ipv4"}}
	require.NoError(t, clientConn.WriteMessage(announceDict(2, ann)))

	annResp, err := clientConn.ReadMessage()
	require.NoError(t, err)
	peersVal, ok := annResp["peers"].([]interface{})
	require.True(t, ok)
	require.Empty(t, peersVal)
}

func TestSingleHashSelfAnnounce(t *testing.T) {
	server, client := netPipe(t)
	defer client.Close()

	h, _ := newHandler(t, server, mustAddr(t, "8.8.8.8:9999"))
	go h.serve()

	clientConn := wire.NewConn(client)

	ann := wire.Announce{Port: 15441, Hashes: [][]byte{[]byte("H1__________________")}, NeedTypes: []string{"ipv4"}}
	require.NoError(t, clientConn.WriteMessage(announceDict(1, ann)))

	resp, err := clientConn.ReadMessage()
	require.NoError(t, err)
	peersVal := resp["peers"].([]interface{})
	require.Len(t, peersVal, 1)

	entry := peersVal[0].(wire.Dict)
	ipv4 := entry["ip_v4"].([]interface{})
	require.Len(t, ipv4, 1)

	expectedAddr := mustAddr(t, "8.8.8.8:15441")
	require.Equal(t, expectedAddr.Pack(), ipv4[0].([]byte))
}

func TestLoopbackSuppression(t *testing.T) {
	server, client := netPipe(t)
	defer client.Close()

	h, state := newHandler(t, server, mustAddr(t, "127.0.0.1:9999"))
	go h.serve()

	clientConn := wire.NewConn(client)
	ann := wire.Announce{Port: 15441, Hashes: [][]byte{[]byte("H1__________________")}, NeedTypes: []string{"ipv4"}}
	require.NoError(t, clientConn.WriteMessage(announceDict(1, ann)))

	_, err := clientConn.ReadMessage()
	require.NoError(t, err)

	db, unlock := state.Lock()
	defer unlock()
	count, err := db.GetPeerCount()
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestUnknownCommand(t *testing.T) {
	server, client := netPipe(t)
	defer client.Close()

	h, _ := newHandler(t, server, mustAddr(t, "8.8.8.8:9999"))
	go h.serve()

	clientConn := wire.NewConn(client)
	require.NoError(t, clientConn.WriteMessage(wire.Dict{"cmd": "bogus", "req_id": int64(9)}))

	resp, err := clientConn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, []byte("Unknown request"), resp["body"])
}

func TestNeededFamilies(t *testing.T) {
	v4, v6, onion := neededFamilies([]string{"ip4", "ipv6"})
	require.True(t, v4)
	require.True(t, v6)
	require.False(t, onion)
}

func TestHandshakeRewriteFailureKeepsConnectionOpen(t *testing.T) {
	server, client := netPipe(t)
	defer client.Close()

	h, _ := newHandler(t, server, mustAddr(t, "8.8.8.8:9999"))
	go h.serve()

	clientConn := wire.NewConn(client)

	hs := wire.Handshake{FileserverPort: 15441, Onion: "not-valid-base32!!"}
	require.NoError(t, clientConn.WriteMessage(requestDict("handshake", 1, hs.ToDict())))

	ann := wire.Announce{Port: 15441, NeedTypes: []string{"ipv4"}}
	require.NoError(t, clientConn.WriteMessage(announceDict(2, ann)))

	// The failed handshake gets no response at all; the first message
	// to arrive back is the announce's response, proving serve() kept
	// reading on the same connection instead of tearing it down.
	resp, err := clientConn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, int64(2), resp["to"])
}
