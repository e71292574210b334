package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))

	payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), payload)
}

func TestReadFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := ReadFrame(&buf)
	require.Error(t, err)
}

type pipe struct {
	*bytes.Buffer
}

func (p pipe) Close() error { return nil }

func TestConnReadWriteMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	conn := NewConn(pipe{buf})

	msg := Dict{"cmd": "handshake", "req_id": int64(1)}
	require.NoError(t, conn.WriteMessage(msg))

	got, err := conn.ReadMessage()
	require.NoError(t, err)
	cmd, ok := getString(got, "cmd")
	require.True(t, ok)
	require.Equal(t, "handshake", cmd)
}
