package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds the length prefix read off the wire so that a
// corrupt or hostile peer cannot make the tracker allocate an
// unbounded buffer.
const MaxFrameSize = 16 << 20 // 16MiB

// ReadFrame reads one length-prefixed frame from r: a 4-byte
// big-endian length followed by that many bytes of payload. This
// mirrors the length-prefix discipline used for framed peer-wire
// messages throughout the corpus (4-byte length, then payload).
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds maximum of %d", length, MaxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload to w as one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// Conn wraps a byte stream with buffered framed-message I/O.
type Conn struct {
	r *bufio.Reader
	w *bufio.Writer
	c io.Closer
}

// NewConn wraps rwc for framed message exchange.
func NewConn(rwc interface {
	io.Reader
	io.Writer
	io.Closer
}) *Conn {
	return &Conn{
		r: bufio.NewReader(rwc),
		w: bufio.NewWriter(rwc),
		c: rwc,
	}
}

// ReadMessage reads and decodes the next framed message.
func (c *Conn) ReadMessage() (Dict, error) {
	payload, err := ReadFrame(c.r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(payload)
}

// WriteMessage encodes and writes msg as one framed message.
func (c *Conn) WriteMessage(msg Dict) error {
	payload, err := Marshal(msg)
	if err != nil {
		return err
	}
	if err := WriteFrame(c.w, payload); err != nil {
		return err
	}
	return c.w.Flush()
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.c.Close()
}
