// Package wire implements the length-prefixed JSON framing shared by the
// hub and the node client library over a single connection: a 4-byte
// big-endian length header followed by a JSON (key, payload) pair.
//
// This replaces the teacher's streaming json.Decoder-per-connection
// approach (broker.Connection.Encoder/Decoder) with explicit framing,
// which delimits messages unambiguously under partial reads on a Unix
// domain socket the way bufio-wrapped TCP does for the teacher.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
)

// MaxFrameSize bounds a single frame so a misbehaving peer on the
// (trusted, but not infallible) local socket cannot force an unbounded
// allocation.
const MaxFrameSize = 16 << 20 // 16 MiB

// Message is one (key, payload) pair carried over a connection.
type Message struct {
	Key    string          `json:"key"`
	Packet json.RawMessage `json:"packet"`
}

// Conn wraps a net.Conn with the framing above. Reads are not
// synchronized (each connection has exactly one reader goroutine);
// writes are, since both directions of routing write concurrently.
type Conn struct {
	nc      net.Conn
	writeMu sync.Mutex
}

func New(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

func (c *Conn) ReadMessage() (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.nc, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(buf, &msg); err != nil {
		return nil, fmt.Errorf("wire: malformed frame: %w", err)
	}
	return &msg, nil
}

func (c *Conn) WriteMessage(key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wire: marshal payload: %w", err)
	}
	msg := Message{Key: key, Packet: body}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("wire: marshal frame: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("wire: outbound frame of %d bytes exceeds limit", len(data))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := c.nc.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = c.nc.Write(data)
	return err
}

func (c *Conn) Close() error {
	return c.nc.Close()
}
