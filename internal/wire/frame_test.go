package wire

import (
	"encoding/binary"
	"net"
	"testing"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		sc := New(server)
		done <- sc.WriteMessage("alice.helloWorld", map[string]any{"text": "hi"})
	}()

	cc := New(client)
	msg, err := cc.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if msg.Key != "alice.helloWorld" {
		t.Fatalf("unexpected key: %q", msg.Key)
	}
	if string(msg.Packet) != `{"text":"hi"}` {
		t.Fatalf("unexpected packet payload: %s", msg.Packet)
	}
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	// WriteMessage refuses to send an oversized frame, so write a raw length
	// header announcing one to reach ReadMessage's own size check.
	go func() {
		defer server.Close()
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
		_, _ = server.Write(hdr[:])
	}()

	cc := New(client)
	if _, err := cc.ReadMessage(); err == nil {
		t.Fatalf("expected an error reading an oversized frame")
	}
}

func TestReadMessageReturnsErrorOnClosedConn(t *testing.T) {
	server, client := net.Pipe()
	client.Close()
	cc := New(server)
	if _, err := cc.ReadMessage(); err == nil {
		t.Fatalf("expected error reading from a closed peer")
	}
}
