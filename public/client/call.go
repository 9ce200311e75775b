package client

import (
	"context"
	"fmt"
	"time"

	"github.com/samcore-io/samcore/internal/packet"
)

// CallApi performs the request/response call primitive (§4.4). It blocks
// until the reply arrives, the optional timeout fires, or ctx is done.
// A zero timeout means wait indefinitely (§8 boundary case: "callApi with
// no timeout against a silent receiver never resolves").
func (c *Client) CallApi(ctx context.Context, receiver, apiCall string, args map[string]any, timeout time.Duration) (*packet.Packet, error) {
	var timeoutPtr *time.Duration
	if timeout > 0 {
		timeoutPtr = &timeout
	}
	return c.callApi(ctx, receiver, apiCall, args, timeoutPtr)
}

func (c *Client) callApi(ctx context.Context, receiver, apiCall string, args map[string]any, timeout *time.Duration) (*packet.Packet, error) {
	code := c.nextCode()

	pkt := packet.New(packet.NewParams{
		Sender:     c.nodeName,
		Receiver:   receiver,
		APICall:    apiCall,
		Args:       args,
		ReturnCode: &code,
	})

	replyCh := make(chan *packet.Packet, 1)
	var timer *time.Timer
	if timeout != nil {
		timer = time.AfterFunc(*timeout, func() {
			c.fireTimeout(code)
		})
	}
	c.pendingMu.Lock()
	c.pending[code] = pendingCall{replyCh: replyCh, timer: timer}
	c.pendingMu.Unlock()

	outboundKey := packet.HubAPI(c.hubName, apiCall)
	if receiver != c.hubName {
		outboundKey = packet.HubSend(c.hubName)
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		c.dropPending(code)
		return nil, fmt.Errorf("client: not connected")
	}
	if err := conn.WriteMessage(outboundKey, pkt); err != nil {
		c.dropPending(code)
		return nil, fmt.Errorf("client: write: %w", err)
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		c.dropPending(code)
		return nil, ctx.Err()
	}
}

func (c *Client) nextCode() int64 {
	c.codeMu.Lock()
	defer c.codeMu.Unlock()
	now := time.Now().UnixMilli()
	if now <= c.lastCode {
		now = c.lastCode + 1
	}
	c.lastCode = now
	return now
}

// fireTimeout resolves a still-pending call with the synthetic timeout
// packet (§3, §4.4). If the real reply already arrived and removed the
// entry, this is a no-op — late replies for cancelled codes are dropped
// silently by resolvePending finding nothing to deliver to.
func (c *Client) fireTimeout(code int64) {
	c.pendingMu.Lock()
	p, ok := c.pending[code]
	if ok {
		delete(c.pending, code)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	p.replyCh <- &packet.Packet{
		ReturnCode:   &code,
		Status:       false,
		ErrorMessage: "API Timeout!",
	}
}

// resolvePending delivers pkt to the one-shot listener for its return
// code, if one is still registered; a reply for an already-resolved or
// already-timed-out code is silently dropped (§5 cancellation semantics).
func (c *Client) resolvePending(code int64, pkt *packet.Packet) {
	c.pendingMu.Lock()
	p, ok := c.pending[code]
	if ok {
		delete(c.pending, code)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.replyCh <- pkt
}

func (c *Client) dropPending(code int64) {
	c.pendingMu.Lock()
	p, ok := c.pending[code]
	if ok {
		delete(c.pending, code)
	}
	c.pendingMu.Unlock()
	if ok && p.timer != nil {
		p.timer.Stop()
	}
}

// Return emits pkt under "<hubName>.return" (§4.4 "Handler registration").
// It sends pkt.Status as it stands and does not set it; a request built
// with packet.New arrives with Status true. Handlers of
// non-fire-and-forget requests must call this (or ReturnError) exactly once.
func (c *Client) Return(pkt *packet.Packet) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("client: not connected")
	}
	return conn.WriteMessage(packet.HubReturn(c.hubName), pkt)
}

// ReturnError sets status=false, fills errorMessage if absent, and emits
// pkt under "<hubName>.return".
func (c *Client) ReturnError(pkt *packet.Packet, msg string) error {
	pkt.Status = false
	if pkt.ErrorMessage == "" && msg != "" {
		pkt.ErrorMessage = msg
	}
	return c.Return(pkt)
}
