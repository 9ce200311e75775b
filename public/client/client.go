// Package client is the embeddable node client library: the counterpart
// every SamCore node process links in to speak to the hub. It handles
// connecting (with retry), registering a name, waiting for the readiness
// gate, dispatching inbound requests to user handlers, and correlating
// outbound calls with their replies.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samcore-io/samcore/internal/packet"
	"github.com/samcore-io/samcore/internal/wire"
)

// Handler processes one inbound packet. Handlers for a non-fire-and-forget
// call must reply exactly once via (*Client).Return or (*Client).ReturnError.
type Handler func(*Client, *packet.Packet)

// reconnectInterval is the retry cadence of Run's initial connect (§4.4
// step 1). A connection lost after that is not re-dialed; Run returns.
const reconnectInterval = 1500 * time.Millisecond

// greenLightPollInterval is the readiness-gate poll cadence (§4.4 step 4).
const greenLightPollInterval = 1 * time.Second

// Config parameterizes a Client (§4.4 "Construction").
type Config struct {
	NodeName   string
	HubName    string
	SocketPath string
	Silent     bool
	Logger     *slog.Logger

	// OnInit runs once, after greenLight but before handlers are bound
	// (§4.4 step 5) — node-local initialization such as fetching settings.
	OnInit func(*Client) error
	// OnConnect runs once, after handlers are bound (§4.4 step 7) — the
	// node's "main".
	OnConnect func(*Client) error
}

// Client is the node-side half of the protocol.
type Client struct {
	nodeName   string
	hubName    string
	socketPath string
	silent     bool
	log        *slog.Logger
	onInit     func(*Client) error
	onConnect  func(*Client) error

	connMu sync.Mutex
	conn   *wire.Conn

	listenersMu sync.Mutex
	listeners   map[string]Handler

	pendingMu sync.Mutex
	pending   map[int64]pendingCall

	codeMu   sync.Mutex
	lastCode int64

	greenLight bool
	glMu       sync.Mutex
}

type pendingCall struct {
	replyCh chan *packet.Packet
	timer   *time.Timer
}

// New constructs a Client. It does not connect; call Run for that.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		nodeName:   cfg.NodeName,
		hubName:    cfg.HubName,
		socketPath: cfg.SocketPath,
		silent:     cfg.Silent,
		log:        cfg.Logger,
		onInit:     cfg.OnInit,
		onConnect:  cfg.OnConnect,
		listeners:  map[string]Handler{},
		pending:    map[int64]pendingCall{},
	}
}

// AddApiCall binds "<nodeName>.<name>" to handler (§4.4 "Handler
// registration"). The binding is live from the moment it is made: one made
// before Run can fire as soon as Run's read loop starts, which is before
// the greenLight poll completes; one made from OnInit is live from then on.
func (c *Client) AddApiCall(name string, handler Handler) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners[packet.ReceiverAPI(c.nodeName, name)] = handler
}

// AddHook binds an arbitrary full key to handler, for observing another
// node's traffic addressed through the hub.
func (c *Client) AddHook(fullKey string, handler Handler) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners[fullKey] = handler
}

func (c *Client) handlerFor(key string) (Handler, bool) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	h, ok := c.listeners[key]
	return h, ok
}

// Run executes the startup sequence (§4.4) and then serves inbound
// packets until ctx is cancelled or the connection is lost.
func (c *Client) Run(ctx context.Context) error {
	// Step 1: connect, retrying until success.
	if err := c.connectWithRetry(ctx); err != nil {
		return err
	}

	// Step 2: nodeInit handshake.
	if err := c.nodeInit(ctx); err != nil {
		return err
	}

	// Step 3: the two always-on listeners (disconnect is handled by the
	// read loop's own exit path; the debug message channel is a plain
	// listener like any other).
	c.AddHook(packet.NodeMessage(c.nodeName), func(_ *Client, pkt *packet.Packet) {
		if c.silent {
			return
		}
		msg, _ := pkt.Args["message"].(string)
		c.log.Debug("message", "from", pkt.Sender, "text", msg)
	})

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop() }()

	// Step 4: poll greenLight until true.
	if err := c.waitGreenLight(ctx); err != nil {
		return err
	}

	// Step 5: onInit hook.
	if c.onInit != nil {
		if err := c.onInit(c); err != nil {
			return fmt.Errorf("client: onInit: %w", err)
		}
	}

	// Step 6: handlers registered via AddApiCall before Run are already
	// bound in c.listeners; nothing further to activate.

	// Step 7: onConnect hook (the node's "main").
	if c.onConnect != nil {
		if err := c.onConnect(c); err != nil {
			return fmt.Errorf("client: onConnect: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	case err := <-readErr:
		return err
	}
}

func (c *Client) connectWithRetry(ctx context.Context) error {
	for {
		nc, err := dial(c.socketPath)
		if err == nil {
			c.connMu.Lock()
			c.conn = wire.New(nc)
			c.connMu.Unlock()
			return nil
		}
		if !c.silent {
			c.log.Debug("connect failed, retrying", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectInterval):
		}
	}
}

func (c *Client) nodeInit(ctx context.Context) error {
	reply, err := c.callApi(ctx, c.hubName, packet.APINodeInit, map[string]any{"name": c.nodeName}, nil)
	if err != nil {
		return fmt.Errorf("client: nodeInit: %w", err)
	}
	if !reply.Status {
		return fmt.Errorf("client: nodeInit rejected: %s", reply.ErrorMessage)
	}
	return nil
}

func (c *Client) waitGreenLight(ctx context.Context) error {
	for {
		reply, err := c.callApi(ctx, c.hubName, packet.APIGreenLight, map[string]any{}, nil)
		if err == nil {
			if on, _ := reply.Result.(bool); on {
				c.glMu.Lock()
				c.greenLight = true
				c.glMu.Unlock()
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(greenLightPollInterval):
		}
	}
}

// GreenLight reports whether the readiness gate has opened.
func (c *Client) GreenLight() bool {
	c.glMu.Lock()
	defer c.glMu.Unlock()
	return c.greenLight
}

// Close tears down the connection and leaves pending calls in place: a
// call with a timeout resolves with the synthetic "API Timeout!" packet
// when it fires, one without a timeout resolves only when its context is
// done (§8 boundary case).
func (c *Client) Close() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
}

// readLoop is the client's single reader goroutine: one packet at a time,
// dispatched to either the pending-call table (replies) or a registered
// listener (inbound requests and hooks). Losing the connection here is
// the "disconnect triggers local shutdown" listener from §4.4 step 3.
func (c *Client) readLoop() error {
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return fmt.Errorf("client: not connected")
		}

		msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("client: connection lost: %w", err)
		}

		var pkt packet.Packet
		if err := packet.Unmarshal(msg.Packet, &pkt); err != nil {
			c.log.Warn("malformed packet", "error", err)
			continue
		}

		if sender, code, ok := parseReturnKey(msg.Key, c.nodeName); ok && sender == c.nodeName {
			c.resolvePending(code, &pkt)
			continue
		}

		if h, ok := c.handlerFor(msg.Key); ok {
			h(c, &pkt)
			continue
		}
		c.log.Warn("unhandled key", "key", msg.Key)
	}
}

// parseReturnKey extracts (sender, returnCode) from a key shaped
// "<receiver>.<apiCall>.return.<sender>.<returnCode>" (§4.1).
func parseReturnKey(key, nodeName string) (sender string, code int64, ok bool) {
	marker := ".return." + nodeName + "."
	idx := strings.Index(key, marker)
	if idx < 0 {
		return "", 0, false
	}
	tail := key[idx+len(marker):]
	code, err := strconv.ParseInt(tail, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return nodeName, code, true
}
