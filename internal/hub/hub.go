// Package hub implements the SamCore routing hub: the server half of the
// protocol. It accepts node connections over a Unix domain socket, names
// them via the nodeInit handshake, routes packets between registered
// nodes, hosts the built-in API, and supervises persistent child nodes.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/samcore-io/samcore/internal/packet"
	"github.com/samcore-io/samcore/internal/settings"
	"github.com/samcore-io/samcore/internal/wire"
)

// State is one of the hub's lifecycle states (§4.3).
type State int

const (
	Starting State = iota
	Accepting
	Open
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Accepting:
		return "Accepting"
	case Open:
		return "Open"
	case Draining:
		return "Draining"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Config parameterizes a Hub instance.
type Config struct {
	Name         string // hub's own node name, conventionally "samcore"
	SocketPath   string // path to the Unix domain socket
	SettingsPath string // path to SamCoreSettings.json
	Logger       *slog.Logger
	Registerer   prometheus.Registerer // nil defaults to prometheus.DefaultRegisterer

	// OnConnect runs once, synchronously, at the Accepting→Open transition,
	// before greenLight flips true (§4.3 lifecycle states).
	OnConnect func(*Hub) error
}

// Hub is a single, scoped instance collapsing the lifecycle from
// Starting to Stopped into one value (Design Note: "scoped hub object"),
// rather than the teacher's module-level broker globals.
type Hub struct {
	name       string
	socketPath string
	log        *slog.Logger
	onConnect  func(*Hub) error

	mu         sync.Mutex
	state      State
	greenLight bool

	listener net.Listener
	reg      *registry
	store    *settings.Store
	metrics  *metrics

	supervisor *supervisor

	conns   map[*wire.Conn]struct{}
	connsMu sync.Mutex
}

// New constructs a Hub. It opens (or seeds) the settings document but does
// not yet bind the listener socket; call Start for that.
func New(cfg Config) (*Hub, error) {
	if cfg.Name == "" {
		cfg.Name = "samcore"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	store, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("hub: open settings: %w", err)
	}
	if err := store.SeedPackageRecord(cfg.Name); err != nil {
		return nil, fmt.Errorf("hub: seed package record: %w", err)
	}
	if _, ok := store.Get(fmt.Sprintf("packages.%s.version", cfg.Name)); !ok {
		if err := store.Set(fmt.Sprintf("packages.%s.version", cfg.Name), "1.0.0"); err != nil {
			return nil, fmt.Errorf("hub: set version: %w", err)
		}
	}
	if err := seedDefaults(store, cfg.Name); err != nil {
		return nil, fmt.Errorf("hub: seed defaults: %w", err)
	}

	h := &Hub{
		name:       cfg.Name,
		socketPath: cfg.SocketPath,
		log:        cfg.Logger,
		onConnect:  cfg.OnConnect,
		state:      Starting,
		reg:        newRegistry(),
		store:      store,
		metrics:    newMetrics(cfg.Registerer),
		conns:      map[*wire.Conn]struct{}{},
	}
	h.supervisor = newSupervisor(h)
	return h, nil
}

// seedDefaults fills in the remaining default fields for the hub's own
// package record per §4.2's default table, leaving any already-present
// value untouched.
func seedDefaults(store *settings.Store, hubName string) error {
	defaults := map[string]any{
		"development": false,
		"enabled":     true,
		"link":        "",
		"settings":    map[string]any{},
	}
	for field, value := range defaults {
		path := fmt.Sprintf("packages.%s.%s", hubName, field)
		if _, ok := store.Get(path); !ok {
			if err := store.Set(path, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Hub) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Hub) GreenLight() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.greenLight
}

// Start binds the socket, begins accepting connections, runs the
// registered persistent children, and flips green light. It blocks,
// serving connections until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) error {
	if err := os.Remove(h.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("hub: clear stale socket: %w", err)
	}

	listener, err := net.Listen("unix", h.socketPath)
	if err != nil {
		return fmt.Errorf("hub: listen on %s: %w", h.socketPath, err)
	}
	h.listener = listener
	h.setState(Accepting)
	h.log.Info("hub listening", "socket", h.socketPath, "name", h.name)

	go func() {
		<-ctx.Done()
		h.setState(Draining)
		h.log.Info("hub draining")
		h.listener.Close()
	}()

	if h.onConnect != nil {
		if err := h.onConnect(h); err != nil {
			return fmt.Errorf("hub: onConnect hook: %w", err)
		}
	}
	h.supervisor.spawnPersistentNodes(ctx)

	h.mu.Lock()
	h.state = Open
	h.greenLight = true
	h.mu.Unlock()
	h.log.Info("hub open", "greenLight", true)

	if _, err := h.startScheduledSweep(ctx); err != nil {
		h.log.Warn("scheduled sweep not started", "error", err)
	}

	for {
		nc, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				h.setState(Stopped)
				return nil
			}
			h.log.Warn("accept error", "error", err)
			continue
		}
		go h.handleConnection(nc)
	}
}

// handleConnection is the per-connection read loop, grounded in the
// teacher's broker.Service.handleConnection goroutine-per-connection
// model. It decodes one wire message at a time and dispatches it.
func (h *Hub) handleConnection(nc net.Conn) {
	connID := uuid.New().String()
	c := wire.New(nc)
	defer c.Close()

	h.connsMu.Lock()
	h.conns[c] = struct{}{}
	h.connsMu.Unlock()
	h.log.Debug("connection accepted", "connId", connID)

	defer func() {
		h.connsMu.Lock()
		delete(h.conns, c)
		h.connsMu.Unlock()
		h.reg.unregisterConn(c)
		h.metrics.registeredNodes.Set(float64(h.reg.count()))
		h.sweepOnDisconnect()
		h.log.Debug("connection closed", "connId", connID)
	}()

	for {
		msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var pkt packet.Packet
		if err := packet.Unmarshal(msg.Packet, &pkt); err != nil {
			h.log.Warn("malformed packet", "connId", connID, "error", err)
			h.metrics.dispatchErrors.WithLabelValues(errKindProtocol).Inc()
			continue
		}
		h.dispatch(c, msg.Key, &pkt)
	}
}

// sweepOnDisconnect runs the registry-liveness sweep from §4.3's
// disconnection handling: it does not depend on which connection dropped,
// it just re-validates the whole registry.
func (h *Hub) sweepOnDisconnect() {
	h.wellnessSweep()
}

// wellnessSweep emits a harmless wellnessCheck to every registered
// connection and evicts any whose write fails. Invoked both on disconnect
// events and periodically by the scheduled sweep (§1 expansion).
func (h *Hub) wellnessSweep() {
	for _, n := range h.reg.snapshot() {
		if err := n.conn.WriteMessage(packet.NodeMessage(n.name), packet.New(packet.NewParams{
			Sender:   h.name,
			Receiver: n.name,
			APICall:  packet.APIWellnessCheck,
		})); err != nil {
			h.reg.removeIfStale(n.name, n.conn)
			h.metrics.registeredNodes.Set(float64(h.reg.count()))
		}
	}
}

// Stop requests a graceful shutdown; Start's accept loop will return once
// the listener is closed and the context it was given is cancelled.
func (h *Hub) Stop() {
	h.setState(Draining)
	if h.listener != nil {
		h.listener.Close()
	}
}
