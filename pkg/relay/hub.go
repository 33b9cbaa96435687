package relay

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-motionbridge/internal/log"
	"github.com/teslashibe/go-motionbridge/internal/metrics"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// Role is the channel a client connected on.
type Role string

const (
	RoleInput  Role = "input"  // event producers
	RolePlayer Role = "player" // the motion player process
	RoleStatus Role = "status" // status observers
	RoleOutput Role = "output" // force observers
	RoleBridge Role = "bridge" // bridge hardware target feeding forces back in
)

var roles = []Role{RoleInput, RolePlayer, RoleStatus, RoleOutput, RoleBridge}

// BroadcastResult counts per-client delivery outcomes of one fan-out.
// A failed delivery means the client's queue was full.
type BroadcastResult struct {
	Sent      int
	Failed    int
	FailedIDs []string
}

type encoder interface {
	Bytes() ([]byte, error)
}

// Hub tracks clients per role and fans messages out to them. Each client
// has its own queue and writer goroutine, so a slow client never delays
// the others.
type Hub struct {
	state     *PlayerState
	inputRate float64
	logger    *slog.Logger

	mu      sync.RWMutex
	clients map[Role]map[*Client]struct{}
	closed  bool
	active  sync.WaitGroup
}

// NewHub creates a hub. inputRate caps events per second per input
// client; zero disables the cap.
func NewHub(state *PlayerState, inputRate float64, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = log.L()
	}
	h := &Hub{
		state:     state,
		inputRate: inputRate,
		logger:    logger.With("component", "hub"),
		clients:   make(map[Role]map[*Client]struct{}, len(roles)),
	}
	for _, r := range roles {
		h.clients[r] = make(map[*Client]struct{})
	}
	return h
}

// State returns the persisted player configuration.
func (h *Hub) State() *PlayerState { return h.state }

// NewClient wraps a connection. id defaults to "unknown".
func (h *Hub) NewClient(role Role, id string, conn Conn) *Client {
	if id == "" {
		id = "unknown"
	}
	connID := uuid.NewString()
	c := &Client{
		ID:     id,
		ConnID: connID,
		Role:   role,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: h.logger.With("role", role, "client", id, "conn", connID),
	}
	if role == RoleInput && h.inputRate > 0 {
		burst := max(1, int(h.inputRate))
		c.limiter = rate.NewLimiter(rate.Limit(h.inputRate), burst)
	}
	return c
}

// Serve runs a client until its connection ends. onMessage handles each
// inbound message on the calling goroutine; onClose runs after the client
// is unregistered and before the final status broadcast.
func (h *Hub) Serve(c *Client, onMessage func([]byte), onClose func()) {
	if !h.register(c) {
		c.conn.Close()
		return
	}
	defer h.active.Done()

	c.logger.Info("connected")
	h.announce(c.Role)

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	c.readPump(onMessage)

	h.unregister(c)
	if onClose != nil {
		onClose()
	}
	c.logger.Info("disconnected")
	h.announce(c.Role)
	<-done
}

// announce broadcasts status when a membership change is visible in it.
func (h *Hub) announce(r Role) {
	if r != RoleBridge {
		h.BroadcastStatus()
	}
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.Role][c] = struct{}{}
	h.active.Add(1)
	metrics.HubClients.WithLabelValues(string(c.Role)).Inc()
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.Role][c]; !ok {
		return
	}
	delete(h.clients[c.Role], c)
	close(c.send)
	metrics.HubClients.WithLabelValues(string(c.Role)).Dec()
}

// Count returns the number of clients in a role.
func (h *Hub) Count(r Role) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[r])
}

// IDs returns the declared ids of a role's clients, sorted.
func (h *Hub) IDs(r Role) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients[r]))
	for c := range h.clients[r] {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

// PlayerConnected reports whether any player client is connected.
func (h *Hub) PlayerConnected() bool {
	return h.Count(RolePlayer) > 0
}

// Broadcast queues data for every client of a role.
func (h *Hub) Broadcast(r Role, data []byte) BroadcastResult {
	h.mu.RLock()
	var res BroadcastResult
	for c := range h.clients[r] {
		if c.enqueue(data) {
			res.Sent++
		} else {
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, c.ID)
			c.logger.Warn("send queue full, dropping message")
		}
	}
	h.mu.RUnlock()

	metrics.ObserveBroadcast(string(r), res.Sent, res.Failed)
	return res
}

func (h *Hub) broadcast(r Role, msg encoder) BroadcastResult {
	data, err := msg.Bytes()
	if err != nil {
		h.logger.Error("encode failed", "role", r, "error", err)
		return BroadcastResult{}
	}
	return h.Broadcast(r, data)
}

// Reply queues data for one client if it is still registered.
func (h *Hub) Reply(c *Client, msg encoder) bool {
	data, err := msg.Bytes()
	if err != nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.Role][c]; !ok {
		return false
	}
	return c.enqueue(data)
}

// SendToPlayers sends a command to every player client.
func (h *Hub) SendToPlayers(cmd *protocol.Command) BroadcastResult {
	res := h.broadcast(RolePlayer, cmd)
	if res.Sent+res.Failed == 0 {
		h.logger.Info("motion player is disconnected", "command", cmd.Command)
	} else {
		h.logger.Debug("sent to player", "command", cmd.Command, "motion", cmd.Motion, "sent", res.Sent)
	}
	return res
}

// BroadcastForces relays a force frame to output observers.
func (h *Hub) BroadcastForces(frame protocol.ForceFrame, generated float64) BroadcastResult {
	return h.broadcast(RoleOutput, protocol.NewForcesMessage(frame, generated))
}

// Status builds the current status snapshot.
func (h *Hub) Status() *protocol.Status {
	mode, target, connected := h.state.Snapshot()
	return &protocol.Status{
		PlayerConnected: h.PlayerConnected(),
		PlayerMode:      mode,
		PlayerTarget:    target,
		InputClients:    h.IDs(RoleInput),
		OutputClients:   h.IDs(RoleOutput),
		TargetConnected: connected,
	}
}

// BroadcastStatus pushes the status snapshot to status observers.
func (h *Hub) BroadcastStatus() BroadcastResult {
	return h.broadcast(RoleStatus, h.Status())
}

// Close asks players to shut down, pushes a last status, then closes
// every client and waits for their handlers to return or ctx to expire.
func (h *Hub) Close(ctx context.Context) {
	h.SendToPlayers(protocol.NewShutdown())
	h.BroadcastStatus()

	h.mu.Lock()
	h.closed = true
	for _, set := range h.clients {
		for c := range set {
			delete(set, c)
			close(c.send)
			metrics.HubClients.WithLabelValues(string(c.Role)).Dec()
		}
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("clients still open at shutdown")
	}
}
