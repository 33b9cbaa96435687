package relay

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

func (s *Server) handleInputWS(conn *websocket.Conn) {
	c := s.hub.NewClient(RoleInput, conn.Query("client", "unknown"), conn)
	s.hub.Serve(c, func(data []byte) { s.handleInput(c, data) }, nil)
}

func (s *Server) handlePlayerWS(conn *websocket.Conn) {
	c := s.hub.NewClient(RolePlayer, "player", conn)
	s.hub.Serve(c, func(data []byte) { s.handlePlayerMessage(c, data) }, func() {
		s.hub.State().SetTargetConnected(false)
	})
}

// Status and output observers only receive; inbound messages are read
// to detect disconnects and otherwise ignored.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	c := s.hub.NewClient(RoleStatus, conn.Query("client", "unknown"), conn)
	s.hub.Serve(c, nil, nil)
}

func (s *Server) handleOutputWS(conn *websocket.Conn) {
	c := s.hub.NewClient(RoleOutput, conn.Query("client", "unknown"), conn)
	s.hub.Serve(c, nil, nil)
}

func (s *Server) handleBridgeWS(conn *websocket.Conn) {
	c := s.hub.NewClient(RoleBridge, conn.Query("client", "bridge"), conn)
	s.hub.Serve(c, func(data []byte) { s.handleBridgeMessage(c, data) }, nil)
}

// handlePlayerMessage applies a player report: forces are relayed to
// output observers, a mode and target pair is persisted, and a target
// connection flag is recorded.
func (s *Server) handlePlayerMessage(c *Client, data []byte) {
	r, err := protocol.ParsePlayerReport(data)
	if err != nil {
		c.logger.Warn("dropping malformed player report", "error", err)
		return
	}
	if r.Forces != nil {
		s.hub.BroadcastForces(*r.Forces, 0)
		return
	}

	c.logger.Info("player report", "mode", r.Mode, "target", r.Target)
	state := s.hub.State()
	changed := false

	if r.Mode != "" && r.Target != "" {
		mode, merr := protocol.ParseMode(string(r.Mode))
		target, terr := protocol.ParseTarget(string(r.Target))
		if merr != nil || terr != nil {
			c.logger.Warn("ignoring player config", "mode", r.Mode, "target", r.Target)
		} else {
			state.SetConfig(mode, target)
			if err := state.Save(); err != nil {
				s.logger.Error("failed to save player config", "error", err)
			}
			changed = true
		}
	}
	if r.TargetConnected != nil {
		state.SetTargetConnected(*r.TargetConnected)
		changed = true
	}

	if changed {
		s.hub.BroadcastStatus()
	}
}

// handleBridgeMessage relays frames echoed by the bridge hardware target.
func (s *Server) handleBridgeMessage(c *Client, data []byte) {
	var m protocol.ForcesMessage
	if err := json.Unmarshal(data, &m); err != nil {
		c.logger.Warn("dropping malformed bridge message", "error", err)
		return
	}
	if m.Command != protocol.CommandForces {
		c.logger.Debug("ignoring bridge message", "command", m.Command)
		return
	}
	s.hub.BroadcastForces(m.Forces, m.Generated)
}
