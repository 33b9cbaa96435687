// Package protocol defines the WebSocket messages exchanged between the
// motion bridge (relay) and the motion player, status observers and force
// observers.
package protocol

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// CommandType identifies a hub → player command, or a forces broadcast.
type CommandType string

const (
	// Hub → Player commands
	CommandMotion     CommandType = "motion"      // Named motion from the library
	CommandMotionData CommandType = "motion_data" // Inline, unsaved waveform
	CommandSignal     CommandType = "signal"      // Raw frame for LIVE mode
	CommandModeUpdate CommandType = "mode_update" // Mode and/or target change
	CommandShutdown   CommandType = "shutdown"    // Stop the player process

	// Hub → Output observers
	CommandForces CommandType = "forces"
)

// Command is the uniform envelope for every message sent to the player.
type Command struct {
	Command    CommandType     `json:"command"`
	Motion     string          `json:"motion,omitempty"`
	MotionData json.RawMessage `json:"motion_data,omitempty"`
	Behavior   Behavior        `json:"behavior,omitempty"`
	Scale      float64         `json:"scale,omitempty"`
	Signal     *ForceFrame     `json:"signal,omitempty"`
	Mode       Mode            `json:"mode,omitempty"`
	Target     Target          `json:"target,omitempty"`
	TimeStamp  float64         `json:"time_stamp,omitempty"` // Unix seconds
}

// now returns the current time as fractional Unix seconds.
func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// NewMotionCommand creates a named motion command.
func NewMotionCommand(motion string, behavior Behavior, scale float64) *Command {
	return &Command{
		Command:   CommandMotion,
		Motion:    motion,
		Behavior:  behavior,
		Scale:     scale,
		TimeStamp: now(),
	}
}

// NewMotionDataCommand creates an inline motion command from an encoded
// motion document.
func NewMotionDataCommand(doc json.RawMessage, behavior Behavior, scale float64) *Command {
	return &Command{
		Command:    CommandMotionData,
		MotionData: doc,
		Behavior:   behavior,
		Scale:      scale,
		TimeStamp:  now(),
	}
}

// NewSignalCommand creates a LIVE-mode signal command.
func NewSignalCommand(frame ForceFrame) *Command {
	return &Command{
		Command:   CommandSignal,
		Signal:    &frame,
		TimeStamp: now(),
	}
}

// NewModeUpdate creates a configuration change. Empty values are omitted.
func NewModeUpdate(mode Mode, target Target) *Command {
	return &Command{
		Command: CommandModeUpdate,
		Mode:    mode,
		Target:  target,
	}
}

// NewShutdown creates a shutdown command.
func NewShutdown() *Command {
	return &Command{Command: CommandShutdown}
}

// Bytes returns the JSON-encoded command.
func (c *Command) Bytes() ([]byte, error) {
	return json.Marshal(c)
}

// ParseCommand parses a command from bytes.
func ParseCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}
	return &cmd, nil
}

// PlayerReport is what the player sends back to the hub: a raw forces
// passthrough, its current mode/target, and/or the target connection state.
type PlayerReport struct {
	Forces          *ForceFrame `json:"forces,omitempty"`
	Mode            Mode        `json:"mode,omitempty"`
	Target          Target      `json:"target,omitempty"`
	TargetConnected *bool       `json:"target_connected,omitempty"`
}

// NewStateReport creates the report a player sends after connecting and
// after every applied configuration change.
func NewStateReport(mode Mode, target Target, connected bool) *PlayerReport {
	return &PlayerReport{
		Mode:            mode,
		Target:          target,
		TargetConnected: &connected,
	}
}

// Bytes returns the JSON-encoded report.
func (r *PlayerReport) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// ParsePlayerReport parses a player report from bytes.
func ParsePlayerReport(data []byte) (*PlayerReport, error) {
	var r PlayerReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse player report: %w", err)
	}
	return &r, nil
}

// ForcesMessage is broadcast to output observers, and sent by the bridge
// hardware target.
type ForcesMessage struct {
	Command   CommandType `json:"command"`
	Forces    ForceFrame  `json:"forces"`
	Generated float64     `json:"timestamp_force_generated,omitempty"`
}

// NewForcesMessage creates a forces message. A zero generated timestamp is omitted.
func NewForcesMessage(frame ForceFrame, generated float64) *ForcesMessage {
	return &ForcesMessage{
		Command:   CommandForces,
		Forces:    frame,
		Generated: generated,
	}
}

// Bytes returns the JSON-encoded message.
func (m *ForcesMessage) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Status is the snapshot pushed to status observers.
type Status struct {
	PlayerConnected bool     `json:"player_connected"`
	PlayerMode      Mode     `json:"player_mode"`
	PlayerTarget    Target   `json:"player_target"`
	InputClients    []string `json:"input_clients"`
	OutputClients   []string `json:"output_clients"`
	TargetConnected bool     `json:"target_connected"`
}

// Bytes returns the JSON-encoded status.
func (s *Status) Bytes() ([]byte, error) {
	return json.Marshal(s)
}

// ParseStatus parses a status snapshot from bytes.
func ParseStatus(data []byte) (*Status, error) {
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}
	return &s, nil
}

// ErrorMessage is sent back to an input client whose event was rejected.
type ErrorMessage struct {
	Error   string           `json:"error"`
	Message string           `json:"message"`
	Fields  []map[string]any `json:"fields,omitempty"`
}

// Bytes returns the JSON-encoded error.
func (e *ErrorMessage) Bytes() ([]byte, error) {
	return json.Marshal(e)
}
