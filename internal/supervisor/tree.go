// Package supervisor runs the long-lived parts of both binaries under a
// suture supervisor tree, so a crashed relay server or hardware loop is
// restarted with backoff instead of taking the process down.
//
// Tree layout:
//
//	motionbridge (root)
//	├── bridge-layer   relay server
//	└── player-layer   playback loop, hub listener
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds the restart policy shared by every supervisor.
type TreeConfig struct {
	// FailureThreshold is the number of failures, after decay, that
	// triggers backoff.
	FailureThreshold float64

	// FailureDecay is the failure half-life in seconds.
	FailureDecay float64

	// FailureBackoff is how long to wait once the threshold is crossed.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long a service may take to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns the production restart policy.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the process supervisor.
type Tree struct {
	root   *suture.Supervisor
	bridge *suture.Supervisor
	player *suture.Supervisor
	logger *slog.Logger
	config TreeConfig
}

// NewTree builds the tree. Zero config fields take their defaults.
func NewTree(name string, logger *slog.Logger, config TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	// Route supervisor events (restarts, backoff, timeouts) through slog.
	handler := &sutureslog.Handler{Logger: logger}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New(name, rootSpec)
	bridge := suture.New("bridge-layer", childSpec)
	player := suture.New("player-layer", childSpec)
	root.Add(bridge)
	root.Add(player)

	return &Tree{
		root:   root,
		bridge: bridge,
		player: player,
		logger: logger,
		config: config,
	}
}

// Root returns the root supervisor.
func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// AddBridgeService adds a service to the bridge layer.
func (t *Tree) AddBridgeService(svc suture.Service) suture.ServiceToken {
	return t.bridge.Add(svc)
}

// AddPlayerService adds a service to the player layer.
func (t *Tree) AddPlayerService(svc suture.Service) suture.ServiceToken {
	return t.player.Add(svc)
}

// Serve runs the tree until ctx is cancelled or a service terminates it.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree on its own goroutine.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that did not stop in time.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
