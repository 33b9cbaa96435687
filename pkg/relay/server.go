// Package relay is the motion bridge: a WebSocket hub that connects event
// producers, the motion player process and observers, plus the HTTP API
// used by the editors.
//
// WebSocket channels:
//
//	/input   event producers (haptics, timeline, beat, gesture), ?client=<id>
//	/player  the motion player process
//	/status  status observers, ?client=<id>
//	/output  force observers, ?client=<id>
//	/bridge  the bridge hardware target echoing frames back
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-motionbridge/internal/log"
	"github.com/teslashibe/go-motionbridge/pkg/mapping"
	"github.com/teslashibe/go-motionbridge/pkg/motion"
)

// Options configures a Server.
type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	InputRate       float64
	Metrics         bool
	Specials        mapping.SpecialGestures

	State    *PlayerState
	Library  *motion.Library
	Haptics  *mapping.HapticsMapper
	Audio    *mapping.AudioMapper
	Gestures *mapping.GestureMapper

	Logger *slog.Logger
}

// Server owns the hub and the fiber app serving it.
type Server struct {
	addr            string
	shutdownTimeout time.Duration
	specials        mapping.SpecialGestures

	hub      *Hub
	library  *motion.Library
	haptics  *mapping.HapticsMapper
	audio    *mapping.AudioMapper
	gestures *mapping.GestureMapper

	app    *fiber.App
	logger *slog.Logger
}

// NewServer builds the server and its routes. Nil mappers and state are
// replaced with empty in-memory ones.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.L()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.State == nil {
		opts.State = NewPlayerState("")
	}
	if opts.Library == nil {
		opts.Library = motion.NewLibrary(motion.DefaultDir)
	}
	if opts.Haptics == nil {
		opts.Haptics = mapping.NewHapticsMapper("", opts.Library)
	}
	if opts.Audio == nil {
		opts.Audio = mapping.NewAudioMapper("", opts.Library)
	}
	if opts.Gestures == nil {
		opts.Gestures = mapping.NewGestureMapper("", opts.Library)
	}
	if opts.Specials == (mapping.SpecialGestures{}) {
		opts.Specials = mapping.DefaultSpecialGestures()
	}

	logger := opts.Logger.With("component", "relay")
	s := &Server{
		addr:            opts.Addr,
		shutdownTimeout: opts.ShutdownTimeout,
		specials:        opts.Specials,
		hub:             NewHub(opts.State, opts.InputRate, opts.Logger),
		library:         opts.Library,
		haptics:         opts.Haptics,
		audio:           opts.Audio,
		gestures:        opts.Gestures,
		logger:          logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "MotionBridge",
		DisableStartupMessage: true,
		BodyLimit:             200 * 1024 * 1024,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	// CORS for the editors
	app.Use(cors.New())

	upgrade := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
	app.Get("/input", upgrade, websocket.New(s.handleInputWS))
	app.Get("/player", upgrade, websocket.New(s.handlePlayerWS))
	app.Get("/status", upgrade, websocket.New(s.handleStatusWS))
	app.Get("/output", upgrade, websocket.New(s.handleOutputWS))
	app.Get("/bridge", upgrade, websocket.New(s.handleBridgeWS))

	s.registerAPI(app)

	if opts.Metrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	s.app = app
	return s
}

// Hub returns the client hub.
func (s *Server) Hub() *Hub { return s.hub }

// App returns the fiber app, for tests.
func (s *Server) App() *fiber.App { return s.app }

// Serve listens on the configured address until ctx is cancelled.
// It implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("relay listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled. On cancellation the
// player is told to shut down, observers get a last status, and open
// connections are closed before the server stops.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()
	s.logger.Info("motion bridge listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		s.hub.Close(shutdownCtx)
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("relay shutdown failed: %w", err)
		}
		<-errCh
		s.logger.Info("motion bridge stopped")
		return ctx.Err()
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *Server) String() string { return "relay" }
