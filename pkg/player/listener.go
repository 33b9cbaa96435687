package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-motionbridge/internal/log"
	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// ErrShutdown is returned by Listener.Run when the hub asked the player
// to stop.
var ErrShutdown = errors.New("player: shutdown requested")

// StateSource is the part of the Loop the listener reports on.
type StateSource interface {
	State() protocol.PlayerReport
	Reports() <-chan protocol.PlayerReport
}

// Listener connects to the hub's player endpoint and feeds the Mailbox.
// It is the only writer on its connection.
type Listener struct {
	url          string
	mailbox      *Mailbox
	state        StateSource
	warm         Loader
	dialTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	URL          string
	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// Warm, if set, is asked to load every named motion as it arrives so
	// the loop reads it from cache instead of disk.
	Warm Loader

	Logger *slog.Logger
}

// NewListener creates a listener.
func NewListener(mb *Mailbox, state StateSource, cfg ListenerConfig) *Listener {
	if cfg.Logger == nil {
		cfg.Logger = log.L()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = time.Second
	}
	return &Listener{
		url:          cfg.URL,
		mailbox:      mb,
		state:        state,
		warm:         cfg.Warm,
		dialTimeout:  cfg.DialTimeout,
		writeTimeout: cfg.WriteTimeout,
		logger:       cfg.Logger.With("component", "listener"),
	}
}

// Run connects and relays until the hub sends shutdown (ErrShutdown), the
// connection drops, or ctx is cancelled (nil).
func (l *Listener) Run(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: l.dialTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("unable to connect to motion bridge: %w", err)
	}
	defer conn.Close()
	l.logger.Info("connected to motion bridge", "url", l.url)

	if err := l.send(conn, l.state.State()); err != nil {
		return fmt.Errorf("send initial state: %w", err)
	}

	readErr := make(chan error, 1)
	immediate := make(chan struct{}, 1)
	go func() {
		readErr <- l.readPump(conn, immediate)
	}()

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(l.writeTimeout))
			return nil
		case err := <-readErr:
			return err
		case r := <-l.state.Reports():
			if err := l.send(conn, r); err != nil {
				return fmt.Errorf("send state: %w", err)
			}
		case <-immediate:
			if err := l.send(conn, l.state.State()); err != nil {
				return fmt.Errorf("send state: %w", err)
			}
		}
	}
}

func (l *Listener) send(conn *websocket.Conn, r protocol.PlayerReport) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readPump decodes hub commands. immediate is signalled when a config
// command changed nothing, so the hub still gets a state echo.
func (l *Listener) readPump(conn *websocket.Conn, immediate chan<- struct{}) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}

		cmd, err := protocol.ParseCommand(data)
		if err != nil {
			l.logger.Warn("dropping malformed command", "error", err)
			continue
		}

		if cmd.Command == protocol.CommandShutdown {
			l.logger.Info("shutdown requested")
			return ErrShutdown
		}
		if l.Handle(cmd) {
			select {
			case immediate <- struct{}{}:
			default:
			}
		}
	}
}

// Handle routes one command into the mailbox. It reports whether a config
// command was a no-op that still deserves a state echo.
func (l *Listener) Handle(cmd *protocol.Command) bool {
	switch cmd.Command {
	case protocol.CommandSignal:
		if cmd.Signal != nil {
			l.mailbox.PostSignal(*cmd.Signal)
		} else {
			l.mailbox.Signal.Clear()
		}

	case protocol.CommandMotion:
		b, ok := l.behavior(cmd)
		if !ok || cmd.Motion == "" {
			return false
		}
		if l.warm != nil {
			if _, err := l.warm.Load(cmd.Motion); err != nil {
				l.logger.Debug("motion not in library", "motion", cmd.Motion, "error", err)
			}
		}
		l.mailbox.PostMotion(cmd.Motion, b, cmd.Scale)

	case protocol.CommandMotionData:
		b, ok := l.behavior(cmd)
		if !ok || len(cmd.MotionData) == 0 {
			return false
		}
		doc, err := motion.ParseDocument(cmd.MotionData)
		if err != nil {
			l.logger.Warn("dropping motion data", "error", err)
			return false
		}
		l.mailbox.PostMotionData(doc.Waveform(), b, cmd.Scale)

	case protocol.CommandModeUpdate:
		posted := false
		if cmd.Target != "" {
			if t, err := protocol.ParseTarget(string(cmd.Target)); err != nil {
				l.logger.Warn("ignoring target", "error", err)
			} else {
				l.mailbox.Target.Put(t)
				posted = true
			}
		}
		if cmd.Mode != "" {
			if m, err := protocol.ParseMode(string(cmd.Mode)); err != nil {
				l.logger.Warn("ignoring mode", "error", err)
			} else {
				l.mailbox.Mode.Put(m)
				posted = true
			}
		}
		return !posted

	default:
		l.logger.Debug("ignoring command", "command", cmd.Command)
	}
	return false
}

// behavior resolves the command's behavior, defaulting to disable.
func (l *Listener) behavior(cmd *protocol.Command) (protocol.Behavior, bool) {
	if cmd.Behavior == "" {
		return protocol.BehaviorDisable, true
	}
	b, err := protocol.ParseBehavior(string(cmd.Behavior))
	if err != nil {
		l.logger.Warn("dropping motion", "motion", cmd.Motion, "error", err)
		return "", false
	}
	return b, true
}
