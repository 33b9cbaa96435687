package player

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-motionbridge/internal/log"
	"github.com/teslashibe/go-motionbridge/internal/metrics"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
	"github.com/teslashibe/go-motionbridge/pkg/target"
)

// DefaultPeriod is the 100 Hz tick.
const DefaultPeriod = 10 * time.Millisecond

// TargetFactory builds an unconnected hardware target.
type TargetFactory func(kind protocol.Target) (target.Target, error)

// LoopConfig configures a Loop.
type LoopConfig struct {
	Period   time.Duration
	Capacity int
	Loader   Loader
	Targets  TargetFactory
	Mode     protocol.Mode
	Target   protocol.Target
	Logger   *slog.Logger
}

type connectResult struct {
	gen uint64
	t   target.Target
	ok  bool
}

// Loop is the fixed-rate executor. It exclusively owns the MotionPlayer and
// the active hardware target; other goroutines reach it only through the
// Mailbox.
//
// Connecting a new target may take seconds (dial timeouts, board reset),
// so it happens on a helper goroutine. The loop keeps ticking with no
// target attached and installs the new one once its Connect returns.
type Loop struct {
	mailbox *Mailbox
	player  *MotionPlayer
	period  time.Duration
	targets TargetFactory
	logger  *slog.Logger

	target     target.Target
	targetKind protocol.Target
	connected  bool
	gen        uint64
	connectCh  chan connectResult
	connecting sync.WaitGroup

	state   atomic.Pointer[protocol.PlayerReport]
	reports chan protocol.PlayerReport

	tickCount uint64
	lateCount uint64
	lastTick  time.Time
	heartbeat rate.Sometimes
}

// NewLoop creates a loop. The initial mode and target are queued in the
// mailbox and applied on the first tick.
func NewLoop(mb *Mailbox, cfg LoopConfig) *Loop {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = log.L()
	}
	if cfg.Targets == nil {
		cfg.Targets = func(kind protocol.Target) (target.Target, error) {
			return target.New(kind, target.Options{Logger: cfg.Logger})
		}
	}
	if cfg.Mode == "" {
		cfg.Mode = protocol.ModeOff
	}
	if cfg.Target == "" {
		cfg.Target = protocol.TargetNone
	}

	l := &Loop{
		mailbox:    mb,
		player:     New(cfg.Capacity, cfg.Loader, cfg.Logger),
		period:     cfg.Period,
		targets:    cfg.Targets,
		logger:     cfg.Logger.With("component", "loop"),
		targetKind: cfg.Target,
		connectCh:  make(chan connectResult, 4),
		reports:    make(chan protocol.PlayerReport, 1),
		heartbeat:  rate.Sometimes{Interval: 5 * time.Second},
	}
	l.state.Store(protocol.NewStateReport(cfg.Mode, cfg.Target, false))

	mb.Mode.Put(cfg.Mode)
	mb.Target.Put(cfg.Target)
	return l
}

// Player exposes the state machine. Only call it from the loop goroutine
// or after Run has returned.
func (l *Loop) Player() *MotionPlayer { return l.player }

// State returns the latest mode, target and connection snapshot. It is
// safe to call from any goroutine.
func (l *Loop) State() protocol.PlayerReport {
	return *l.state.Load()
}

// Reports delivers state changes. Only the latest unread report is kept.
func (l *Loop) Reports() <-chan protocol.PlayerReport {
	return l.reports
}

// Run ticks until ctx is cancelled. On exit it sends one zero frame to the
// active target and shuts it down.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("loop started", "period", l.period)
	defer l.stop()

	next := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		start := time.Now()
		late := start.Sub(next) > l.period
		l.Step(ctx)
		metrics.ObserveTick(time.Since(start), late)

		// Accumulate the deadline so jitter does not drift the cadence.
		// When more than a period behind, skip the missed ticks instead of
		// running them back to back.
		next = next.Add(l.period)
		if late {
			l.lateCount++
			next = time.Now().Add(l.period)
		}
		timer.Reset(time.Until(next))
	}
}

// Step runs one tick without sleeping and returns the frame sent.
func (l *Loop) Step(ctx context.Context) protocol.ForceFrame {
	l.applyConfig(ctx)
	l.collectConnects()

	var signal *protocol.ForceFrame
	if req, ok := l.mailbox.Motion.Take(); ok {
		outcome, err := l.player.HandleMotion(req.Name, req.Behavior, req.Scale)
		l.observeMotion("motion", req, outcome, err)
	} else if req, ok := l.mailbox.MotionData.Take(); ok {
		var outcome Outcome
		var err error
		if req.Waveform != nil {
			outcome, err = l.player.HandleMotionData(*req.Waveform, req.Behavior, req.Scale)
		}
		l.observeMotion("motion_data", req, outcome, err)
	} else if s, ok := l.mailbox.Signal.Peek(); ok {
		signal = &s
	}

	frame := l.player.Update(signal)
	if l.target != nil {
		l.target.Send(frame, unixSeconds(time.Now()))
		if c := l.target.Connected(); c != l.connected {
			l.connected = c
			l.publish()
		}
	}

	l.tickCount++
	metrics.BufferPending.Set(float64(l.player.Buffer().Pending()))

	now := time.Now()
	var dt time.Duration
	if !l.lastTick.IsZero() {
		dt = now.Sub(l.lastTick)
	}
	l.lastTick = now
	l.logger.Log(ctx, log.LevelTrace, "sent",
		"mode", l.player.Mode(),
		"target", l.targetKind,
		"tick", l.tickCount,
		"forces", frame,
		"dt_ms", float64(dt.Microseconds())/1000,
	)
	l.heartbeat.Do(func() {
		l.logger.Info("heartbeat",
			"ticks", l.tickCount,
			"late", l.lateCount,
			"mode", l.player.Mode(),
			"target", l.targetKind,
			"target_connected", l.connected,
		)
	})
	return frame
}

func (l *Loop) observeMotion(kind string, req MotionRequest, outcome Outcome, err error) {
	if err != nil {
		l.logger.Warn("motion command failed", "kind", kind, "motion", req.Name, "error", err)
	}
	metrics.MotionCommands.WithLabelValues(kind, outcome.String()).Inc()
}

// applyConfig consumes pending target and mode changes. The target is torn
// down before the mode is switched, matching the order the player reports
// them back.
func (l *Loop) applyConfig(ctx context.Context) {
	changed := false

	if kind, ok := l.mailbox.Target.Take(); ok {
		l.switchTarget(ctx, kind)
		changed = true
	}
	if mode, ok := l.mailbox.Mode.Take(); ok {
		if err := l.player.SetMode(mode); err != nil {
			l.logger.Warn("mode change rejected", "mode", mode, "error", err)
		} else {
			l.logger.Info("mode changed", "mode", mode)
			changed = true
		}
	}

	if changed {
		l.mailbox.Signal.Clear()
		l.publish()
	}
}

func (l *Loop) switchTarget(ctx context.Context, kind protocol.Target) {
	if l.target != nil {
		l.target.Shutdown()
		l.target = nil
	}
	l.connected = false
	l.targetKind = kind
	l.gen++

	t, err := l.targets(kind)
	if err != nil {
		l.logger.Warn("target rejected", "target", kind, "error", err)
		l.targetKind = protocol.TargetNone
		return
	}

	l.logger.Info("target changed", "target", kind)
	gen := l.gen
	l.connecting.Add(1)
	go func() {
		defer l.connecting.Done()
		ok := t.Connect(ctx)
		select {
		case l.connectCh <- connectResult{gen: gen, t: t, ok: ok}:
		case <-ctx.Done():
			t.Shutdown()
		}
	}()
}

// collectConnects installs a finished connect, discarding stale ones.
func (l *Loop) collectConnects() {
	for {
		select {
		case res := <-l.connectCh:
			l.install(res)
		default:
			return
		}
	}
}

func (l *Loop) install(res connectResult) {
	if res.gen != l.gen {
		res.t.Shutdown()
		return
	}
	l.target = res.t
	l.connected = res.ok && res.t.Connected()
	l.publish()
}

func (l *Loop) publish() {
	r := protocol.NewStateReport(l.player.Mode(), l.targetKind, l.connected)
	l.state.Store(r)

	// Keep only the newest report for the listener.
	select {
	case <-l.reports:
	default:
	}
	select {
	case l.reports <- *r:
	default:
	}
}

func (l *Loop) stop() {
	// Connects still in flight were cancelled with the run context; any
	// that finished first are installed so they get the final frame.
	l.connecting.Wait()
	for drained := false; !drained; {
		select {
		case res := <-l.connectCh:
			if res.gen == l.gen {
				l.target = res.t
			} else {
				res.t.Shutdown()
			}
		default:
			drained = true
		}
	}

	if l.target != nil {
		l.target.Send(protocol.ZeroFrame, unixSeconds(time.Now()))
		l.target.Shutdown()
		l.target = nil
	}
	l.connected = false
	l.logger.Info("loop stopped", "ticks", l.tickCount, "late", l.lateCount)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
