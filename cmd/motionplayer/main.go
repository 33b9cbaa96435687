// Command motionplayer runs the 100 Hz playback loop. It connects to the
// motion bridge's /player channel, plays the motions it is sent and drives
// the selected hardware target.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thejerf/suture/v4"

	"github.com/teslashibe/go-motionbridge/internal/config"
	"github.com/teslashibe/go-motionbridge/internal/log"
	"github.com/teslashibe/go-motionbridge/internal/supervisor"
	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/player"
	"github.com/teslashibe/go-motionbridge/pkg/protocol"
	"github.com/teslashibe/go-motionbridge/pkg/target"
)

func main() {
	var mode, tgt string
	flag.StringVar(&mode, "mode", "", "Initial mode: off, event or live")
	flag.StringVar(&mode, "m", "", "Shorthand for -mode")
	flag.StringVar(&tgt, "target", "", "Initial target: none, bridge, arduino or gamepad")
	flag.StringVar(&tgt, "t", "", "Shorthand for -target")
	silent := flag.Bool("s", false, "Only log warnings and errors")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if mode != "" {
		cfg.Player.Mode = mode
	}
	if tgt != "" {
		cfg.Player.Target = tgt
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	level := cfg.Logging.Level
	if *silent {
		level = "warn"
	}
	log.Init(level)

	if err := run(cfg); err != nil {
		log.Error("motion player failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	pc := cfg.Player
	logger := log.L()

	// Validate already checked both values.
	mode, _ := protocol.ParseMode(pc.Mode)
	kind, _ := protocol.ParseTarget(pc.Target)

	lib := motion.NewLibrary(pc.MotionsDir)
	opts := target.Options{
		BridgeURL:     pc.BridgeTargetURL,
		GamepadAddr:   pc.GamepadAddr,
		ArduinoPort:   pc.Arduino.Port,
		ArduinoBaud:   pc.Arduino.Baud,
		ArduinoSettle: pc.Arduino.Settle,
		DialTimeout:   pc.DialTimeout,
		WriteTimeout:  pc.WriteTimeout,
		Logger:        logger,
	}

	mb := &player.Mailbox{}
	loop := player.NewLoop(mb, player.LoopConfig{
		Period:   pc.Tick,
		Capacity: pc.Capacity,
		Loader:   lib,
		Targets: func(k protocol.Target) (target.Target, error) {
			return target.New(k, opts)
		},
		Mode:   mode,
		Target: kind,
		Logger: logger,
	})
	listener := player.NewListener(mb, loop, player.ListenerConfig{
		URL:          pc.BridgeURL,
		DialTimeout:  pc.DialTimeout,
		WriteTimeout: pc.WriteTimeout,
		Warm:         lib,
		Logger:       logger,
	})

	tree := supervisor.NewTree("motionplayer", logger, supervisor.TreeConfig{})
	tree.AddPlayerService(supervisor.NewService("loop", loop.Run, logger))
	// Losing the bridge, or being told to shut down, ends the process.
	tree.AddPlayerService(supervisor.NewFinalService("listener", listener.Run, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting motion player", "bridge", pc.BridgeURL, "mode", mode, "target", kind)

	err := tree.Serve(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, suture.ErrTerminateSupervisorTree):
		logger.Info("motion player stopped")
		return nil
	default:
		return err
	}
}
