// Command motionbridge runs the motion relay: the WebSocket hub between
// event producers, the motion player and observers, plus its HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-motionbridge/internal/config"
	"github.com/teslashibe/go-motionbridge/internal/log"
	"github.com/teslashibe/go-motionbridge/internal/supervisor"
	"github.com/teslashibe/go-motionbridge/pkg/mapping"
	"github.com/teslashibe/go-motionbridge/pkg/motion"
	"github.com/teslashibe/go-motionbridge/pkg/relay"
)

func main() {
	addr := flag.String("addr", "", "Listen address (overrides bridge.addr)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Bridge.Addr = *addr
	}
	level := cfg.Logging.Level
	if *debug {
		level = "debug"
	}
	log.Init(level)

	if err := run(cfg); err != nil {
		log.Error("motion bridge failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	bc := cfg.Bridge
	logger := log.L()

	lib := motion.NewLibrary(bc.MotionsDir)
	haptics := mapping.NewHapticsMapper(bc.HapticsMappingPath, lib)
	audio := mapping.NewAudioMapper(bc.AudioMappingPath, lib)
	gestures := mapping.NewGestureMapper(bc.GestureMappingPath, lib)
	state := relay.NewPlayerState(bc.PlayerConfigPath)

	// A broken mapping file is logged and replaced by an empty table so
	// the relay still comes up.
	for name, load := range map[string]func() error{
		"haptics":      haptics.Load,
		"audio":        audio.Load,
		"gesture":      gestures.Load,
		"player state": state.Load,
	} {
		if err := load(); err != nil {
			logger.Warn("failed to load "+name, "error", err)
		}
	}

	srv := relay.NewServer(relay.Options{
		Addr:            bc.Addr,
		ShutdownTimeout: bc.ShutdownTimeout,
		InputRate:       bc.InputRate,
		Metrics:         bc.Metrics,
		Specials: mapping.SpecialGestures{
			StartLive:  bc.Gestures.StartLive,
			Stop:       bc.Gestures.Stop,
			StartEvent: bc.Gestures.StartEvent,
		},
		State:    state,
		Library:  lib,
		Haptics:  haptics,
		Audio:    audio,
		Gestures: gestures,
		Logger:   logger,
	})

	tree := supervisor.NewTree("motionbridge", logger, supervisor.TreeConfig{
		ShutdownTimeout: bc.ShutdownTimeout * 2,
	})
	tree.AddBridgeService(srv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode, target, _ := state.Snapshot()
	logger.Info("starting motion bridge", "addr", bc.Addr, "mode", mode, "target", target, "motions", bc.MotionsDir)

	err := tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("motion bridge stopped")
	return nil
}
