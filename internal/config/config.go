// Package config provides layered configuration for the motionbridge and
// motionplayer commands.
//
// Values are resolved in three layers, later layers winning:
//
//  1. Built-in defaults (defaultConfig)
//  2. An optional YAML file ($CONFIG_PATH, motionbridge.yaml or config.yaml)
//  3. Environment variables (BRIDGE_ADDR, PLAYER_BRIDGE_URL, LOG_LEVEL, ...)
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/teslashibe/go-motionbridge/pkg/protocol"
)

// Config is the root configuration shared by both binaries.
type Config struct {
	Bridge  BridgeConfig  `koanf:"bridge"`
	Player  PlayerConfig  `koanf:"player"`
	Logging LoggingConfig `koanf:"logging"`
}

// BridgeConfig configures the relay server.
type BridgeConfig struct {
	Addr               string        `koanf:"addr"`
	PlayerConfigPath   string        `koanf:"player_config_path"`
	MotionsDir         string        `koanf:"motions_dir"`
	HapticsMappingPath string        `koanf:"haptics_mapping_path"`
	AudioMappingPath   string        `koanf:"audio_mapping_path"`
	GestureMappingPath string        `koanf:"gesture_mapping_path"`
	Gestures           GestureLabels `koanf:"gestures"`
	InputRate          float64       `koanf:"input_rate"` // events/s per input client, 0 = unlimited
	Metrics            bool          `koanf:"metrics"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
}

// GestureLabels names the gestures that switch player mode.
type GestureLabels struct {
	StartLive  string `koanf:"start_live"`
	Stop       string `koanf:"stop"`
	StartEvent string `koanf:"start_event"`
}

// PlayerConfig configures the player process.
type PlayerConfig struct {
	BridgeURL       string        `koanf:"bridge_url"`
	Mode            string        `koanf:"mode"`
	Target          string        `koanf:"target"`
	Tick            time.Duration `koanf:"tick"`
	Capacity        int           `koanf:"capacity"`
	MotionsDir      string        `koanf:"motions_dir"`
	Arduino         ArduinoConfig `koanf:"arduino"`
	GamepadAddr     string        `koanf:"gamepad_addr"`
	BridgeTargetURL string        `koanf:"bridge_target_url"`
	DialTimeout     time.Duration `koanf:"dial_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
}

// ArduinoConfig configures the serial target.
type ArduinoConfig struct {
	Port   string        `koanf:"port"`
	Baud   int           `koanf:"baud"`
	Settle time.Duration `koanf:"settle"` // board reset delay after open
}

// LoggingConfig configures internal/log.
type LoggingConfig struct {
	Level string `koanf:"level"`
}

func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Addr:               "localhost:6789",
			PlayerConfigPath:   "apps/player_config.json",
			MotionsDir:         "motions",
			HapticsMappingPath: "mappings/haptics2motion.json",
			AudioMappingPath:   "mappings/audio2motion.json",
			GestureMappingPath: "mappings/gesture2motion.json",
			Gestures: GestureLabels{
				StartLive:  "both_arms_out",
				Stop:       "stop",
				StartEvent: "wave",
			},
			InputRate:       0,
			Metrics:         true,
			ShutdownTimeout: 5 * time.Second,
		},
		Player: PlayerConfig{
			BridgeURL:  "ws://localhost:6789/player",
			Mode:       string(protocol.ModeOff),
			Target:     string(protocol.TargetNone),
			Tick:       10 * time.Millisecond,
			Capacity:   5000,
			MotionsDir: "motions",
			Arduino: ArduinoConfig{
				Port:   "COM5",
				Baud:   115200,
				Settle: 2 * time.Second,
			},
			GamepadAddr:     "localhost:8080",
			BridgeTargetURL: "ws://localhost:6789/bridge",
			DialTimeout:     3 * time.Second,
			WriteTimeout:    50 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Bridge.Addr == "" {
		errs = append(errs, errors.New("bridge.addr is required"))
	}
	if c.Bridge.InputRate < 0 {
		errs = append(errs, errors.New("bridge.input_rate must be >= 0"))
	}
	if _, err := url.Parse(c.Player.BridgeURL); err != nil || c.Player.BridgeURL == "" {
		errs = append(errs, fmt.Errorf("player.bridge_url is invalid: %q", c.Player.BridgeURL))
	}
	if _, err := protocol.ParseMode(c.Player.Mode); err != nil {
		errs = append(errs, fmt.Errorf("player.mode: %w", err))
	}
	if _, err := protocol.ParseTarget(c.Player.Target); err != nil {
		errs = append(errs, fmt.Errorf("player.target: %w", err))
	}
	if c.Player.Tick <= 0 {
		errs = append(errs, errors.New("player.tick must be positive"))
	}
	if c.Player.Capacity < 3 {
		errs = append(errs, errors.New("player.capacity must be at least 3"))
	}
	if c.Player.Arduino.Baud <= 0 {
		errs = append(errs, errors.New("player.arduino.baud must be positive"))
	}

	return errors.Join(errs...)
}
