package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"motionbridge.yaml",
	"motionbridge.yml",
	"config.yaml",
	"config.yml",
}

// ConfigPathEnvVar names the environment variable holding an explicit
// config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load resolves defaults, the optional config file and the environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"bridge_addr":                "bridge.addr",
	"bridge_player_config":       "bridge.player_config_path",
	"bridge_motions_dir":         "bridge.motions_dir",
	"bridge_haptics_mapping":     "bridge.haptics_mapping_path",
	"bridge_audio_mapping":       "bridge.audio_mapping_path",
	"bridge_gesture_mapping":     "bridge.gesture_mapping_path",
	"bridge_gesture_start_live":  "bridge.gestures.start_live",
	"bridge_gesture_stop":        "bridge.gestures.stop",
	"bridge_gesture_start_event": "bridge.gestures.start_event",
	"bridge_input_rate":          "bridge.input_rate",
	"bridge_metrics":             "bridge.metrics",
	"bridge_shutdown_timeout":    "bridge.shutdown_timeout",
	"player_bridge_url":          "player.bridge_url",
	"player_mode":                "player.mode",
	"player_target":              "player.target",
	"player_tick":                "player.tick",
	"player_capacity":            "player.capacity",
	"player_motions_dir":         "player.motions_dir",
	"arduino_port":               "player.arduino.port",
	"arduino_baud":               "player.arduino.baud",
	"arduino_settle":             "player.arduino.settle",
	"gamepad_addr":               "player.gamepad_addr",
	"player_bridge_target_url":   "player.bridge_target_url",
	"player_dial_timeout":        "player.dial_timeout",
	"player_write_timeout":       "player.write_timeout",
	"log_level":                  "logging.level",
}

// envTransformFunc maps known variables to their koanf path. Unknown
// variables map to "" and are ignored.
//
// Examples:
//   - BRIDGE_ADDR -> bridge.addr
//   - ARDUINO_PORT -> player.arduino.port
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
