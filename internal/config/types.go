// Package config loads and validates the .tilewatch.yaml configuration.
package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .tilewatch.yaml configuration file.
type Config struct {
	Version    int              `yaml:"version" mapstructure:"version"`
	Controller ControllerConfig `yaml:"controller" mapstructure:"controller"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
	Commands   CommandsConfig   `yaml:"commands" mapstructure:"commands"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
}

// ControllerConfig describes the remote controller endpoint and the
// connection-resilience policy.
type ControllerConfig struct {
	// URL of the controller websocket endpoint.
	URL string `yaml:"url" mapstructure:"url"`

	// ReconnectDelay between losing the connection and the next attempt.
	ReconnectDelay time.Duration `yaml:"reconnect_delay" mapstructure:"reconnect_delay"`

	// ResyncDelay before the snapshot refresh that follows a command result.
	ResyncDelay time.Duration `yaml:"resync_delay" mapstructure:"resync_delay"`

	// QueueLimit bounds the outbound queue while disconnected; the oldest
	// message is dropped with a warning once full.
	QueueLimit int `yaml:"queue_limit" mapstructure:"queue_limit"`
}

// TelemetryConfig controls local telemetry retention.
type TelemetryConfig struct {
	// HistorySize is the number of samples retained per entity series.
	HistorySize int `yaml:"history_size" mapstructure:"history_size"`
}

// CommandsConfig controls command-lifecycle tracking.
type CommandsConfig struct {
	// AckTimeout is how long an issued command may wait for an
	// acknowledgement before being marked timed out. 0 disables timeouts.
	AckTimeout time.Duration `yaml:"ack_timeout" mapstructure:"ack_timeout"`

	// Retention is how long completed or timed-out records stay visible.
	Retention time.Duration `yaml:"retention" mapstructure:"retention"`
}

// OutputConfig controls terminal output formatting.
type OutputConfig struct {
	// Color mode: "auto", "always", or "never".
	Color string `yaml:"color" mapstructure:"color"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Controller: ControllerConfig{
			URL:            "ws://127.0.0.1:9000/ws",
			ReconnectDelay: 2 * time.Second,
			ResyncDelay:    300 * time.Millisecond,
			QueueLimit:     256,
		},
		Telemetry: TelemetryConfig{
			HistorySize: 60,
		},
		Commands: CommandsConfig{
			AckTimeout: 10 * time.Second,
			Retention:  30 * time.Second,
		},
		Output: OutputConfig{
			Color: "auto",
		},
	}
}
