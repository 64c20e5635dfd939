package config

import (
	"fmt"
	"net/url"

	"tilewatch/internal/errors"
)

// Validate checks a loaded config for values the client cannot run with.
func Validate(cfg *Config) error {
	if cfg.Controller.URL == "" {
		return errors.New(errors.ErrConfig,
			"controller.url is not set",
			"Point it at the controller websocket, e.g. ws://127.0.0.1:9000/ws")
	}

	u, err := url.Parse(cfg.Controller.URL)
	if err != nil || u.Host == "" {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("controller.url %q is not a valid URL", cfg.Controller.URL),
			"Use the form ws://host:port/ws")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("controller.url scheme %q is not supported", u.Scheme),
			"Use ws:// or wss://")
	}

	if cfg.Controller.ReconnectDelay <= 0 {
		return errors.New(errors.ErrConfig,
			"controller.reconnect_delay must be greater than zero",
			"Use a duration such as 2s")
	}
	if cfg.Controller.ResyncDelay <= 0 {
		return errors.New(errors.ErrConfig,
			"controller.resync_delay must be greater than zero",
			"Use a duration such as 300ms")
	}

	if cfg.Telemetry.HistorySize <= 0 {
		return errors.New(errors.ErrConfig,
			"telemetry.history_size must be greater than zero",
			"60 keeps one minute of history at the default heartbeat rate")
	}

	if cfg.Commands.AckTimeout < 0 {
		return errors.New(errors.ErrConfig,
			"commands.ack_timeout cannot be negative",
			"Use 0 to disable acknowledgement timeouts")
	}
	if cfg.Commands.Retention < 0 {
		return errors.New(errors.ErrConfig,
			"commands.retention cannot be negative",
			"Use 0 to keep completed commands indefinitely")
	}

	switch cfg.Output.Color {
	case "auto", "always", "never":
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("output.color %q is not recognized", cfg.Output.Color),
			"Use auto, always, or never")
	}

	return nil
}
