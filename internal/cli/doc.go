// Package cli implements the tilewatch command-line interface.
//
// Commands:
//
//	watch        live dashboard mirroring the controller's board state
//	fault        inject a fault into a tile
//	scenario     run a load scenario on the controller
//	reconfigure  issue a reconfiguration command and follow its lifecycle
//	sim          run the embedded controller simulator
//	init         create a starter .tilewatch.yaml
//	version      print build information
//
// The dashboard talks to the controller through internal/conn and
// internal/router; the one-shot commands use a short-lived connection with no
// reconnect policy.
package cli
