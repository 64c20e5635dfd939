package cli

import (
	"time"

	"github.com/spf13/cobra"

	"tilewatch/internal/errors"
	"tilewatch/internal/logger"
	"tilewatch/internal/sim"
)

var (
	simAddr      string
	simTiles     int
	simSpares    int
	simHeartbeat time.Duration
	simScenario  string
)

// simCmd runs the embedded controller simulator.
var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a simulated tile-board controller",
	Long: `Run a simulated controller for local development and demos. The
simulator hosts a websocket endpoint at /ws, broadcasts heartbeat snapshots
on an interval, and answers fault injections, scenarios, and reconfiguration
commands the way a real controller would.`,
	Example: `  tilewatch sim
  tilewatch sim --addr :9100 --tiles 32 --spares 4
  tilewatch sim --scenario stress`,
	RunE: runSim,
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().StringVar(&simAddr, "addr", ":9000", "listen address")
	simCmd.Flags().IntVar(&simTiles, "tiles", 16, "number of tiles on the board")
	simCmd.Flags().IntVar(&simSpares, "spares", 3, "number of spare tiles")
	simCmd.Flags().DurationVar(&simHeartbeat, "heartbeat", 500*time.Millisecond,
		"snapshot broadcast interval")
	simCmd.Flags().StringVar(&simScenario, "scenario", "",
		"scenario to apply at startup (light_load, stress, one_fault)")
}

func runSim(cmd *cobra.Command, args []string) error {
	server := sim.NewServer(sim.ServerOptions{
		Addr:              simAddr,
		Tiles:             simTiles,
		Spares:            simSpares,
		HeartbeatInterval: simHeartbeat,
		Log:               logger.NewEnvLogger("sim"),
	})

	if simScenario != "" {
		if err := server.Board().ApplyScenario(simScenario); err != nil {
			return err
		}
	}

	if err := server.Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrTransport,
			"Simulator failed to serve on "+simAddr,
			"Check the address is free, or pick another with --addr")
	}
	return nil
}
