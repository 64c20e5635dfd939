package cli

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tilewatch/internal/config"
	"tilewatch/internal/conn"
	"tilewatch/internal/errors"
	"tilewatch/internal/logger"
	"tilewatch/internal/monitor"
	"tilewatch/internal/router"
	"tilewatch/internal/state"
)

// watchCmd opens the live dashboard.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live tile-board dashboard",
	Long: `Connect to the controller and show a live dashboard: per-tile status
and telemetry sparklines, in-flight commands, and controller events.

The connection reconnects automatically and the view resynchronizes from a
fresh snapshot after every reconnect.`,
	Example: `  tilewatch watch
  tilewatch watch --url ws://lab-controller:9000/ws
  tilewatch watch --config ./board.yaml`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New(errors.ErrConfig,
			"The dashboard requires an interactive terminal",
			"Run tilewatch watch from a terminal, not a pipe")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyColorProfile(cfg.Output.Color)

	log := logger.NewEnvLogger("watch")

	statuses := state.NewStatusModel()
	telemetry := state.NewBuffer(cfg.Telemetry.HistorySize)
	commands := state.NewTracker(cfg.Commands.AckTimeout, cfg.Commands.Retention, log)

	events := monitor.NewEventChannel()
	r := router.New(statuses, telemetry, commands, monitor.ForwardEvents(events), log)

	mgr := conn.New(conn.Options{
		URL:            cfg.Controller.URL,
		ReconnectDelay: cfg.Controller.ReconnectDelay,
		ResyncDelay:    cfg.Controller.ResyncDelay,
		QueueLimit:     cfg.Controller.QueueLimit,
		OnReady:        monitor.ForwardReady(events),
		Log:            log,
	}, r)
	defer mgr.Close()

	go mgr.Connect()

	model := monitor.NewModel(statuses, telemetry, commands, mgr, events, r.Sweep)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return errors.Wrap(err, "Dashboard terminated unexpectedly")
	}
	return nil
}

// loadConfig resolves the effective config for a command run, applying the
// --url override on top of the file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configFlag)
	if err != nil {
		return nil, err
	}
	if urlFlag != "" {
		cfg.Controller.URL = urlFlag
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyColorProfile pins the lipgloss color profile per the output.color
// setting so "never" works under watch | tee and similar.
func applyColorProfile(mode string) {
	switch mode {
	case "never":
		lipgloss.SetColorProfile(termenv.Ascii)
	case "always":
		lipgloss.SetColorProfile(termenv.ANSI256)
	}
}
