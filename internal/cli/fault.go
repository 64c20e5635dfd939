package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tilewatch/internal/errors"
	"tilewatch/internal/protocol"
)

var (
	faultType     string
	faultSeverity string
)

// faultCmd injects a fault into a tile on the controller.
var faultCmd = &cobra.Command{
	Use:   "fault [tile]",
	Short: "Inject a fault into a tile",
	Long: `Inject a fault into a tile on the controller and wait for the
resulting fault report. Without arguments an interactive form asks for the
tile, fault type, and severity.

Severity controls how the simulated fault behaves: minor faults clear after
10 seconds, major after 60 seconds, critical faults are permanent.`,
	Example: `  tilewatch fault tile_3 --type stuck_output --severity major
  tilewatch fault`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFault,
}

func init() {
	rootCmd.AddCommand(faultCmd)
	faultCmd.Flags().StringVar(&faultType, "type", "stuck_output", "fault type to inject")
	faultCmd.Flags().StringVar(&faultSeverity, "severity", "major", "fault severity (minor, major, critical)")
}

func runFault(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var tile string
	if len(args) == 1 {
		tile = args[0]
	} else {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New(errors.ErrCommand,
				"No tile specified",
				"Pass a tile id, e.g. 'tilewatch fault tile_3'")
		}
		if err := faultForm(&tile); err != nil {
			return nil // user cancelled
		}
	}

	switch faultSeverity {
	case "minor", "major", "critical":
	default:
		return errors.New(errors.ErrCommand,
			"Unknown severity: "+faultSeverity,
			"Use one of: minor, major, critical")
	}

	client, err := dialOneShot(cfg.Controller.URL)
	if err != nil {
		return err
	}
	defer client.close()

	if err := client.send(protocol.FaultEvent(tile, faultType, faultSeverity)); err != nil {
		return err
	}

	msg, err := client.await(oneShotTimeout, func(m protocol.Message) bool {
		if m.Type != protocol.TypeFaultReport && m.Type != protocol.TypeFault {
			return false
		}
		report, err := m.FaultReport()
		return err == nil && report.NodeID == tile
	})
	if err != nil {
		return err
	}

	report, err := msg.FaultReport()
	if err != nil {
		return errors.Wrap(err, "Controller sent a malformed fault report")
	}

	fmt.Printf("✓ fault injected on %s (%s, %s)\n", report.NodeID, report.Detail, faultSeverity)
	return nil
}

// faultForm collects the fault parameters interactively.
func faultForm(tile *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Tile id").
				Placeholder("tile_3").
				Value(tile),
			huh.NewSelect[string]().
				Title("Fault type").
				Options(
					huh.NewOption("Stuck output", "stuck_output"),
					huh.NewOption("Bitflip", "bitflip"),
					huh.NewOption("Thermal runaway", "thermal_runaway"),
				).
				Value(&faultType),
			huh.NewSelect[string]().
				Title("Severity").
				Options(
					huh.NewOption("Minor (clears in 10s)", "minor"),
					huh.NewOption("Major (clears in 60s)", "major"),
					huh.NewOption("Critical (permanent)", "critical"),
				).
				Value(&faultSeverity),
		),
	)
	return form.Run()
}
