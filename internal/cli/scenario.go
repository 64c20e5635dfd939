package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tilewatch/internal/errors"
	"tilewatch/internal/protocol"
)

// scenarioCmd asks the controller to run a load scenario.
var scenarioCmd = &cobra.Command{
	Use:   "scenario <light_load|stress|one_fault>",
	Short: "Run a load scenario on the controller",
	Long: `Ask the controller to run a predefined scenario:

  light_load  nominal heartbeats and temperatures on all tiles
  stress      elevated temperatures and degraded heartbeats
  one_fault   a single major fault on a random tile`,
	Example: `  tilewatch scenario stress
  tilewatch scenario one_fault`,
	Args: cobra.ExactArgs(1),
	RunE: runScenario,
}

func init() {
	rootCmd.AddCommand(scenarioCmd)
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario := args[0]
	switch scenario {
	case "light_load", "stress", "one_fault":
	default:
		return errors.New(errors.ErrCommand,
			"Unknown scenario: "+scenario,
			"Use one of: light_load, stress, one_fault")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := dialOneShot(cfg.Controller.URL)
	if err != nil {
		return err
	}
	defer client.close()

	if err := client.send(protocol.RunScenario(scenario)); err != nil {
		return err
	}

	msg, err := client.await(oneShotTimeout, func(m protocol.Message) bool {
		return m.Type == protocol.TypeLog || m.Type == protocol.TypeInfo
	})
	if err != nil {
		return err
	}

	if text := msg.LogText(); text != "" {
		fmt.Println("✓ " + text)
	} else {
		fmt.Println("✓ scenario " + scenario + " started")
	}
	return nil
}
