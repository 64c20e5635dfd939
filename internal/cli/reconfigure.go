package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tilewatch/internal/errors"
	"tilewatch/internal/protocol"
)

var (
	reconfigureAction string
	reconfigureSpare  string
)

// reconfigureCmd issues a reconfiguration command and follows its lifecycle.
var reconfigureCmd = &cobra.Command{
	Use:   "reconfigure <tile>",
	Short: "Reconfigure a tile and follow the command lifecycle",
	Long: `Send a reconfiguration command for a tile and report its lifecycle:
the acknowledgement with the controller's time estimate, then the terminal
result.

Actions:
  partial_reconfig  reload the tile's configuration in place
  fast_swap         swap the tile with a spare (requires --spare)
  isolate           take the tile out of service`,
	Example: `  tilewatch reconfigure tile_3
  tilewatch reconfigure tile_3 --action fast_swap --spare tile_14
  tilewatch reconfigure tile_7 --action isolate`,
	Args: cobra.ExactArgs(1),
	RunE: runReconfigure,
}

func init() {
	rootCmd.AddCommand(reconfigureCmd)
	reconfigureCmd.Flags().StringVar(&reconfigureAction, "action", "partial_reconfig",
		"reconfiguration action (partial_reconfig, fast_swap, isolate)")
	reconfigureCmd.Flags().StringVar(&reconfigureSpare, "spare", "",
		"spare tile for fast_swap")
}

func runReconfigure(cmd *cobra.Command, args []string) error {
	target := args[0]

	switch reconfigureAction {
	case "partial_reconfig", "isolate":
	case "fast_swap":
		if reconfigureSpare == "" {
			return errors.New(errors.ErrCommand,
				"fast_swap requires a spare tile",
				"Pass one with --spare, e.g. --spare tile_14")
		}
	default:
		return errors.New(errors.ErrCommand,
			"Unknown action: "+reconfigureAction,
			"Use one of: partial_reconfig, fast_swap, isolate")
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

	cmdID, data := protocol.Reconfigure(target, reconfigureAction, reconfigureSpare)
	if err := client.send(data); err != nil {
		return err
	}
	fmt.Printf("→ %s issued (%s on %s)\n", cmdID, reconfigureAction, target)

	ackTimeout := cfg.Commands.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = oneShotTimeout
	}

	msg, err := client.await(ackTimeout, func(m protocol.Message) bool {
		if m.Type != protocol.TypeCmdAck {
			return false
		}
		ack, err := m.CmdAck()
		return err == nil && ack.CmdID == cmdID
	})
	if err != nil {
		return err
	}
	ack, _ := msg.CmdAck()
	if ack.HasEstimate {
		fmt.Printf("→ acknowledged, estimated %dms\n", ack.EstimatedMS)
	} else {
		fmt.Println("→ acknowledged")
	}

	msg, err = client.await(oneShotTimeout, func(m protocol.Message) bool {
		if m.Type != protocol.TypeCmdResult {
			return false
		}
		result, err := m.CmdResult()
		return err == nil && result.CmdID == cmdID
	})
	if err != nil {
		return err
	}
	result, _ := msg.CmdResult()

	status := result.Status
	if status == "" {
		status = "unknown"
	}
	if status == "failed" {
		return errors.New(errors.ErrCommand,
			"Reconfiguration of "+target+" failed",
			"Check the controller logs; the tile may already be isolated")
	}
	fmt.Printf("✓ %s completed (%s)\n", cmdID, status)
	return nil
}
