package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tilewatch/internal/config"
	"tilewatch/internal/errors"
)

var initForce bool

// initCmd writes a starter config file in the current directory.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .tilewatch.yaml config file",
	Long: `Create a .tilewatch.yaml in the current directory, seeded with the
defaults. Edit controller.url to point at your controller.`,
	Example: `  tilewatch init
  tilewatch init --force`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.ConfigFileName

	if _, err := os.Stat(path); err == nil && !initForce {
		return errors.New(errors.ErrConfig,
			path+" already exists",
			"Use --force to overwrite it")
	}

	cfg := config.DefaultConfig()
	if urlFlag != "" {
		cfg.Controller.URL = urlFlag
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to render config", "")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to write "+path,
			"Check directory permissions")
	}

	fmt.Printf("✓ wrote %s\n", path)
	fmt.Println("  edit controller.url, then run 'tilewatch watch'")
	return nil
}
