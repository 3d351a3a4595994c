package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/helix-collective/z88/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to .z88.yaml in the current directory,
or to ~/.config/z88/config.yaml with --global. API keys are read from the
vendor environment variables and are not written.`,
	RunE: runInit,
}

var (
	initForce  bool
	initGlobal bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing configuration")
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "write the user configuration instead")
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := config.ProjectConfigFile
	if initGlobal {
		dir, err := config.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locating user config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}

	written, err := config.WriteDefault(path, initForce)
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if !written {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", color.GreenString("✓"), path)
	return nil
}
