// Package config provides commands to manage the configuration file
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/certmigrate/internal/conf"
)

const defaultConfigFile = "config.yaml"

// Command creates and returns the config command
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(initCommand())
	return cmd
}

func initCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config.yaml populated with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if err := writeDefaults(path, force); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote default configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func writeDefaults(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite it", path)
	}
	settings, err := conf.Defaults()
	if err != nil {
		return err
	}
	return conf.SaveYAMLConfig(path, settings)
}
