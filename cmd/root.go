package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/certmigrate/cmd/config"
	"github.com/tphakala/certmigrate/cmd/mapping"
	"github.com/tphakala/certmigrate/cmd/migrate"
	"github.com/tphakala/certmigrate/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "certmigrate",
		Short:         "Migrate legacy certificate records into the new schema",
		Version:       ctx.Build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.ConfigFile, "config", "c", "", "Path to config.yaml")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	configCmd := config.Command()
	rootCmd.AddCommand(
		migrate.Command(ctx),
		mapping.Command(ctx),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// config init must work before any config file exists
		for c := cmd; c != nil; c = c.Parent() {
			if c == configCmd {
				return nil
			}
		}
		return ctx.Setup()
	}

	return rootCmd
}
