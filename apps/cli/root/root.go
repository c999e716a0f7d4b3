// Package root holds the base command of the NetView CLI. Subcommands (auth,
// onboard, probe, gateway, alert) are attached here.
package root

import (
	"github.com/spf13/cobra"

	"github.com/netview-hq/netview-go/apps/cli/internal/cliconfig"
	"github.com/netview-hq/netview-go/apps/cli/internal/output"
)

var (
	cfgFile string
	noColor bool
	cfg     *cliconfig.Config
)

var rootCmd = &cobra.Command{
	Use:           "netview",
	Short:         "NetView monitoring CLI",
	Long:          "Command line client for the NetView uptime monitoring platform: sign-in, onboarding, probe and gateway management.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		output.SetColors(!noColor)
		var err error
		cfg, err = cliconfig.Load(cfgFile)
		if err != nil {
			return err
		}
		cliconfig.SetActive(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.netview/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}

