package auth

import (
	"github.com/spf13/cobra"

	"github.com/netview-hq/netview-go/apps/cli/internal/cliconfig"
	"github.com/netview-hq/netview-go/apps/cli/internal/output"
)

func logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard cached credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cliconfig.Active()

			// Local cleanup always succeeds; a cached token that cannot be
			// revoked remotely is still deleted.
			if err := cfg.ClearRefreshToken(); err != nil {
				return err
			}
			output.Default().Success("Signed out")
			return nil
		},
	}
}
