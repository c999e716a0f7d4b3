package auth

import (
	"github.com/spf13/cobra"

	"github.com/netview-hq/netview-go/apps/cli/internal/cliconfig"
	"github.com/netview-hq/netview-go/apps/cli/internal/output"
)

func whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account and tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, _, err := cliconfig.Active().ResumeSession(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			printer := output.Default()
			state := store.Snapshot()

			if state.Identity == nil {
				printer.Plain("Not signed in")
				return nil
			}

			printer.Plain("Email:     %s", state.Identity.Email)
			if state.Identity.DisplayName != "" {
				printer.Plain("Name:      %s", state.Identity.DisplayName)
			}

			switch {
			case state.User != nil:
				if state.User.TenantName != nil {
					printer.Plain("Tenant:    %s", *state.User.TenantName)
				} else {
					printer.Warning("No tenant yet; run `netview onboard` to create one")
				}
				printer.Plain("Role:      %s", state.User.Role)
			case state.EmailVerification != nil:
				printer.Warning("Registration pending email verification; run `netview onboard`")
			default:
				printer.Warning("No account on the backend yet; run `netview onboard`")
			}
			return nil
		},
	}
}
