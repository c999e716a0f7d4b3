// Package gateway inspects the tenant's probe gateways.
package gateway

import (
	"github.com/spf13/cobra"

	"github.com/netview-hq/netview-go/apps/cli/internal/cliconfig"
	"github.com/netview-hq/netview-go/apps/cli/internal/output"
)

// Command returns the gateway command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Inspect probe gateways",
	}
	cmd.AddCommand(listCommand())
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List gateways and their last-seen state",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, client, err := cliconfig.Active().ResumeSession(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			gateways, err := client.ListGateways(cmd.Context())
			if err != nil {
				return err
			}

			printer := output.Default()
			if len(gateways) == 0 {
				printer.Plain("No gateways registered")
				return nil
			}

			table := output.NewTable([]string{"ID", "NAME", "TYPE", "LOCATION", "STATUS", "LAST SEEN"})
			for _, g := range gateways {
				lastSeen := g.LastSeen
				if lastSeen == "" {
					lastSeen = "-"
				}
				table.AddRow([]string{g.ID, g.Name, g.Type, g.Location, printer.StatusBadge(g.Status), lastSeen})
			}
			table.Render()
			return nil
		},
	}
}
