// Package alert lists triggered probe alerts.
package alert

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/netview-hq/netview-go/apps/cli/internal/cliconfig"
	"github.com/netview-hq/netview-go/apps/cli/internal/output"
)

// Command returns the alert command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Inspect probe alerts",
	}
	cmd.AddCommand(listCommand())
	return cmd
}

func listCommand() *cobra.Command {
	var unresolvedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, client, err := cliconfig.Active().ResumeSession(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			alerts, err := client.ListAlerts(cmd.Context())
			if err != nil {
				return err
			}

			printer := output.Default()
			table := output.NewTable([]string{"PROBE", "SEVERITY", "MESSAGE", "AT", "RESOLVED"})
			shown := 0
			for _, a := range alerts {
				if unresolvedOnly && a.Resolved {
					continue
				}
				name := a.ProbeName
				if name == "" {
					name = a.ProbeID
				}
				table.AddRow([]string{
					name,
					printer.StatusBadge(a.Severity),
					a.Message,
					a.CreatedAt.Local().Format(time.RFC822),
					strconv.FormatBool(a.Resolved),
				})
				shown++
			}

			if shown == 0 {
				printer.Plain("No alerts")
				return nil
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&unresolvedOnly, "unresolved", false, "show only unresolved alerts")
	return cmd
}
