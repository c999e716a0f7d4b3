// Package probe manages probe definitions from the CLI.
package probe

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/netview-hq/netview-go/apps/cli/internal/cliconfig"
	"github.com/netview-hq/netview-go/apps/cli/internal/output"
	"github.com/netview-hq/netview-go/platform/go/backend"
)

// Command returns the probe command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Manage monitoring probes",
	}
	cmd.AddCommand(listCommand())
	cmd.AddCommand(createCommand())
	cmd.AddCommand(deleteCommand())
	return cmd
}

func client(ctx context.Context) (*backend.Client, func(), error) {
	store, _, c, err := cliconfig.Active().ResumeSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c, store.Close, nil
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tenant's probes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := client(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			probes, err := c.ListProbes(cmd.Context())
			if err != nil {
				return err
			}

			printer := output.Default()
			if len(probes) == 0 {
				printer.Plain("No probes defined")
				return nil
			}

			table := output.NewTable([]string{"ID", "NAME", "TYPE", "URL", "ACTIVE"})
			for _, p := range probes {
				table.AddRow([]string{p.ID, p.Name, p.Type, p.URL, strconv.FormatBool(p.IsActive)})
			}
			table.Render()
			printer.Info("Total: %d probe(s)", len(probes))
			return nil
		},
	}
}

func createCommand() *cobra.Command {
	var probe backend.Probe

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a probe",
		Long: `Create a monitoring probe.

Examples:
  netview probe create --name api --type Uptime --url https://api.acme.io
  netview probe create --name orders --type API --url https://api.acme.io/orders --method GET --expect-status 200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := client(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			probe.IsActive = true
			created, err := c.CreateProbe(cmd.Context(), probe)
			if err != nil {
				return err
			}

			output.Default().Success("Created probe %s (%s)", created.Name, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&probe.Name, "name", "", "probe name")
	cmd.Flags().StringVar(&probe.Type, "type", "Uptime", "probe type (Uptime, API, Security)")
	cmd.Flags().StringVar(&probe.URL, "url", "", "target URL")
	cmd.Flags().StringVar(&probe.Protocol, "protocol", "", "uptime protocol (HTTP, HTTPS, TCP, SMTP, DNS)")
	cmd.Flags().StringVar(&probe.Method, "method", "", "HTTP method for API probes")
	cmd.Flags().StringVar(&probe.Body, "body", "", "request body for API probes")
	cmd.Flags().IntVar(&probe.ExpectedStatusCode, "expect-status", 0, "expected HTTP status code")
	cmd.Flags().IntVar(&probe.ExpectedResponseTime, "timeout-ms", 0, "per-check timeout in milliseconds")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a probe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := client(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			if err := c.DeleteProbe(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete probe %s: %w", args[0], err)
			}
			output.Default().Success("Deleted probe %s", args[0])
			return nil
		},
	}
}
