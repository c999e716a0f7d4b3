// Package auth contains sign-in and token commands for the NetView CLI.
package auth

import (
	"github.com/spf13/cobra"
)

// Command returns the auth command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
	}
	cmd.AddCommand(loginCommand())
	cmd.AddCommand(logoutCommand())
	cmd.AddCommand(whoamiCommand())
	cmd.AddCommand(devTokenCommand())
	cmd.AddCommand(verifyUserCommand())
	return cmd
}
