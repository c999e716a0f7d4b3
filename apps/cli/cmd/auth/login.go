package auth

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/netview-hq/netview-go/apps/cli/internal/cliconfig"
	"github.com/netview-hq/netview-go/apps/cli/internal/output"
	"github.com/netview-hq/netview-go/domains/identity"
)

func loginCommand() *cobra.Command {
	var email string
	var google bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and cache credentials",
		Long: `Sign in with email and password, or with Google via a browser flow.

Examples:
  netview auth login --email you@acme.io
  netview auth login --google`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cliconfig.Active()
			printer := output.Default()

			provider, err := cfg.NewProvider()
			if err != nil {
				return err
			}

			var ident *identity.Identity
			if google {
				ident, err = provider.SignInWithGoogle(cmd.Context())
			} else {
				if email == "" {
					email, err = prompt("Email: ")
					if err != nil {
						return err
					}
				}
				var password string
				password, err = promptPassword("Password: ")
				if err != nil {
					return err
				}
				ident, err = provider.SignInWithEmailPassword(cmd.Context(), email, password)
			}
			if err != nil {
				if errors.Is(err, identity.ErrInvalidCredentials) {
					return errors.New("invalid email or password")
				}
				if errors.Is(err, identity.ErrSignInAborted) {
					return errors.New("sign-in aborted")
				}
				return err
			}

			if err := cfg.SaveRefreshToken(provider.RefreshToken()); err != nil {
				return err
			}

			printer.Success("Signed in as %s", ident.Email)
			if !ident.EmailVerified {
				printer.Warning("Email not verified yet; run `netview onboard` to finish setup")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&google, "google", false, "sign in with Google in the browser")
	return cmd
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
