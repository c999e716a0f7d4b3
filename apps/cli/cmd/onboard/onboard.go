// Package onboard drives the interactive first-run wizard: invitation check,
// business email validation, verification code, tenant creation.
package onboard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/netview-hq/netview-go/apps/cli/internal/cliconfig"
	"github.com/netview-hq/netview-go/apps/cli/internal/output"
	"github.com/netview-hq/netview-go/domains/onboarding"
	"github.com/netview-hq/netview-go/platform/go/backend"
)

// Command returns the onboard command.
func Command() *cobra.Command {
	var firstName, lastName, company string

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Finish account setup",
		Long: `Walk through account setup: accept a pending invitation or verify your
business email, then create your organization.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var signup *onboarding.SignupData
			if firstName != "" || lastName != "" {
				signup = &onboarding.SignupData{FirstName: firstName, LastName: lastName}
				if company != "" {
					signup.Company = &company
				}
			}
			return runWizard(cmd.Context(), signup)
		},
	}

	cmd.Flags().StringVar(&firstName, "first-name", "", "first name for registration")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name for registration")
	cmd.Flags().StringVar(&company, "company", "", "company for registration")
	return cmd
}

func runWizard(ctx context.Context, signup *onboarding.SignupData) error {
	printer := output.Default()

	store, _, client, err := cliconfig.Active().ResumeSession(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if state := store.Snapshot(); state.User != nil && state.User.TenantID != nil {
		printer.Success("Account setup is already complete")
		return nil
	}

	orch := onboarding.New(onboarding.Config{
		Store:   store,
		Backend: client,
		Signup:  signup,
		OnStep: func(step onboarding.Step) {
			printer.Info("-> %s", step)
		},
	})
	defer orch.Close()

	step, err := orch.Begin(ctx)
	if err != nil {
		return err
	}

	if step == onboarding.StepCheckInvitations {
		step, err = handleInvitations(ctx, orch, printer)
		if err != nil {
			return err
		}
	}

	for step != onboarding.StepDone {
		switch step {
		case onboarding.StepValidateEmail:
			// Begin already validated the identity email; reaching this step
			// manually means the domain was rejected.
			return errors.New("your email domain is not accepted; ask for an invitation instead")
		case onboarding.StepVerifyCode:
			if err := handleVerifyCode(ctx, orch, printer); err != nil {
				return err
			}
		case onboarding.StepCreateTenant:
			if err := handleCreateTenant(ctx, orch, printer); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected onboarding step %s", step)
		}
		step = orch.Step()
	}

	printer.Success("You're all set")
	return nil
}

func handleInvitations(ctx context.Context, orch *onboarding.Orchestrator, printer *output.Printer) (onboarding.Step, error) {
	invitations := orch.Invitations()
	printer.Plain("You have %d pending invitation(s):", len(invitations))

	table := output.NewTable([]string{"#", "ORGANIZATION", "ROLE"})
	for i, inv := range invitations {
		table.AddRow([]string{strconv.Itoa(i + 1), inv.TenantName, inv.Role})
	}
	table.Render()

	choice, err := prompt("Accept an invitation? Enter its number, or press Enter to skip: ")
	if err != nil {
		return 0, err
	}
	if choice == "" {
		return orch.DeclineInvitations(ctx)
	}

	idx, err := strconv.Atoi(choice)
	if err != nil || idx < 1 || idx > len(invitations) {
		return 0, fmt.Errorf("invalid choice %q", choice)
	}
	if err := orch.AcceptInvitation(ctx, invitations[idx-1]); err != nil {
		return 0, err
	}
	printer.Success("Joined %s", invitations[idx-1].TenantName)
	return orch.Step(), nil
}

func handleVerifyCode(ctx context.Context, orch *onboarding.Orchestrator, printer *output.Printer) error {
	printer.Plain("A 6-digit verification code was sent to your email.")

	for {
		code, err := prompt("Code (or 'resend'): ")
		if err != nil {
			return err
		}

		if strings.EqualFold(code, "resend") {
			if wait := orch.ResendIn(); wait > 0 {
				printer.Warning("Please wait %s before requesting another code", wait.Round(time.Second))
				continue
			}
			if err := orch.Resend(ctx); err != nil {
				return err
			}
			printer.Info("Code re-sent")
			continue
		}

		err = orch.SubmitCode(ctx, code)
		var apiErr *backend.APIError
		switch {
		case err == nil:
			return nil
		case errors.Is(err, onboarding.ErrInvalidCode):
			printer.Warning("The code must be 6 digits")
		case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
			printer.Warning("That code was not accepted; try again")
		default:
			return err
		}
	}
}

func handleCreateTenant(ctx context.Context, orch *onboarding.Orchestrator, printer *output.Printer) error {
	for {
		name, err := prompt("Organization name: ")
		if err != nil {
			return err
		}
		if strings.TrimSpace(name) == "" {
			printer.Warning("The organization name cannot be empty")
			continue
		}
		if err := orch.CreateTenant(ctx, name); err != nil {
			return err
		}
		printer.Success("Created organization %q", name)
		return nil
	}
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
