package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/devdasx/satryn-sub001/biometric"
	"github.com/spf13/cobra"
)

func (c *cli) pinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "PIN status, verification and change",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether a PIN is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := c.app.vault.HasPinSet(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pin set: %t\n", set)
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := c.requirePin()
			if err != nil {
				return err
			}
			if err := c.app.vault.VerifyPin(cmd.Context(), pin); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "PIN OK")
			return nil
		},
	}

	var newPin string
	change := &cobra.Command{
		Use:   "change",
		Short: "Re-encrypt every secret under a new PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := c.requirePin()
			if err != nil {
				return err
			}
			if newPin == "" {
				newPin = os.Getenv("VAULTCTL_NEW_PIN")
			}
			if err := c.app.vault.ChangePin(cmd.Context(), pin, newPin); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "PIN changed")
			return nil
		},
	}
	change.Flags().StringVar(&newPin, "new", "", "New PIN (defaults to $VAULTCTL_NEW_PIN)")

	cmd.AddCommand(status, verify, change)
	return cmd
}

// consoleCapability stands in for the platform prompt: the terminal user
// confirms presence by answering y.
type consoleCapability struct {
	cmd *cobra.Command
}

func (t consoleCapability) IsEnrolled(ctx context.Context) (bool, error) {
	return true, nil
}

func (t consoleCapability) Authenticate(ctx context.Context, prompt string) (biometric.Result, error) {
	fmt.Fprintf(t.cmd.ErrOrStderr(), "%s [y/N]: ", prompt)
	answer, err := bufio.NewReader(t.cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		return biometric.ResultCancelled, nil
	}
	if strings.EqualFold(strings.TrimSpace(answer), "y") {
		return biometric.ResultSuccess, nil
	}
	return biometric.ResultFailed, nil
}

func (c *cli) biometricCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "biometric",
		Short: "Biometric unlock",
	}

	enable := &cobra.Command{
		Use:   "enable",
		Short: "Store the PIN for biometric unlock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := c.requirePin()
			if err != nil {
				return err
			}
			if err := biometric.Enroll(cmd.Context(), consoleCapability{cmd}, c.app.vault, pin, "Confirm to enable biometric unlock"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Biometric unlock enabled")
			return nil
		},
	}

	unlock := &cobra.Command{
		Use:   "unlock",
		Short: "Unlock with the biometric prompt and verify the stored PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := biometric.Unlock(cmd.Context(), consoleCapability{cmd}, c.app.vault, "Unlock wallet"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Unlocked")
			return nil
		},
	}

	disable := &cobra.Command{
		Use:   "disable",
		Short: "Remove the stored biometric PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.vault.ClearBiometricPin(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Biometric unlock disabled")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether biometric unlock is set up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			has, err := c.app.vault.HasBiometricPin(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "biometric enabled: %t\n", has)
			return nil
		},
	}

	cmd.AddCommand(enable, unlock, disable, status)
	return cmd
}
