// Command vaultctl drives the wallet secrets vault from a terminal.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/devdasx/satryn-sub001/biometric"
	"github.com/devdasx/satryn-sub001/vault"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

// run executes one command line and always releases the keystore
func run(args []string, in io.Reader, out, errOut io.Writer) error {
	c := &cli{}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.Execute()
	if cerr := c.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// cli holds the state shared by every subcommand
type cli struct {
	configPath string
	logLevel   string
	pin        string

	app *app
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Manage the encrypted wallet secrets vault",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "vaultctl.yaml", "Path to the configuration file")
	flags.StringVar(&c.logLevel, "log-level", "", "Override the configured log level")
	flags.StringVar(&c.pin, "pin", "", "Vault PIN (defaults to $VAULTCTL_PIN)")

	root.AddCommand(
		c.secretCmd(),
		c.seedCmd(),
		c.pinCmd(),
		c.biometricCmd(),
		c.cosignerCmd(),
		c.accountCmd(),
		c.walletCmd(),
		c.backupCmd(),
		c.wipeCmd(),
		c.serveCmd(),
	)
	return root
}

func setupLogging(level string, out io.Writer) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
	return nil
}

func (c *cli) requirePin() (string, error) {
	pin := c.pin
	if pin == "" {
		pin = os.Getenv("VAULTCTL_PIN")
	}
	if pin == "" {
		return "", vault.ErrInvalidPin
	}
	return pin, nil
}

// describe turns an error into the line shown to the user. Vault errors
// get their fixed user-facing text; configuration and usage errors are
// shown as they are.
func describe(err error) string {
	vaultErrs := []error{
		vault.ErrNotFound, vault.ErrWrongPin, vault.ErrFormat,
		vault.ErrChecksumMismatch, vault.ErrStorage, vault.ErrInvalidPin,
	}
	for _, target := range vaultErrs {
		if errors.Is(err, target) {
			return vault.UserMessage(err)
		}
	}
	switch {
	case errors.Is(err, biometric.ErrNotEnrolled):
		return "Biometric unlock is not set up"
	case errors.Is(err, biometric.ErrRejected):
		return "Biometric authentication failed"
	case errors.Is(err, biometric.ErrStalePin):
		return "Biometric unlock is out of date. Enter your PIN"
	}
	return err.Error()
}
