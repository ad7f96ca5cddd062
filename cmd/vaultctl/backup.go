package main

import (
	"fmt"
	"io"
	"os"

	"github.com/devdasx/satryn-sub001/backup"
	"github.com/devdasx/satryn-sub001/vault"
	"github.com/spf13/cobra"
)

func readAll(cmd *cobra.Command) ([]byte, error) {
	return io.ReadAll(cmd.InOrStdin())
}

type backupFlags struct {
	password string
	out      string
	in       string
	name     string
	ship     bool
}

func (b *backupFlags) requirePassword() (string, error) {
	if b.password == "" {
		b.password = os.Getenv("VAULTCTL_BACKUP_PASSWORD")
	}
	if b.password == "" {
		return "", fmt.Errorf("a backup password is required (--password or $VAULTCTL_BACKUP_PASSWORD)")
	}
	return b.password, nil
}

// emit writes a backup file out and optionally ships it
func (c *cli) emit(cmd *cobra.Command, b *backupFlags, kind backup.Kind, data []byte) error {
	if b.ship {
		m, err := c.app.requireBackups()
		if err != nil {
			return err
		}
		receipt, err := m.Ship(cmd.Context(), kind, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Shipped %s to %v\n", receipt.Name, receipt.Delivered)
		if b.out == "" {
			return nil
		}
	}
	return writeOutput(cmd, b.out, data)
}

// load reads a backup file from --in, from a sink by --name, or from stdin
func (c *cli) load(cmd *cobra.Command, b *backupFlags) ([]byte, error) {
	switch {
	case b.name != "":
		m, err := c.app.requireBackups()
		if err != nil {
			return nil, err
		}
		return m.Fetch(cmd.Context(), b.name)
	case b.in != "" && b.in != "-":
		return os.ReadFile(b.in)
	default:
		return readAll(cmd)
	}
}

func (c *cli) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Encrypted backup files",
	}

	var exp backupFlags
	export := &cobra.Command{
		Use:   "export",
		Short: "Export account metadata as an encrypted backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := exp.requirePassword()
			if err != nil {
				return err
			}
			data, err := c.app.vault.ExportEncryptedBackup(cmd.Context(), password)
			if err != nil {
				return err
			}
			return c.emit(cmd, &exp, backup.KindMetadata, data)
		},
	}
	bindOutput(export, &exp)

	var imp backupFlags
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Restore account metadata from an encrypted backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := imp.requirePassword()
			if err != nil {
				return err
			}
			data, err := c.load(cmd, &imp)
			if err != nil {
				return err
			}
			accounts, err := c.app.vault.ImportEncryptedBackup(cmd.Context(), data, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d accounts\n", len(accounts))
			return nil
		},
	}
	bindInput(importCmd, &imp)

	var seedExp backupFlags
	var account int
	seedExport := &cobra.Command{
		Use:   "seed-export",
		Short: "Export one account's seed as an encrypted seed backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := c.requirePin()
			if err != nil {
				return err
			}
			password, err := seedExp.requirePassword()
			if err != nil {
				return err
			}
			data, err := c.app.vault.ExportAccountSeedBackup(cmd.Context(), account, pin, password)
			if err != nil {
				return err
			}
			return c.emit(cmd, &seedExp, backup.KindSeed, data)
		},
	}
	seedExport.Flags().IntVar(&account, "account", 0, "Account id")
	bindOutput(seedExport, &seedExp)

	var seedImp backupFlags
	var storeAccount int
	seedImport := &cobra.Command{
		Use:   "seed-import",
		Short: "Decrypt a seed backup, optionally storing it into an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := seedImp.requirePassword()
			if err != nil {
				return err
			}
			data, err := c.load(cmd, &seedImp)
			if err != nil {
				return err
			}
			sb, err := vault.ImportSeedBackup(data, password)
			if err != nil {
				return err
			}
			if storeAccount < 0 {
				fmt.Fprintln(cmd.OutOrStdout(), sb.Seed)
				return nil
			}

			pin, err := c.requirePin()
			if err != nil {
				return err
			}
			if err := c.app.vault.StoreAccountSeed(cmd.Context(), storeAccount, sb.Seed, pin); err != nil {
				return err
			}
			if sb.Passphrase != "" {
				if err := c.app.vault.StoreAccountPassphrase(cmd.Context(), storeAccount, sb.Passphrase, pin); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored seed exported at %s into account %d\n", sb.ExportedAt, storeAccount)
			return nil
		},
	}
	seedImport.Flags().IntVar(&storeAccount, "store-account", -1, "Store the seed into this account instead of printing it")
	bindInput(seedImport, &seedImp)

	var kind string
	list := &cobra.Command{
		Use:   "list",
		Short: "List shipped backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := c.app.requireBackups()
			if err != nil {
				return err
			}
			names, err := m.List(cmd.Context(), backup.Kind(kind))
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
	list.Flags().StringVar(&kind, "kind", string(backup.KindMetadata), "metadata or seed")

	cmd.AddCommand(export, importCmd, seedExport, seedImport, list)
	return cmd
}

func bindOutput(cmd *cobra.Command, b *backupFlags) {
	cmd.Flags().StringVar(&b.password, "password", "", "Backup password (defaults to $VAULTCTL_BACKUP_PASSWORD)")
	cmd.Flags().StringVarP(&b.out, "out", "o", "", "Output file (stdout when empty)")
	cmd.Flags().BoolVar(&b.ship, "ship", false, "Send the backup to the configured sinks")
}

func bindInput(cmd *cobra.Command, b *backupFlags) {
	cmd.Flags().StringVar(&b.password, "password", "", "Backup password (defaults to $VAULTCTL_BACKUP_PASSWORD)")
	cmd.Flags().StringVarP(&b.in, "in", "i", "", "Backup file (stdin when empty)")
	cmd.Flags().StringVar(&b.name, "name", "", "Fetch a shipped backup by name instead")
}
