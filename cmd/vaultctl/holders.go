package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/devdasx/satryn-sub001/vault"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newTable(cmd *cobra.Command, header ...interface{}) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

func printReport(cmd *cobra.Command, what string, r vault.WipeReport) {
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%d keys, %d failed)\n", what, r.Attempted, r.Failed)
}

func (c *cli) cosignerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cosigner",
		Short: "Local multisig cosigner seeds",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List occupied cosigner slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			indexes, err := c.app.vault.LocalCosignerIndexes(cmd.Context())
			if err != nil {
				return err
			}
			for _, i := range indexes {
				fmt.Fprintln(cmd.OutOrStdout(), i)
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Decrypt every local cosigner seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := c.requirePin()
			if err != nil {
				return err
			}
			seeds, err := c.app.vault.RetrieveAllLocalCosignerSeeds(cmd.Context(), pin)
			if err != nil {
				return err
			}
			t := newTable(cmd, "SLOT", "SEED")
			for _, s := range seeds {
				t.AppendRow(table.Row{s.Index, s.Seed})
			}
			t.Render()
			return nil
		},
	}

	var all bool
	del := &cobra.Command{
		Use:   "delete [INDEX]",
		Short: "Remove a cosigner seed, leaving that cosigner watch-only",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				r, err := c.app.vault.DeleteAllLocalCosignerSeeds(cmd.Context())
				if err != nil {
					return err
				}
				printReport(cmd, "all cosigner seeds", r)
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("give a slot index or --all")
			}
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid slot index %q", args[0])
			}
			r, err := c.app.vault.DeleteLocalCosignerSeed(cmd.Context(), index)
			if err != nil {
				return err
			}
			printReport(cmd, "cosigner "+args[0], r)
			return nil
		},
	}
	del.Flags().BoolVar(&all, "all", false, "Delete every slot")

	cmd.AddCommand(list, show, del)
	return cmd
}

func (c *cli) accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Account metadata and data",
	}

	var file string
	setMeta := &cobra.Command{
		Use:   "set-metadata",
		Short: "Store account metadata from a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if file == "" || file == "-" {
				data, err = readAll(cmd)
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return err
			}
			var meta vault.AccountMetadata
			if err := json.Unmarshal(data, &meta); err != nil {
				return fmt.Errorf("invalid metadata JSON: %w", err)
			}
			if err := c.app.vault.StoreAccountMetadata(cmd.Context(), meta); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored metadata for account %d\n", meta.AccountID)
			return nil
		},
	}
	setMeta.Flags().StringVarP(&file, "file", "f", "", "Metadata JSON file (stdin when empty)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List account metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := c.app.vault.ListAccountMetadata(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable(cmd, "ID", "NAME", "TYPE")
			for _, a := range accounts {
				t.AppendRow(table.Row{a.AccountID, a.Name, a.Type})
			}
			t.Render()
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an account's secrets and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}
			r, err := c.app.vault.DeleteAccountData(cmd.Context(), id)
			if err != nil {
				return err
			}
			printReport(cmd, "account "+args[0], r)
			return nil
		},
	}

	cmd.AddCommand(setMeta, list, del)
	return cmd
}

func (c *cli) walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Per-wallet data",
	}
	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a wallet's secrets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.app.vault.DeleteWalletData(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printReport(cmd, "wallet "+args[0], r)
			return nil
		},
	}
	cmd.AddCommand(del)
	return cmd
}

func (c *cli) wipeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete everything in the vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to wipe without --yes")
			}
			printReport(cmd, "vault", c.app.vault.DeleteWallet(cmd.Context()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the wipe")
	return cmd
}
