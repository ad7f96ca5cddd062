package main

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/devdasx/satryn-sub001/vault"
	"github.com/spf13/cobra"
	"github.com/tyler-smith/go-bip39"
)

// holderFlags select which holder a secret command addresses. No flag
// means the primary wallet.
type holderFlags struct {
	account  int
	wallet   string
	cosigner int
}

func (h *holderFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&h.account, "account", -1, "Account id")
	cmd.Flags().StringVar(&h.wallet, "wallet", "", "Wallet id")
	cmd.Flags().IntVar(&h.cosigner, "cosigner", -1, "Local cosigner slot")
}

func (h *holderFlags) validate() error {
	set := 0
	if h.account >= 0 {
		set++
	}
	if h.wallet != "" {
		set++
	}
	if h.cosigner >= 0 {
		set++
	}
	if set > 1 {
		return fmt.Errorf("--account, --wallet and --cosigner are mutually exclusive")
	}
	return nil
}

type secretOp struct {
	store    func(ctx context.Context, value, pin string) error
	retrieve func(ctx context.Context, pin string) (string, error)
}

// secretOps lists the secret kinds the selected holder can hold
func secretOps(svc *vault.Service, h holderFlags) map[string]secretOp {
	switch {
	case h.wallet != "":
		id := h.wallet
		return map[string]secretOp{
			"seed": {
				func(ctx context.Context, v, pin string) error { return svc.StoreWalletSeed(ctx, id, v, pin) },
				func(ctx context.Context, pin string) (string, error) { return svc.RetrieveWalletSeed(ctx, id, pin) },
			},
			"passphrase": {
				func(ctx context.Context, v, pin string) error { return svc.StoreWalletPassphrase(ctx, id, v, pin) },
				func(ctx context.Context, pin string) (string, error) { return svc.RetrieveWalletPassphrase(ctx, id, pin) },
			},
			"descriptor": {
				func(ctx context.Context, v, pin string) error { return svc.StoreWalletDescriptor(ctx, id, v, pin) },
				func(ctx context.Context, pin string) (string, error) { return svc.RetrieveWalletDescriptor(ctx, id, pin) },
			},
			"xprv": {
				func(ctx context.Context, v, pin string) error { return svc.StoreWalletXprv(ctx, id, v, pin) },
				func(ctx context.Context, pin string) (string, error) { return svc.RetrieveWalletXprv(ctx, id, pin) },
			},
			"seedhex": {
				func(ctx context.Context, v, pin string) error { return svc.StoreWalletSeedHex(ctx, id, v, pin) },
				func(ctx context.Context, pin string) (string, error) { return svc.RetrieveWalletSeedHex(ctx, id, pin) },
			},
			"privkey": {
				func(ctx context.Context, v, pin string) error { return svc.StoreWalletPrivateKey(ctx, id, v, pin) },
				func(ctx context.Context, pin string) (string, error) { return svc.RetrieveWalletPrivateKey(ctx, id, pin) },
			},
		}

	case h.account >= 0:
		id := h.account
		return map[string]secretOp{
			"seed": {
				func(ctx context.Context, v, pin string) error { return svc.StoreAccountSeed(ctx, id, v, pin) },
				func(ctx context.Context, pin string) (string, error) { return svc.RetrieveAccountSeed(ctx, id, pin) },
			},
			"passphrase": {
				func(ctx context.Context, v, pin string) error { return svc.StoreAccountPassphrase(ctx, id, v, pin) },
				func(ctx context.Context, pin string) (string, error) { return svc.RetrieveAccountPassphrase(ctx, id, pin) },
			},
		}

	case h.cosigner >= 0:
		index := h.cosigner
		return map[string]secretOp{
			"seed": {
				func(ctx context.Context, v, pin string) error { return svc.StoreLocalCosignerSeed(ctx, index, v, pin) },
				func(ctx context.Context, pin string) (string, error) { return svc.RetrieveLocalCosignerSeed(ctx, index, pin) },
			},
		}

	default:
		return map[string]secretOp{
			"seed":       {svc.StoreSeed, svc.RetrieveSeed},
			"passphrase": {svc.StorePassphrase, svc.RetrievePassphrase},
			"descriptor": {svc.StoreMultisigDescriptor, svc.RetrieveMultisigDescriptor},
		}
	}
}

func lookupOp(svc *vault.Service, h holderFlags, kind string) (secretOp, error) {
	if err := h.validate(); err != nil {
		return secretOp{}, err
	}
	ops := secretOps(svc, h)
	op, ok := ops[kind]
	if !ok {
		kinds := make([]string, 0, len(ops))
		for k := range ops {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		return secretOp{}, fmt.Errorf("unknown secret kind %q for this holder (have %s)", kind, strings.Join(kinds, ", "))
	}
	return op, nil
}

// readValue takes the value from args or, failing that, one line of stdin
func readValue(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("no value given: %w", err)
		}
		return "", fmt.Errorf("no value given")
	}
	return line, nil
}

func (c *cli) secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Store and read encrypted secrets",
	}

	var setHolder holderFlags
	set := &cobra.Command{
		Use:   "set KIND [VALUE]",
		Short: "Encrypt and store a secret; VALUE is read from stdin when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := c.requirePin()
			if err != nil {
				return err
			}
			op, err := lookupOp(c.app.vault, setHolder, args[0])
			if err != nil {
				return err
			}
			value, err := readValue(cmd, args[1:])
			if err != nil {
				return err
			}
			if err := op.store(cmd.Context(), value, pin); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", args[0])
			return nil
		},
	}
	setHolder.bind(set)

	var getHolder holderFlags
	get := &cobra.Command{
		Use:   "get KIND",
		Short: "Decrypt and print a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := c.requirePin()
			if err != nil {
				return err
			}
			op, err := lookupOp(c.app.vault, getHolder, args[0])
			if err != nil {
				return err
			}
			value, err := op.retrieve(cmd.Context(), pin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
	getHolder.bind(get)

	cmd.AddCommand(set, get)
	return cmd
}

func (c *cli) seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Primary wallet seed helpers",
	}

	var words int
	var holder holderFlags
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a BIP-39 mnemonic and store it as a seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := c.requirePin()
			if err != nil {
				return err
			}
			bits, ok := map[int]int{12: 128, 15: 160, 18: 192, 21: 224, 24: 256}[words]
			if !ok {
				return fmt.Errorf("--words must be 12, 15, 18, 21 or 24")
			}
			op, err := lookupOp(c.app.vault, holder, "seed")
			if err != nil {
				return err
			}

			entropy, err := bip39.NewEntropy(bits)
			if err != nil {
				return err
			}
			mnemonic, err := bip39.NewMnemonic(entropy)
			if err != nil {
				return err
			}
			if err := op.store(cmd.Context(), mnemonic, pin); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mnemonic)
			return nil
		},
	}
	generate.Flags().IntVar(&words, "words", 12, "Mnemonic length")
	holder.bind(generate)

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether a primary seed is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			has, err := c.app.vault.HasSeed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seed stored: %t\n", has)
			return nil
		},
	}

	cmd.AddCommand(generate, status)
	return cmd
}
