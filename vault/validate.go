package vault

import (
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/devdasx/satryn-sub001/namespace"
	"github.com/tyler-smith/go-bip39"
)

// BIP32 seeds are 128 to 512 bits
const (
	minSeedBytes = 16
	maxSeedBytes = 64
)

// plausible judges a legacy decode. The legacy cipher cannot detect a wrong
// key, so the decoded value has to look like what the kind stores.
func plausible(kind namespace.Kind, s string) bool {
	switch kind {
	case namespace.KindSeed:
		return bip39.IsMnemonicValid(s)
	case namespace.KindPrivKey:
		_, err := btcutil.DecodeWIF(s)
		return err == nil
	case namespace.KindXprv:
		key, err := hdkeychain.NewKeyFromString(s)
		return err == nil && key.IsPrivate()
	case namespace.KindSeedHex:
		b, err := hex.DecodeString(s)
		return err == nil && len(b) >= minSeedBytes && len(b) <= maxSeedBytes
	case namespace.KindDescriptor:
		return s != "" && printable(s) && !strings.ContainsAny(s, "\t\n\r")
	case namespace.KindPassphrase:
		return printable(s)
	default:
		return false
	}
}

func printable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
