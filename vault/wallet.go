package vault

import (
	"context"

	"github.com/devdasx/satryn-sub001/namespace"
)

// Primary wallet (the legacy singleton holder)

// StoreSeed encrypts the primary wallet mnemonic under pin
func (s *Service) StoreSeed(ctx context.Context, seed, pin string) error {
	return s.storeSecret(ctx, "store_seed", namespace.KindSeed, namespace.Legacy(), seed, pin)
}

// RetrieveSeed decrypts the primary wallet mnemonic
func (s *Service) RetrieveSeed(ctx context.Context, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_seed", namespace.KindSeed, namespace.Legacy(), pin)
}

// HasSeed reports whether a primary seed record exists. No PIN is needed.
func (s *Service) HasSeed(ctx context.Context) (bool, error) {
	return s.exists(ctx, namespace.MustKey(namespace.KindSeed, namespace.Legacy()))
}

func (s *Service) StorePassphrase(ctx context.Context, passphrase, pin string) error {
	return s.storeSecret(ctx, "store_passphrase", namespace.KindPassphrase, namespace.Legacy(), passphrase, pin)
}

func (s *Service) RetrievePassphrase(ctx context.Context, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_passphrase", namespace.KindPassphrase, namespace.Legacy(), pin)
}

func (s *Service) StoreMultisigDescriptor(ctx context.Context, descriptor, pin string) error {
	return s.storeSecret(ctx, "store_descriptor", namespace.KindDescriptor, namespace.Legacy(), descriptor, pin)
}

func (s *Service) RetrieveMultisigDescriptor(ctx context.Context, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_descriptor", namespace.KindDescriptor, namespace.Legacy(), pin)
}

// Numbered accounts

func (s *Service) StoreAccountSeed(ctx context.Context, accountID int, seed, pin string) error {
	return s.storeSecret(ctx, "store_account_seed", namespace.KindSeed, namespace.Account(accountID), seed, pin)
}

func (s *Service) RetrieveAccountSeed(ctx context.Context, accountID int, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_account_seed", namespace.KindSeed, namespace.Account(accountID), pin)
}

func (s *Service) StoreAccountPassphrase(ctx context.Context, accountID int, passphrase, pin string) error {
	return s.storeSecret(ctx, "store_account_passphrase", namespace.KindPassphrase, namespace.Account(accountID), passphrase, pin)
}

func (s *Service) RetrieveAccountPassphrase(ctx context.Context, accountID int, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_account_passphrase", namespace.KindPassphrase, namespace.Account(accountID), pin)
}

// String-keyed wallets

func (s *Service) StoreWalletSeed(ctx context.Context, walletID, seed, pin string) error {
	return s.storeSecret(ctx, "store_wallet_seed", namespace.KindSeed, namespace.Wallet(walletID), seed, pin)
}

func (s *Service) RetrieveWalletSeed(ctx context.Context, walletID, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_wallet_seed", namespace.KindSeed, namespace.Wallet(walletID), pin)
}

func (s *Service) StoreWalletPassphrase(ctx context.Context, walletID, passphrase, pin string) error {
	return s.storeSecret(ctx, "store_wallet_passphrase", namespace.KindPassphrase, namespace.Wallet(walletID), passphrase, pin)
}

func (s *Service) RetrieveWalletPassphrase(ctx context.Context, walletID, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_wallet_passphrase", namespace.KindPassphrase, namespace.Wallet(walletID), pin)
}

func (s *Service) StoreWalletDescriptor(ctx context.Context, walletID, descriptor, pin string) error {
	return s.storeSecret(ctx, "store_wallet_descriptor", namespace.KindDescriptor, namespace.Wallet(walletID), descriptor, pin)
}

func (s *Service) RetrieveWalletDescriptor(ctx context.Context, walletID, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_wallet_descriptor", namespace.KindDescriptor, namespace.Wallet(walletID), pin)
}

// StoreWalletXprv stores a BIP32 extended private key
func (s *Service) StoreWalletXprv(ctx context.Context, walletID, xprv, pin string) error {
	return s.storeSecret(ctx, "store_wallet_xprv", namespace.KindXprv, namespace.Wallet(walletID), xprv, pin)
}

func (s *Service) RetrieveWalletXprv(ctx context.Context, walletID, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_wallet_xprv", namespace.KindXprv, namespace.Wallet(walletID), pin)
}

// StoreWalletSeedHex stores raw BIP32 seed bytes as hex
func (s *Service) StoreWalletSeedHex(ctx context.Context, walletID, seedHex, pin string) error {
	return s.storeSecret(ctx, "store_wallet_seedhex", namespace.KindSeedHex, namespace.Wallet(walletID), seedHex, pin)
}

func (s *Service) RetrieveWalletSeedHex(ctx context.Context, walletID, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_wallet_seedhex", namespace.KindSeedHex, namespace.Wallet(walletID), pin)
}

// StoreWalletPrivateKey stores an imported WIF private key
func (s *Service) StoreWalletPrivateKey(ctx context.Context, walletID, wif, pin string) error {
	return s.storeSecret(ctx, "store_wallet_privkey", namespace.KindPrivKey, namespace.Wallet(walletID), wif, pin)
}

func (s *Service) RetrieveWalletPrivateKey(ctx context.Context, walletID, pin string) (string, error) {
	return s.retrieveSecret(ctx, "retrieve_wallet_privkey", namespace.KindPrivKey, namespace.Wallet(walletID), pin)
}
