package vault

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devdasx/satryn-sub001/cipher"
	"github.com/devdasx/satryn-sub001/kdf"
)

const (
	// SeedBackupType tags a seed backup file
	SeedBackupType = "seed_backup"

	// SeedBackupVersion is the current seed backup file version
	SeedBackupVersion = 2

	metadataBackupVersion = 1

	// exportedAt is ISO-8601 UTC with milliseconds
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// BackupFile is the on-disk backup envelope. Metadata backups carry only
// salt, data and checksum; seed backups add type and version.
type BackupFile struct {
	Type     string `json:"type,omitempty"`
	Version  int    `json:"version,omitempty"`
	Salt     string `json:"salt"`
	Data     string `json:"data"`
	Checksum string `json:"checksum"`
}

// SeedBackup is the decrypted payload of a seed backup
type SeedBackup struct {
	Seed       string `json:"seed"`
	Passphrase string `json:"passphrase"`
	AccountID  int    `json:"accountId"`
	ExportedAt string `json:"exportedAt"`
}

// metadataBackup is the decrypted payload of a metadata backup. It never
// holds seeds.
type metadataBackup struct {
	Version    int               `json:"version"`
	ExportedAt string            `json:"exportedAt"`
	Accounts   []AccountMetadata `json:"accounts"`
}

// Checksum is the integrity value of a backup data field
func Checksum(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// sealBackup encrypts payload under a password with a fresh salt. Backups
// always use the SHA-256 derivation so they open on any device.
func sealBackup(payload []byte, password string) (*BackupFile, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: backup password", ErrInvalidPin)
	}
	salt, err := kdf.NewSalt()
	if err != nil {
		return nil, err
	}

	key := kdf.DeriveKey(password, salt)
	defer kdf.Zero(key)
	data, err := cipher.Encrypt(payload, key)
	if err != nil {
		return nil, err
	}
	return &BackupFile{Salt: salt, Data: data, Checksum: Checksum(data)}, nil
}

// openBackup verifies the checksum and only then decrypts.
func openBackup(f *BackupFile, password string) ([]byte, error) {
	if f.Salt == "" || f.Data == "" || f.Checksum == "" {
		return nil, fmt.Errorf("%w: incomplete backup file", ErrFormat)
	}
	want := []byte(strings.ToLower(f.Checksum))
	if subtle.ConstantTimeCompare([]byte(Checksum(f.Data)), want) != 1 {
		return nil, ErrChecksumMismatch
	}

	key := kdf.DeriveKey(password, f.Salt)
	defer kdf.Zero(key)
	payload, err := cipher.Decrypt(f.Data, key)
	switch {
	case errors.Is(err, cipher.ErrAuthentication):
		return nil, ErrWrongPassword
	case err != nil:
		return nil, fmt.Errorf("%w: backup data: %v", ErrFormat, err)
	}
	return payload, nil
}

func parseBackupFile(data []byte) (*BackupFile, error) {
	var f BackupFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: backup file: %v", ErrFormat, err)
	}
	return &f, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ExportEncryptedBackup serialises the metadata of every account and
// encrypts it under password. Seeds are never included.
func (s *Service) ExportEncryptedBackup(ctx context.Context, password string) ([]byte, error) {
	out, err := s.exportEncryptedBackup(ctx, password)
	return out, s.track("export_backup", err)
}

func (s *Service) exportEncryptedBackup(ctx context.Context, password string) ([]byte, error) {
	accounts, err := s.ListAccountMetadata(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(metadataBackup{
		Version:    metadataBackupVersion,
		ExportedAt: timestamp(s.now()),
		Accounts:   accounts,
	})
	if err != nil {
		return nil, err
	}

	f, err := sealBackup(payload, password)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int("accounts", len(accounts)).Msg("Exported metadata backup")
	return json.Marshal(f)
}

// ImportEncryptedBackup verifies, decrypts and restores a metadata backup.
// It returns the restored accounts.
func (s *Service) ImportEncryptedBackup(ctx context.Context, data []byte, password string) ([]AccountMetadata, error) {
	accounts, err := s.importEncryptedBackup(ctx, data, password)
	return accounts, s.track("import_backup", err)
}

func (s *Service) importEncryptedBackup(ctx context.Context, data []byte, password string) ([]AccountMetadata, error) {
	f, err := parseBackupFile(data)
	if err != nil {
		return nil, err
	}
	payload, err := openBackup(f, password)
	if err != nil {
		return nil, err
	}

	var backup metadataBackup
	if err := json.Unmarshal(payload, &backup); err != nil {
		return nil, fmt.Errorf("%w: backup payload: %v", ErrFormat, err)
	}
	for _, meta := range backup.Accounts {
		if err := s.StoreAccountMetadata(ctx, meta); err != nil {
			return nil, err
		}
	}

	s.log.Info().Int("accounts", len(backup.Accounts)).Str("exported_at", backup.ExportedAt).Msg("Imported metadata backup")
	return backup.Accounts, nil
}

// ExportSeedBackup encrypts one seed and its passphrase under password. It
// is kept apart from metadata backups so those never carry spendable
// secrets.
func ExportSeedBackup(seed, passphrase string, accountID int, password string) ([]byte, error) {
	return exportSeedBackup(seed, passphrase, accountID, password, time.Now())
}

func exportSeedBackup(seed, passphrase string, accountID int, password string, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(SeedBackup{
		Seed:       seed,
		Passphrase: passphrase,
		AccountID:  accountID,
		ExportedAt: timestamp(now),
	})
	if err != nil {
		return nil, err
	}

	f, err := sealBackup(payload, password)
	if err != nil {
		return nil, err
	}
	f.Type = SeedBackupType
	f.Version = SeedBackupVersion
	return json.Marshal(f)
}

// ImportSeedBackup verifies and decrypts a seed backup
func ImportSeedBackup(data []byte, password string) (*SeedBackup, error) {
	f, err := parseBackupFile(data)
	if err != nil {
		return nil, err
	}
	if f.Type != SeedBackupType {
		return nil, fmt.Errorf("%w: not a seed backup (type %q)", ErrFormat, f.Type)
	}
	if f.Version != SeedBackupVersion {
		return nil, fmt.Errorf("%w: unsupported seed backup version %d", ErrFormat, f.Version)
	}

	payload, err := openBackup(f, password)
	if err != nil {
		return nil, err
	}
	var backup SeedBackup
	if err := json.Unmarshal(payload, &backup); err != nil {
		return nil, fmt.Errorf("%w: seed backup payload: %v", ErrFormat, err)
	}
	return &backup, nil
}

// ExportAccountSeedBackup reads an account's seed and passphrase under pin
// and exports them as a seed backup. A missing passphrase exports as empty.
func (s *Service) ExportAccountSeedBackup(ctx context.Context, accountID int, pin, password string) ([]byte, error) {
	seed, err := s.RetrieveAccountSeed(ctx, accountID, pin)
	if err != nil {
		return nil, err
	}
	passphrase, err := s.RetrieveAccountPassphrase(ctx, accountID, pin)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	out, err := exportSeedBackup(seed, passphrase, accountID, password, s.now())
	return out, s.track("export_seed_backup", err)
}
