package vault

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"
)

var exportedAtPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)

func sampleAccounts() []AccountMetadata {
	local := 0
	return []AccountMetadata{
		{
			AccountID: 0,
			Name:      "Main",
			Type:      "hd",
			Xpubs:     map[string]string{"native_segwit": "zpub6rFR7y4Q2AijBEqTUquhVz398htDFrtymD9xYYfG1m4wAcvPhXNfE3EfH1r1ADqtfSdVCToUG868RvUUkgDKf31mGDtKsAYz2oz2AGutZYs"},
		},
		{
			AccountID: 3,
			Name:      "Vault 2-of-3",
			Type:      "multisig",
			Multisig: &MultisigConfig{
				Threshold: 2,
				Cosigners: []CosignerInfo{
					{Name: "phone", Fingerprint: "73c5da0a", LocalIndex: &local},
					{Name: "hw1", Fingerprint: "d34db33f"},
					{Name: "hw2", Fingerprint: "deadbeef"},
				},
			},
		},
	}
}

func TestMetadataBackup_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	for _, meta := range sampleAccounts() {
		if err := svc.StoreAccountMetadata(ctx, meta); err != nil {
			t.Fatalf("StoreAccountMetadata failed: %v", err)
		}
	}
	svc.StoreAccountSeed(ctx, 0, testSeed, "1234")

	out, err := svc.ExportEncryptedBackup(ctx, "correct horse")
	if err != nil {
		t.Fatalf("ExportEncryptedBackup failed: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatalf("Backup is not JSON: %v", err)
	}
	var names []string
	for k := range fields {
		names = append(names, k)
	}
	if len(names) != 3 || fields["salt"] == nil || fields["data"] == nil || fields["checksum"] == nil {
		t.Errorf("Expected exactly salt, data and checksum, got %v", names)
	}

	f, _ := parseBackupFile(out)
	payload, err := openBackup(f, "correct horse")
	if err != nil {
		t.Fatalf("openBackup failed: %v", err)
	}
	if strings.Contains(string(payload), "abandon") {
		t.Error("Metadata backup must never carry a seed")
	}
	var inner metadataBackup
	json.Unmarshal(payload, &inner)
	if inner.Version != 1 || inner.ExportedAt != "2024-03-09T14:05:07.123Z" {
		t.Errorf("Unexpected payload header %+v", inner)
	}

	fresh, _ := newTestService(t)
	restored, err := fresh.ImportEncryptedBackup(ctx, out, "correct horse")
	if err != nil {
		t.Fatalf("ImportEncryptedBackup failed: %v", err)
	}
	if !reflect.DeepEqual(restored, sampleAccounts()) {
		t.Errorf("Restored accounts differ:\n got %+v\nwant %+v", restored, sampleAccounts())
	}
	listed, _ := fresh.ListAccountMetadata(ctx)
	if !reflect.DeepEqual(listed, sampleAccounts()) {
		t.Errorf("Imported accounts not persisted, got %+v", listed)
	}
}

func TestMetadataBackup_Integrity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	svc.StoreAccountMetadata(ctx, sampleAccounts()[0])
	out, err := svc.ExportEncryptedBackup(ctx, "pw")
	if err != nil {
		t.Fatalf("ExportEncryptedBackup failed: %v", err)
	}

	var f BackupFile
	json.Unmarshal(out, &f)
	f.Data = f.Data[:len(f.Data)-1] + flipHex(f.Data[len(f.Data)-1])
	tampered, _ := json.Marshal(f)

	_, err = svc.ImportEncryptedBackup(ctx, tampered, "pw")
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Expected ErrChecksumMismatch, got %v", err)
	}
	if UserMessage(err) != "Backup file is corrupted" {
		t.Errorf("Unexpected message %q", UserMessage(err))
	}

	_, err = svc.ImportEncryptedBackup(ctx, out, "wrong")
	if !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Expected ErrWrongPassword, got %v", err)
	}
	if UserMessage(err) != "Incorrect backup password" {
		t.Errorf("Unexpected message %q", UserMessage(err))
	}

	if _, err := svc.ImportEncryptedBackup(ctx, []byte("{not json"), "pw"); !errors.Is(err, ErrFormat) {
		t.Errorf("Expected ErrFormat for garbage, got %v", err)
	}
	if _, err := svc.ExportEncryptedBackup(ctx, ""); !errors.Is(err, ErrInvalidPin) {
		t.Errorf("Expected empty password to be rejected, got %v", err)
	}
}

func flipHex(c byte) string {
	if c == '0' {
		return "1"
	}
	return "0"
}

func TestSeedBackup(t *testing.T) {
	out, err := ExportSeedBackup(testSeed, "TREZOR", 4, "long password")
	if err != nil {
		t.Fatalf("ExportSeedBackup failed: %v", err)
	}

	var f BackupFile
	if err := json.Unmarshal(out, &f); err != nil {
		t.Fatalf("Backup is not JSON: %v", err)
	}
	if f.Type != "seed_backup" || f.Version != 2 {
		t.Errorf("Unexpected envelope type %q version %d", f.Type, f.Version)
	}
	if f.Checksum != Checksum(f.Data) {
		t.Error("Checksum must cover the data field")
	}

	backup, err := ImportSeedBackup(out, "long password")
	if err != nil {
		t.Fatalf("ImportSeedBackup failed: %v", err)
	}
	if backup.Seed != testSeed || backup.Passphrase != "TREZOR" || backup.AccountID != 4 {
		t.Errorf("Unexpected payload %+v", backup)
	}
	if !exportedAtPattern.MatchString(backup.ExportedAt) {
		t.Errorf("exportedAt %q is not millisecond ISO-8601 UTC", backup.ExportedAt)
	}

	if _, err := ImportSeedBackup(out, "short password"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Expected ErrWrongPassword, got %v", err)
	}
}

func TestSeedBackup_RejectsOtherFiles(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	svc.StoreAccountMetadata(ctx, sampleAccounts()[0])
	metaFile, _ := svc.ExportEncryptedBackup(ctx, "pw")

	if _, err := ImportSeedBackup(metaFile, "pw"); !errors.Is(err, ErrFormat) {
		t.Errorf("Expected a metadata backup to be refused, got %v", err)
	}

	out, _ := exportSeedBackup(testSeed, "", 0, "pw", testClock)
	var f BackupFile
	json.Unmarshal(out, &f)
	f.Version = 3
	future, _ := json.Marshal(f)
	if _, err := ImportSeedBackup(future, "pw"); !errors.Is(err, ErrFormat) {
		t.Errorf("Expected unknown version to be refused, got %v", err)
	}
}

func TestExportAccountSeedBackup(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	svc.StoreAccountSeed(ctx, 1, testSeed2, "1234")
	svc.StoreAccountPassphrase(ctx, 1, "extra words", "1234")
	svc.StoreAccountSeed(ctx, 2, testSeed, "1234")

	out, err := svc.ExportAccountSeedBackup(ctx, 1, "1234", "pw")
	if err != nil {
		t.Fatalf("ExportAccountSeedBackup failed: %v", err)
	}
	backup, err := ImportSeedBackup(out, "pw")
	if err != nil {
		t.Fatalf("ImportSeedBackup failed: %v", err)
	}
	want := SeedBackup{Seed: testSeed2, Passphrase: "extra words", AccountID: 1, ExportedAt: "2024-03-09T14:05:07.123Z"}
	if *backup != want {
		t.Errorf("Expected %+v, got %+v", want, *backup)
	}

	// a missing passphrase exports as empty
	out, err = svc.ExportAccountSeedBackup(ctx, 2, "1234", "pw")
	if err != nil {
		t.Fatalf("ExportAccountSeedBackup failed: %v", err)
	}
	if backup, _ := ImportSeedBackup(out, "pw"); backup == nil || backup.Passphrase != "" {
		t.Errorf("Expected empty passphrase, got %+v", backup)
	}

	if _, err := svc.ExportAccountSeedBackup(ctx, 1, "0000", "pw"); !errors.Is(err, ErrWrongPin) {
		t.Errorf("Expected ErrWrongPin, got %v", err)
	}
}

func TestTimestampLayout(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	if got := timestamp(ts); got != "2025-01-02T02:04:05.000Z" {
		t.Errorf("Expected UTC with millis, got %q", got)
	}
}
