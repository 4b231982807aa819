package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestVerifyChecksum(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "artifact.tar.gz", "archive contents")

	sum := sha256.Sum256([]byte("archive contents"))
	good := hex.EncodeToString(sum[:])

	if err := VerifyChecksum(path, good); err != nil {
		t.Errorf("matching checksum should verify: %v", err)
	}
	if err := VerifyChecksum(path, strings.ToUpper(good)); err != nil {
		t.Errorf("checksum comparison should be case-insensitive: %v", err)
	}

	err := VerifyChecksum(path, strings.Repeat("0", 64))
	if err == nil {
		t.Fatal("mismatched checksum should fail")
	}
	if !stackerr.IsKind(err, stackerr.KindIntegrity) {
		t.Errorf("expected integrity error, got %v", err)
	}
}

func TestVerifyChecksumUnpinned(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "artifact.tar.gz", "x")

	err := VerifyChecksum(path, "")
	if !stackerr.IsKind(err, stackerr.KindConfiguration) {
		t.Errorf("empty pin should be a configuration error, got %v", err)
	}
}

func TestVerifySignatureBadKeyring(t *testing.T) {
	dir := t.TempDir()
	signed := writeFile(t, dir, "artifact", "data")
	sig := writeFile(t, dir, "artifact.asc", "not a signature")

	err := VerifySignature(strings.NewReader("not a keyring"), signed, sig)
	if err == nil {
		t.Fatal("garbage keyring should fail")
	}
	if !stackerr.IsKind(err, stackerr.KindIntegrity) {
		t.Errorf("expected integrity error, got %v", err)
	}
}

func TestHashFileMissing(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("hashing a missing file should fail")
	}
}
