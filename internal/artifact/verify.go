package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// HashFile computes the sha256 of a file as lowercase hex.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum compares a file's sha256 against the pinned value.
// Comparison is case-insensitive on the hex digits; any difference is an
// integrity error that aborts the install.
func VerifyChecksum(path, pinned string) error {
	if pinned == "" {
		return stackerr.New(stackerr.KindConfiguration, "no checksum pinned for %s", path)
	}
	actual, err := HashFile(path)
	if err != nil {
		return stackerr.Wrap(stackerr.KindIntegrity, err, "hash %s", path)
	}
	if !strings.EqualFold(actual, pinned) {
		return stackerr.New(stackerr.KindIntegrity,
			"checksum mismatch for %s: got %s, pinned %s", path, actual, pinned)
	}
	return nil
}

// VerifySignature checks a detached armored PGP signature over a file
// against an armored keyring. This supplements the pinned checksum when a
// release publishes signatures; it never replaces it.
func VerifySignature(keyring io.Reader, signedPath, signaturePath string) error {
	entities, err := openpgp.ReadArmoredKeyRing(keyring)
	if err != nil {
		return stackerr.Wrap(stackerr.KindIntegrity, err, "read keyring")
	}

	signed, err := os.Open(signedPath)
	if err != nil {
		return fmt.Errorf("open signed file: %w", err)
	}
	defer signed.Close()

	sig, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer sig.Close()

	if _, err := openpgp.CheckArmoredDetachedSignature(entities, signed, sig, nil); err != nil {
		return stackerr.Wrap(stackerr.KindIntegrity, err, "signature verification failed for %s", signedPath)
	}
	return nil
}
