package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

const (
	// DefaultTimeout bounds a single HTTP download.
	DefaultTimeout = 10 * time.Minute
	// DefaultUserAgent is the User-Agent header sent with requests.
	DefaultUserAgent = "fstarup/1.0"
)

// Downloader performs single-attempt HTTP downloads into a cache
// directory. Failures are never retried here: a failed download is
// terminal to the current install run.
type Downloader struct {
	client    *http.Client
	cacheDir  string
	userAgent string
}

// NewDownloader creates a downloader caching under cacheDir.
func NewDownloader(cacheDir string) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		cacheDir:  cacheDir,
		userAgent: DefaultUserAgent,
	}
}

// Fetch downloads a descriptor's URL into the cache and returns the local
// path. Already-cached files are reused; integrity is checked separately
// against the pinned checksum, so a stale cache entry cannot go
// undetected.
func (d *Downloader) Fetch(ctx context.Context, version string, desc Descriptor) (string, error) {
	if desc.URL == "" {
		return "", stackerr.New(stackerr.KindConfiguration, "descriptor has no URL")
	}

	cachePath := filepath.Join(d.cacheDir, desc.Kind.String(), version, filepath.Base(desc.URL))
	if fileExists(cachePath) {
		return cachePath, nil
	}

	if err := d.downloadToFile(ctx, desc.URL, cachePath); err != nil {
		return "", stackerr.Wrap(stackerr.KindNetwork, err, "download %s artifact", desc.Kind)
	}
	return cachePath, nil
}

// FetchURL downloads an arbitrary URL (e.g. a detached signature) into
// the cache next to the artifacts of the same version.
func (d *Downloader) FetchURL(ctx context.Context, version, url string) (string, error) {
	cachePath := filepath.Join(d.cacheDir, "extra", version, filepath.Base(url))
	if fileExists(cachePath) {
		return cachePath, nil
	}
	if err := d.downloadToFile(ctx, url, cachePath); err != nil {
		return "", stackerr.Wrap(stackerr.KindNetwork, err, "download %s", url)
	}
	return cachePath, nil
}

// downloadToFile performs one download attempt with an atomic
// temp-file-then-rename commit.
func (d *Downloader) downloadToFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

// fileExists checks if a file exists and is not empty.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
