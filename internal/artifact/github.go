package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

// GitHubClient queries the GitHub releases API for asset URLs. An
// optional token raises the unauthenticated rate limit. The client only
// ever resolves URLs; checksums stay pinned in the manifest.
type GitHubClient struct {
	BaseURL string // defaults to https://api.github.com
	Token   string
	client  *http.Client
}

// NewGitHubClient creates a release-metadata client.
func NewGitHubClient(token string) *GitHubClient {
	return &GitHubClient{
		BaseURL: "https://api.github.com",
		Token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type releaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type release struct {
	TagName string         `json:"tag_name"`
	Assets  []releaseAsset `json:"assets"`
}

// AssetURL returns the download URL of a named asset in a tagged release.
func (g *GitHubClient) AssetURL(ctx context.Context, repo, tag, assetName string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/tags/%s", g.BaseURL, repo, tag)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", DefaultUserAgent)
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", stackerr.Wrap(stackerr.KindNetwork, err, "query release %s@%s", repo, tag)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusForbidden, http.StatusTooManyRequests:
		return "", stackerr.New(stackerr.KindNetwork,
			"GitHub API rate limited querying %s@%s; set FSTARUP_GITHUB_TOKEN to raise the limit", repo, tag)
	case http.StatusNotFound:
		return "", stackerr.New(stackerr.KindNetwork, "release %s@%s not found", repo, tag)
	default:
		return "", stackerr.New(stackerr.KindNetwork,
			"unexpected status %d querying release %s@%s", resp.StatusCode, repo, tag)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return "", stackerr.Wrap(stackerr.KindNetwork, err, "decode release %s@%s", repo, tag)
	}

	for _, asset := range rel.Assets {
		if asset.Name == assetName {
			return asset.BrowserDownloadURL, nil
		}
	}
	return "", stackerr.New(stackerr.KindNetwork, "release %s@%s has no asset %q", repo, tag, assetName)
}
