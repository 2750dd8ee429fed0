// Package version provides version information and the release check.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// Version is the current version of godot-bridge
	Version = "0.3.0"

	// GitHubRepo is the repository path
	GitHubRepo = "ctagard/godot-bridge"

	// DefaultReleaseURL is the GitHub API endpoint for the latest release
	DefaultReleaseURL = "https://api.github.com/repos/" + GitHubRepo + "/releases/latest"
)

// UpdateInfo describes the outcome of a release check
type UpdateInfo struct {
	CurrentVersion  string    `json:"currentVersion"`
	LatestVersion   string    `json:"latestVersion,omitempty"`
	UpdateAvailable bool      `json:"updateAvailable"`
	ReleaseURL      string    `json:"releaseUrl,omitempty"`
	CheckedAt       time.Time `json:"checkedAt"`
}

// UpdateMessage returns a human-readable message, or "" when up to date
func (u *UpdateInfo) UpdateMessage() string {
	if !u.UpdateAvailable {
		return ""
	}
	return fmt.Sprintf("godot-bridge v%s is available (current: v%s): %s", u.LatestVersion, u.CurrentVersion, u.ReleaseURL)
}

// Checker queries the latest published release
type Checker struct {
	// ReleaseURL defaults to DefaultReleaseURL
	ReleaseURL string

	Client *http.Client
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Check compares Version against the latest release
func (c *Checker) Check(ctx context.Context) (*UpdateInfo, error) {
	url := c.ReleaseURL
	if url == "" {
		url = DefaultReleaseURL
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "godot-bridge/"+Version)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release endpoint returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	return &UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: CompareVersions(Version, latest) < 0,
		ReleaseURL:      release.HTMLURL,
		CheckedAt:       time.Now(),
	}, nil
}

// CompareVersions compares two semver strings.
// Returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2. Pre-release suffixes are ignored.
func CompareVersions(v1, v2 string) int {
	parse := func(v string) [3]int {
		var out [3]int
		parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
		for i, part := range parts {
			part = strings.SplitN(part, "-", 2)[0]
			_, _ = fmt.Sscanf(part, "%d", &out[i])
		}
		return out
	}

	a, b := parse(v1), parse(v2)
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}
