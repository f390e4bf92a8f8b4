package githost

import (
	"fmt"
	"strings"
)

// NormalizeURL turns an owner/name pair or a bare GitHub path into a full
// clone URL. Full URLs and filesystem paths pass through unchanged.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "https://"),
		strings.HasPrefix(raw, "http://"),
		strings.HasPrefix(raw, "git@"),
		strings.HasPrefix(raw, "file://"),
		strings.HasPrefix(raw, "/"),
		strings.HasPrefix(raw, "."):
		return raw
	}
	return "https://github.com/" + strings.TrimPrefix(raw, "github.com/")
}

// ParseOwnerRepo extracts the owner and repository name from a GitHub URL
// or an owner/name path.
func ParseOwnerRepo(raw string) (owner, name string, err error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")

	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot parse owner and repository from %q", raw)
	}
	return parts[0], parts[1], nil
}

// AuthenticatedURL injects basic-auth credentials into a GitHub https URL
// for push over smart HTTP. An empty username becomes "git", which token
// auth requires on most git servers.
func AuthenticatedURL(cloneURL, username, token string) string {
	if !strings.HasPrefix(cloneURL, "https://") {
		return cloneURL
	}
	if username == "" {
		username = "git"
	}
	return fmt.Sprintf("https://%s:%s@%s", username, token, strings.TrimPrefix(cloneURL, "https://"))
}
