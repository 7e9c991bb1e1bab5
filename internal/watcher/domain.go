package watcher

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeDomain derives the throttle/adapter key for a target URL:
// lowercase hostname, port stripped, leading "www." removed.
func NormalizeDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	host = strings.TrimPrefix(host, "www.")
	return host, nil
}
