package suppression

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// HostedList points at a suppression file served over HTTP, e.g. an
// organisation-wide list maintained outside any single repository.
type HostedList struct {
	URL string
}

var hostedClient = &http.Client{Timeout: 30 * time.Second}

// Fetch downloads and parses the hosted list. Fetch failures are recoverable
// for the aggregation: the caller logs them and moves on.
func (h *HostedList) Fetch() ([]Rule, error) {
	return fetchURL(h.URL)
}

func fetchURL(url string) ([]Rule, error) {
	resp, err := hostedClient.Get(url)
	if err != nil {
		return nil, xerrors.Errorf("cannot fetch suppression list %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("cannot fetch suppression list %s: unexpected status %s", url, resp.Status)
	}

	return Parse(resp.Body, url)
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// loadSource parses a suppression source that is either a local file path or
// an http(s) URL.
func loadSource(location string) ([]Rule, error) {
	if isURL(location) {
		return fetchURL(location)
	}
	return ParseFile(location)
}
