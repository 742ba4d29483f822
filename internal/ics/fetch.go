package ics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tazhate/icsync/internal/domain"
)

// Fetcher downloads the remote ICS feed. It keeps no state between
// cycles, so every cycle sees the feed as it is right now.
type Fetcher struct {
	client   *http.Client
	url      string
	username string
	password string
}

// NewFetcher creates a fetcher for the given feed URL. Credentials are
// optional and sent as basic auth when the username is non-empty.
func NewFetcher(feedURL, username, password string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		url:      feedURL,
		username: username,
		password: password,
	}
}

// Fetch performs a single unconditional GET and returns the raw body.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, domain.Wrap(domain.ErrNetwork, fmt.Errorf("build request for %s: %w", RedactURL(f.url), err))
	}
	if f.username != "" {
		req.SetBasicAuth(f.username, f.password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.ErrNetwork, fmt.Errorf("get %s: %w", RedactURL(f.url), err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.Wrap(domain.ErrNetwork, fmt.Errorf("get %s: unexpected status %s", RedactURL(f.url), resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Wrap(domain.ErrNetwork, fmt.Errorf("read body from %s: %w", RedactURL(f.url), err))
	}
	return body, nil
}

// RedactURL strips credentials, query and fragment from a URL so it is
// safe to log. Feed URLs often embed secret tokens in the query.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable url)"
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "..."
	}
	u.Fragment = ""
	return u.String()
}
