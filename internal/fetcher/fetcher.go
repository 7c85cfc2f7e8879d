// Package fetcher retrieves article pages, listing pages, and JSON documents
// over HTTP with bounded retries, per-host rate limiting, and content guards.
package fetcher

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sells-group/time-capsule/internal/model"
)

// Fetcher is the retrieval surface used by the pipeline and thread fetcher.
type Fetcher interface {
	// Fetch retrieves an article and never fails: every problem is folded
	// into a Failure outcome carrying a human-readable reason.
	Fetch(ctx context.Context, rawURL string) model.FetchOutcome

	// FetchHTML retrieves an HTML document, returning an error on failure.
	FetchHTML(ctx context.Context, rawURL string) (string, error)

	// GetJSON retrieves a JSON document and decodes it into v.
	GetJSON(ctx context.Context, rawURL string, v any) error
}

// Failure reasons stored verbatim in article_error.txt.
const (
	ReasonNotWebURL = "Not a web URL"
	ReasonSkipped   = "Skipped URL type"
)

// Options configures the HTTP client.
type Options struct {
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	BackoffUnit    time.Duration
	MaxBodyBytes   int64
	RatePerHost    float64
	SkipHosts      []string
	SkipExtensions []string
}

// DefaultOptions returns the production fetch policy.
func DefaultOptions() Options {
	return Options{
		UserAgent:      "Mozilla/5.0 (compatible; time-capsule/1.0)",
		Timeout:        15 * time.Second,
		MaxRetries:     5,
		BackoffUnit:    time.Second,
		MaxBodyBytes:   5 << 20,
		RatePerHost:    2,
		SkipHosts:      []string{"youtube.com", "youtu.be", "twitter.com", "x.com"},
		SkipExtensions: []string{".pdf"},
	}
}

// IsWebURL reports whether rawURL is an absolute http(s) URL.
func IsWebURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Skipped reports whether rawURL points at a known non-text destination.
// Hosts match on the exact name or a dot-separated suffix; extensions match
// the final path element case-insensitively.
func Skipped(rawURL string, hosts, exts []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimPrefix(h, "."))
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range exts {
		if ext != "" && ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
