package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/model"
	"github.com/sells-group/time-capsule/internal/resilience"
)

// ContentTypeError is returned when a response declares a content type the
// caller did not ask for.
type ContentTypeError struct {
	ContentType string
}

func (e *ContentTypeError) Error() string {
	return "Not HTML: " + e.ContentType
}

// ReadError wraps a failure while reading the response body.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return "Read error: " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// HTTPClient implements Fetcher using net/http.
type HTTPClient struct {
	client   *http.Client
	opts     Options
	limiters *hostLimiters
	retry    resilience.Policy
}

// New creates an HTTPClient. Zero-valued options fall back to DefaultOptions.
func New(opts Options) *HTTPClient {
	def := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = def.BackoffUnit
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}

	retry := resilience.Doubling(opts.MaxRetries, opts.BackoffUnit)
	retry.Retryable = func(err error) bool {
		return resilience.StatusCode(err) == http.StatusForbidden
	}
	retry.OnRetry = resilience.RetryLogger("http", "get")

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPClient{
		client:   &http.Client{Timeout: opts.Timeout, Transport: transport},
		opts:     opts,
		limiters: newHostLimiters(opts.RatePerHost),
		retry:    retry,
	}
}

// SetOnRetry replaces the retry hook. The hook sees the attempt number and
// the delay about to be slept.
func (c *HTTPClient) SetOnRetry(fn func(attempt int, delay time.Duration, err error)) {
	c.retry.OnRetry = fn
}

// Fetch retrieves an HTML article body. Guards run before any request.
func (c *HTTPClient) Fetch(ctx context.Context, rawURL string) model.FetchOutcome {
	if !IsWebURL(rawURL) {
		return model.Failure(ReasonNotWebURL)
	}
	if Skipped(rawURL, c.opts.SkipHosts, c.opts.SkipExtensions) {
		return model.Failure(ReasonSkipped)
	}

	body, err := c.FetchHTML(ctx, rawURL)
	if err != nil {
		reason := Reason(err)
		zap.L().Debug("fetcher: article failed",
			zap.String("url", rawURL),
			zap.String("reason", reason),
		)
		return model.Failure(reason)
	}
	return model.Success(body)
}

// FetchHTML retrieves an HTML document and decodes it to UTF-8.
func (c *HTTPClient) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	raw, ct, err := c.get(ctx, rawURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", isHTML)
	if err != nil {
		return "", err
	}
	return decodeBody(raw, ct), nil
}

// GetJSON retrieves a JSON document and decodes it into v.
func (c *HTTPClient) GetJSON(ctx context.Context, rawURL string, v any) error {
	raw, _, err := c.get(ctx, rawURL, "application/json", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return eris.Wrapf(err, "fetcher: decode json from %s", rawURL)
	}
	return nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// get issues a GET with the retry policy. accept, when non-nil, vets the
// response content type before the body is read.
func (c *HTTPClient) get(ctx context.Context, rawURL, acceptHeader string, accept func(string) bool) ([]byte, string, error) {
	type result struct {
		body []byte
		ct   string
	}

	var host string
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	lim := c.limiters.get(host)

	res, err := resilience.Retry(ctx, c.retry, func(ctx context.Context) (result, error) {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return result{}, eris.Wrap(err, "fetcher: rate limiter wait")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return result{}, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", acceptHeader)
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")

		resp, err := c.client.Do(req)
		if err != nil {
			return result{}, err
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			if lim != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests) {
				lim.OnPushback(host)
			}
			return result{}, &resilience.StatusError{StatusCode: resp.StatusCode, URL: rawURL}
		}
		if lim != nil {
			lim.OnSuccess()
		}

		ct := resp.Header.Get("Content-Type")
		if accept != nil && !accept(ct) {
			return result{}, &ContentTypeError{ContentType: ct}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes))
		if err != nil {
			return result{}, &ReadError{Err: err}
		}
		return result{body: body, ct: ct}, nil
	})
	if err != nil {
		return nil, "", err
	}
	return res.body, res.ct, nil
}

// Reason maps a retrieval error to the human-readable reason persisted for
// a failed article fetch.
func Reason(err error) string {
	var se *resilience.StatusError
	if errors.As(err, &se) {
		return se.Error()
	}
	var cte *ContentTypeError
	if errors.As(err, &cte) {
		return cte.Error()
	}
	var re *ReadError
	if errors.As(err, &re) {
		return re.Error()
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Sprintf("URL error: %v", ue.Err)
	}
	return err.Error()
}
