package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient() *HTTPClient {
	return New(Options{
		UserAgent:      "test-agent",
		Timeout:        5 * time.Second,
		MaxRetries:     5,
		BackoffUnit:    time.Millisecond,
		SkipHosts:      DefaultOptions().SkipHosts,
		SkipExtensions: DefaultOptions().SkipExtensions,
	})
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<p>hello</p>")) //nolint:errcheck
	}))
	defer srv.Close()

	out := newTestClient().Fetch(context.Background(), srv.URL+"/post")
	require.True(t, out.OK)
	assert.Equal(t, "<p>hello</p>", out.Body)
}

func TestFetch_RetriesForbiddenWithGrowingBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>ok</html>")) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient()
	var delays []time.Duration
	c.SetOnRetry(func(_ int, d time.Duration, _ error) { delays = append(delays, d) })

	out := c.Fetch(context.Background(), srv.URL)
	require.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, delays, 2)
	assert.LessOrEqual(t, delays[0], delays[1])
	assert.Equal(t, 2*time.Millisecond, delays[0])
}

func TestFetch_ForbiddenExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	out := newTestClient().Fetch(context.Background(), srv.URL)
	assert.False(t, out.OK)
	assert.Equal(t, "HTTP 403", out.Reason)
	assert.Equal(t, int32(5), calls.Load())
}

func TestFetch_OtherStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out := newTestClient().Fetch(context.Background(), srv.URL)
	assert.Equal(t, "HTTP 503", out.Reason)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_GuardsIssueNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := newTestClient()
	assert.Equal(t, ReasonSkipped, c.Fetch(context.Background(), srv.URL+"/paper.PDF").Reason)
	assert.Equal(t, ReasonNotWebURL, c.Fetch(context.Background(), "ftp://example.com/file").Reason)
	assert.Equal(t, ReasonNotWebURL, c.Fetch(context.Background(), "item?id=123").Reason)
	assert.Equal(t, ReasonSkipped, c.Fetch(context.Background(), "https://www.youtube.com/watch?v=1").Reason)
	assert.Zero(t, calls.Load())
}

func TestFetch_NotHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF")) //nolint:errcheck
	}))
	defer srv.Close()

	out := newTestClient().Fetch(context.Background(), srv.URL+"/doc")
	assert.Equal(t, "Not HTML: application/pdf", out.Reason)
}

func TestFetch_BodyCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write(make([]byte, 4096)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(Options{MaxBodyBytes: 100, BackoffUnit: time.Millisecond})
	out := c.Fetch(context.Background(), srv.URL)
	require.True(t, out.OK)
	assert.Len(t, out.Body, 100)
}

func TestFetch_URLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	out := newTestClient().Fetch(context.Background(), addr)
	assert.False(t, out.OK)
	assert.Contains(t, out.Reason, "URL error:")
}

func TestFetchHTML_Latin1Fallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte{'c', 'a', 'f', 0xe9}) //nolint:errcheck
	}))
	defer srv.Close()

	body, err := newTestClient().FetchHTML(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "café", body)
}

func TestFetchHTML_DeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		w.Write([]byte{0x93, 'q', 0x94}) //nolint:errcheck
	}))
	defer srv.Close()

	body, err := newTestClient().FetchHTML(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "“q”", body)
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 42, "type": "story"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	var v struct {
		ID   int    `json:"id"`
		Type string `json:"type"`
	}
	require.NoError(t, newTestClient().GetJSON(context.Background(), srv.URL, &v))
	assert.Equal(t, 42, v.ID)
	assert.Equal(t, "story", v.Type)
}

func TestGetJSON_BadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{not json`)) //nolint:errcheck
	}))
	defer srv.Close()

	var v map[string]any
	err := newTestClient().GetJSON(context.Background(), srv.URL, &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode json")
}

func TestSkipped(t *testing.T) {
	t.Parallel()

	hosts := []string{"youtube.com", "x.com"}
	exts := []string{".pdf"}
	tests := []struct {
		url  string
		want bool
	}{
		{"https://youtube.com/watch", true},
		{"https://m.youtube.com/watch", true},
		{"https://x.com/user/status/1", true},
		{"https://dropbox.com/file", false},
		{"https://example.com/paper.pdf", true},
		{"https://example.com/pdf-guide", false},
		{"https://example.com/", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Skipped(tt.url, hosts, exts), tt.url)
	}
}

func TestAdaptiveLimiter(t *testing.T) {
	t.Parallel()

	a := NewAdaptiveLimiter(10, 1)
	a.OnSuccess()
	assert.InDelta(t, 12.0, float64(a.Limit()), 0.001)

	for i := 0; i < 10; i++ {
		a.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(a.Limit()), 0.001)

	for i := 0; i < 10; i++ {
		a.OnPushback("example.com")
	}
	assert.Equal(t, rate.Limit(2.5), a.Limit())
}

func TestHostLimiters(t *testing.T) {
	t.Parallel()

	assert.Nil(t, newHostLimiters(0).get("a.com"))

	h := newHostLimiters(2)
	a := h.get("a.com")
	assert.Same(t, a, h.get("a.com"))
	assert.NotSame(t, a, h.get("b.com"))
}
