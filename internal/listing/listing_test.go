package listing

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "https://news.ycombinator.com"

func loadFixture(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile("testdata/front.html")
	require.NoError(t, err)
	return string(b)
}

func TestURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://news.ycombinator.com/front?day=2015-06-01", URL(base+"/", "2015-06-01"))
}

func TestParse_Fixture(t *testing.T) {
	t.Parallel()

	items := Parse(strings.NewReader(loadFixture(t)), base)
	require.Len(t, items, 3)

	first := items[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "Rust 1.0 released", first.Title)
	assert.Equal(t, "https://example.com/rust-1.0", first.SourceURL)
	assert.Equal(t, "38000001", first.ItemID)
	assert.Equal(t, base+"/item?id=38000001", first.DiscussionURL)
	assert.Equal(t, 512, first.Score)
	assert.Equal(t, "steveklabnik", first.Author)
	assert.Equal(t, 241, first.ReplyCount)

	t.Run("discuss means zero comments", func(t *testing.T) {
		assert.Equal(t, 2, items[1].Rank)
		assert.Equal(t, "item?id=38000002", items[1].SourceURL)
		assert.Equal(t, 0, items[1].ReplyCount)
		assert.Equal(t, 12, items[1].Score)
	})

	t.Run("job row without meta defaults to zero", func(t *testing.T) {
		job := items[2]
		assert.Equal(t, 3, job.Rank)
		assert.Equal(t, "38000003", job.ItemID)
		assert.Zero(t, job.Score)
		assert.Zero(t, job.ReplyCount)
		assert.Empty(t, job.Author)
	})

	t.Run("entry without title dropped", func(t *testing.T) {
		for _, it := range items {
			assert.NotEqual(t, "38000004", it.ItemID)
		}
	})

	t.Run("ranks increase", func(t *testing.T) {
		for i := 1; i < len(items); i++ {
			assert.Greater(t, items[i].Rank, items[i-1].Rank)
		}
	})
}

func TestParse_MalformedScore(t *testing.T) {
	t.Parallel()

	doc := `<table><tr><td><span class="rank">9.</span></td><td><span class="titleline"><a href="https://a.com">A</a></span></td></tr>
<tr><td class="subtext"><span class="subline"><span class="score">lots of points</span>
<a href="item?id=77">many comments</a></span></td></tr></table>`
	items := Parse(strings.NewReader(doc), base)
	require.Len(t, items, 1)
	assert.Equal(t, 9, items[0].Rank)
	assert.Zero(t, items[0].Score)
	assert.Zero(t, items[0].ReplyCount)
}

func TestParse_TruncatedDocument(t *testing.T) {
	t.Parallel()

	doc := `<tr><td><span class="rank">1.</span><span class="titleline"><a href="https://a.com">A</a></span></td></tr>
<tr><td class="subtext"><span class="subline"><a href="item?id=5">3 comments</a>`
	items := Parse(strings.NewReader(doc), base)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].ReplyCount)
}

func TestParse_TitleWithoutMetaRow(t *testing.T) {
	t.Parallel()

	doc := `<table>
<tr><td><span class="rank">1.</span></td><td><span class="titleline"><a href="https://orphan.com">Orphan</a></span></td></tr>
<tr><td><span class="rank">2.</span></td><td><span class="titleline"><a href="https://b.com">B</a></span></td></tr>
<tr><td class="subtext"><span class="subline"><a href="item?id=42">5 comments</a></span></td></tr>
</table>`
	items := Parse(strings.NewReader(doc), base)
	require.Len(t, items, 1)
	assert.Equal(t, "42", items[0].ItemID)
	assert.Equal(t, "B", items[0].Title)
	assert.Equal(t, "https://b.com", items[0].SourceURL)
	assert.Equal(t, 2, items[0].Rank)
}

func TestParse_NonNumericItemIDDropped(t *testing.T) {
	t.Parallel()

	doc := `<table>
<tr><td><span class="rank">1.</span></td><td><span class="titleline"><a href="https://a.com">A</a></span></td></tr>
<tr><td class="subtext"><span class="subline"><a href="item?id=../../etc">1 comment</a></span></td></tr>
<tr><td><span class="rank">2.</span></td><td><span class="titleline"><a href="https://b.com">B</a></span></td></tr>
<tr><td class="subtext"><span class="subline"><a href="item?id=7&amp;p=2">2 comments</a></span></td></tr>
</table>`
	items := Parse(strings.NewReader(doc), base)
	require.Len(t, items, 1)
	assert.Equal(t, "7", items[0].ItemID)
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Parse(strings.NewReader(""), base))
	assert.Empty(t, Parse(strings.NewReader("<html><p>nothing here</p>"), base))
}

type stubSource struct {
	doc string
	err error
	url string
}

func (s *stubSource) FetchHTML(_ context.Context, rawURL string) (string, error) {
	s.url = rawURL
	return s.doc, s.err
}

func TestFetch(t *testing.T) {
	t.Parallel()

	src := &stubSource{doc: loadFixture(t)}
	items, err := Fetch(context.Background(), src, base, "2015-06-01")
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, base+"/front?day=2015-06-01", src.url)

	_, err = Fetch(context.Background(), &stubSource{err: errors.New("HTTP 503")}, base, "2015-06-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing: fetch frontpage")
}
