package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/time-capsule/internal/grades"
	"github.com/sells-group/time-capsule/internal/itemstore"
	"github.com/sells-group/time-capsule/internal/model"
)

func seed(t *testing.T, st *itemstore.Store, date string, items []model.Item) {
	t.Helper()
	require.NoError(t, st.SaveListing(date, items))
	for _, it := range items {
		require.NoError(t, st.WriteJSONOnce(date, it.ItemID, itemstore.FileMeta, it))
	}
}

func loadDoc(t *testing.T, path string) *goquery.Document {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)
	return doc
}

func intPtr(n int) *int { return &n }

func TestDate_RendersSidebarAndData(t *testing.T) {
	data, out := t.TempDir(), t.TempDir()
	st := itemstore.New(data)
	date := "2015-12-01"
	seed(t, st, date, []model.Item{
		{Rank: 1, Title: "Rust <1.0> released", SourceURL: "https://example.com/rust", DiscussionURL: "https://news.ycombinator.com/item?id=1", Score: 512, Author: "steveklabnik", ReplyCount: 200, ItemID: "1"},
		{Rank: 2, Title: "Ask HN: Hiring?", Score: 40, ReplyCount: 0, ItemID: "2"},
	})
	require.NoError(t, st.WriteOnce(date, "1", itemstore.FilePrompt, []byte("the prompt")))
	require.NoError(t, st.WriteOnce(date, "1", itemstore.FileResponse, []byte("analysis </script> text")))
	require.NoError(t, st.WriteJSONOnce(date, "1", itemstore.FileGrades, map[string]model.Grade{
		"pg":      {Grade: "B", Rationale: "ok"},
		"tptacek": {Grade: "A+", Rationale: "right"},
	}))
	require.NoError(t, st.WriteJSONOnce(date, "1", itemstore.FileScore, model.Score{Interestingness: intPtr(8)}))
	require.NoError(t, st.ReplaceJSON(date, "", itemstore.FileAllGrades, grades.ByUser{
		"tptacek": {{Grade: "A+", Article: "1"}},
		"pg":      {{Grade: "B", Article: "1"}},
	}))

	r := New(st, out, Options{YearsBack: 10})
	require.NoError(t, r.Date(date, []string{date}))

	doc := loadDoc(t, filepath.Join(out, date, "index.html"))
	assert.Contains(t, doc.Find("title").Text(), date)

	rows := doc.Find(".article-item")
	require.Equal(t, 2, rows.Length())
	assert.True(t, rows.First().HasClass("selected"))
	assert.Equal(t, "article-1", rows.First().AttrOr("id", ""))
	assert.Equal(t, "1. Rust <1.0> released", strings.TrimSpace(rows.First().Find(".title").Text()))
	assert.Equal(t, "8", strings.TrimSpace(rows.First().Find(".score-box").Text()))
	assert.Contains(t, rows.First().Find(".meta").Text(), "512 pts")

	second := rows.Eq(1)
	assert.True(t, second.Find(".score-box").HasClass("score-none"))
	assert.Equal(t, "--", strings.TrimSpace(second.Find(".score-box").Text()))

	assert.Equal(t, 0, doc.Find(".nav a").Length())
	assert.Equal(t, 2, doc.Find(".nav .disabled").Length())

	board := doc.Find(".leaderboard li .user")
	require.Equal(t, 2, board.Length())
	assert.Equal(t, "tptacek", board.First().Text())

	script := doc.Find("script").Text()
	assert.Contains(t, script, `"hn_url":"https://news.ycombinator.com/item?id=1"`)
	assert.NotContains(t, script, "</script>", "embedded data must not close the script element")
	assert.Contains(t, script, "No analysis")
	assert.Contains(t, script, `"score":null`)
	// Best grade first.
	assert.Less(t, strings.Index(script, `"user":"tptacek"`), strings.Index(script, `"user":"pg"`))
}

func TestDate_Navigation(t *testing.T) {
	data, out := t.TempDir(), t.TempDir()
	st := itemstore.New(data)
	dates := []string{"2015-11-30", "2015-12-01", "2015-12-05"}
	for _, d := range dates {
		seed(t, st, d, []model.Item{{Rank: 1, Title: "x", ItemID: "9"}})
	}

	r := New(st, out, Options{})
	require.NoError(t, r.Date("2015-12-01", dates))

	doc := loadDoc(t, filepath.Join(out, "2015-12-01", "index.html"))
	assert.Equal(t, "../2015-11-30/index.html", doc.Find(".nav a.prev").AttrOr("href", ""))
	assert.Equal(t, "../2015-12-05/index.html", doc.Find(".nav a.next").AttrOr("href", ""))
}

func TestDate_MissingListing(t *testing.T) {
	r := New(itemstore.New(t.TempDir()), t.TempDir(), Options{})
	err := r.Date("2015-12-01", nil)
	assert.Error(t, err)
}

func TestIndex_NewestFirst(t *testing.T) {
	out := t.TempDir()
	r := New(itemstore.New(t.TempDir()), out, Options{YearsBack: 10})
	require.NoError(t, r.Index([]string{"2015-11-30", "2015-12-02", "2015-12-01"}))

	doc := loadDoc(t, filepath.Join(out, "index.html"))
	var got []string
	doc.Find(".date-list a").Each(func(_ int, s *goquery.Selection) {
		got = append(got, s.AttrOr("href", ""))
	})
	assert.Equal(t, []string{"2015-12-02/index.html", "2015-12-01/index.html", "2015-11-30/index.html"}, got)
	assert.Contains(t, doc.Find(".desc").First().Text(), "10 years ago")
}

func TestAll_RerendersEveryDate(t *testing.T) {
	data, out := t.TempDir(), t.TempDir()
	st := itemstore.New(data)
	seed(t, st, "2015-12-01", []model.Item{{Rank: 1, Title: "a", ItemID: "1"}})

	r := New(st, out, Options{})
	done, err := r.All()
	require.NoError(t, err)
	assert.Equal(t, []string{"2015-12-01"}, done)

	// A later date appears; the earlier page must gain a next link.
	seed(t, st, "2015-12-02", []model.Item{{Rank: 1, Title: "b", ItemID: "2"}})
	done, err = r.All()
	require.NoError(t, err)
	assert.Equal(t, []string{"2015-12-01", "2015-12-02"}, done)

	doc := loadDoc(t, filepath.Join(out, "2015-12-01", "index.html"))
	assert.Equal(t, "../2015-12-02/index.html", doc.Find(".nav a.next").AttrOr("href", ""))
	assert.FileExists(t, filepath.Join(out, "index.html"))
}

func TestNeighbors(t *testing.T) {
	dates := []string{"2015-01-01", "2015-01-03", "2015-01-07"}

	p, n := neighbors("2015-01-03", dates)
	assert.Equal(t, "2015-01-01", p)
	assert.Equal(t, "2015-01-07", n)

	p, n = neighbors("2015-01-05", dates)
	assert.Equal(t, "2015-01-03", p)
	assert.Equal(t, "2015-01-07", n)

	p, n = neighbors("2015-01-01", dates)
	assert.Empty(t, p)
	assert.Equal(t, "2015-01-03", n)

	p, n = neighbors("2016-01-01", nil)
	assert.Empty(t, p)
	assert.Empty(t, n)

	assert.Equal(t, []string{"2015-01-01", "2015-01-03", "2015-01-07"}, dates, "input not mutated")
}

func TestTopGrades(t *testing.T) {
	gs := map[string]model.Grade{
		"c": {Grade: "C"}, "a": {Grade: "A-"}, "b": {Grade: "A-"}, "d": {Grade: "F"},
	}
	got := topGrades(gs, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].User)
	assert.Equal(t, "b", got[1].User)
	assert.Equal(t, "c", got[2].User)
}
