// Package render turns a date's stored analysis into a self-contained HTML
// page and maintains the cross-date index.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/grades"
	"github.com/sells-group/time-capsule/internal/itemstore"
	"github.com/sells-group/time-capsule/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	pageFile        = "index.html"
	maxGradesShown  = 20
	leaderboardSize = 10
)

// Options configures page text.
type Options struct {
	SiteTitle string
	YearsBack int
}

// Renderer writes pages under an output directory.
type Renderer struct {
	store  *itemstore.Store
	outDir string
	opts   Options
}

// New creates a Renderer reading from store and writing to outDir.
func New(store *itemstore.Store, outDir string, opts Options) *Renderer {
	if opts.SiteTitle == "" {
		opts.SiteTitle = "HN Time Capsule"
	}
	if opts.YearsBack <= 0 {
		opts.YearsBack = 10
	}
	return &Renderer{store: store, outDir: outDir, opts: opts}
}

// OutDir returns the output directory.
func (r *Renderer) OutDir() string { return r.outDir }

type itemView struct {
	ItemID   string
	Rank     int
	Title    string
	Points   int
	Comments int
	Score    int
	HasScore bool
}

type gradeView struct {
	User  string `json:"user"`
	Grade string `json:"grade"`
}

type articleJS struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	URL      string      `json:"url"`
	HNURL    string      `json:"hn_url"`
	Points   int         `json:"points"`
	Comments int         `json:"comments"`
	Score    *int        `json:"score"`
	Response string      `json:"response"`
	Prompt   string      `json:"prompt"`
	Grades   []gradeView `json:"grades"`
}

type dayPage struct {
	SiteTitle   string
	Date        string
	YearsBack   int
	Prev, Next  string
	Items       []itemView
	Articles    []articleJS
	Leaderboard []grades.Standing
}

type indexPage struct {
	SiteTitle string
	YearsBack int
	Dates     []string
}

// Date renders data/<date> to <out>/<date>/index.html. dates is the sorted
// set of dates present on disk and drives the prev/next links; date is
// inserted if absent. A missing listing is an error.
func (r *Renderer) Date(date string, dates []string) error {
	items, err := r.store.LoadListing(date)
	if err != nil {
		return eris.Wrapf(err, "render: listing for %s", date)
	}

	page := dayPage{
		SiteTitle: r.opts.SiteTitle,
		Date:      date,
		YearsBack: r.opts.YearsBack,
		Items:     make([]itemView, 0, len(items)),
		Articles:  make([]articleJS, 0, len(items)),
	}
	page.Prev, page.Next = neighbors(date, dates)

	for _, it := range items {
		rec, err := r.store.LoadRecord(date, it.ItemID)
		if err != nil {
			zap.L().Warn("render: unreadable item, rendering without analysis",
				zap.String("date", date),
				zap.String("item_id", it.ItemID),
				zap.Error(err),
			)
			rec = model.AnalysisRecord{ItemID: it.ItemID}
		}

		v := itemView{
			ItemID:   it.ItemID,
			Rank:     it.Rank,
			Title:    it.Title,
			Points:   it.Score,
			Comments: it.ReplyCount,
		}
		if rec.InterestScore != nil {
			v.Score, v.HasScore = *rec.InterestScore, true
		}
		page.Items = append(page.Items, v)
		page.Articles = append(page.Articles, articleJS{
			ID:       it.ItemID,
			Title:    it.Title,
			URL:      it.SourceURL,
			HNURL:    it.DiscussionURL,
			Points:   it.Score,
			Comments: it.ReplyCount,
			Score:    rec.InterestScore,
			Response: rec.ResponseText,
			Prompt:   rec.PromptText,
			Grades:   topGrades(rec.Grades, maxGradesShown),
		})
	}

	if r.store.Has(date, "", itemstore.FileAllGrades) {
		var all grades.ByUser
		if err := r.store.ReadJSON(date, "", itemstore.FileAllGrades, &all); err == nil {
			page.Leaderboard = all.Leaderboard(leaderboardSize)
		}
	}

	path := filepath.Join(r.outDir, date, pageFile)
	if err := r.write(path, "day.html", page); err != nil {
		return err
	}
	zap.L().Info("render: wrote date page", zap.String("date", date), zap.String("path", path), zap.Int("items", len(items)))
	return nil
}

// Index writes <out>/index.html listing dates newest first.
func (r *Renderer) Index(dates []string) error {
	desc := make([]string, len(dates))
	copy(desc, dates)
	sort.Sort(sort.Reverse(sort.StringSlice(desc)))

	path := filepath.Join(r.outDir, pageFile)
	if err := r.write(path, "index.html", indexPage{
		SiteTitle: r.opts.SiteTitle,
		YearsBack: r.opts.YearsBack,
		Dates:     desc,
	}); err != nil {
		return err
	}
	zap.L().Info("render: wrote index", zap.String("path", path), zap.Int("dates", len(desc)))
	return nil
}

// All re-renders every date on disk and then the index, so adjacent-date
// links stay current after a new date appears. It returns the dates
// rendered; a date that fails is logged and skipped.
func (r *Renderer) All() ([]string, error) {
	dates, err := r.store.Dates()
	if err != nil {
		return nil, err
	}
	var done []string
	for _, d := range dates {
		if err := r.Date(d, dates); err != nil {
			zap.L().Error("render: date failed", zap.String("date", d), zap.Error(err))
			continue
		}
		done = append(done, d)
	}
	return done, r.Index(dates)
}

func (r *Renderer) write(path, name string, data any) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return eris.Wrapf(err, "render: execute %s", name)
	}
	return itemstore.WriteAtomic(path, buf.Bytes())
}

// neighbors finds the dates before and after date in the sorted set.
func neighbors(date string, dates []string) (prev, next string) {
	all := make([]string, 0, len(dates)+1)
	all = append(all, dates...)
	i := sort.SearchStrings(all, date)
	if i == len(all) || all[i] != date {
		all = append(all, "")
		copy(all[i+1:], all[i:])
		all[i] = date
	}
	if i > 0 {
		prev = all[i-1]
	}
	if i < len(all)-1 {
		next = all[i+1]
	}
	return prev, next
}

// topGrades orders grades best first, ties by name, and keeps n.
func topGrades(gs map[string]model.Grade, n int) []gradeView {
	out := make([]gradeView, 0, len(gs))
	for u, g := range gs {
		out = append(out, gradeView{User: u, Grade: g.Grade})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := grades.ToNumeric(out[i].Grade), grades.ToNumeric(out[j].Grade)
		if a != b {
			return a > b
		}
		return out[i].User < out[j].User
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
