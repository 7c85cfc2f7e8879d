package itemstore

import (
	"errors"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/time-capsule/internal/model"
)

// SaveListing writes frontpage.json for a date.
func (s *Store) SaveListing(date string, items []model.Item) error {
	if items == nil {
		items = []model.Item{}
	}
	return s.WriteJSONOnce(date, "", FileListing, items)
}

// LoadListing reads frontpage.json for a date.
func (s *Store) LoadListing(date string) ([]model.Item, error) {
	var items []model.Item
	if err := s.ReadJSON(date, "", FileListing, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// LoadMeta reads an item's meta.json.
func (s *Store) LoadMeta(date, id string) (model.Item, error) {
	var it model.Item
	err := s.ReadJSON(date, id, FileMeta, &it)
	return it, err
}

// HasOutcome reports whether either article.txt or article_error.txt exists.
func (s *Store) HasOutcome(date, id string) bool {
	return s.Has(date, id, FileArticle) || s.Has(date, id, FileArticleError)
}

// SaveOutcome writes the body to article.txt on success or the reason to
// article_error.txt on failure. Exactly one of the two ever exists.
func (s *Store) SaveOutcome(date, id string, out model.FetchOutcome) error {
	if s.HasOutcome(date, id) {
		return ErrExists
	}
	if out.OK {
		return s.WriteOnce(date, id, FileArticle, []byte(out.Body))
	}
	return s.WriteOnce(date, id, FileArticleError, []byte(out.Reason))
}

// LoadOutcome reads the fetch outcome. ok is false when neither file exists.
func (s *Store) LoadOutcome(date, id string) (out model.FetchOutcome, ok bool, err error) {
	b, err := os.ReadFile(s.path(date, id, FileArticle))
	if err == nil {
		return model.Success(string(b)), true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return out, false, eris.Wrap(err, "itemstore: read article")
	}
	b, err = os.ReadFile(s.path(date, id, FileArticleError))
	if err == nil {
		return model.Failure(string(b)), true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return out, false, eris.Wrap(err, "itemstore: read article error")
	}
	return out, false, nil
}

// LoadComments reads comments.json. A missing file yields an empty slice.
func (s *Store) LoadComments(date, id string) ([]model.Comment, error) {
	if !s.Has(date, id, FileComments) {
		return []model.Comment{}, nil
	}
	var cs []model.Comment
	if err := s.ReadJSON(date, id, FileComments, &cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// LoadRecord assembles everything the analysis stages produced for an item.
// Missing files leave their fields unset.
func (s *Store) LoadRecord(date, id string) (model.AnalysisRecord, error) {
	rec := model.AnalysisRecord{ItemID: id}
	if s.Has(date, id, FilePrompt) {
		b, err := s.Read(date, id, FilePrompt)
		if err != nil {
			return rec, err
		}
		rec.PromptText = string(b)
	}
	if s.Has(date, id, FileResponse) {
		b, err := s.Read(date, id, FileResponse)
		if err != nil {
			return rec, err
		}
		rec.ResponseText = string(b)
	}
	if s.Has(date, id, FileGrades) {
		if err := s.ReadJSON(date, id, FileGrades, &rec.Grades); err != nil {
			return rec, err
		}
	}
	if s.Has(date, id, FileScore) {
		var sc model.Score
		if err := s.ReadJSON(date, id, FileScore, &sc); err != nil {
			return rec, err
		}
		rec.InterestScore = sc.Interestingness
	}
	return rec, nil
}

// ItemStatus is the set of stage markers present for one item.
type ItemStatus struct {
	Rank     int    `json:"rank" yaml:"rank"`
	ItemID   string `json:"item_id" yaml:"item_id"`
	Title    string `json:"title" yaml:"title"`
	Meta     bool   `json:"meta" yaml:"meta"`
	Article  bool   `json:"article" yaml:"article"`
	Error    bool   `json:"error" yaml:"error"`
	Comments bool   `json:"comments" yaml:"comments"`
	Prompt   bool   `json:"prompt" yaml:"prompt"`
	Response bool   `json:"response" yaml:"response"`
	Grades   bool   `json:"grades" yaml:"grades"`
	Score    bool   `json:"score" yaml:"score"`
}

// Status reports stage markers for every item in a date's listing.
func (s *Store) Status(date string) ([]ItemStatus, error) {
	items, err := s.LoadListing(date)
	if err != nil {
		return nil, err
	}
	out := make([]ItemStatus, 0, len(items))
	for _, it := range items {
		id := it.ItemID
		out = append(out, ItemStatus{
			Rank:     it.Rank,
			ItemID:   id,
			Title:    it.Title,
			Meta:     s.Has(date, id, FileMeta),
			Article:  s.Has(date, id, FileArticle),
			Error:    s.Has(date, id, FileArticleError),
			Comments: s.Has(date, id, FileComments),
			Prompt:   s.Has(date, id, FilePrompt),
			Response: s.Has(date, id, FileResponse),
			Grades:   s.Has(date, id, FileGrades),
			Score:    s.Has(date, id, FileScore),
		})
	}
	return out, nil
}
