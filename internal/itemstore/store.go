// Package itemstore persists every pipeline stage output as a file under
// data/<date>/<item_id>/. The presence of a file is the stage's completion
// marker; stage outputs are written once and never overwritten.
package itemstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
)

// Per-date and per-item file names.
const (
	FileListing      = "frontpage.json"
	FileAllGrades    = "all_grades.json"
	FileMeta         = "meta.json"
	FileArticle      = "article.txt"
	FileArticleError = "article_error.txt"
	FileComments     = "comments.json"
	FilePrompt       = "prompt.md"
	FileResponse     = "response.md"
	FileGrades       = "grades.json"
	FileScore        = "score.json"

	lockFile  = ".lock"
	dateFmt   = "2006-01-02"
	tmpPrefix = ".tmp-"
)

var (
	// ErrExists is returned by WriteOnce when the target is already present.
	ErrExists = eris.New("itemstore: output already exists")
	// ErrLocked is returned by Lock when another process holds the date.
	ErrLocked = eris.New("itemstore: date is locked by another run")
)

// Store is a directory tree rooted at one data directory.
type Store struct {
	root string
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the data directory.
func (s *Store) Root() string { return s.root }

// DateDir returns the directory for a date.
func (s *Store) DateDir(date string) string {
	return filepath.Join(s.root, date)
}

// path resolves a file; an empty id addresses the date directory itself.
func (s *Store) path(date, id, name string) string {
	if id == "" {
		return filepath.Join(s.root, date, name)
	}
	return filepath.Join(s.root, date, id, name)
}

// Has reports whether a stage output exists. It stats the file on every
// call so callers always see the current on-disk state.
func (s *Store) Has(date, id, name string) bool {
	_, err := os.Stat(s.path(date, id, name))
	return err == nil
}

// WriteOnce atomically creates a file. The data is written to a temporary
// file and hard-linked into place, so the target either does not exist or
// holds the complete content. It returns ErrExists if the target exists.
func (s *Store) WriteOnce(date, id, name string, data []byte) error {
	target := s.path(date, id, name)
	tmp, err := writeTempFile(target, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp) //nolint:errcheck

	if err := os.Link(tmp, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return eris.Wrapf(err, "itemstore: link %s", name)
	}
	return nil
}

// Replace atomically rewrites a derived view (aggregates, rendered pages).
func (s *Store) Replace(date, id, name string, data []byte) error {
	return WriteAtomic(s.path(date, id, name), data)
}

// WriteAtomic writes data to path via a temporary file and rename.
func WriteAtomic(path string, data []byte) error {
	tmp, err := writeTempFile(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "itemstore: rename %s", filepath.Base(path))
	}
	return nil
}

func writeTempFile(target string, data []byte) (string, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "itemstore: mkdir %s", dir)
	}
	f, err := os.CreateTemp(dir, tmpPrefix+filepath.Base(target)+"-*")
	if err != nil {
		return "", eris.Wrap(err, "itemstore: create temp file")
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", eris.Wrap(err, "itemstore: write temp file")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", eris.Wrap(err, "itemstore: sync temp file")
	}
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", eris.Wrap(err, "itemstore: chmod temp file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", eris.Wrap(err, "itemstore: close temp file")
	}
	return name, nil
}

// Read returns a stage output.
func (s *Store) Read(date, id, name string) ([]byte, error) {
	b, err := os.ReadFile(s.path(date, id, name))
	if err != nil {
		return nil, eris.Wrapf(err, "itemstore: read %s", name)
	}
	return b, nil
}

// MarshalJSON encodes v with two-space indentation and without HTML
// escaping, matching the on-disk format of every JSON marker.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, eris.Wrap(err, "itemstore: encode json")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// WriteJSONOnce encodes v and writes it with WriteOnce.
func (s *Store) WriteJSONOnce(date, id, name string, v any) error {
	b, err := MarshalJSON(v)
	if err != nil {
		return err
	}
	return s.WriteOnce(date, id, name, b)
}

// ReplaceJSON encodes v and writes it with Replace.
func (s *Store) ReplaceJSON(date, id, name string, v any) error {
	b, err := MarshalJSON(v)
	if err != nil {
		return err
	}
	return s.Replace(date, id, name, b)
}

// ReadJSON decodes a JSON stage output into v.
func (s *Store) ReadJSON(date, id, name string, v any) error {
	b, err := s.Read(date, id, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return eris.Wrapf(err, "itemstore: decode %s", name)
	}
	return nil
}

// Dates lists dates that have a listing file, sorted ascending.
func (s *Store) Dates() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "itemstore: list dates")
	}
	var dates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(dateFmt, e.Name()); err != nil {
			continue
		}
		if s.Has(e.Name(), "", FileListing) {
			dates = append(dates, e.Name())
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// Lock takes an exclusive advisory lock on a date. It fails fast with
// ErrLocked when another holder exists. The returned func releases it.
func (s *Store) Lock(date string) (func() error, error) {
	dir := s.DateDir(date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "itemstore: mkdir %s", dir)
	}
	fl := flock.New(filepath.Join(dir, lockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, eris.Wrapf(err, "itemstore: lock %s", date)
	}
	if !ok {
		return nil, ErrLocked
	}
	return fl.Unlock, nil
}
