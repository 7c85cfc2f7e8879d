package extract

import (
	"net/url"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrTooShort is returned when extraction yields less text than the floor.
// Its message is persisted verbatim as the item's fetch error.
var ErrTooShort = eris.New("Article too short or failed to extract")

// TruncationMarker is appended to text cut at the length ceiling.
const TruncationMarker = "\n\n[TRUNCATED]"

// Options bounds the extracted text. Lengths count runes.
type Options struct {
	MinChars      int
	MaxChars      int
	LookbackChars int

	// Readability enables a second extraction attempt with go-readability
	// when the streaming extractor falls under MinChars.
	Readability bool
}

// DefaultOptions returns the production limits.
func DefaultOptions() Options {
	return Options{MinChars: 100, MaxChars: 15000, LookbackChars: 500}
}

// Article extracts text from doc and applies the length floor and ceiling.
// pageURL is only used by the readability fallback and may be empty.
func Article(doc, pageURL string, opts Options) (string, error) {
	text := Text(doc)

	if utf8.RuneCountInString(text) < opts.MinChars && opts.Readability {
		if alt := readabilityText(doc, pageURL); utf8.RuneCountInString(alt) > utf8.RuneCountInString(text) {
			text = alt
		}
	}

	if utf8.RuneCountInString(text) < opts.MinChars {
		return "", ErrTooShort
	}
	return Truncate(text, opts.MaxChars, opts.LookbackChars), nil
}

// Truncate cuts text longer than maxChars runes. The cut lands just after
// the last ". " that starts within the lookback window before maxChars, or
// at maxChars when the window has none. The marker is then appended.
func Truncate(text string, maxChars, lookback int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	cut := maxChars
	start := max(maxChars-lookback, 0)
	// A match must fit entirely inside [start, maxChars).
	for i := maxChars - 2; i >= start; i-- {
		if runes[i] == '.' && runes[i+1] == ' ' {
			cut = i + 1
			break
		}
	}
	return string(runes[:cut]) + TruncationMarker
}

func readabilityText(doc, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || pageURL == "" {
		u = &url.URL{}
	}
	art, err := readability.FromReader(strings.NewReader(doc), u)
	if err != nil {
		zap.L().Debug("extract: readability fallback failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	return normalize(art.TextContent)
}
