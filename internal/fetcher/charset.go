package fetcher

import (
	"mime"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// decodeBody converts raw bytes to a string using the charset declared in
// contentType. Undeclared or unknown charsets keep valid UTF-8 as-is and
// fall back to Latin-1 otherwise, which never fails.
func decodeBody(raw []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := params["charset"]; cs != "" {
			if enc, err := htmlindex.Get(cs); err == nil {
				if out, err := enc.NewDecoder().Bytes(raw); err == nil {
					return string(out)
				}
			}
		}
	}
	if utf8.Valid(raw) {
		return string(raw)
	}
	out, _ := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	return string(out)
}
