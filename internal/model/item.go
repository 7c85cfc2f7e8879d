package model

// Item is one ranked listing entry for a date. It is written once to
// meta.json before any child fetch and never changes afterwards.
type Item struct {
	Rank          int    `json:"rank"`
	Title         string `json:"title"`
	SourceURL     string `json:"url"`
	DiscussionURL string `json:"hn_url"`
	Score         int    `json:"points"`
	Author        string `json:"author"`
	ReplyCount    int    `json:"comment_count"`
	ItemID        string `json:"item_id"`
}

// FetchOutcome is the tagged result of retrieving external content.
// Exactly one of Body or Reason is meaningful, selected by OK.
type FetchOutcome struct {
	OK     bool
	Body   string
	Reason string
}

// Success wraps a retrieved body.
func Success(body string) FetchOutcome {
	return FetchOutcome{OK: true, Body: body}
}

// Failure wraps a human-readable reason. The reason is stored verbatim.
func Failure(reason string) FetchOutcome {
	return FetchOutcome{Reason: reason}
}
