package model

// Grade is one person's letter grade with an optional rationale.
type Grade struct {
	Grade     string `json:"grade"`
	Rationale string `json:"rationale"`
}

// Score is the persisted interest score (score.json). A nil
// Interestingness means the response carried no score line.
type Score struct {
	Interestingness *int `json:"interestingness"`
}

// AnalysisRecord bundles everything derived for one item by the analyze
// and parse stages.
type AnalysisRecord struct {
	ItemID        string           `json:"item_id"`
	PromptText    string           `json:"prompt"`
	ResponseText  string           `json:"response"`
	Grades        map[string]Grade `json:"grades"`
	InterestScore *int             `json:"interest_score"`
}

// HasResponse reports whether the analyze stage produced output.
func (r AnalysisRecord) HasResponse() bool {
	return r.ResponseText != ""
}
