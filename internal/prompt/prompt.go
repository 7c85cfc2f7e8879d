// Package prompt renders the analysis document for one item. Output is a
// pure function of its inputs so a persisted prompt.md can be trusted as a
// stage marker.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sells-group/time-capsule/internal/model"
)

// ReasonNotFetched is used when neither article file exists.
const ReasonNotFetched = "Not fetched"

const preamble = `The following is an article that appeared on Hacker News %d years ago, and the discussion thread.

Let's use our benefit of hindsight now in 6 sections:

1. Give a brief summary of the article and the discussion thread.
2. What ended up happening to this topic? (research the topic briefly and write a summary)
3. Give out awards for "Most prescient" and "Most wrong" comments, considering what happened.
4. Mention any other fun or notable aspects of the article or discussion.
5. Give out grades to specific people for their comments, considering what happened. List them under a "Final grades" heading, one per line, as "- username: GRADE (short rationale)" using letter grades A to F with optional + or -.
6. At the end, give a final score (from 0-10) for how interesting this article and its retrospect analysis was, on its own line as "Article hindsight analysis interestingness score: N".

---

`

// Input is everything a prompt is built from.
type Input struct {
	Item      model.Item
	Outcome   model.FetchOutcome
	Thread    *model.Thread
	YearsBack int
}

// Build renders the prompt document.
func Build(in Input) string {
	years := in.YearsBack
	if years <= 0 {
		years = 10
	}
	it := in.Item

	lines := []string{
		fmt.Sprintf(preamble, years),
		"# " + it.Title,
		"",
		"## Article Info",
		"",
		"- **Original URL**: " + it.SourceURL,
		"- **HN Discussion**: " + it.DiscussionURL,
		fmt.Sprintf("- **Points**: %d", it.Score),
		"- **Submitted by**: " + it.Author,
		fmt.Sprintf("- **Comments**: %d", it.ReplyCount),
		"",
		"## Article Content",
		"",
	}
	if in.Outcome.OK {
		lines = append(lines, in.Outcome.Body)
	} else {
		reason := in.Outcome.Reason
		if reason == "" {
			reason = ReasonNotFetched
		}
		lines = append(lines, "*Could not fetch article: "+reason+"*")
	}
	lines = append(lines, "", "## HN Discussion", "", Comments(in.Thread))
	return strings.Join(lines, "\n")
}

// Comments renders the thread depth-first, one "- **author**: body" entry
// per comment indented two spaces per level, entries separated by a blank
// line.
func Comments(t *model.Thread) string {
	var entries []string
	t.Walk(func(n model.ThreadNode) bool {
		entries = append(entries, strings.Repeat("  ", n.Depth)+"- **"+n.Author+"**: "+n.Body)
		return true
	})
	return strings.Join(entries, "\n\n")
}
