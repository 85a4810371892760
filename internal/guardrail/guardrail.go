// Package guardrail sanitizes an article's interpretation fields
// (component C3): it forces the closed enumerations and strips advice
// vocabulary before anything is shown to a user.
package guardrail

import (
	"strings"

	"github.com/peterbitar/newsfeed-pipeline/internal/core"
)

// adviceWords is the closed, case-insensitive substring list that triggers a
// downgrade.
var adviceWords = []string{
	"buy", "sell", "entry point", "undervalued", "overvalued",
	"load up", "invest now", "should buy", "should sell",
}

func containsAdviceWord(s string) bool {
	lower := strings.ToLower(s)
	for _, w := range adviceWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Sanitize enforces the closed enumerations on a's interpretation fields and
// bans advice vocabulary, mutating a in place. Safe to call more than once
// (idempotent — P1).
func Sanitize(a *core.Article) {
	if !core.ValidVerdicts[a.Verdict] {
		a.Verdict = core.VerdictAware
	}
	if len(a.WhyJSON) > 3 {
		a.WhyJSON = a.WhyJSON[:3]
	}
	if !core.ValidActions[a.Action] {
		a.Action = core.DefaultAction
	}
	if !core.ValidOpportunityTypes[a.OpportunityType] {
		a.OpportunityType = core.OpportunityNone
	}

	advice := containsAdviceWord(a.Title) || containsAdviceWord(a.Action) || containsAdviceWord(a.OpportunityNote)
	if !advice {
		for _, w := range a.WhyJSON {
			if containsAdviceWord(w) {
				advice = true
				break
			}
		}
	}

	if advice {
		a.Verdict = core.VerdictAware
		a.Action = core.DefaultAction
		a.OpportunityType = core.OpportunityNone
		a.OpportunityNote = ""

		filtered := a.WhyJSON[:0:0]
		for _, w := range a.WhyJSON {
			if !containsAdviceWord(w) {
				filtered = append(filtered, w)
			}
		}
		a.WhyJSON = filtered
		if len(a.WhyJSON) == 0 {
			a.WhyJSON = core.StringSet{"No actionable signal identified"}
		}
	}

	a.Confidence = clamp(a.Confidence, 0, 100)
	a.ImportanceScore = clamp(a.ImportanceScore, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
