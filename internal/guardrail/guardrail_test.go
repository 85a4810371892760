package guardrail

import (
	"testing"

	"github.com/peterbitar/newsfeed-pipeline/internal/core"
)

func TestSanitizeForcesClosedEnums(t *testing.T) {
	a := &core.Article{
		Verdict:         "maybe",
		Action:          "Go wild",
		OpportunityType: "unknown",
		WhyJSON:         core.StringSet{"a", "b", "c", "d"},
	}
	Sanitize(a)
	if a.Verdict != core.VerdictAware {
		t.Errorf("Verdict = %q, want aware", a.Verdict)
	}
	if a.Action != core.DefaultAction {
		t.Errorf("Action = %q, want %q", a.Action, core.DefaultAction)
	}
	if a.OpportunityType != core.OpportunityNone {
		t.Errorf("OpportunityType = %q, want none", a.OpportunityType)
	}
	if len(a.WhyJSON) != 3 {
		t.Errorf("WhyJSON len = %d, want 3", len(a.WhyJSON))
	}
}

func TestSanitizeDowngradesAdviceWords(t *testing.T) {
	a := &core.Article{
		Verdict:         core.VerdictAct,
		Action:          "Monitor next earnings call",
		OpportunityType: core.OpportunityAllocation,
		WhyJSON:         core.StringSet{"Buy AAPL now", "Strong quarter"},
	}
	Sanitize(a)
	if a.Verdict != core.VerdictAware {
		t.Errorf("expected downgrade to aware, got %q", a.Verdict)
	}
	if a.Action != core.DefaultAction {
		t.Errorf("expected action reset, got %q", a.Action)
	}
	if a.OpportunityType != core.OpportunityNone {
		t.Errorf("expected opportunity_type none, got %q", a.OpportunityType)
	}
	for _, w := range a.WhyJSON {
		if containsAdviceWord(w) {
			t.Errorf("why entry %q still contains an advice word", w)
		}
	}
}

func TestSanitizeEmptyWhyGetsPlaceholder(t *testing.T) {
	a := &core.Article{WhyJSON: core.StringSet{"Buy now"}}
	Sanitize(a)
	if len(a.WhyJSON) != 1 || a.WhyJSON[0] == "Buy now" {
		t.Errorf("expected placeholder why entry, got %v", a.WhyJSON)
	}
}

func TestSanitizeClampsScores(t *testing.T) {
	a := &core.Article{Confidence: 150, ImportanceScore: -5}
	Sanitize(a)
	if a.Confidence != 100 {
		t.Errorf("Confidence = %d, want 100", a.Confidence)
	}
	if a.ImportanceScore != 0 {
		t.Errorf("ImportanceScore = %d, want 0", a.ImportanceScore)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	a := &core.Article{
		Verdict: core.VerdictAct,
		Action:  "Buy AAPL now",
		WhyJSON: core.StringSet{"Buy AAPL now"},
	}
	Sanitize(a)
	first := *a
	Sanitize(a)
	if first.Verdict != a.Verdict || first.Action != a.Action || len(first.WhyJSON) != len(a.WhyJSON) {
		t.Error("Sanitize is not idempotent")
	}
}
