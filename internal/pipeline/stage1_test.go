package pipeline

import (
	"context"
	"testing"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
)

func TestApplyTitleTriageClampsAndValidates(t *testing.T) {
	a := &core.Article{}
	applyTitleTriage(a, titleTriageResult{
		TitleRelevance: 9,
		EventType:      "not_a_real_type",
		ReasonShort:    "looks like a merger",
		TickerMatches:  []string{"aapl", "AAPL", "msft"},
	})
	if a.TitleRelevance != 3 {
		t.Errorf("TitleRelevance = %d, want clamped to 3", a.TitleRelevance)
	}
	if !a.TitleRelevanceSet {
		t.Error("expected TitleRelevanceSet to be true")
	}
	if a.TitleEventType != core.EventOther {
		t.Errorf("TitleEventType = %q, want fallback to other", a.TitleEventType)
	}
	if len(a.TitleTickerMatches) != 2 {
		t.Errorf("TitleTickerMatches = %v, want deduped to 2 entries", a.TitleTickerMatches)
	}
}

func TestNormalizeTickerSetDedupes(t *testing.T) {
	got := normalizeTickerSet([]string{"aapl", "AAPL", "", "msft"})
	if len(got) != 2 {
		t.Errorf("normalizeTickerSet = %v, want 2 unique tickers", got)
	}
}

func TestNoHoldingMentionFlagsOnlyWhenSearchedTickerUnmentioned(t *testing.T) {
	holdings := []core.Holding{{Ticker: "AAPL", Label: "Apple"}}

	a := &core.Article{SearchedBy: "AAPL", Title: "Apple reports record quarter"}
	if noHoldingMention(a, holdings) {
		t.Error("title mentions the issuer label, flag should be false")
	}

	b := &core.Article{SearchedBy: "AAPL", Description: "AAPL surges on earnings"}
	if noHoldingMention(b, holdings) {
		t.Error("description mentions the ticker, flag should be false")
	}

	c := &core.Article{SearchedBy: "AAPL", Title: "Unrelated company news"}
	if !noHoldingMention(c, holdings) {
		t.Error("searched_by names a holding but neither field mentions it, flag should be true")
	}
}

func TestNoHoldingMentionFalseWhenSearchedByIsNotAHolding(t *testing.T) {
	holdings := []core.Holding{{Ticker: "AAPL", Label: "Apple"}}
	a := &core.Article{SearchedBy: "MACRO", Title: "Central bank raises interest rates"}
	if noHoldingMention(a, holdings) {
		t.Error("searched_by does not name a tracked holding, flag should stay false")
	}
}

func TestCheckHardFiltersMatchesClosedPatternList(t *testing.T) {
	cases := []string{
		"Morning Brief — Markets Today",
		"Market Wrap: Stocks close mixed",
		"Live Blog: Fed decision reaction",
		"Top 10 moves premarket",
		"Daily Roundup of tech news",
		"Subscribe to our newsletter today",
		"Video: CEO interview highlights",
	}
	for _, title := range cases {
		a := &core.Article{Title: title, SourceName: "CNBC"}
		if _, discard := checkHardFilters(a); !discard {
			t.Errorf("title %q: expected hard filter match", title)
		}
	}
}

func TestCheckHardFiltersMinimumQuality(t *testing.T) {
	if _, discard := checkHardFilters(&core.Article{Title: "Short", SourceName: "CNBC"}); !discard {
		t.Error("title under 10 chars should be discarded")
	}
	if _, discard := checkHardFilters(&core.Article{Title: "12345678901234", SourceName: "CNBC"}); !discard {
		t.Error("title with no meaningful word should be discarded")
	}
	if _, discard := checkHardFilters(&core.Article{Title: "Apple reports record quarterly earnings", SourceName: "Sponsored Content Network"}); !discard {
		t.Error("sponsored source should be discarded")
	}
	if _, discard := checkHardFilters(&core.Article{Title: "Apple reports record quarterly earnings", SourceName: "CNBC"}); discard {
		t.Error("ordinary qualifying article should not be hard-filtered")
	}
}

// TestStage1ProcessBatchScenario1 pins end-to-end scenario 1: a hard-filter
// match never reaches the LLM and is discarded with a named reason.
func TestStage1ProcessBatchScenario1(t *testing.T) {
	s := &Stage1{LLM: &fakeLLM{}, Thresholds: config.DefaultThresholds()}
	a := &core.Article{URL: "https://site/a", Title: "Morning Brief — Markets Today", SourceName: "CNBC", SearchedBy: "NVDA"}

	updates, errs := s.ProcessBatch(context.Background(), []*core.Article{a})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	fields := updates[a.URL]
	if fields["status"] != string(core.StatusDiscarded) {
		t.Errorf("status = %v, want discarded", fields["status"])
	}
	if fields["title_relevance"] != 0 {
		t.Errorf("title_relevance = %v, want 0", fields["title_relevance"])
	}
	if fields["title_reason_short"] != "morning brief" {
		t.Errorf("title_reason_short = %v, want the matched pattern name", fields["title_reason_short"])
	}
}

func TestStage1ProcessBatchAppliesCostGate(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`[{"url":"https://example.com/a","title_relevance":3,"title_event_type":"earnings","title_ticker_matches":["AAPL"]}]`,
	}}
	s := &Stage1{LLM: llm, Thresholds: config.DefaultThresholds()}
	a := &core.Article{URL: "https://example.com/a", Title: "Apple reports earnings"}

	updates, errs := s.ProcessBatch(context.Background(), []*core.Article{a})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	fields, ok := updates[a.URL]
	if !ok {
		t.Fatal("expected update for article")
	}
	if fields["status"] != string(core.StatusTitleFiltered) {
		t.Errorf("status = %v, want title_filtered", fields["status"])
	}
}

func TestStage1ProcessBatchDiscardsZeroRelevance(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`[{"url":"https://example.com/a","title_relevance":0,"title_event_type":"other"}]`,
	}}
	s := &Stage1{LLM: llm, Thresholds: config.DefaultThresholds()}
	a := &core.Article{URL: "https://example.com/a", Title: "Horoscope for Tuesday"}

	updates, _ := s.ProcessBatch(context.Background(), []*core.Article{a})
	if updates[a.URL]["status"] != string(core.StatusDiscarded) {
		t.Errorf("status = %v, want discarded", updates[a.URL]["status"])
	}
}
