package pipeline

import (
	"testing"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
)

func TestComputeLikelyImpactHighSignal(t *testing.T) {
	a := &core.Article{
		TitleRelevance:     3,
		TitleEventType:     core.EventMergerAcq,
		TitleTickerMatches: core.StringSet{"AAPL", "MSFT"},
		SourceName:         "Reuters",
	}
	got := ComputeLikelyImpact(a)
	want := clampInt(3*10+20+10+5, 0, 100)
	if got != want {
		t.Errorf("ComputeLikelyImpact = %d, want %d", got, want)
	}
}

func TestComputeLikelyImpactCountsMatchBonusOnce(t *testing.T) {
	a := &core.Article{
		TitleRelevance:     3,
		TitleEventType:     core.EventMergerAcq,
		TitleTickerMatches: core.StringSet{"A", "B", "C", "D"},
		TitleSectorMatches: core.StringSet{"a", "b", "c", "d"},
		SourceName:         "Bloomberg",
	}
	if got := ComputeLikelyImpact(a); got != 65 {
		t.Errorf("ComputeLikelyImpact = %d, want 65 (10*3 + 20 + 10 + 5)", got)
	}
}

func TestComputeLikelyImpactZeroRelevance(t *testing.T) {
	a := &core.Article{TitleRelevance: 0, TitleEventType: core.EventOther}
	if got := ComputeLikelyImpact(a); got != 0 {
		t.Errorf("ComputeLikelyImpact = %d, want 0", got)
	}
}

// TestComputeLikelyImpactScenario2 pins end-to-end scenario 2 from the
// worked examples: a low-relevance, non-high-impact, untracked-ticker,
// unreputable-source article yields exactly likely_impact=10.
func TestComputeLikelyImpactScenario2(t *testing.T) {
	a := &core.Article{
		TitleRelevance: 1,
		TitleEventType: core.EventProductTech,
		SourceName:     "Some Blog",
	}
	if got := ComputeLikelyImpact(a); got != 10 {
		t.Errorf("ComputeLikelyImpact = %d, want 10", got)
	}
}

func TestCostGateUsesBucketThreshold(t *testing.T) {
	th := config.DefaultThresholds()
	holdingsArticle := &core.Article{LikelyImpact: th.ProcessGateHoldings}
	if !CostGate(holdingsArticle, th) {
		t.Error("expected article at exactly the holdings threshold to pass the cost gate")
	}

	macroArticle := &core.Article{LikelyImpact: th.ProcessGateMacro - 1, SearchedBy: "MACRO"}
	if CostGate(macroArticle, th) {
		t.Error("expected article below the macro threshold to fail the cost gate")
	}
}
