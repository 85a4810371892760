package pipeline

import (
	"strings"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
)

// highImpactEventTypes is the closed list of title_event_type values that
// earn the Stage 1.5 high-impact bonus. product_tech and industry_trend are
// deliberately excluded: a cosmetic product update or a generic trend piece
// is not, by itself, market-moving (see worked scenario 2).
var highImpactEventTypes = map[core.EventType]bool{
	core.EventEarnings:   true,
	core.EventMergerAcq:  true,
	core.EventGuidance:   true,
	core.EventMacro:      true,
	core.EventRegulation: true,
}

// reputableSources is the closed list of source names that earn the Stage
// 1.5 reputable-source bonus, matched case-insensitively.
var reputableSources = []string{
	"reuters", "bloomberg", "wsj", "financial times", "cnbc", "marketwatch",
}

func isReputableSource(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range reputableSources {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ComputeLikelyImpact is Stage 1.5's (component C7) pure scoring function: a
// cheap, LLM-free estimate of whether an article is worth the Stage 2/3 cost,
// derived entirely from Stage 1's title-level signals.
func ComputeLikelyImpact(a *core.Article) int {
	score := a.TitleRelevance * 10
	if highImpactEventTypes[a.TitleEventType] {
		score += 20
	}
	if len(a.TitleTickerMatches) > 0 || len(a.TitleSectorMatches) > 0 {
		score += 10
	}
	if isReputableSource(a.SourceName) {
		score += 5
	}
	return clampInt(score, 0, 100)
}

// CostGate reports whether an article's likely_impact clears the threshold
// for its bucket, i.e. whether it is worth continuing to Stage 2.
func CostGate(a *core.Article, th config.Thresholds) bool {
	return a.LikelyImpact >= th.ProcessGate(string(a.Bucket()))
}
