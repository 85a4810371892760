package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
	"github.com/peterbitar/newsfeed-pipeline/internal/pipelineerr"
)

// Stage4 is the Personalization stage (component C11): blends the article's
// global impact (Stage 3) with how closely it touches the user's tracked
// holdings, reweighted by the user's chosen profile (focus/balanced/broad).
// matched_holdings is computed fresh on every run from the current holdings
// list and the article's already-persisted matched_tickers — it is never
// itself persisted, since it would go stale the moment a holding is added or
// removed.
type Stage4 struct {
	Thresholds config.Thresholds
	Holdings   []core.Holding
	Profile    core.Profile
}

func (s *Stage4) Name() string                    { return "stage4_personalization" }
func (s *Stage4) InputStatuses() []core.Status     { return []core.Status{core.StatusLLMProcessed} }
func (s *Stage4) OrderBy() string                  { return "impact_score DESC, published_at DESC" }
func (s *Stage4) BatchSize() int                    { return 0 }
func (s *Stage4) CheckPrerequisite(a *core.Article) error {
	if !a.ImpactScoreSet {
		return fmt.Errorf("stage4: %w: content classification has not run", pipelineerr.ErrPrerequisiteMissing)
	}
	return nil
}

func (s *Stage4) ProcessBatch(ctx context.Context, batch []*core.Article) (map[string]map[string]any, map[string]error) {
	updates := make(map[string]map[string]any, len(batch))
	errs := make(map[string]error)

	heldTickers := make(core.StringSet, 0, len(s.Holdings))
	for _, h := range s.Holdings {
		heldTickers = append(heldTickers, h.Ticker)
	}

	for _, a := range batch {
		matchedHoldings := a.MatchedTickers.Intersect(heldTickers)
		holdingRelevance := computeHoldingRelevance(len(matchedHoldings), s.Thresholds)

		// Cost gate: below the impact floor, skip the richer blend and write
		// the cheap formula instead of discarding outright — a low-impact
		// article can still be worth a glance if it touches a holding.
		if a.ImpactScore < s.Thresholds.Stage4CostGateImpact {
			profileAdjusted := clampInt(int(math.Round(float64(a.ImpactScore)*0.6)), 0, 100)
			updates[a.URL] = map[string]any{
				"holding_relevance_score": holdingRelevance,
				"profile_adjusted_score":  profileAdjusted,
				"profile_type_cached":     string(s.Profile),
				"status":                  string(core.StatusPersonalized),
			}
			continue
		}

		profileAdjusted := blendProfile(s.Profile, holdingRelevance, a.ImpactScore)

		status := core.StatusPersonalized
		if profileAdjusted < s.Thresholds.Stage4MinToStayPersonalized {
			status = core.StatusDiscarded
		}

		updates[a.URL] = map[string]any{
			"holding_relevance_score": holdingRelevance,
			"profile_adjusted_score":  profileAdjusted,
			"profile_type_cached":     string(s.Profile),
			"status":                  string(status),
		}
	}

	return updates, errs
}

// computeHoldingRelevance implements §4.11's relevance formula: a flat base
// score with no matches, or base + match bonus + a per-match increment
// (capped) when the article touches one or more of the user's holdings.
// no_holding_mention is informational only and does not zero this out.
func computeHoldingRelevance(matches int, th config.Thresholds) int {
	if matches == 0 {
		return clampInt(th.HoldingRelevanceBase, 0, th.HoldingRelevanceMax)
	}
	score := th.HoldingRelevanceBase + th.HoldingRelevanceMatchBonus + th.HoldingRelevancePerMatch*matches
	return clampInt(score, 0, th.HoldingRelevanceMax)
}

func blendProfile(profile core.Profile, holdingRelevance, impactScore int) int {
	hr := float64(holdingRelevance)
	impact := float64(impactScore)

	var blended float64
	switch profile {
	case core.ProfileFocus:
		blended = 1.2*hr + 0.3*impact
	case core.ProfileBroad:
		blended = 0.4*hr + 0.6*impact
	default: // balanced
		blended = 0.6*hr + 0.4*impact
	}
	if blended > 100 {
		blended = 100
	}
	return int(math.Round(clampFloat(blended, 0, 100)))
}
