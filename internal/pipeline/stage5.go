package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
	"github.com/peterbitar/newsfeed-pipeline/internal/guardrail"
	"github.com/peterbitar/newsfeed-pipeline/internal/pipelineerr"
)

// Stage5 is Ranking & Clustering (component C12): groups personalized
// articles that plausibly describe the same underlying story or theme,
// picks one representative per cluster, computes the final rank score, and
// derives the guardrail-sanitized interpretation fields (verdict, action,
// horizon, opportunity_type, confidence). It processes its whole eligible
// set as a single batch, since clustering is inherently a cross-article
// operation. If clustering itself fails for any reason, every article
// degrades gracefully to a singleton cluster of one rather than blocking
// ranking altogether.
type Stage5 struct {
	Thresholds config.Thresholds
}

func (s *Stage5) Name() string                    { return "stage5_ranking_clustering" }
func (s *Stage5) InputStatuses() []core.Status     { return []core.Status{core.StatusPersonalized} }
func (s *Stage5) OrderBy() string                  { return "profile_adjusted_score DESC" }
func (s *Stage5) BatchSize() int                    { return 0 }
func (s *Stage5) CheckPrerequisite(a *core.Article) error {
	if !a.ProfileAdjustedSet {
		return fmt.Errorf("stage5: %w: personalization has not run", pipelineerr.ErrPrerequisiteMissing)
	}
	return nil
}

func (s *Stage5) ProcessBatch(ctx context.Context, batch []*core.Article) (map[string]map[string]any, map[string]error) {
	updates := make(map[string]map[string]any, len(batch))
	errs := make(map[string]error)

	var clusters [][]*core.Article
	func() {
		defer func() {
			if r := recover(); r != nil {
				clusters = make([][]*core.Article, 0, len(batch))
				for _, a := range batch {
					clusters = append(clusters, []*core.Article{a})
				}
			}
		}()
		clusters = clusterArticles(batch)
	}()

	for _, cluster := range clusters {
		primary := pickPrimary(cluster)
		clusterID := clusterIDFor(primary)

		for _, a := range cluster {
			finalRank := clampInt(int(math.Round(0.6*float64(a.ProfileAdjustedScore)+0.4*float64(a.ImpactScore))), 0, 100)
			importance := clampInt(finalRank+2*clampInt(len(cluster)-1, 0, 5), 0, 100)

			isPrimary := a.URL == primary.URL
			if isPrimary {
				applyInterpretation(a, finalRank)
				guardrail.Sanitize(a)
			}

			fields := map[string]any{
				"cluster_id":            clusterID,
				"is_primary_in_cluster": isPrimary,
				"final_rank_score":      finalRank,
				"importance_score":      importance,
				"status":                string(core.StatusRanked),
			}
			if isPrimary {
				fields["verdict"] = string(a.Verdict)
				fields["why_json"] = a.WhyJSON
				fields["action"] = a.Action
				fields["horizon"] = a.Horizon
				fields["opportunity_type"] = string(a.OpportunityType)
				fields["opportunity_note"] = a.OpportunityNote
				fields["confidence"] = a.Confidence
				if finalRank >= s.Thresholds.ShownToUserCutoff {
					fields["shown_to_user"] = true
					fields["shown_timestamp"] = time.Now().UTC()
				}
			}
			updates[a.URL] = fields
		}
	}

	return updates, errs
}

// clusterArticles partitions by (event_type, matched_tickers[0] or "none")
// and, within each partition, greedily groups articles that pairwise test
// similar: shared event_type with at least one overlapping ticker, or a
// title word-Jaccard (lower-cased words longer than 3 chars) above 0.7. A
// new article joins the first existing cluster it is similar to any member
// of, or starts a cluster of its own.
func clusterArticles(batch []*core.Article) [][]*core.Article {
	partitions := map[string][]*core.Article{}
	var order []string
	for _, a := range batch {
		key := partitionKey(a)
		if _, ok := partitions[key]; !ok {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], a)
	}

	var clusters [][]*core.Article
	for _, key := range order {
		clusters = append(clusters, groupBySimilarity(partitions[key])...)
	}
	return clusters
}

func partitionKey(a *core.Article) string {
	ticker := "none"
	if len(a.MatchedTickers) > 0 {
		ticker = a.MatchedTickers[0]
	}
	return string(a.EventType) + ":" + ticker
}

// groupBySimilarity runs the greedy single-pass pairwise grouping within one
// partition.
func groupBySimilarity(articles []*core.Article) [][]*core.Article {
	var clusters [][]*core.Article
	for _, a := range articles {
		placed := false
		for i, cluster := range clusters {
			for _, member := range cluster {
				if similarArticles(a, member) {
					clusters[i] = append(clusters[i], a)
					placed = true
					break
				}
			}
			if placed {
				break
			}
		}
		if !placed {
			clusters = append(clusters, []*core.Article{a})
		}
	}
	return clusters
}

func similarArticles(a, b *core.Article) bool {
	if a.EventType == b.EventType && a.EventType != "" && len(a.MatchedTickers.Intersect(b.MatchedTickers)) > 0 {
		return true
	}
	return titleJaccard(a.Title, b.Title) > 0.7
}

var (
	titleWordPattern     = regexp.MustCompile(`[a-z0-9]+`)
	nonAlphanumericRunes = regexp.MustCompile(`[^a-z0-9]`)
)

func titleWords(title string) map[string]bool {
	words := map[string]bool{}
	for _, w := range titleWordPattern.FindAllString(strings.ToLower(title), -1) {
		if len(w) > 3 {
			words[w] = true
		}
	}
	return words
}

func titleJaccard(a, b string) float64 {
	wa, wb := titleWords(a), titleWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	intersection := 0
	for w := range wa {
		if wb[w] {
			intersection++
		}
	}
	union := len(wa) + len(wb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// pickPrimary returns the cluster member with the highest profile-adjusted
// score, breaking ties by the earliest publication (the original story).
func pickPrimary(cluster []*core.Article) *core.Article {
	best := cluster[0]
	for _, a := range cluster[1:] {
		if a.ProfileAdjustedScore > best.ProfileAdjustedScore {
			best = a
			continue
		}
		if a.ProfileAdjustedScore == best.ProfileAdjustedScore && a.PublishedAt.Before(best.PublishedAt) {
			best = a
		}
	}
	return best
}

// clusterIDFor implements §4.12.2: a deterministic id derived solely from
// the primary's title, so the same story gets the same id across runs
// regardless of which other articles happen to share its cluster.
func clusterIDFor(primary *core.Article) string {
	normalized := nonAlphanumericRunes.ReplaceAllString(strings.ToLower(primary.Title), "")
	if len(normalized) > 50 {
		normalized = normalized[:50]
	}
	h := md5.Sum([]byte(normalized))
	return "cluster_" + hex.EncodeToString(h[:4])
}

// applyInterpretation derives the user-facing verdict/action/opportunity
// fields from the article's already-computed scores. The Guardrail is
// applied immediately afterward by the caller, so these are a best-effort
// starting point, not the final closed-set values.
func applyInterpretation(a *core.Article, finalRank int) {
	switch {
	case finalRank < 25:
		a.Verdict = core.VerdictIgnore
	case a.OpportunityScore >= 60:
		a.Verdict = core.VerdictAct
	default:
		a.Verdict = core.VerdictAware
	}

	switch {
	case a.OpportunityScore >= 70:
		a.OpportunityType = core.OpportunityAllocation
	case a.OpportunityScore >= 40:
		a.OpportunityType = core.OpportunityBehavioral
	case a.OpportunityScore >= 1:
		a.OpportunityType = core.OpportunityAwareness
	default:
		a.OpportunityType = core.OpportunityNone
	}

	switch a.EventType {
	case core.EventEarnings, core.EventGuidance, core.EventProductTech:
		a.Horizon = "short_term"
	default:
		a.Horizon = "long_term"
	}

	if a.Verdict == core.VerdictAct {
		a.Action = "Review position sizing"
	} else {
		a.Action = core.DefaultAction
	}

	a.OpportunityNote = fmt.Sprintf("%s event with opportunity score %d/100", a.EventType, a.OpportunityScore)

	why := core.StringSet{}
	if a.TitleReasonShort != "" {
		why = append(why, a.TitleReasonShort)
	}
	why = append(why, fmt.Sprintf("impact score %d, sentiment %s", a.ImpactScore, a.SentimentLabel))
	if len(a.MatchedTickers) > 0 {
		why = append(why, fmt.Sprintf("matches tracked tickers: %v", []string(a.MatchedTickers)))
	}
	if len(why) > 3 {
		why = why[:3]
	}
	a.WhyJSON = why

	a.Confidence = clampInt(50+10*len(a.MatchedTickers), 0, 100)
}
