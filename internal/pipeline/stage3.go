package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
	"github.com/peterbitar/newsfeed-pipeline/internal/llmclient"
	"github.com/peterbitar/newsfeed-pipeline/internal/pipelineerr"
)

const (
	screeningExcerptChars = 800
	fullExcerptChars      = 1800

	// screenRejectImpactScore is the impact_score a Pass-1 reject is written
	// with — a fixed low value, not a computed one.
	screenRejectImpactScore = 15
)

// screenResult is Stage 3's cheap first-pass output: just enough to decide
// whether the full second-pass call is worth its cost.
type screenResult struct {
	URL           string `json:"url"`
	MaybeRelevant bool   `json:"maybe_relevant"`
	ImpactBucket  string `json:"impact_bucket"`
}

// classifyResult is Stage 3's full second-pass output.
type classifyResult struct {
	URL              string   `json:"url"`
	EventType        string   `json:"event_type"`
	ImpactScore      int      `json:"impact_score"`
	Sentiment        float64  `json:"sentiment"`
	SentimentLabel   string   `json:"sentiment_label"`
	RiskScore        int      `json:"risk_score"`
	OpportunityScore int      `json:"opportunity_score"`
	VolatilityScore  int      `json:"volatility_score"`
	MatchedTickers   []string `json:"matched_tickers"`
	MatchedSectors   []string `json:"matched_sectors"`
}

// Stage3 is the Content Classification stage (component C10): a two-pass
// cost-controlled LLM classification over the full article text. The first
// pass screens on a short excerpt for impact alone; articles below the
// floor are discarded before the expensive full-text pass ever runs.
type Stage3 struct {
	LLM        llmclient.Client
	Thresholds config.Thresholds
}

func (s *Stage3) Name() string                    { return "stage3_content_classification" }
func (s *Stage3) InputStatuses() []core.Status     { return []core.Status{core.StatusContentFetched} }
func (s *Stage3) OrderBy() string                  { return "likely_impact DESC, published_at DESC" }
func (s *Stage3) BatchSize() int                    { return s.Thresholds.Stage3BatchSize }
func (s *Stage3) CheckPrerequisite(a *core.Article) error {
	if a.ContentLength < s.Thresholds.ContentMinLength {
		return fmt.Errorf("stage3: %w: content below minimum length", pipelineerr.ErrPrerequisiteMissing)
	}
	return nil
}

func (s *Stage3) ProcessBatch(ctx context.Context, batch []*core.Article) (map[string]map[string]any, map[string]error) {
	updates := make(map[string]map[string]any, len(batch))
	errs := make(map[string]error)

	screenByURL, screenErrs := s.screenWithFallback(ctx, batch)
	for url, err := range screenErrs {
		errs[url] = err
	}

	var survivors []*core.Article
	for _, a := range batch {
		sr, ok := screenByURL[a.URL]
		if !ok {
			continue // already recorded in errs
		}
		if !sr.MaybeRelevant || sr.ImpactBucket == "low" {
			updates[a.URL] = map[string]any{
				"status":       string(core.StatusDiscarded),
				"impact_score": screenRejectImpactScore,
				"event_type":   string(core.EventOther),
			}
			continue
		}
		survivors = append(survivors, a)
	}

	if len(survivors) == 0 {
		return updates, errs
	}

	classByURL, classifyErrs := s.classifyWithFallback(ctx, survivors)
	for url, err := range classifyErrs {
		errs[url] = err
	}

	for _, a := range survivors {
		cr, ok := classByURL[a.URL]
		if !ok {
			continue // already recorded in errs
		}
		updates[a.URL] = classificationFields(cr, s.Thresholds.Stage3MinImpactToContinue)
	}

	return updates, errs
}

func classificationFields(cr classifyResult, minImpactToContinue int) map[string]any {
	et := core.EventType(cr.EventType)
	if !core.ValidEventTypes[et] {
		et = core.EventOther
	}
	label := core.SentimentLabel(cr.SentimentLabel)
	if !core.ValidSentimentLabels[label] {
		label = core.SentimentNeutral
	}
	impact := clampInt(cr.ImpactScore, 0, 100)

	status := core.StatusLLMProcessed
	if impact < minImpactToContinue {
		status = core.StatusDiscarded
	}

	return map[string]any{
		"status":            string(status),
		"event_type":        string(et),
		"impact_score":      impact,
		"sentiment":         clampFloat(cr.Sentiment, -1, 1),
		"sentiment_label":   string(label),
		"risk_score":        clampInt(cr.RiskScore, 0, 100),
		"opportunity_score": clampInt(cr.OpportunityScore, 0, 100),
		"volatility_score":  clampInt(cr.VolatilityScore, 0, 100),
		"matched_tickers":   normalizeTickerSet(cr.MatchedTickers),
		"matched_sectors":   core.StringSet(cr.MatchedSectors),
	}
}

// screenWithFallback runs the Pass-1 batched call; if the batch call itself
// fails (timeout, malformed JSON), it retries one article at a time so a
// single bad response doesn't sink the whole batch. An article that still
// fails individually is left out of the returned map and recorded in errs
// with status left unchanged, per §4.10's error-handling contract.
func (s *Stage3) screenWithFallback(ctx context.Context, batch []*core.Article) (map[string]screenResult, map[string]error) {
	errs := make(map[string]error)
	results, err := s.screen(ctx, batch)
	if err != nil {
		by := make(map[string]screenResult, len(batch))
		for _, a := range batch {
			rs, aerr := s.screen(ctx, []*core.Article{a})
			if aerr != nil || len(rs) == 0 {
				errs[a.URL] = fmt.Errorf("stage3: %w: screening %s: %v", pipelineerr.ErrLLMFailure, a.URL, aerr)
				continue
			}
			by[a.URL] = rs[0]
		}
		return by, errs
	}

	by := make(map[string]screenResult, len(results))
	for _, r := range results {
		by[r.URL] = r
	}
	for _, a := range batch {
		if _, ok := by[a.URL]; !ok {
			errs[a.URL] = fmt.Errorf("stage3: %w: no screen result for %s", pipelineerr.ErrLLMFailure, a.URL)
		}
	}
	return by, errs
}

// classifyWithFallback is Pass-2's counterpart to screenWithFallback.
func (s *Stage3) classifyWithFallback(ctx context.Context, batch []*core.Article) (map[string]classifyResult, map[string]error) {
	errs := make(map[string]error)
	results, err := s.classify(ctx, batch)
	if err != nil {
		by := make(map[string]classifyResult, len(batch))
		for _, a := range batch {
			rs, aerr := s.classify(ctx, []*core.Article{a})
			if aerr != nil || len(rs) == 0 {
				errs[a.URL] = fmt.Errorf("stage3: %w: classifying %s: %v", pipelineerr.ErrLLMFailure, a.URL, aerr)
				continue
			}
			by[a.URL] = rs[0]
		}
		return by, errs
	}

	by := make(map[string]classifyResult, len(results))
	for _, r := range results {
		by[r.URL] = r
	}
	for _, a := range batch {
		if _, ok := by[a.URL]; !ok {
			errs[a.URL] = fmt.Errorf("stage3: %w: no classification result for %s", pipelineerr.ErrLLMFailure, a.URL)
		}
	}
	return by, errs
}

func (s *Stage3) screen(ctx context.Context, batch []*core.Article) ([]screenResult, error) {
	system := "You are a financial news impact screener. Using only a short excerpt, decide whether each article is plausibly market-relevant and bucket its likely impact as low, medium, or high. Respond with a JSON array only."
	var b strings.Builder
	for _, a := range batch {
		fmt.Fprintf(&b, "- url: %s\n  excerpt: %s\n", a.URL, introConclusionExcerpt(a.CleanText, screeningExcerptChars))
	}
	user := fmt.Sprintf("Articles:\n%s\n\nRespond as a JSON array of {url, maybe_relevant, impact_bucket}.", b.String())

	timeout := batchTimeout(len(batch))
	raw, err := s.LLM.Complete(ctx, system, user, nil, llmclient.Limits{MaxTokens: int32(200 * len(batch)), Temperature: 0.1, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	var out []screenResult
	if err := json.Unmarshal([]byte(llmclient.ExtractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("parsing stage3 screen response: %w", err)
	}
	return out, nil
}

func (s *Stage3) classify(ctx context.Context, batch []*core.Article) ([]classifyResult, error) {
	system := "You are a financial news analyst. For each article, classify the event type, sentiment, impact, risk, opportunity, and volatility, and list matched tickers/sectors. Respond with a JSON array only."
	var b strings.Builder
	for _, a := range batch {
		fmt.Fprintf(&b, "- url: %s\n  title: %s\n  excerpt: %s\n", a.URL, a.Title, introConclusionExcerpt(a.CleanText, fullExcerptChars))
	}
	user := fmt.Sprintf("Articles:\n%s\n\nRespond as a JSON array of objects with keys: url, event_type, impact_score, sentiment, sentiment_label, risk_score, opportunity_score, volatility_score, matched_tickers, matched_sectors.", b.String())

	timeout := batchTimeout(len(batch))
	raw, err := s.LLM.Complete(ctx, system, user, nil, llmclient.Limits{MaxTokens: int32(600 * len(batch)), Temperature: 0.2, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	var out []classifyResult
	if err := json.Unmarshal([]byte(llmclient.ExtractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("parsing stage3 classify response: %w", err)
	}
	return out, nil
}

// introConclusionExcerpt implements the "intro + conclusion" text extractor:
// short content is returned as-is (up to limit chars); longer content is
// reduced to its opening and closing chunks around a marker, so the model
// sees how a piece starts and ends without paying for the middle.
func introConclusionExcerpt(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return string(r)
	}
	headTail := int(float64(limit) * 0.75)
	if 2*headTail > len(r) {
		headTail = len(r) / 2
	}
	return string(r[:headTail]) + "[...content...]" + string(r[len(r)-headTail:])
}

func batchTimeout(n int) time.Duration {
	timeout := time.Duration(45+2*n) * time.Second
	if timeout > 120*time.Second {
		timeout = 120 * time.Second
	}
	return timeout
}
