package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
	"github.com/peterbitar/newsfeed-pipeline/internal/llmclient"
	"github.com/peterbitar/newsfeed-pipeline/internal/logger"
	"github.com/peterbitar/newsfeed-pipeline/internal/pipelineerr"
)

// hardFilterPattern is one entry in the closed list of pre-LLM title
// rejections: a compiled regex and the human-readable reason recorded on
// match.
type hardFilterPattern struct {
	re     *regexp.Regexp
	reason string
}

// hardFilterPatterns is the closed list from the title-triage hard filter
// (recurring roundup/digest formats the LLM never needs to see).
var hardFilterPatterns = []hardFilterPattern{
	{regexp.MustCompile(`(?i)morning brief`), "morning brief"},
	{regexp.MustCompile(`(?i)market wrap`), "market wrap"},
	{regexp.MustCompile(`(?i)live blog`), "live blog"},
	{regexp.MustCompile(`(?i)top \d+ moves`), "top N moves"},
	{regexp.MustCompile(`(?i)daily roundup`), "daily roundup"},
	{regexp.MustCompile(`(?i)newsletter`), "newsletter"},
	{regexp.MustCompile(`(?i)subscribe`), "subscribe"},
	{regexp.MustCompile(`(?i)click here`), "click here"},
	{regexp.MustCompile(`(?i)video:`), "video:"},
	{regexp.MustCompile(`(?i)podcast:`), "podcast:"},
	{regexp.MustCompile(`(?i)slideshow`), "slideshow"},
	{regexp.MustCompile(`(?i)photo gallery`), "photo gallery"},
}

// sponsoredSourcePattern matches the closed list of non-editorial source
// labels the minimum-quality test rejects.
var sponsoredSourcePattern = regexp.MustCompile(`(?i)sponsored|advertisement|promoted|partner content`)

// checkHardFilters runs the pre-LLM hard-filter pass (title pattern list
// plus the minimum-quality test). It returns the matching reason string and
// true when the article should be discarded without ever reaching the LLM.
func checkHardFilters(a *core.Article) (string, bool) {
	for _, p := range hardFilterPatterns {
		if p.re.MatchString(a.Title) {
			return p.reason, true
		}
	}
	if sponsoredSourcePattern.MatchString(a.SourceName) {
		return "sponsored source", true
	}
	if len([]rune(a.Title)) < 10 {
		return "title too short", true
	}
	if !hasMeaningfulWord(a.Title) {
		return "no meaningful word in title", true
	}
	return "", false
}

// hasMeaningfulWord reports whether the title contains at least one
// alphabetic word of length > 2 — the minimum-quality test's "at least one
// meaningful word" clause.
func hasMeaningfulWord(title string) bool {
	for _, word := range strings.Fields(title) {
		letters := 0
		for _, r := range word {
			if unicode.IsLetter(r) {
				letters++
			}
		}
		if letters > 2 {
			return true
		}
	}
	return false
}

// noHoldingIssuerMinLen is the spec's minimum label length ("issuer labels,
// length > 3") considered a meaningful mention rather than noise.
const noHoldingIssuerMinLen = 3

// titleTriageResult is the shape Stage 1's LLM call is asked to return, one
// entry per article keyed by URL.
type titleTriageResult struct {
	URL             string   `json:"url"`
	TitleRelevance  int      `json:"title_relevance"`
	EventType       string   `json:"title_event_type"`
	ReasonShort     string   `json:"title_reason_short"`
	TickerMatches   []string `json:"title_ticker_matches"`
	SectorMatches   []string `json:"title_sector_matches"`
	ShouldFetchFull bool     `json:"should_fetch_full"`
}

// Stage1 is the Title Triage stage (component C6): a cheap, title-only LLM
// pass that assigns a 0-3 relevance score and classifies the likely event
// type, without ever fetching full article content.
type Stage1 struct {
	LLM        llmclient.Client
	Thresholds config.Thresholds
	Holdings   []core.Holding
}

func (s *Stage1) Name() string                    { return "stage1_title_triage" }
func (s *Stage1) InputStatuses() []core.Status     { return []core.Status{core.StatusPending} }
func (s *Stage1) OrderBy() string                  { return "published_at DESC" }
func (s *Stage1) BatchSize() int                   { return s.Thresholds.Stage1BatchSize }
func (s *Stage1) CheckPrerequisite(a *core.Article) error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("stage1: %w: empty title", pipelineerr.ErrPrerequisiteMissing)
	}
	return nil
}

func (s *Stage1) ProcessBatch(ctx context.Context, batch []*core.Article) (map[string]map[string]any, map[string]error) {
	updates := make(map[string]map[string]any, len(batch))
	errs := make(map[string]error)

	// Step 3: hard filters. Matches never reach the LLM.
	var survivors []*core.Article
	for _, a := range batch {
		if reason, discard := checkHardFilters(a); discard {
			updates[a.URL] = map[string]any{
				"status":               string(core.StatusDiscarded),
				"title_relevance":      0,
				"title_reason_short":   reason,
				"should_fetch_full":    false,
				"title_event_type":     string(core.EventOther),
				"title_ticker_matches": core.StringSet{},
				"title_sector_matches": core.StringSet{},
				"no_holding_mention":   false,
			}
			continue
		}
		survivors = append(survivors, a)
	}

	// Step 4: holdings-mention flag, non-destructive.
	for _, a := range survivors {
		a.NoHoldingMention = noHoldingMention(a, s.Holdings)
	}

	if len(survivors) == 0 {
		return updates, errs
	}
	batch = survivors

	n := len(batch)
	timeout := batchTimeout(n)
	maxTokens := int32(400 * n)
	if maxTokens > 6000 {
		maxTokens = 6000
	}

	results, err := s.callLLM(ctx, batch, timeout, maxTokens)
	if err != nil {
		logger.Warn("stage1 batch LLM call failed, falling back to per-article calls", map[string]any{"error": err.Error(), "batch_size": n})
		results = s.fallbackIndividual(ctx, batch)
	}

	byURL := make(map[string]titleTriageResult, len(results))
	for _, r := range results {
		byURL[r.URL] = r
	}

	for _, a := range batch {
		r, ok := byURL[a.URL]
		if !ok {
			errs[a.URL] = fmt.Errorf("stage1: no triage result returned for %s", a.URL)
			continue
		}
		applyTitleTriage(a, r)

		fields := map[string]any{
			"title_relevance":      a.TitleRelevance,
			"title_event_type":     string(a.TitleEventType),
			"title_reason_short":   a.TitleReasonShort,
			"title_ticker_matches": a.TitleTickerMatches,
			"title_sector_matches": a.TitleSectorMatches,
			"should_fetch_full":    a.ShouldFetchFull,
			"no_holding_mention":   a.NoHoldingMention,
		}

		if a.TitleRelevance == 0 {
			fields["status"] = string(core.StatusDiscarded)
			updates[a.URL] = fields
			continue
		}

		a.LikelyImpact = ComputeLikelyImpact(a)
		fields["likely_impact"] = a.LikelyImpact

		if !CostGate(a, s.Thresholds) {
			fields["status"] = string(core.StatusLowPriority)
		} else {
			fields["status"] = string(core.StatusTitleFiltered)
		}
		updates[a.URL] = fields
	}

	return updates, errs
}

func (s *Stage1) callLLM(ctx context.Context, batch []*core.Article, timeout time.Duration, maxTokens int32) ([]titleTriageResult, error) {
	system := "You are a financial news triage assistant. For each article title, assess relevance to an investor on a 0-3 scale (0=irrelevant, 3=highly relevant), classify the event type, and list any ticker or sector matches. Respond with a JSON array only."
	var b strings.Builder
	for _, a := range batch {
		fmt.Fprintf(&b, "- url: %s\n  title: %s\n", a.URL, a.Title)
	}
	user := fmt.Sprintf("Articles:\n%s\n\nRespond as a JSON array of objects with keys: url, title_relevance, title_event_type, title_reason_short, title_ticker_matches, title_sector_matches, should_fetch_full.", b.String())

	raw, err := s.LLM.Complete(ctx, system, user, nil, llmclient.Limits{MaxTokens: maxTokens, Temperature: 0.2, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	var results []titleTriageResult
	if err := json.Unmarshal([]byte(llmclient.ExtractJSON(raw)), &results); err != nil {
		return nil, fmt.Errorf("parsing stage1 LLM response: %w", err)
	}
	return results, nil
}

// fallbackIndividual is used when the batched call fails to parse or times
// out; each article gets its own call so a single malformed response does
// not sink the whole batch.
func (s *Stage1) fallbackIndividual(ctx context.Context, batch []*core.Article) []titleTriageResult {
	var out []titleTriageResult
	for _, a := range batch {
		rs, err := s.callLLM(ctx, []*core.Article{a}, 45*time.Second, 400)
		if err != nil || len(rs) == 0 {
			logger.Error("stage1 individual fallback failed", err, map[string]any{"url": a.URL})
			out = append(out, titleTriageResult{URL: a.URL, TitleRelevance: 0, EventType: string(core.EventOther)})
			continue
		}
		out = append(out, rs[0])
	}
	return out
}

func applyTitleTriage(a *core.Article, r titleTriageResult) {
	a.TitleRelevance = clampInt(r.TitleRelevance, 0, 3)
	a.TitleRelevanceSet = true

	et := core.EventType(r.EventType)
	if !core.ValidEventTypes[et] {
		et = core.EventOther
	}
	a.TitleEventType = et
	a.TitleReasonShort = truncateRunes(r.ReasonShort, 200)
	a.TitleTickerMatches = normalizeTickerSet(r.TickerMatches)
	a.TitleSectorMatches = core.StringSet(r.SectorMatches)
	a.ShouldFetchFull = r.ShouldFetchFull
}

func normalizeTickerSet(tickers []string) core.StringSet {
	out := make(core.StringSet, 0, len(tickers))
	seen := map[string]bool{}
	for _, t := range tickers {
		nt := core.NormalizeTicker(t)
		if nt == "" || seen[nt] {
			continue
		}
		seen[nt] = true
		out = append(out, nt)
	}
	return out
}

// noHoldingMention implements step 4 of the title-triage algorithm: the flag
// is set only when searched_by names one of the user's tracked tickers, yet
// neither the title nor the description mentions any known ticker or issuer
// label. It is purely advisory: it is stored on the article as
// no_holding_mention and never discards anything here; no later stage reads
// it.
func noHoldingMention(a *core.Article, holdings []core.Holding) bool {
	if !searchedByNamesHolding(a.SearchedBy, holdings) {
		return false
	}
	text := strings.ToLower(a.Title + " " + a.Description)
	for _, h := range holdings {
		if h.Ticker != "" && strings.Contains(text, strings.ToLower(h.Ticker)) {
			return false
		}
		if len(h.Label) > noHoldingIssuerMinLen && strings.Contains(text, strings.ToLower(h.Label)) {
			return false
		}
	}
	return true
}

func searchedByNamesHolding(searchedBy string, holdings []core.Holding) bool {
	if searchedBy == "" {
		return false
	}
	normalized := core.NormalizeTicker(searchedBy)
	for _, h := range holdings {
		if core.NormalizeTicker(h.Ticker) == normalized {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
