// Package core defines the shared domain types for the news pipeline: the
// Article row, which doubles as the pipeline's state machine, and the
// Holding entity used for personalization.
package core

import "time"

// Status is the article's position in the staged state machine. Transitions
// are monotonic except for the terminal sinks {discarded, duplicate,
// low_priority}, reachable from any non-terminal state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusTitleFiltered  Status = "title_filtered"
	StatusDiscarded      Status = "discarded"
	StatusLowPriority    Status = "low_priority"
	StatusContentFetched Status = "content_fetched"
	StatusDuplicate      Status = "duplicate"
	StatusLLMProcessed   Status = "llm_processed"
	StatusPersonalized   Status = "personalized"
	StatusRanked         Status = "ranked"
)

// Bucket is the coarse origin tag that selects cost-gate thresholds.
type Bucket string

const (
	BucketHoldings Bucket = "HOLDINGS"
	BucketMacro    Bucket = "MACRO"
)

// Profile is the user preference knob that reweights Stage 4's formula.
type Profile string

const (
	ProfileFocus    Profile = "focus"
	ProfileBalanced Profile = "balanced"
	ProfileBroad    Profile = "broad"
)

// ValidProfiles lists the closed set of profile values; an unrecognized
// configured value falls back to ProfileBalanced.
var ValidProfiles = map[Profile]bool{
	ProfileFocus: true, ProfileBalanced: true, ProfileBroad: true,
}

// EventType is the closed classification of what kind of event an article
// describes. Used at both Stage 1 (title_event_type) and Stage 3 (event_type).
type EventType string

const (
	EventEarnings    EventType = "earnings"
	EventMergerAcq   EventType = "m&a"
	EventGuidance    EventType = "guidance"
	EventMacro       EventType = "macro"
	EventRegulation  EventType = "regulation"
	EventProductTech EventType = "product_tech"
	EventIndustry    EventType = "industry_trend"
	EventOther       EventType = "other"
)

// ValidEventTypes lists the closed set for Stage 1/Stage 3 validation.
var ValidEventTypes = map[EventType]bool{
	EventEarnings: true, EventMergerAcq: true, EventGuidance: true,
	EventMacro: true, EventRegulation: true, EventProductTech: true,
	EventIndustry: true, EventOther: true,
}

// SentimentLabel is the closed sentiment classification.
type SentimentLabel string

const (
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentPositive SentimentLabel = "positive"
)

var ValidSentimentLabels = map[SentimentLabel]bool{
	SentimentNegative: true, SentimentNeutral: true, SentimentPositive: true,
}

// Verdict is the closed interpretation-field enumeration enforced by the
// Guardrail.
type Verdict string

const (
	VerdictIgnore Verdict = "ignore"
	VerdictAware  Verdict = "aware"
	VerdictAct    Verdict = "act"
)

var ValidVerdicts = map[Verdict]bool{VerdictIgnore: true, VerdictAware: true, VerdictAct: true}

// OpportunityType is the closed enumeration for opportunity_type.
type OpportunityType string

const (
	OpportunityNone       OpportunityType = "none"
	OpportunityBehavioral OpportunityType = "behavioral"
	OpportunityAwareness  OpportunityType = "awareness"
	OpportunityAllocation OpportunityType = "allocation"
)

var ValidOpportunityTypes = map[OpportunityType]bool{
	OpportunityNone: true, OpportunityBehavioral: true,
	OpportunityAwareness: true, OpportunityAllocation: true,
}

// ValidActions is the closed action vocabulary; anything else is coerced to
// DefaultAction by the Guardrail.
var ValidActions = map[string]bool{
	DefaultAction:         true,
	"Monitor next earnings call": true,
	"Review position sizing":     true,
	"Set a price alert":          true,
	"Read the filing":            true,
}

// DefaultAction is the guardrail's safe-fallback action string.
const DefaultAction = "Do nothing"

// StringSet is a small ordered collection of strings, persisted as a JSON
// array. Membership checks are exact-match; callers normalize (e.g.
// upper-case tickers) before inserting.
type StringSet []string

// Contains reports whether s is present in the set.
func (ss StringSet) Contains(s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Intersect returns the elements of ss also present in other, de-duplicated,
// preserving ss's order.
func (ss StringSet) Intersect(other StringSet) StringSet {
	var out StringSet
	seen := make(map[string]bool, len(ss))
	for _, v := range ss {
		if seen[v] {
			continue
		}
		if other.Contains(v) {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}

// Article is the central entity: a single news story uniquely identified by
// its origin URL. The row acts as the pipeline's state machine — stages
// attach derived fields and advance Status.
type Article struct {
	// Identity
	URL              string `json:"url"`
	NormalizedURL    string `json:"normalized_url"`
	CanonicalURL     string `json:"canonical_url"`
	NormalizedDomain string `json:"normalized_domain"`
	TitleHashBucket  string `json:"title_hash_bucket"`
	IsDuplicateOfURL string `json:"is_duplicate_of_article_id"`

	// Origin
	SourceName  string    `json:"source_name"`
	SourceID    string    `json:"source_id"`
	Author      string    `json:"author"`
	PublishedAt time.Time `json:"published_at"`
	FeedSource  string    `json:"feed_source"`
	SearchedBy  string    `json:"searched_by"`

	// Original payload
	Title       string `json:"title"`
	Description string `json:"description"`
	URLToImage  string `json:"url_to_image"`
	Content     string `json:"content"`

	// Stage 1 outputs
	TitleRelevance     int       `json:"title_relevance"`
	TitleRelevanceSet  bool      `json:"-"` // whether Stage 1 has run for this row
	TitleEventType     EventType `json:"title_event_type"`
	TitleReasonShort   string    `json:"title_reason_short"`
	TitleTickerMatches StringSet `json:"title_ticker_matches"`
	TitleSectorMatches StringSet `json:"title_sector_matches"`
	ShouldFetchFull    bool      `json:"should_fetch_full"`
	NoHoldingMention   bool      `json:"no_holding_mention"` // non-destructive flag; see Design Note on the discard-drift bug

	// Stage 1.5 output
	LikelyImpact    int  `json:"likely_impact"`
	LikelyImpactSet bool `json:"-"`

	// Stage 2 outputs
	CleanText          string    `json:"clean_text"`
	ContentLength      int       `json:"content_length"`
	ContentFingerprint string    `json:"content_fingerprint"`
	ContentFetchedAt   time.Time `json:"content_fetched_at"`
	FetchAttempts      int       `json:"fetch_attempts"`
	FinalURL           string    `json:"final_url"`

	// Stage 3 outputs (global, user-agnostic)
	EventType        EventType      `json:"event_type"`
	ImpactScore      int            `json:"impact_score"`
	ImpactScoreSet   bool           `json:"-"`
	Sentiment        float64        `json:"sentiment"`
	SentimentLabel   SentimentLabel `json:"sentiment_label"`
	RiskScore        int            `json:"risk_score"`
	OpportunityScore int            `json:"opportunity_score"`
	VolatilityScore  int            `json:"volatility_score"`
	MatchedTickers   StringSet      `json:"matched_tickers"`
	MatchedSectors   StringSet      `json:"matched_sectors"`

	// Stage 4 outputs (per-profile)
	HoldingRelevanceScore int     `json:"holding_relevance_score"`
	ProfileAdjustedScore  int     `json:"profile_adjusted_score"`
	ProfileAdjustedSet    bool    `json:"-"`
	ProfileTypeCached     Profile `json:"profile_type_cached"`

	// Stage 5 outputs
	ClusterID          string    `json:"cluster_id"`
	IsPrimaryInCluster bool      `json:"is_primary_in_cluster"`
	FinalRankScore     int       `json:"final_rank_score"`
	FinalRankScoreSet  bool      `json:"-"`
	ImportanceScore    int       `json:"importance_score"`
	ShownToUser        bool      `json:"shown_to_user"`
	ShownTimestamp     time.Time `json:"shown_timestamp"`

	// Interpretation fields (owned by Guardrail / Stage 5)
	Verdict         Verdict         `json:"verdict"`
	WhyJSON         StringSet       `json:"why_json"`
	Action          string          `json:"action"`
	Horizon         string          `json:"horizon"`
	OpportunityType OpportunityType `json:"opportunity_type"`
	OpportunityNote string          `json:"opportunity_note"`
	Confidence      int             `json:"confidence"`

	// Lifecycle
	Status                Status    `json:"status"`
	LastError             string    `json:"last_error"`
	LLMAttempts            int      `json:"llm_attempts"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
	ProcessingStartedAt    time.Time `json:"processing_started_at"`
	ProcessingCompletedAt  time.Time `json:"processing_completed_at"`
}

// Bucket returns the article's cost-gate bucket, derived from SearchedBy.
func (a *Article) Bucket() Bucket {
	if equalFold(a.SearchedBy, "MACRO") {
		return BucketMacro
	}
	return BucketHoldings
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'a' <= ca && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if 'a' <= cb && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Holding is one of the user's tracked ticker symbols. A Holding belongs to
// a User — here, the single default user, id "1".
type Holding struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Ticker string `json:"ticker"`
	Label  string `json:"label"`
	Notes  string `json:"notes"`
}

// NormalizeTicker applies the canonical ticker normalization rules: upper
// case, trim, ".A"/".B" -> "-A"/"-B", strip slashes and spaces.
func NormalizeTicker(t string) string {
	out := make([]rune, 0, len(t))
	for _, r := range t {
		switch {
		case r == ' ' || r == '/':
			continue
		case r == '.':
			out = append(out, '-')
		case 'a' <= r && r <= 'z':
			out = append(out, r-('a'-'A'))
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
