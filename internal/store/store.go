// Package store implements the Article Store (component C5): a SQLite-backed
// persistent state store keyed by article URL, with upsert-by-URL insert,
// partial field updates, prepared by-URL/by-status queries, and the
// candidate scan used by the deduplicator. Grounded on the teacher's
// migration and prepared-statement idioms (see DESIGN.md).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/peterbitar/newsfeed-pipeline/internal/core"
)

// Store is a SQLite-backed Article Store.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the SQLite database at path and runs
// migrations.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer-per-article, multi-reader model; sqlite serializes writers anyway

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			url TEXT PRIMARY KEY,
			normalized_url TEXT,
			canonical_url TEXT,
			normalized_domain TEXT,
			title_hash_bucket TEXT,
			is_duplicate_of_article_id TEXT,

			source_name TEXT,
			source_id TEXT,
			author TEXT,
			published_at TEXT,
			feed_source TEXT,
			searched_by TEXT,

			title TEXT,
			description TEXT,
			url_to_image TEXT,
			content TEXT,

			title_relevance INTEGER,
			title_event_type TEXT,
			title_reason_short TEXT,
			title_ticker_matches TEXT,
			title_sector_matches TEXT,
			should_fetch_full INTEGER,
			no_holding_mention INTEGER,

			likely_impact INTEGER,

			clean_text TEXT,
			content_length INTEGER,
			content_fingerprint TEXT,
			content_fetched_at TEXT,
			fetch_attempts INTEGER NOT NULL DEFAULT 0,
			final_url TEXT,

			event_type TEXT,
			impact_score INTEGER,
			sentiment REAL,
			sentiment_label TEXT,
			risk_score INTEGER,
			opportunity_score INTEGER,
			volatility_score INTEGER,
			matched_tickers TEXT,
			matched_sectors TEXT,

			holding_relevance_score INTEGER,
			profile_adjusted_score INTEGER,
			profile_type_cached TEXT,

			cluster_id TEXT,
			is_primary_in_cluster INTEGER,
			final_rank_score INTEGER,
			importance_score INTEGER,
			shown_to_user INTEGER,
			shown_timestamp TEXT,

			verdict TEXT,
			why_json TEXT,
			action TEXT,
			horizon TEXT,
			opportunity_type TEXT,
			opportunity_note TEXT,
			confidence INTEGER,

			status TEXT NOT NULL DEFAULT 'pending',
			last_error TEXT,
			llm_attempts INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			processing_started_at TEXT,
			processing_completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_dup_of ON articles(is_duplicate_of_article_id)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_canonical ON articles(canonical_url)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_domain_published ON articles(normalized_domain, published_at)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_title_bucket ON articles(title_hash_bucket)`,
		`CREATE TABLE IF NOT EXISTS holdings (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			ticker TEXT NOT NULL,
			label TEXT,
			notes TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_holdings_user ON holdings(user_id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	return nil
}

// InsertPending inserts a brand-new article row with status=pending. A
// duplicate URL insert is a no-op (conflict on URL ignored), matching the
// Article Store contract.
func (s *Store) InsertPending(ctx context.Context, a *core.Article) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (
			url, source_name, source_id, author, published_at, feed_source, searched_by,
			title, description, url_to_image, content,
			fetch_attempts, status, llm_attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 0, ?, ?)
		ON CONFLICT(url) DO NOTHING`,
		a.URL, a.SourceName, a.SourceID, a.Author, formatTime(a.PublishedAt), a.FeedSource, a.SearchedBy,
		a.Title, a.Description, a.URLToImage, a.Content,
		string(core.StatusPending), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting pending article %s: %w", a.URL, err)
	}
	return nil
}

// GetByURL performs the O(1) by-URL lookup of the current row. Returns
// (nil, nil) if absent.
func (s *Store) GetByURL(ctx context.Context, url string) (*core.Article, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM articles WHERE url = ?`, url)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting article %s: %w", url, err)
	}
	return a, nil
}

// GetByURLs performs a single batched by-URL lookup over a set of URLs, to
// check already-processed state in one round trip.
func (s *Store) GetByURLs(ctx context.Context, urls []string) (map[string]*core.Article, error) {
	out := make(map[string]*core.Article, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(urls))
	args := make([]any, len(urls))
	for i, u := range urls {
		placeholders[i] = "?"
		args[i] = u
	}
	query := selectColumns + ` FROM articles WHERE url IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch getting articles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning batch article row: %w", err)
		}
		out[a.URL] = a
	}
	return out, rows.Err()
}

// ScanByStatus returns rows whose status is in statuses, ordered by orderBy
// (a raw, caller-trusted ORDER BY clause such as "published_at DESC"),
// limited to limit rows (0 = unlimited).
func (s *Store) ScanByStatus(ctx context.Context, statuses []core.Status, orderBy string, limit int) ([]*core.Article, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	query := selectColumns + ` FROM articles WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	if orderBy != "" {
		query += ` ORDER BY ` + orderBy
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scanning by status: %w", err)
	}
	defer rows.Close()
	var out []*core.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning status-scan row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DedupCandidates implements the candidate selection query from §4.9: same
// canonical_url, OR same normalized_domain within windowHours of publishedAt,
// OR same title_hash_bucket — excluding the article itself and rows whose
// status disqualifies them.
func (s *Store) DedupCandidates(ctx context.Context, a *core.Article, windowHours, limit int) ([]*core.Article, error) {
	cutoff := a.PublishedAt.Add(-time.Duration(windowHours) * time.Hour)
	query := selectColumns + ` FROM articles
		WHERE url != ?
		AND status NOT IN ('duplicate', 'discarded')
		AND status IN ('content_fetched', 'llm_processed', 'personalized', 'ranked')
		AND (
			(canonical_url IS NOT NULL AND canonical_url != '' AND canonical_url = ?)
			OR (normalized_domain = ? AND published_at >= ?)
			OR (title_hash_bucket IS NOT NULL AND title_hash_bucket != '' AND title_hash_bucket = ?)
		)
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, a.URL, a.CanonicalURL, a.NormalizedDomain, formatTime(cutoff), a.TitleHashBucket, limit)
	if err != nil {
		return nil, fmt.Errorf("dedup candidate scan: %w", err)
	}
	defer rows.Close()
	var out []*core.Article
	for rows.Next() {
		c, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning dedup candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateFields performs a partial update by URL of the given fields plus
// updated_at=now, in a single statement.
func (s *Store) UpdateFields(ctx context.Context, url string, fields map[string]any) error {
	return s.updateFieldsTx(ctx, s.db, url, fields)
}

// UpdateFieldsBatch performs partial updates for multiple URLs in one atomic
// transaction, as required for Stage 1/2/3 bulk writes.
func (s *Store) UpdateFieldsBatch(ctx context.Context, updates map[string]map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch update transaction: %w", err)
	}
	for url, fields := range updates {
		if err := s.updateFieldsTx(ctx, tx, url, fields); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) updateFieldsTx(ctx context.Context, ex execer, url string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for col, val := range fields {
		sets = append(sets, col+" = ?")
		args = append(args, encodeValue(val))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now().UTC()))
	args = append(args, url)

	query := "UPDATE articles SET " + strings.Join(sets, ", ") + " WHERE url = ?"
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating article %s fields %v: %w", url, fieldNames(fields), err)
	}
	return nil
}

func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	return names
}

func encodeValue(v any) any {
	switch val := v.(type) {
	case core.StringSet:
		b, _ := json.Marshal([]string(val))
		return string(b)
	case []string:
		b, _ := json.Marshal(val)
		return string(b)
	case bool:
		if val {
			return 1
		}
		return 0
	case time.Time:
		return formatTime(val)
	default:
		return v
	}
}

// HealthCounts returns the counts of rows by gross status category, used by
// the admin health operation (§6).
func (s *Store) HealthCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM articles GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting health: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

// AddHolding inserts or updates a holding row.
func (s *Store) AddHolding(ctx context.Context, h core.Holding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holdings (id, user_id, ticker, label, notes) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET ticker=excluded.ticker, label=excluded.label, notes=excluded.notes`,
		h.ID, h.UserID, h.Ticker, h.Label, h.Notes)
	if err != nil {
		return fmt.Errorf("adding holding %s: %w", h.Ticker, err)
	}
	return nil
}

// ListHoldings returns all holdings for a user.
func (s *Store) ListHoldings(ctx context.Context, userID string) ([]core.Holding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, ticker, label, notes FROM holdings WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing holdings: %w", err)
	}
	defer rows.Close()
	var out []core.Holding
	for rows.Next() {
		var h core.Holding
		if err := rows.Scan(&h.ID, &h.UserID, &h.Ticker, &h.Label, &h.Notes); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func decodeStringSet(s sql.NullString) core.StringSet {
	if !s.Valid || s.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil
	}
	return core.StringSet(out)
}

// selectColumns lists every column in column order, shared by all read
// queries so scanArticle can rely on a fixed order.
const selectColumns = `SELECT
	url, normalized_url, canonical_url, normalized_domain, title_hash_bucket, is_duplicate_of_article_id,
	source_name, source_id, author, published_at, feed_source, searched_by,
	title, description, url_to_image, content,
	title_relevance, title_event_type, title_reason_short, title_ticker_matches, title_sector_matches, should_fetch_full, no_holding_mention,
	likely_impact,
	clean_text, content_length, content_fingerprint, content_fetched_at, fetch_attempts, final_url,
	event_type, impact_score, sentiment, sentiment_label, risk_score, opportunity_score, volatility_score, matched_tickers, matched_sectors,
	holding_relevance_score, profile_adjusted_score, profile_type_cached,
	cluster_id, is_primary_in_cluster, final_rank_score, importance_score, shown_to_user, shown_timestamp,
	verdict, why_json, action, horizon, opportunity_type, opportunity_note, confidence,
	status, last_error, llm_attempts, created_at, updated_at, processing_started_at, processing_completed_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (*core.Article, error) {
	var (
		url, normalizedURL, canonicalURL, normalizedDomain, titleHashBucket, dupOf sql.NullString
		sourceName, sourceID, author, publishedAt, feedSource, searchedBy          sql.NullString
		title, description, urlToImage, content                                   sql.NullString
		titleRelevance                                                            sql.NullInt64
		titleEventType, titleReasonShort, titleTickerMatches, titleSectorMatches   sql.NullString
		shouldFetchFull, noHoldingMention                                         sql.NullBool
		likelyImpact                                                              sql.NullInt64
		cleanText                                                                 sql.NullString
		contentLength                                                             sql.NullInt64
		contentFingerprint, contentFetchedAt                                      sql.NullString
		fetchAttempts                                                             sql.NullInt64
		finalURL                                                                  sql.NullString
		eventType                                                                 sql.NullString
		impactScore                                                               sql.NullInt64
		sentiment                                                                 sql.NullFloat64
		sentimentLabel                                                            sql.NullString
		riskScore, opportunityScore, volatilityScore                              sql.NullInt64
		matchedTickers, matchedSectors                                            sql.NullString
		holdingRelevanceScore, profileAdjustedScore                               sql.NullInt64
		profileTypeCached                                                         sql.NullString
		clusterID                                                                 sql.NullString
		isPrimary                                                                 sql.NullBool
		finalRankScore, importanceScore                                           sql.NullInt64
		shownToUser                                                               sql.NullBool
		shownTimestamp                                                            sql.NullString
		verdict, whyJSON, action, horizon, opportunityType, opportunityNote       sql.NullString
		confidence                                                                sql.NullInt64
		status, lastError                                                        sql.NullString
		llmAttempts                                                               sql.NullInt64
		createdAt, updatedAt, processingStartedAt, processingCompletedAt          sql.NullString
	)

	err := row.Scan(
		&url, &normalizedURL, &canonicalURL, &normalizedDomain, &titleHashBucket, &dupOf,
		&sourceName, &sourceID, &author, &publishedAt, &feedSource, &searchedBy,
		&title, &description, &urlToImage, &content,
		&titleRelevance, &titleEventType, &titleReasonShort, &titleTickerMatches, &titleSectorMatches, &shouldFetchFull, &noHoldingMention,
		&likelyImpact,
		&cleanText, &contentLength, &contentFingerprint, &contentFetchedAt, &fetchAttempts, &finalURL,
		&eventType, &impactScore, &sentiment, &sentimentLabel, &riskScore, &opportunityScore, &volatilityScore, &matchedTickers, &matchedSectors,
		&holdingRelevanceScore, &profileAdjustedScore, &profileTypeCached,
		&clusterID, &isPrimary, &finalRankScore, &importanceScore, &shownToUser, &shownTimestamp,
		&verdict, &whyJSON, &action, &horizon, &opportunityType, &opportunityNote, &confidence,
		&status, &lastError, &llmAttempts, &createdAt, &updatedAt, &processingStartedAt, &processingCompletedAt,
	)
	if err != nil {
		return nil, err
	}

	a := &core.Article{
		URL: url.String, NormalizedURL: normalizedURL.String, CanonicalURL: canonicalURL.String,
		NormalizedDomain: normalizedDomain.String, TitleHashBucket: titleHashBucket.String, IsDuplicateOfURL: dupOf.String,
		SourceName: sourceName.String, SourceID: sourceID.String, Author: author.String,
		PublishedAt: parseTime(publishedAt.String), FeedSource: feedSource.String, SearchedBy: searchedBy.String,
		Title: title.String, Description: description.String, URLToImage: urlToImage.String, Content: content.String,
		TitleRelevance: int(titleRelevance.Int64), TitleRelevanceSet: titleRelevance.Valid,
		TitleEventType: core.EventType(titleEventType.String), TitleReasonShort: titleReasonShort.String,
		TitleTickerMatches: decodeStringSet(titleTickerMatches), TitleSectorMatches: decodeStringSet(titleSectorMatches),
		ShouldFetchFull: shouldFetchFull.Bool, NoHoldingMention: noHoldingMention.Bool,
		LikelyImpact: int(likelyImpact.Int64), LikelyImpactSet: likelyImpact.Valid,
		CleanText: cleanText.String, ContentLength: int(contentLength.Int64),
		ContentFingerprint: contentFingerprint.String, ContentFetchedAt: parseTime(contentFetchedAt.String),
		FetchAttempts: int(fetchAttempts.Int64), FinalURL: finalURL.String,
		EventType: core.EventType(eventType.String), ImpactScore: int(impactScore.Int64), ImpactScoreSet: impactScore.Valid,
		Sentiment: sentiment.Float64, SentimentLabel: core.SentimentLabel(sentimentLabel.String),
		RiskScore: int(riskScore.Int64), OpportunityScore: int(opportunityScore.Int64), VolatilityScore: int(volatilityScore.Int64),
		MatchedTickers: decodeStringSet(matchedTickers), MatchedSectors: decodeStringSet(matchedSectors),
		HoldingRelevanceScore: int(holdingRelevanceScore.Int64),
		ProfileAdjustedScore:  int(profileAdjustedScore.Int64), ProfileAdjustedSet: profileAdjustedScore.Valid,
		ProfileTypeCached: core.Profile(profileTypeCached.String),
		ClusterID:         clusterID.String, IsPrimaryInCluster: isPrimary.Bool,
		FinalRankScore: int(finalRankScore.Int64), FinalRankScoreSet: finalRankScore.Valid,
		ImportanceScore: int(importanceScore.Int64), ShownToUser: shownToUser.Bool, ShownTimestamp: parseTime(shownTimestamp.String),
		Verdict: core.Verdict(verdict.String), WhyJSON: decodeStringSet(whyJSON), Action: action.String,
		Horizon: horizon.String, OpportunityType: core.OpportunityType(opportunityType.String), OpportunityNote: opportunityNote.String,
		Confidence: int(confidence.Int64),
		Status:     core.Status(status.String), LastError: lastError.String, LLMAttempts: int(llmAttempts.Int64),
		CreatedAt: parseTime(createdAt.String), UpdatedAt: parseTime(updatedAt.String),
		ProcessingStartedAt: parseTime(processingStartedAt.String), ProcessingCompletedAt: parseTime(processingCompletedAt.String),
	}
	return a, nil
}
