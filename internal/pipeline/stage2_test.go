package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/peterbitar/newsfeed-pipeline/internal/config"
	"github.com/peterbitar/newsfeed-pipeline/internal/core"
)

func TestStage2ProcessBatchFetchesAndAcceptsGoodContent(t *testing.T) {
	body := "<html><head><link rel=\"canonical\" href=\"https://example.com/canonical\"></head><body><article>" +
		strings.Repeat("<p>This is a substantive paragraph about quarterly earnings and guidance.</p>", 10) +
		"</article></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	th := config.DefaultThresholds()
	th.ContentMinLength = 50
	s := &Stage2{Thresholds: th, Concurrency: 2}
	a := &core.Article{URL: srv.URL, Title: "Example earnings report", TitleRelevanceSet: true}

	updates, errs := s.ProcessBatch(context.Background(), []*core.Article{a})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	fields, ok := updates[a.URL]
	if !ok {
		t.Fatal("expected an update for the fetched article")
	}
	if fields["status"] != string(core.StatusContentFetched) {
		t.Errorf("status = %v, want content_fetched", fields["status"])
	}
	if fields["canonical_url"] == "" {
		t.Error("expected a non-empty canonical_url")
	}
}

func TestStage2ProcessBatchRejectsThinContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>too short</p></body></html>"))
	}))
	defer srv.Close()

	th := config.DefaultThresholds()
	s := &Stage2{Thresholds: th, Concurrency: 2}
	a := &core.Article{URL: srv.URL, Title: "t", TitleRelevanceSet: true}

	_, errs := s.ProcessBatch(context.Background(), []*core.Article{a})
	if len(errs) != 1 {
		t.Fatalf("expected one error for thin content, got %d", len(errs))
	}
}

func TestStage2CheckPrerequisiteRejectsExhaustedFetchAttempts(t *testing.T) {
	th := config.DefaultThresholds()
	s := &Stage2{Thresholds: th}
	a := &core.Article{TitleRelevanceSet: true, FetchAttempts: th.MaxFetchAttempts}
	if err := s.CheckPrerequisite(a); err == nil {
		t.Error("expected an error once fetch attempts are exhausted")
	}
}
