package pipeline

import (
	"context"

	"github.com/peterbitar/newsfeed-pipeline/internal/llmclient"
)

// fakeLLM is a scripted llmclient.Client for stage tests: each call to
// Complete returns the next response in sequence, "[]" once the script is
// exhausted, or errNext when it is set.
type fakeLLM struct {
	responses []string
	calls     int
	errNext   error
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string, schema *llmclient.Schema, limits llmclient.Limits) (string, error) {
	if f.errNext != nil {
		return "", f.errNext
	}
	if f.calls >= len(f.responses) {
		return "[]", nil
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}
