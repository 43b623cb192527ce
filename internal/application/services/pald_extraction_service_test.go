package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/gesa-research/pald-backend/internal/adapters/cache"
	"github.com/gesa-research/pald-backend/internal/domain/providers"
)

type fakeLLM struct {
	calls    atomic.Int64
	response string
	err      error
}

func (f *fakeLLM) Generate(_ context.Context, _ string, _ providers.GenerationParams) (string, error) {
	f.calls.Add(1)
	return f.response, f.err
}

func newExtractionService(t *testing.T, llm providers.LLMProvider) *PALDExtractionService {
	t.Helper()
	extractionCache, err := cache.NewLRUExtractionCache(16)
	require.NoError(t, err)
	return NewPALDExtractionService(llm, NewPALDBoundaryService(), extractionCache, nil)
}

func TestExtract_SuccessPath(t *testing.T) {
	llm := &fakeLLM{response: "```json\n{\"middle_design_level\": {\"age\": \"young\"}}\n```"}
	svc := newExtractionService(t, llm)

	result := svc.Extract(context.Background(), "a young tutor avatar")

	assert.True(t, result.Success)
	assert.Equal(t, 0.8, result.Confidence)
	assert.Equal(t, "young", result.PALDData["middle_design_level"].(map[string]any)["age"])
	assert.Empty(t, result.ErrorMessage)
}

func TestExtract_CachesByContent(t *testing.T) {
	llm := &fakeLLM{response: `{"detailed_level": {"hair": "green"}}`}
	svc := newExtractionService(t, llm)

	first := svc.Extract(context.Background(), "green-haired agent")
	second := svc.Extract(context.Background(), "  green-haired agent  ")

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), llm.calls.Load(), "cached repeat must not reach the LLM")
}

func TestExtract_FailedExtractionIsCachedToo(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection reset")}
	svc := newExtractionService(t, llm)

	first := svc.Extract(context.Background(), "some text")
	second := svc.Extract(context.Background(), "some text")

	assert.False(t, first.Success)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), llm.calls.Load())
}

func TestExtract_LLMErrorNeverPropagates(t *testing.T) {
	llm := &fakeLLM{err: context.DeadlineExceeded}
	svc := newExtractionService(t, llm)

	result := svc.Extract(context.Background(), "anything")

	assert.False(t, result.Success)
	assert.Empty(t, result.PALDData)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Contains(t, result.ErrorMessage, "llm generation failed")
}

func TestExtract_BoundaryRejectionReported(t *testing.T) {
	llm := &fakeLLM{response: `{"favorite_food": "pizza"}`}
	svc := newExtractionService(t, llm)

	result := svc.Extract(context.Background(), "irrelevant chatter")

	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "favorite_food")
}

func TestParseModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "plain object",
			raw:  `{"a": "b"}`,
			want: map[string]any{"a": "b"},
		},
		{
			name: "fenced json block",
			raw:  "```json\n{\"a\": \"b\"}\n```",
			want: map[string]any{"a": "b"},
		},
		{
			name: "bare fence",
			raw:  "```\n{\"a\": \"b\"}\n```",
			want: map[string]any{"a": "b"},
		},
		{
			name: "prose around object",
			raw:  "Here is the result: {\"a\": \"b\"} hope that helps",
			want: map[string]any{"a": "b"},
		},
		{
			name: "no braces",
			raw:  "I cannot produce that",
			want: map[string]any{},
		},
		{
			name: "broken json",
			raw:  `{"a": `,
			want: map[string]any{},
		},
		{
			name: "empty input",
			raw:  "",
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseModelJSON(tt.raw))
		})
	}
}
