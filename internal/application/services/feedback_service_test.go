package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeedbackService(t *testing.T, llm *fakeLLM) *FeedbackService {
	t.Helper()
	return NewFeedbackService(newExtractionService(t, llm))
}

func TestProcessRound_ContinuesWhileUnderLimit(t *testing.T) {
	llm := &fakeLLM{response: `{"global_design_level": {"species": "human"}}`}
	svc := newFeedbackService(t, llm)

	result := svc.ProcessRound(context.Background(), "make the hair darker", 1, 3, false)

	require.NotNil(t, result)
	assert.Equal(t, 1, result.RoundNumber)
	assert.False(t, result.MaxRoundsReached)
	assert.True(t, result.ShouldContinue)
	assert.NotNil(t, result.FeedbackPALD)
}

func TestProcessRound_StopsAtMaxRounds(t *testing.T) {
	llm := &fakeLLM{response: `{"global_design_level": {"species": "human"}}`}
	svc := newFeedbackService(t, llm)

	result := svc.ProcessRound(context.Background(), "one more change", 3, 3, false)

	assert.True(t, result.MaxRoundsReached)
	assert.False(t, result.ShouldContinue)
	// The extracted PALD is still returned so the last round is not wasted.
	assert.NotNil(t, result.FeedbackPALD)
}

func TestProcessRound_StopsOnUserRequest(t *testing.T) {
	llm := &fakeLLM{response: `{"global_design_level": {"species": "human"}}`}
	svc := newFeedbackService(t, llm)

	result := svc.ProcessRound(context.Background(), "looks good", 1, 3, true)

	assert.True(t, result.MaxRoundsReached)
	assert.False(t, result.ShouldContinue)
}

func TestProcessRound_StopsOnExtractionFailure(t *testing.T) {
	llm := &fakeLLM{err: assert.AnError}
	svc := newFeedbackService(t, llm)

	result := svc.ProcessRound(context.Background(), "garbled", 1, 3, false)

	assert.True(t, result.MaxRoundsReached)
	assert.False(t, result.ShouldContinue)
	assert.Nil(t, result.FeedbackPALD)
	assert.Contains(t, result.Metadata, "extraction_error")
}

func TestStop_TerminatesUnconditionally(t *testing.T) {
	svc := newFeedbackService(t, &fakeLLM{response: "{}"})

	result := svc.Stop(1)

	assert.True(t, result.MaxRoundsReached)
	assert.False(t, result.ShouldContinue)
	assert.Equal(t, 1, result.RoundNumber)
	assert.Equal(t, true, result.Metadata["stopped_by_user"])
}

