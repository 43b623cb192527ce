package openai

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/gesa-research/pald-backend/pkg/config"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(&config.OpenAIConfig{})
	require.Error(t, err)

	_, err = NewClient(nil)
	require.Error(t, err)
}

func TestNewClient_DefaultsModel(t *testing.T) {
	client, err := NewClient(&config.OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", client.model)
}

func TestExtractOutputText(t *testing.T) {
	envelope := &responseEnvelope{
		Output: []responseOutput{
			{Content: []responseContent{{Type: "reasoning", Text: "thinking"}}},
			{Content: []responseContent{{Type: "output_text", Text: `{"detailed_level":{}}`}}},
		},
	}
	assert.Equal(t, `{"detailed_level":{}}`, extractOutputText(envelope))

	assert.Equal(t, "", extractOutputText(&responseEnvelope{}))
}

func TestBuildExtractionPrompt_EmbedsText(t *testing.T) {
	prompt := BuildExtractionPrompt("a friendly robot tutor with green hair")
	assert.True(t, strings.Contains(prompt, "a friendly robot tutor with green hair"))
}

func TestExtractionSystemPrompt_NamesSchemaLevels(t *testing.T) {
	for _, key := range []string{"global_design_level", "middle_design_level", "detailed_level", "design_elements_not_in_PALD"} {
		assert.Contains(t, extractionSystemPrompt, key)
	}
}

func TestTokenBucket_RefillsUntilStopped(t *testing.T) {
	bucket := newTokenBucketWithRate(60000, 1)

	// Drain the burst token; the refill loop replaces it.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, bucket.Wait(ctx))
	require.NoError(t, bucket.Wait(ctx))

	bucket.Stop()
	time.Sleep(20 * time.Millisecond)

	// Drain whatever the loop managed to add before stopping, then
	// confirm no further tokens arrive.
	drained, drainCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer drainCancel()
	for bucket.Wait(drained) == nil {
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer waitCancel()
	assert.ErrorIs(t, bucket.Wait(waitCtx), context.DeadlineExceeded)
}

func TestClientClose_Idempotent(t *testing.T) {
	client, err := NewClient(&config.OpenAIConfig{APIKey: "test-key"})
	require.NoError(t, err)

	client.Close()
	client.Close()
}
