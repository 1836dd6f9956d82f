package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestauk/discovery-genai/internal/llm"
	"github.com/nestauk/discovery-genai/internal/llm/llmtest"
)

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text-%d", i)
	}
	return out
}

func TestEmbed_BatchingIsTransparent(t *testing.T) {
	input := texts(7)
	reference, err := (&llmtest.Provider{}).Embed(context.Background(), input, "m")
	require.NoError(t, err)

	for _, batch := range []int{1, len(input), len(input)/2 + 1, 100} {
		for _, par := range []int{1, 3} {
			fake := &llmtest.Provider{}
			client := NewClient(fake, WithBatchSize(batch), WithParallelism(par))

			got, err := client.Embed(context.Background(), input, "m")
			require.NoError(t, err)
			assert.Equal(t, reference, got, "batch=%d parallelism=%d", batch, par)

			wantCalls := (len(input) + batch - 1) / batch
			assert.Len(t, fake.EmbedBatches(), wantCalls, "batch=%d", batch)
			for _, b := range fake.EmbedBatches() {
				assert.LessOrEqual(t, len(b), batch)
			}
		}
	}
}

func TestEmbed_EmptyInputMakesNoCall(t *testing.T) {
	fake := &llmtest.Provider{}
	got, err := NewClient(fake).Embed(context.Background(), nil, "m")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, fake.EmbedBatches())
}

func TestEmbed_FailureIsServiceError(t *testing.T) {
	fake := &llmtest.Provider{
		ProviderName: "fake",
		EmbedFunc: func(ctx context.Context, in []string, model string) ([][]float32, error) {
			return nil, errors.New("connection refused")
		},
	}

	_, err := NewClient(fake, WithBatchSize(2)).Embed(context.Background(), texts(5), "m")
	var ee *llm.EmbeddingServiceError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "fake", ee.Provider)
	assert.Equal(t, "m", ee.Model)
}

func TestEmbed_CountMismatch(t *testing.T) {
	fake := &llmtest.Provider{
		EmbedFunc: func(ctx context.Context, in []string, model string) ([][]float32, error) {
			return [][]float32{{1}}, nil
		},
	}

	_, err := NewClient(fake, WithBatchSize(3)).Embed(context.Background(), texts(3), "m")
	var ee *llm.EmbeddingServiceError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Reason, "got 1 vectors for 3 texts")
}

func TestEmbed_KeepsTypedErrors(t *testing.T) {
	typed := &llm.EmbeddingServiceError{Provider: "openai", StatusCode: 429, Reason: "slow down"}
	fake := &llmtest.Provider{
		EmbedFunc: func(ctx context.Context, in []string, model string) ([][]float32, error) {
			return nil, typed
		},
	}

	_, err := NewClient(fake).Embed(context.Background(), texts(1), "m")
	assert.Equal(t, 429, llm.StatusCode(err))
}

func TestCache_OnlyMissesGoDownstream(t *testing.T) {
	var calls atomic.Int32
	var seen [][]string
	fake := &llmtest.Provider{}
	fake.EmbedFunc = func(ctx context.Context, in []string, model string) ([][]float32, error) {
		calls.Add(1)
		seen = append(seen, append([]string(nil), in...))
		out := make([][]float32, len(in))
		for i, t := range in {
			out[i] = llmtest.HashVector(t, 4)
		}
		return out, nil
	}
	c := NewCache(fake, time.Minute)

	first, err := c.Embed(context.Background(), []string{"a", "b", "a"}, "m")
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, first[0], first[2])
	assert.Equal(t, []string{"a", "b"}, seen[0], "duplicate texts are sent once")

	second, err := c.Embed(context.Background(), []string{"b", "c", "a"}, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, seen[1])
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])

	_, err = c.Embed(context.Background(), []string{"a", "b", "c"}, "m")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load(), "fully cached input makes no call")

	_, err = c.Embed(context.Background(), []string{"a"}, "other-model")
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load(), "cache is keyed by model")
	assert.Equal(t, 4, c.Len())
}

func TestCache_ResultsAreCopies(t *testing.T) {
	fake := &llmtest.Provider{}
	fake.EmbedFunc = func(ctx context.Context, in []string, model string) ([][]float32, error) {
		return [][]float32{{0.25, 0.5}, {0.25, 0.5}}[:len(in)], nil
	}
	c := NewCache(fake, time.Minute)

	first, err := c.Embed(context.Background(), []string{"x"}, "m")
	require.NoError(t, err)
	first[0][0] = 42

	second, err := c.Embed(context.Background(), []string{"x", "x"}, "m")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5}, second[0])
	second[0][1] = 7
	assert.Equal(t, []float32{0.25, 0.5}, second[1], "duplicates in one call do not share storage")
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	fail := true
	fake := &llmtest.Provider{}
	fake.EmbedFunc = func(ctx context.Context, in []string, model string) ([][]float32, error) {
		if fail {
			return nil, &llm.EmbeddingServiceError{Reason: "down"}
		}
		return [][]float32{{1}}, nil
	}
	c := NewCache(fake, 0)

	_, err := c.Embed(context.Background(), []string{"x"}, "m")
	require.Error(t, err)
	assert.Zero(t, c.Len())

	fail = false
	got, err := c.Embed(context.Background(), []string{"x"}, "m")
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}}, got)
}
