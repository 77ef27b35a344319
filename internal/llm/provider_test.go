package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapErrClassifiesDeadline(t *testing.T) {
	err := wrapErr("anthropic", "complete", fmt.Errorf("call: %w", context.DeadlineExceeded), false)
	assert.True(t, IsTimeout(err))
	assert.True(t, IsRetryable(err))

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "anthropic", pe.Provider)
	assert.Contains(t, err.Error(), "timeout")
}

func TestWrapErrPlainFailure(t *testing.T) {
	err := wrapErr("gemini", "embed", errors.New("bad request"), false)
	assert.False(t, IsTimeout(err))
	assert.False(t, IsRetryable(err))
	assert.Nil(t, wrapErr("gemini", "embed", nil, true))
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 45*time.Second)
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"doanh thu quý 2", "doanh thu quý 2", "formula"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[1])
	assert.NotEqual(t, vecs[0], vecs[2])
	assert.Len(t, vecs[0], 64)
}

func TestHashEmbedderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).Embed(ctx, []string{"x"})
	require.Error(t, err)
}
