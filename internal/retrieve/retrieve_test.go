package retrieve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dgallion1/docqa/internal/element"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcCompressor func(ctx context.Context, question, text string) (string, error)

func (f funcCompressor) Compress(ctx context.Context, question, text string) (string, error) {
	return f(ctx, question, text)
}

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.prompts = append(f.prompts, req.Prompt)
	return f.reply, f.err
}

func seed(t *testing.T) (*index.MemStore, llm.Embedder) {
	t.Helper()
	emb := llm.NewHashEmbedder(128)
	store := index.NewMemStore()
	texts := []string{
		"doanh thu quý một tăng mạnh",
		"chi phí nhân sự giảm",
		"doanh thu quý hai ổn định",
		"lợi nhuận sau thuế",
		"kế hoạch năm sau",
	}
	var chunks []element.Chunk
	for _, txt := range texts {
		chunks = append(chunks, element.Chunk{Text: txt, Kind: element.KindText, Page: 1})
	}
	_, err := index.NewBuilder(store, emb, 8, nil).Build(context.Background(), index.Document{Name: "r"}, chunks)
	require.NoError(t, err)
	return store, emb
}

func TestRetrieve_TopK(t *testing.T) {
	store, emb := seed(t)
	r := New(store, emb, nil, Config{}, nil)

	hits, err := r.Retrieve(context.Background(), "doanh thu quý")
	require.NoError(t, err)
	require.Len(t, hits, DefaultK)
	assert.Contains(t, hits[0].Chunk.Text, "doanh thu")
	assert.Contains(t, hits[1].Chunk.Text, "doanh thu")
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	assert.GreaterOrEqual(t, hits[1].Score, hits[2].Score)
}

func TestRetrieve_CompressionBoundedAndFallsBack(t *testing.T) {
	store, emb := seed(t)
	calls := 0
	comp := funcCompressor(func(ctx context.Context, q, text string) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("timeout")
		}
		return "excerpt: " + text, nil
	})
	r := New(store, emb, comp, Config{K: 3, MaxCompressed: 2}, nil)

	hits, err := r.Retrieve(context.Background(), "doanh thu quý")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.True(t, strings.HasPrefix(hits[0].Chunk.Text, "excerpt: "))
	assert.False(t, strings.HasPrefix(hits[1].Chunk.Text, "excerpt: "), "failed compression keeps the original")
}

func TestRetrieve_EmbedError(t *testing.T) {
	store, _ := seed(t)
	r := New(store, failingEmbedder{}, nil, Config{}, nil)
	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, &llm.ProviderError{Provider: "test", Op: "embed", Timeout: true, Err: context.DeadlineExceeded}
}
func (failingEmbedder) Dimensions() int { return 128 }
func (failingEmbedder) Name() string    { return "failing" }

func TestLLMCompressor(t *testing.T) {
	c := &fakeCompleter{reply: "  doanh thu tăng 20%  "}
	out, err := NewLLMCompressor(c, 0, 0).Compress(context.Background(), "doanh thu?", "Báo cáo: doanh thu tăng 20%.")
	require.NoError(t, err)
	assert.Equal(t, "doanh thu tăng 20%", out)
	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], "doanh thu?")
	assert.Contains(t, c.prompts[0], "Báo cáo: doanh thu tăng 20%.")

	c.reply = NoOutput
	out, err = NewLLMCompressor(c, 0, 0).Compress(context.Background(), "q", "t")
	require.NoError(t, err)
	assert.Empty(t, out)

	c.err = errors.New("boom")
	_, err = NewLLMCompressor(c, 0, 0).Compress(context.Background(), "q", "t")
	assert.Error(t, err)
}
