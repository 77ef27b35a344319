package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docqa/internal/chunker"
	"github.com/dgallion1/docqa/internal/element"
	"github.com/dgallion1/docqa/internal/formula"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/llm"
	"github.com/dgallion1/docqa/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const report = `# Báo cáo

Doanh thu tăng mạnh trong năm. Công thức lợi nhuận: P = R - C được dùng cho mọi quý.

| Quý | Doanh thu |
|-----|-----------|
| 1   | 100       |
| 2   | 120       |

Tỷ lệ tăng trưởng đạt 20%.
`

func newService(t *testing.T) (*Service, *index.MemStore) {
	t.Helper()
	store := index.NewMemStore()
	svc := NewService(store, llm.NewHashEmbedder(64), nil, Config{
		ChartsDir: filepath.Join(t.TempDir(), "charts"),
		Chunking:  chunker.DefaultConfig(),
	}, nil)
	return svc, store
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngest_CountsMatchSubExtractors(t *testing.T) {
	svc, store := newService(t)
	path := writeFile(t, "report.md", report)

	res, err := svc.Ingest(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.DocumentID)
	assert.Equal(t, "report", res.Name)
	assert.False(t, res.Duplicate)

	// Re-run each extractor on its own.
	doc, err := (&parser.MarkdownParser{}).Parse(mustOpen(t, path), path)
	require.NoError(t, err)
	var texts []element.Element
	wantTables, wantFormulas := 0, 0
	for _, p := range doc.Pages {
		texts = append(texts, element.NewText(p.Number, p.Text))
		wantTables += len(p.Tables)
		wantFormulas += len(formula.Recognize(p.Text))
	}
	wantText := len(chunker.New(chunker.DefaultConfig()).Chunks("report.md", texts))

	assert.Equal(t, wantText, res.TextChunks)
	assert.Equal(t, 1, wantTables)
	assert.Equal(t, wantTables, res.TableChunks)
	assert.GreaterOrEqual(t, wantFormulas, 2)
	assert.Equal(t, wantFormulas, res.FormulaChunks)
	assert.Equal(t, 0, res.ChartChunks)
	assert.Equal(t, res.TextChunks+res.TableChunks+res.FormulaChunks, store.Len())
}

func TestIngest_Dedup(t *testing.T) {
	svc, store := newService(t)
	path := writeFile(t, "report.md", report)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, path, Options{})
	require.NoError(t, err)
	n := store.Len()

	again, err := svc.Ingest(ctx, path, Options{})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.DocumentID, again.DocumentID)
	assert.Equal(t, first.TableChunks, again.TableChunks)
	assert.Equal(t, n, store.Len())

	forced, err := svc.Ingest(ctx, path, Options{Force: true})
	require.NoError(t, err)
	assert.False(t, forced.Duplicate)
	assert.Equal(t, first.DocumentID, forced.DocumentID, "force replaces the same document")
	assert.Equal(t, n, store.Len(), "chunk set replaced, not doubled")

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestIngest_SameContentDifferentNameIsDuplicate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, writeFile(t, "a.txt", "một đoạn văn bản"), Options{})
	require.NoError(t, err)
	res, err := svc.Ingest(ctx, writeFile(t, "b.txt", "một đoạn văn bản"), Options{})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

type slowEmbedder struct {
	llm.Embedder
	delay time.Duration
}

func (e slowEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	time.Sleep(e.delay)
	return e.Embedder.Embed(ctx, texts)
}

func TestIngest_ConcurrentSameContent(t *testing.T) {
	store := index.NewMemStore()
	svc := NewService(store, slowEmbedder{Embedder: llm.NewHashEmbedder(64), delay: 100 * time.Millisecond}, nil, Config{
		ChartsDir: filepath.Join(t.TempDir(), "charts"),
		Chunking:  chunker.DefaultConfig(),
	}, nil)
	paths := []string{writeFile(t, "a.md", report), writeFile(t, "b.md", report)}

	results := make([]Result, len(paths))
	errs := make([]error, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Ingest(context.Background(), p, Options{})
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, results[0].Duplicate, results[1].Duplicate, "exactly one ingestion indexes the bytes")
	assert.Equal(t, results[0].DocumentID, results[1].DocumentID)

	docs, err := store.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Empty(t, svc.hashes.locks)
}

func TestIngest_Errors(t *testing.T) {
	svc, store := newService(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
		want error
	}{
		{"empty path", "", ErrInvalidPath},
		{"missing", filepath.Join(dir, "nope.pdf"), ErrNotFound},
		{"directory", dir, ErrUnsupportedFormat},
		{"extension", writeFile(t, "image.png", "\x89PNG"), ErrUnsupportedFormat},
		{"fake pdf", writeFile(t, "fake.pdf", "hello, not a pdf"), ErrUnsupportedFormat},
		{"fake docx", writeFile(t, "fake.docx", "plain text"), ErrUnsupportedFormat},
		{"empty text", writeFile(t, "empty.txt", "   \n\n"), ErrProcessingFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tt.path, Options{})
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, store.Len())
}

func TestMerge_OrderAndOrdinals(t *testing.T) {
	doc := &parser.Document{Pages: []parser.Page{
		{Number: 1, Text: "p1", Tables: []element.Table{{Columns: []string{"A"}}}},
		{Number: 2, Text: "p2", Tables: []element.Table{{Columns: []string{"B"}}, {Columns: []string{"C"}}}},
	}}
	formulas := [][]element.Formula{
		{{Raw: "x = 1"}},
		{{Raw: "y = 2"}, {Raw: "z = 3"}},
	}
	charts := []element.Element{
		element.NewChart(1, element.Chart{Index: 1}),
		element.NewChart(2, element.Chart{Index: 2}),
	}

	els := merge(doc, formulas, charts)

	want := []struct {
		page  int
		kind  element.Kind
		index int
	}{
		{1, element.KindText, 0},
		{1, element.KindFormula, 1},
		{1, element.KindTable, 1},
		{1, element.KindChart, 1},
		{2, element.KindText, 0},
		{2, element.KindFormula, 2},
		{2, element.KindFormula, 3},
		{2, element.KindTable, 2},
		{2, element.KindTable, 3},
		{2, element.KindChart, 2},
	}
	require.Len(t, els, len(want))
	for i, w := range want {
		el := els[i]
		assert.Equal(t, w.page, el.Page, "element %d", i)
		require.Equal(t, w.kind, el.Kind, "element %d", i)
		switch el.Kind {
		case element.KindFormula:
			assert.Equal(t, w.index, el.Formula.Index, "element %d", i)
		case element.KindTable:
			assert.Equal(t, w.index, el.Table.Index, "element %d", i)
		case element.KindChart:
			assert.Equal(t, w.index, el.Chart.Index, "element %d", i)
		}
	}
	assert.Equal(t, 0, formulas[0][0].Index, "input formulas are not modified")
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}
