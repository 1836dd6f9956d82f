package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestauk/discovery-genai/internal/llm"
	"github.com/nestauk/discovery-genai/internal/llm/llmtest"
	"github.com/nestauk/discovery-genai/internal/vector"
)

const sample = `source,text,area,age
a,whales breathe air,Understanding the World,3
b,snails are slow,Understanding the World,4
,no source here,Literacy,3
c,,Mathematics,4
a,duplicate whales row,Physical Development,3
d,counting pebbles,Mathematics,4
`

func TestLoad_DropsAndDedupes(t *testing.T) {
	rows, report, err := Load(strings.NewReader(sample), DefaultColumns)
	require.NoError(t, err)

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a", "b", "d"}, ids)
	assert.Equal(t, "whales breathe air", rows[0].Text, "first occurrence wins")
	assert.Equal(t, map[string]any{"area": "Understanding the World", "age": "3"}, rows[0].Metadata)
	assert.Equal(t, Report{Read: 6, MissingField: 2, DuplicateSource: 1, Kept: 3}, report)
}

func TestLoad_CustomColumns(t *testing.T) {
	in := "url,body\nhttp://x,hello\n"
	rows, _, err := Load(strings.NewReader(in), Columns{Text: "body", Source: "url"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "http://x", rows[0].ID)
	assert.Nil(t, rows[0].Metadata)
}

func TestLoad_Errors(t *testing.T) {
	_, _, err := Load(strings.NewReader(""), DefaultColumns)
	assert.Error(t, err)

	_, _, err = Load(strings.NewReader("id,body\n1,x\n"), DefaultColumns)
	assert.ErrorContains(t, err, `"text"`)

	_, _, err = Load(strings.NewReader("text,source\n"), Columns{})
	assert.Error(t, err)
}

func TestIndexer_BuildPublishes(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "corpus.csv", []byte(sample), 0o644))

	fake := &llmtest.Provider{}
	handle := &vector.Handle{}
	ix := &Indexer{Embedder: fake, Model: "embed", Handle: handle, Config: vector.IndexConfig{Metric: vector.Euclidean}}

	idx, err := ix.BuildFile(context.Background(), fs, "corpus.csv", DefaultColumns)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Same(t, idx, handle.Current())

	batches := fake.EmbedBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"whales breathe air", "snails are slow", "counting pebbles"}, batches[0],
		"dropped and duplicate rows are never embedded")
}

func TestIndexer_FailureKeepsPreviousIndex(t *testing.T) {
	handle := &vector.Handle{}
	ok := &Indexer{Embedder: &llmtest.Provider{}, Handle: handle, Config: vector.IndexConfig{Metric: vector.Cosine}}
	prev, err := ok.Build(context.Background(), []Row{{ID: "a", Text: "x"}})
	require.NoError(t, err)

	failing := &Indexer{
		Embedder: &llmtest.Provider{EmbedFunc: func(context.Context, []string, string) ([][]float32, error) {
			return nil, &llm.EmbeddingServiceError{Reason: "down"}
		}},
		Handle: handle,
		Config: vector.IndexConfig{Metric: vector.Cosine},
	}
	_, err = failing.Build(context.Background(), []Row{{ID: "b", Text: "y"}})
	var ee *llm.EmbeddingServiceError
	require.ErrorAs(t, err, &ee)
	assert.Same(t, prev, handle.Current())
}

type recordingRepo struct {
	dim    int
	docs   []vector.Document
	err    error
	pruned [][]string
}

func (r *recordingRepo) Search(context.Context, []float32, int) ([]vector.Result, error) {
	return nil, nil
}

func (r *recordingRepo) Upsert(_ context.Context, docs []vector.Document) error {
	r.docs = append(r.docs, docs...)
	return r.err
}

func (r *recordingRepo) Close() error { return nil }

func (r *recordingRepo) Prune(_ context.Context, keep []string) error {
	r.pruned = append(r.pruned, keep)
	return nil
}

func (r *recordingRepo) EnsureCollection(_ context.Context, dim int) error {
	r.dim = dim
	return nil
}

func TestIndexer_Mirror(t *testing.T) {
	repo := &recordingRepo{}
	handle := &vector.Handle{}
	ix := &Indexer{Embedder: &llmtest.Provider{}, Handle: handle, Config: vector.IndexConfig{Metric: vector.Dot}, Mirror: repo}

	_, err := ix.Build(context.Background(), []Row{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}})
	require.NoError(t, err)
	assert.Equal(t, 8, repo.dim)
	assert.Len(t, repo.docs, 2)

	require.Len(t, repo.pruned, 1)
	assert.Equal(t, []string{"a", "b"}, repo.pruned[0])

	repo.err = errors.New("unavailable")
	_, err = ix.Build(context.Background(), []Row{{ID: "c", Text: "z"}})
	require.Error(t, err)
	assert.Equal(t, 2, handle.Current().Len(), "mirror failure must not publish")
}

func TestIndexer_MirrorDropsRemovedRows(t *testing.T) {
	repo := &recordingRepo{}
	ix := &Indexer{Embedder: &llmtest.Provider{}, Handle: &vector.Handle{}, Config: vector.IndexConfig{Metric: vector.Euclidean}, Mirror: repo}

	_, err := ix.Build(context.Background(), []Row{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}})
	require.NoError(t, err)
	_, err = ix.Build(context.Background(), []Row{{ID: "a", Text: "x"}})
	require.NoError(t, err)

	require.Len(t, repo.pruned, 2)
	assert.Equal(t, []string{"a"}, repo.pruned[1])
}

func TestWatcher_RebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.csv")
	require.NoError(t, os.WriteFile(path, []byte("source,text\na,one\n"), 0o644))

	handle := &vector.Handle{}
	results := make(chan error, 4)
	w := &Watcher{
		Indexer:  &Indexer{Embedder: &llmtest.Provider{}, Handle: handle, Config: vector.IndexConfig{Metric: vector.Euclidean}},
		Path:     path,
		Columns:  DefaultColumns,
		Debounce: 50 * time.Millisecond,
		rebuilt:  func(err error) { results <- err },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("source,text\na,one\nb,two\n"), 0o644))

	select {
	case err := <-results:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild after write")
	}
	require.NotNil(t, handle.Current())
	assert.Equal(t, 2, handle.Current().Len())

	// drop any late rebuild from the same save
	time.Sleep(200 * time.Millisecond)
	for len(results) > 0 {
		<-results
	}

	require.NoError(t, os.WriteFile(path, []byte("source,text\na,one\na,dup\n"+`b,"unterminated`), 0o644))
	select {
	case err := <-results:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild after broken write")
	}
	assert.Equal(t, 2, handle.Current().Len(), "broken corpus keeps the previous index")

	cancel()
	require.NoError(t, <-done)
}
