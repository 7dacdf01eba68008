package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quoterag/internal/adapter/corpus"
	"quoterag/internal/adapter/embedding"
	"quoterag/internal/adapter/fs"
	"quoterag/internal/adapter/memstore"
	"quoterag/internal/port"
)

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func newTestPreparer(emb port.Embedder, sink port.CorpusSink, batch int) *Preparer {
	return NewPreparer(
		fs.NewWalker([]string{"data/**/*.csv"}, nil),
		corpus.NewCSVReader(true),
		emb, sink, batch, 3, nil, nil,
	)
}

func TestPrepare_BuildsStore(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"data/a.csv": "id,quote\n1,Dream big.\n2,Start small.\n3,   \n",
		"data/b.csv": "id,quote\n4,Keep going.\n1,Duplicate id.\n",
	})
	sink := memstore.NewMemoryStore()

	var mu sync.Mutex
	var calls []int
	res, err := newTestPreparer(embedding.NewMockEmbedder(16), sink, 2).Prepare(context.Background(), root, PrepareOptions{
		Progress: func(done, total int) {
			mu.Lock()
			calls = append(calls, done)
			mu.Unlock()
			assert.Equal(t, 3, total)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 3, res.Quotes)
	assert.Equal(t, 3, res.Embedded)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "1", res.Failures[0].ID)
	assert.NotEmpty(t, calls)
	assert.Equal(t, 3, calls[len(calls)-1])

	records, err := sink.Load(context.Background())
	require.NoError(t, err)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
		assert.Len(t, r.Embedding, 16)
	}
	assert.Equal(t, []string{"1", "2", "4"}, ids)

	meta, ok, err := sink.Meta()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mock", meta.Model)
	assert.Equal(t, 16, meta.Dimension)
	assert.Equal(t, 3, meta.Count)
}

func TestPrepare_SkipsFailedItems(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"data/q.csv": "id,quote\n1,good one\n2,bad one\n3,another good\n",
	})

	emb := &mockEmbedder{}
	emb.On("Embed", mock.Anything, []string{"good one", "bad one", "another good"}).
		Return(nil, errors.New("batch rejected")).Once()
	emb.On("Embed", mock.Anything, []string{"good one"}).Return([][]float64{{1, 0}}, nil)
	emb.On("Embed", mock.Anything, []string{"bad one"}).Return(nil, errors.New("content filtered"))
	emb.On("Embed", mock.Anything, []string{"another good"}).Return([][]float64{{0, 1}}, nil)

	sink := memstore.NewMemoryStore()
	res, err := newTestPreparer(emb, sink, 10).Prepare(context.Background(), root, PrepareOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Embedded)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "2", res.Failures[0].ID)
	assert.Contains(t, res.Failures[0].Reason, "content filtered")

	records, err := sink.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].ID)
	assert.Equal(t, "3", records[1].ID)
}

func TestPrepare_NothingEmbeddedKeepsStore(t *testing.T) {
	root := writeCorpus(t, map[string]string{"data/q.csv": "id,quote\n1,only\n"})
	emb := &mockEmbedder{}
	emb.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	sink := memstore.NewMemoryStore()
	_, err := newTestPreparer(emb, sink, 10).Prepare(context.Background(), root, PrepareOptions{})
	assert.Error(t, err)

	_, saved, _ := sink.Meta()
	assert.False(t, saved, "store must not be overwritten when nothing was embedded")
}

func TestPrepare_NoFiles(t *testing.T) {
	root := writeCorpus(t, map[string]string{"notes.txt": "x"})
	_, err := newTestPreparer(embedding.NewMockEmbedder(8), memstore.NewMemoryStore(), 10).
		Prepare(context.Background(), root, PrepareOptions{})
	assert.Error(t, err)
}

func TestPrepare_ModelChanged(t *testing.T) {
	root := writeCorpus(t, map[string]string{"data/q.csv": "id,quote\n1,hello\n"})
	sink := memstore.NewMemoryStore()
	require.NoError(t, sink.Save(context.Background(), nil, port.StoreMeta{Model: "text-embedding-3-large"}))

	p := newTestPreparer(embedding.NewMockEmbedder(8), sink, 10)
	_, err := p.Prepare(context.Background(), root, PrepareOptions{})
	assert.ErrorIs(t, err, ErrModelChanged)

	res, err := p.Prepare(context.Background(), root, PrepareOptions{Rebuild: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Embedded)
}
