package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/embedsvc/sentencehnsw/pkg/index"
	"github.com/embedsvc/sentencehnsw/pkg/metastore"
	"github.com/embedsvc/sentencehnsw/pkg/vector"
)

const dim = 4

type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (f *fakeEmbedder) Dim() int { return dim }

func (f *fakeEmbedder) Embed(_ context.Context, sentence string) (vector.Vector, error) {
	f.calls++
	v, ok := f.vectors[sentence]
	if !ok {
		return nil, errors.New("fakeEmbedder: no vector configured for " + sentence)
	}
	return vector.New(v, dim)
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeEmbedder) {
	t.Helper()
	idx := index.New(dim, 16, 200)
	store, err := metastore.Open(context.Background(), filepath.Join(t.TempDir(), "vectors.db"), dim, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	embed := &fakeEmbedder{vectors: map[string][]float32{}}
	p := New(idx, store, embed, 0.002, dim, nil)
	return p, embed
}

func TestBootstrapInsertsFirstSentence(t *testing.T) {
	ctx := context.Background()
	p, embed := newTestPipeline(t)
	embed.vectors["hello"] = []float32{1, 0, 0, 0}

	out, err := p.ProcessSentence(ctx, "hello", "", false, true, 5)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Insertion != InsertionSuccess {
		t.Fatalf("expected success, got %q", out.Insertion)
	}
	if p.Index.Size() != 1 {
		t.Fatalf("expected index size 1, got %d", p.Index.Size())
	}
}

func TestCacheHitSkipsEmbedderAndReportsAlreadyExists(t *testing.T) {
	ctx := context.Background()
	p, embed := newTestPipeline(t)
	embed.vectors["hello"] = []float32{1, 0, 0, 0}

	if _, err := p.ProcessSentence(ctx, "hello", "", false, true, 5); err != nil {
		t.Fatalf("first process: %v", err)
	}
	callsAfterFirst := embed.calls

	out, err := p.ProcessSentence(ctx, "hello", "", false, true, 5)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if out.Insertion != InsertionAlreadyExists {
		t.Fatalf("expected already exists, got %q", out.Insertion)
	}
	if embed.calls != callsAfterFirst {
		t.Fatalf("expected embedder not called again, calls went from %d to %d", callsAfterFirst, embed.calls)
	}
}

func TestInsertionGateSkipsTooCloseFreshVector(t *testing.T) {
	ctx := context.Background()
	p, embed := newTestPipeline(t)
	embed.vectors["hello"] = []float32{1, 0, 0, 0}
	embed.vectors["hi"] = []float32{1, 0, 0, 0.0001}

	if _, err := p.ProcessSentence(ctx, "hello", "", false, true, 5); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	out, err := p.ProcessSentence(ctx, "hi", "", false, true, 5)
	if err != nil {
		t.Fatalf("process hi: %v", err)
	}
	if out.Insertion != InsertionNoInsert {
		t.Fatalf("expected no insert, got %q", out.Insertion)
	}
	if p.Index.Size() != 1 {
		t.Fatalf("expected index to still have 1 entry, got %d", p.Index.Size())
	}

	// The fresh vector is still cached even though it wasn't indexed.
	if _, ok, _ := p.Store.GetVector(ctx, "hi"); !ok {
		t.Fatal("expected 'hi' vector to be cached despite failing the gate")
	}
}

func TestInsertionGatePassesForDistantVector(t *testing.T) {
	ctx := context.Background()
	p, embed := newTestPipeline(t)
	embed.vectors["hello"] = []float32{1, 0, 0, 0}
	embed.vectors["goodbye"] = []float32{0, 1, 0, 0}

	if _, err := p.ProcessSentence(ctx, "hello", "", false, true, 5); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	out, err := p.ProcessSentence(ctx, "goodbye", "", false, true, 5)
	if err != nil {
		t.Fatalf("process goodbye: %v", err)
	}
	if out.Insertion != InsertionSuccess {
		t.Fatalf("expected success, got %q", out.Insertion)
	}
	if p.Index.Size() != 2 {
		t.Fatalf("expected size 2, got %d", p.Index.Size())
	}
}

func TestLabelledFanOut(t *testing.T) {
	ctx := context.Background()
	p, embed := newTestPipeline(t)
	embed.vectors["cat"] = []float32{1, 0, 0, 0}
	embed.vectors["dog"] = []float32{0, 1, 0, 0}
	embed.vectors["puppy"] = []float32{0, 0.9, 0, 0}

	if _, err := p.ProcessSentence(ctx, "cat", "A", true, true, 15); err != nil {
		t.Fatalf("seed cat: %v", err)
	}
	if _, err := p.ProcessSentence(ctx, "dog", "B", true, true, 15); err != nil {
		t.Fatalf("seed dog: %v", err)
	}

	out, err := p.ProcessSentence(ctx, "puppy", "", true, true, 15)
	if err != nil {
		t.Fatalf("process puppy: %v", err)
	}

	found := false
	for _, l := range out.Labels {
		if l == "B" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected label B among %v", out.Labels)
	}
}

func TestMonotoneSearchOrdering(t *testing.T) {
	ctx := context.Background()
	p, embed := newTestPipeline(t)
	embed.vectors["a"] = []float32{0, 0, 0, 0}
	embed.vectors["b"] = []float32{1, 0, 0, 0}
	embed.vectors["c"] = []float32{5, 0, 0, 0}
	embed.vectors["query"] = []float32{0.1, 0, 0, 0}

	for _, s := range []string{"a", "b", "c"} {
		if _, err := p.ProcessSentence(ctx, s, "", false, true, 5); err != nil {
			t.Fatalf("seed %s: %v", s, err)
		}
	}

	out, err := p.ProcessSentence(ctx, "query", "", false, false, 5)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	for i := 1; i < len(out.SearchDistance); i++ {
		if out.SearchDistance[i] < out.SearchDistance[i-1] {
			t.Fatalf("distances not ascending: %v", out.SearchDistance)
		}
	}
}
