package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/embedsvc/sentencehnsw/pkg/index"
	"github.com/embedsvc/sentencehnsw/pkg/metastore"
	"github.com/embedsvc/sentencehnsw/pkg/pipeline"
	"github.com/embedsvc/sentencehnsw/pkg/vector"
)

const testDim = 4

type fakeEmbedder struct{ vectors map[string][]float32 }

func (f *fakeEmbedder) Dim() int { return testDim }

func (f *fakeEmbedder) Embed(_ context.Context, sentence string) (vector.Vector, error) {
	v, ok := f.vectors[sentence]
	if !ok {
		return nil, errors.New("fakeEmbedder: provider unreachable")
	}
	return vector.New(v, testDim)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	idx := index.New(testDim, 16, 200)
	store, err := metastore.Open(context.Background(), filepath.Join(t.TempDir(), "vectors.db"), testDim, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	embed := &fakeEmbedder{vectors: map[string][]float32{
		"hello":   {1, 0, 0, 0},
		"goodbye": {0, 1, 0, 0},
	}}
	p := pipeline.New(idx, store, embed, 0.002, testDim, nil)
	return New(p, idx, store, filepath.Join(t.TempDir(), "hnsw.json"), testDim, 1<<20, nil)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSearchEmptyIndexReturnsBlank(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal([]float32{1, 0, 0, 0})
	req := httptest.NewRequest("POST", "/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "" {
		t.Fatalf("expected empty body, got %q", w.Body.String())
	}
}

func TestSearchWrongDimensionIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal([]float32{1, 0})
	req := httptest.NewRequest("POST", "/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != 400 {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestEmbedSearchInsertRoundTrip(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(embedRequest{Sentences: []string{"hello", "goodbye"}})
	req := httptest.NewRequest("POST", "/embed_search_insert?should_insert", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var out []outcomeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(out))
	}
	if out[0].Insertion != pipeline.InsertionSuccess {
		t.Fatalf("expected first sentence to bootstrap as success, got %q", out[0].Insertion)
	}
}

func TestWipeClearsIndexAndStore(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(embedRequest{Sentences: []string{"hello"}})
	req := httptest.NewRequest("POST", "/embed_search_insert?should_insert", bytes.NewReader(body))
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	wipeReq := httptest.NewRequest("PATCH", "/wipe", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, wipeReq)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if s.Index.Size() != 0 {
		t.Fatalf("expected index to be empty after wipe, got size %d", s.Index.Size())
	}
}

func TestEmbedProviderFailureIsInternalServerError(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(embedRequest{Sentences: []string{"unconfigured sentence"}})
	req := httptest.NewRequest("POST", "/embed_search_insert?should_insert", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != 500 {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStoreUnavailableFailureIsInternalServerError(t *testing.T) {
	s := newTestServer(t)
	s.Store.Close()

	body, _ := json.Marshal(embedRequest{Sentences: []string{"hello"}})
	req := httptest.NewRequest("POST", "/embed_search_insert?should_insert", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != 500 {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
}
