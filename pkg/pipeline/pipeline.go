// Package pipeline implements the Request Pipeline (C6): the policy engine
// that coordinates cache lookup, embedding, distance-gated insertion, and
// labelled fan-out over the ANN Index and Metadata Store.
package pipeline

import (
	"context"
	"fmt"

	"github.com/embedsvc/sentencehnsw/pkg/apperr"
	"github.com/embedsvc/sentencehnsw/pkg/embedder"
	"github.com/embedsvc/sentencehnsw/pkg/index"
	"github.com/embedsvc/sentencehnsw/pkg/logging"
	"github.com/embedsvc/sentencehnsw/pkg/metastore"
	"github.com/embedsvc/sentencehnsw/pkg/vector"
)

// Insertion status vocabulary, carried over from the reference
// implementation's response strings.
const (
	InsertionSuccess      = "success"
	InsertionNoInsert     = "no insert"
	InsertionAlreadyExists = "already exists"
)

// Outcome is the per-sentence result of running the pipeline.
type Outcome struct {
	SearchResult   []string
	SearchDistance []float32
	Insertion      string
	Labels         []string
}

// Pipeline wires together the index, metadata store, and embedding
// provider. All three are injected, never global state.
type Pipeline struct {
	Index     *index.HNSW
	Store     *metastore.Store
	Embedder  embedder.Embedder
	Threshold float32
	Dim       int
	Logger    logging.Logger
}

// New constructs a Pipeline. logger may be nil (treated as a no-op logger).
func New(idx *index.HNSW, store *metastore.Store, embed embedder.Embedder, threshold float32, dim int, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{Index: idx, Store: store, Embedder: embed, Threshold: threshold, Dim: dim, Logger: logger}
}

// Embed returns the embedding for sentence without consulting the cache or
// mutating the index, backing the /embed endpoint.
func (p *Pipeline) Embed(ctx context.Context, sentence string) (vector.Vector, error) {
	v, err := p.Embedder.Embed(context.WithoutCancel(ctx), sentence)
	if err != nil {
		return nil, apperr.Wrap("pipeline.Embed", apperr.ErrEmbedProvider, err)
	}
	return v, nil
}

// Init rebuilds the index from scratch, backing the /init endpoint.
func (p *Pipeline) Init(points [][]float32, sentences []string) error {
	if len(points) != len(sentences) {
		return apperr.Wrap("pipeline.Init", apperr.ErrBadInput,
			fmt.Errorf("%d vectors but %d sentences", len(points), len(sentences)))
	}
	for _, pt := range points {
		if len(pt) != p.Dim {
			return apperr.Wrap("pipeline.Init", apperr.ErrBadDimension,
				fmt.Errorf("vector has %d dims, want %d", len(pt), p.Dim))
		}
	}
	if err := p.Index.Build(points, sentences); err != nil {
		return apperr.Wrap("pipeline.Init", apperr.ErrIndex, err)
	}
	return nil
}

// Update incrementally inserts each (vector, sentence) pair, backing the
// /update endpoint.
func (p *Pipeline) Update(points [][]float32, sentences []string) error {
	if len(points) != len(sentences) {
		return apperr.Wrap("pipeline.Update", apperr.ErrBadInput,
			fmt.Errorf("%d vectors but %d sentences", len(points), len(sentences)))
	}
	for i, pt := range points {
		if err := p.Index.Insert(sentences[i], pt); err != nil {
			return apperr.Wrap("pipeline.Update", apperr.ErrIndex, err)
		}
	}
	return nil
}

// Search returns the single nearest payload to query, or "" if the index
// is empty, backing the /search endpoint.
func (p *Pipeline) Search(query []float32) (string, bool) {
	results := p.Index.Search(query, 1, 50)
	if len(results) == 0 {
		return "", false
	}
	return results[0].Payload, true
}

// ProcessSentence runs the full pipeline (§4.6) for one sentence. label is
// ignored unless withLabels is true. k is 5 for the unlabelled endpoint,
// 15 for the labelled one.
func (p *Pipeline) ProcessSentence(ctx context.Context, sentence, label string, withLabels, shouldInsert bool, k int) (*Outcome, error) {
	v, cached, err := p.Store.GetVector(ctx, sentence)
	if err != nil {
		return nil, apperr.Wrap("pipeline.ProcessSentence", apperr.ErrStoreUnavailable, err)
	}
	fresh := !cached

	if !cached {
		v, err = p.Embedder.Embed(context.WithoutCancel(ctx), sentence)
		if err != nil {
			return nil, apperr.Wrap("pipeline.ProcessSentence", apperr.ErrEmbedProvider, err)
		}
		if len(v) != p.Dim {
			return nil, apperr.Wrap("pipeline.ProcessSentence", apperr.ErrBadDimension,
				fmt.Errorf("embedder returned %d dims, want %d", len(v), p.Dim))
		}
	}

	if shouldInsert && fresh {
		if err := p.Store.PutVector(ctx, sentence, v); err != nil {
			return nil, apperr.Wrap("pipeline.ProcessSentence", apperr.ErrStoreUnavailable, err)
		}
		if withLabels && label != "" {
			if err := p.Store.PutLabel(ctx, sentence, label); err != nil {
				return nil, apperr.Wrap("pipeline.ProcessSentence", apperr.ErrStoreUnavailable, err)
			}
		}
	}

	// Cold-start bootstrap: an empty index can't produce a distance to
	// gate on, so the index is built from this one vector, fresh or cached.
	// A fresh vector is reported as success, a cache hit as already exists.
	if p.Index.Size() == 0 {
		if err := p.Index.Insert(sentence, v); err != nil {
			return nil, apperr.Wrap("pipeline.ProcessSentence", apperr.ErrIndex, err)
		}
		insertion := InsertionAlreadyExists
		if fresh {
			insertion = InsertionSuccess
		}
		return &Outcome{SearchResult: []string{}, SearchDistance: []float32{}, Insertion: insertion, Labels: p.fanOut(ctx, withLabels, nil)}, nil
	}

	results := p.Index.Search(v, k, searchEf(k))

	searchResult := make([]string, len(results))
	searchDistance := make([]float32, len(results))
	for i, r := range results {
		searchResult[i] = r.Payload
		searchDistance[i] = r.Distance
	}

	insertion := InsertionNoInsert
	switch {
	case !fresh:
		insertion = InsertionAlreadyExists
	case shouldInsert && len(results) > 0 && results[0].Distance > p.Threshold:
		if err := p.Index.Insert(sentence, v); err != nil {
			return nil, apperr.Wrap("pipeline.ProcessSentence", apperr.ErrIndex, err)
		}
		insertion = InsertionSuccess
	}

	return &Outcome{
		SearchResult:   searchResult,
		SearchDistance: searchDistance,
		Insertion:      insertion,
		Labels:         p.fanOut(ctx, withLabels, results),
	}, nil
}

// fanOut looks up the label for each neighbor payload when withLabels is
// set, in neighbor order, skipping any neighbor with no stored label.
func (p *Pipeline) fanOut(ctx context.Context, withLabels bool, results []index.Result) []string {
	if !withLabels {
		return nil
	}
	labels := make([]string, 0, len(results))
	for _, r := range results {
		label, ok, err := p.Store.GetLabel(ctx, r.Payload)
		if err != nil {
			p.Logger.WithError(err).Warn("label lookup failed during fan-out", "payload", r.Payload)
			continue
		}
		if ok {
			labels = append(labels, label)
		}
	}
	return labels
}

func searchEf(k int) int {
	ef := 50
	if ef < k*2 {
		ef = k * 2
	}
	return ef
}
