// Package embedder abstracts the sentence→vector source (C4): a hosted
// API or a local model runtime. The pipeline depends only on the Embedder
// interface, never on a concrete provider.
package embedder

import (
	"context"
	"errors"

	"github.com/embedsvc/sentencehnsw/pkg/vector"
)

// Embedder turns a sentence into a fixed-dimension vector.
type Embedder interface {
	// Embed returns the embedding for a single sentence.
	Embed(ctx context.Context, sentence string) (vector.Vector, error)
	// Dim reports the dimensionality of vectors this embedder produces.
	Dim() int
}

// ErrEmptyInput is returned when an empty sentence is passed to Embed.
var ErrEmptyInput = errors.New("embedder: empty sentence")
