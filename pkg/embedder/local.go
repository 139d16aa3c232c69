package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/embedsvc/sentencehnsw/pkg/apperr"
	"github.com/embedsvc/sentencehnsw/pkg/vector"
)

// LocalONNX implements Embedder by dlopen-ing a native ONNX Runtime shared
// library and invoking an exported inference entry point in-process. No
// network call is ever made; EmbedProviderError{model} covers both a
// library that fails to load and an inference call that returns a fault
// code.
//
// The loaded library must export a C function with the signature:
//
//	int32_t sentencehnsw_embed(const char* text, float* out, int32_t outLen)
//
// returning 0 on success and writing exactly outLen floats to out.
type LocalONNX struct {
	mu      sync.Mutex
	handle  uintptr
	embedFn func(text string, out *float32, outLen int32) int32
	dim     int
}

var _ Embedder = (*LocalONNX)(nil)

// NewLocalONNX loads libPath and binds its inference entry point.
func NewLocalONNX(libPath string, dim int) (*LocalONNX, error) {
	handle, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, apperr.Wrap("embedder.NewLocalONNX", apperr.ErrEmbedProvider, err)
	}

	l := &LocalONNX{handle: handle, dim: dim}
	purego.RegisterLibFunc(&l.embedFn, handle, "sentencehnsw_embed")
	return l, nil
}

// Dim returns the configured vector dimensionality.
func (l *LocalONNX) Dim() int { return l.dim }

// Embed runs the loaded model in-process for a single sentence.
func (l *LocalONNX) Embed(_ context.Context, sentence string) (vector.Vector, error) {
	if sentence == "" {
		return nil, ErrEmptyInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]float32, l.dim)
	rc := l.embedFn(sentence, &out[0], int32(l.dim))
	if rc != 0 {
		return nil, apperr.Wrap("embedder.LocalONNX.Embed", apperr.ErrEmbedProvider,
			fmt.Errorf("model inference returned fault code %d", rc))
	}

	return vector.New(out, l.dim)
}

// Close unloads the native library.
func (l *LocalONNX) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == 0 {
		return nil
	}
	err := purego.Dlclose(l.handle)
	l.handle = 0
	return err
}
