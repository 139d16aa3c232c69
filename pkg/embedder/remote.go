package embedder

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/embedsvc/sentencehnsw/pkg/apperr"
	"github.com/embedsvc/sentencehnsw/pkg/vector"
)

// RemoteAPI implements Embedder against an OpenAI-compatible embeddings
// endpoint: POST with an API key from the environment, body {input, model},
// parsing data[0].embedding from the response.
type RemoteAPI struct {
	client *openai.Client
	model  string
	dim    int
}

var _ Embedder = (*RemoteAPI)(nil)

// NewRemoteAPI constructs a RemoteAPI embedder. baseURL may be empty to use
// the default OpenAI endpoint, or set to target an OpenAI-compatible
// provider.
func NewRemoteAPI(apiKey, model, baseURL string, dim int) *RemoteAPI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(http.DefaultClient),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &RemoteAPI{client: &client, model: model, dim: dim}
}

// Dim returns the configured vector dimensionality.
func (r *RemoteAPI) Dim() int { return r.dim }

// Embed calls the embeddings endpoint for a single sentence.
func (r *RemoteAPI) Embed(ctx context.Context, sentence string) (vector.Vector, error) {
	if sentence == "" {
		return nil, ErrEmptyInput
	}

	params := openai.EmbeddingNewParams{
		Model:          r.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{sentence}},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}

	resp, err := r.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, apperr.Wrap("embedder.RemoteAPI.Embed", apperr.ErrEmbedProvider, err)
	}
	if len(resp.Data) == 0 {
		return nil, apperr.Wrap("embedder.RemoteAPI.Embed", apperr.ErrEmbedProvider,
			fmt.Errorf("response contained no embeddings"))
	}

	raw := resp.Data[0].Embedding
	values := make([]float32, len(raw))
	for i, f := range raw {
		values[i] = float32(f)
	}

	v, err := vector.New(values, r.dim)
	if err != nil {
		return nil, apperr.Wrap("embedder.RemoteAPI.Embed", apperr.ErrBadDimension, err)
	}
	return v, nil
}
