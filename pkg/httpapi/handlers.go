package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/embedsvc/sentencehnsw/pkg/apperr"
	"github.com/embedsvc/sentencehnsw/pkg/pipeline"
	"github.com/embedsvc/sentencehnsw/pkg/snapshot"
)

type initRequest struct {
	Sentences []string    `json:"sentences"`
	Vectors   [][]float32 `json:"vectors"`
}

type embedRequest struct {
	Sentences []string `json:"sentences"`
}

type embedResponse struct {
	Sentences []string    `json:"sentences"`
	Vectors   [][]float32 `json:"vectors"`
}

type labelledRequest struct {
	Sentences []string `json:"sentences"`
	Labels    []string `json:"labels"`
}

type outcomeResponse struct {
	SearchResult   []string  `json:"searchResult"`
	SearchDistance []float32 `json:"searchDistance"`
	Insertion      string    `json:"insertion"`
	Labels         []string  `json:"labels,omitempty"`
}

func toOutcomeResponse(o *pipeline.Outcome) outcomeResponse {
	return outcomeResponse{
		SearchResult:   o.SearchResult,
		SearchDistance: o.SearchDistance,
		Insertion:      o.Insertion,
		Labels:         o.Labels,
	}
}

// respondError maps an apperr-wrapped error onto an HTTP status and a
// {"error": "..."} body, logging the failure (with its StoreError op/kind,
// if any) against the request-scoped logger first.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrBadInput), errors.Is(err, apperr.ErrBadDimension):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrStoreUnavailable), errors.Is(err, apperr.ErrEmbedProvider),
		errors.Is(err, apperr.ErrCorrupt), errors.Is(err, apperr.ErrPersist), errors.Is(err, apperr.ErrIndex):
		status = http.StatusInternalServerError
	}
	s.loggerFrom(c).WithError(err).Error("request failed", "status", status)
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleSearch(c *gin.Context) {
	var query []float32
	if err := c.ShouldBindJSON(&query); err != nil {
		s.respondError(c, apperr.Wrap("httpapi.handleSearch", apperr.ErrBadInput, err))
		return
	}
	if len(query) != s.Dim {
		s.respondError(c, apperr.Wrap("httpapi.handleSearch", apperr.ErrBadDimension, errors.New("query vector has wrong dimension")))
		return
	}

	payload, ok := s.Pipeline.Search(query)
	c.Header("Content-Type", "text/plain; charset=utf-8")
	if !ok {
		c.String(http.StatusOK, "")
		return
	}
	c.String(http.StatusOK, payload+"\n")
}

func (s *Server) handleInit(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap("httpapi.handleInit", apperr.ErrBadInput, err))
		return
	}
	if err := s.Pipeline.Init(req.Vectors, req.Sentences); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleUpdate(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap("httpapi.handleUpdate", apperr.ErrBadInput, err))
		return
	}
	if err := s.Pipeline.Update(req.Vectors, req.Sentences); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleEmbed(c *gin.Context) {
	var req embedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap("httpapi.handleEmbed", apperr.ErrBadInput, err))
		return
	}

	vectors := make([][]float32, len(req.Sentences))
	for i, sentence := range req.Sentences {
		v, err := s.Pipeline.Embed(c.Request.Context(), sentence)
		if err != nil {
			s.respondError(c, err)
			return
		}
		vectors[i] = []float32(v)
	}

	c.JSON(http.StatusOK, embedResponse{Sentences: req.Sentences, Vectors: vectors})
}

func (s *Server) handleEmbedSearchInsert(c *gin.Context) {
	shouldInsert := hasQueryFlag(c, "should_insert")

	var req embedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap("httpapi.handleEmbedSearchInsert", apperr.ErrBadInput, err))
		return
	}

	out, err := s.runBatch(c.Request.Context(), req.Sentences, nil, false, shouldInsert, 5)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleEmbedLabelSearchInsert(c *gin.Context) {
	shouldInsert := hasQueryFlag(c, "should_insert")

	var req labelledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap("httpapi.handleEmbedLabelSearchInsert", apperr.ErrBadInput, err))
		return
	}
	if len(req.Labels) != len(req.Sentences) {
		s.respondError(c, apperr.Wrap("httpapi.handleEmbedLabelSearchInsert", apperr.ErrBadInput,
			errors.New("labels and sentences must be the same length")))
		return
	}

	out, err := s.runBatch(c.Request.Context(), req.Sentences, req.Labels, true, shouldInsert, 15)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) runBatch(ctx context.Context, sentences, labels []string, withLabels, shouldInsert bool, k int) ([]outcomeResponse, error) {
	results := make([]outcomeResponse, 0, len(sentences))
	for i, sentence := range sentences {
		label := ""
		if withLabels && i < len(labels) {
			label = labels[i]
		}
		out, err := s.Pipeline.ProcessSentence(ctx, sentence, label, withLabels, shouldInsert, k)
		if err != nil {
			return nil, err
		}
		results = append(results, toOutcomeResponse(out))
	}
	return results, nil
}

func (s *Server) handleFlush(c *gin.Context) {
	if err := snapshot.Save(s.Index, s.HNSWPath); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"size": s.Index.Size()})
}

func (s *Server) handleLoad(c *gin.Context) {
	err := snapshot.Restore(s.Index, s.HNSWPath)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		s.loggerFrom(c).Warn("load requested but no snapshot on disk, leaving index as-is")
	default:
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"size": s.Index.Size()})
}

func (s *Server) handleWipe(c *gin.Context) {
	if err := s.Store.Truncate(c.Request.Context()); err != nil {
		s.respondError(c, apperr.Wrap("httpapi.handleWipe", apperr.ErrStoreUnavailable, err))
		return
	}
	if err := s.Index.Build(nil, nil); err != nil {
		s.respondError(c, apperr.Wrap("httpapi.handleWipe", apperr.ErrIndex, err))
		return
	}
	if err := snapshot.Save(s.Index, s.HNSWPath); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"size": s.Index.Size()})
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"size":   s.Index.Size(),
	})
}
