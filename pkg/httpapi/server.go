// Package httpapi is the HTTP Surface (C7): a thin gin-gonic adapter
// mapping the service's endpoints onto the Request Pipeline, the ANN
// Index, and the Metadata Store.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/embedsvc/sentencehnsw/pkg/index"
	"github.com/embedsvc/sentencehnsw/pkg/logging"
	"github.com/embedsvc/sentencehnsw/pkg/metastore"
	"github.com/embedsvc/sentencehnsw/pkg/pipeline"
)

// Server owns the gin engine and the components every handler needs.
type Server struct {
	Pipeline     *pipeline.Pipeline
	Index        *index.HNSW
	Store        *metastore.Store
	HNSWPath     string
	Dim          int
	MaxBodyBytes int64
	Logger       logging.Logger

	engine *gin.Engine
}

// New builds a Server and registers its routes.
func New(p *pipeline.Pipeline, idx *index.HNSW, store *metastore.Store, hnswPath string, dim int, maxBodyBytes int64, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Server{
		Pipeline:     p,
		Index:        idx,
		Store:        store,
		HNSWPath:     hnswPath,
		Dim:          dim,
		MaxBodyBytes: maxBodyBytes,
		Logger:       logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLoggingMiddleware())
	engine.Use(s.bodyLimitMiddleware())
	s.engine = engine
	s.routes()
	return s
}

// Handler returns the net/http handler backing the service.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.POST("/search", s.handleSearch)
	s.engine.POST("/init", s.handleInit)
	s.engine.POST("/update", s.handleUpdate)
	s.engine.POST("/embed", s.handleEmbed)
	s.engine.POST("/embed_search_insert", s.handleEmbedSearchInsert)
	s.engine.POST("/embed_label_search_insert", s.handleEmbedLabelSearchInsert)
	s.engine.PATCH("/flush", s.handleFlush)
	s.engine.PATCH("/load", s.handleLoad)
	s.engine.PATCH("/wipe", s.handleWipe)
	s.engine.GET("/healthz", s.handleHealthz)
}

func (s *Server) bodyLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxBodyBytes)
		c.Next()
	}
}

func (s *Server) requestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Set("requestID", requestID)
		log := s.Logger.With("requestID", requestID, "path", c.Request.URL.Path)
		c.Set("logger", log)

		c.Next()

		log.Info("request handled", "status", c.Writer.Status())
	}
}

func (s *Server) loggerFrom(c *gin.Context) logging.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(logging.Logger); ok {
			return l
		}
	}
	return s.Logger
}

// hasQueryFlag reports whether name is present in the query string at all,
// regardless of its value (including empty) — matching the reference's
// "starts_with(should_insert)" presence check.
func hasQueryFlag(c *gin.Context, name string) bool {
	_, ok := c.GetQuery(name)
	return ok
}
