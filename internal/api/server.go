// Package api serves docrag over HTTP: search, document ingestion, listing
// and deletion under /v1, plus a /healthz probe.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/lifecycle"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/pkg/searcher"
)

// DefaultMaxBodyBytes caps request bodies when Config.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 32 << 20

// Backend is what the API needs from a lifecycle.Manager.
type Backend interface {
	Search(ctx context.Context, query string, opts searcher.Options) (*searcher.Response, error)
	IngestDocument(ctx context.Context, docName, text string, opts lifecycle.IngestOptions) (*lifecycle.IngestResult, error)
	DeleteDocument(ctx context.Context, docName string) (*lifecycle.DeleteResult, error)
	ListDocuments(ctx context.Context) ([]store.DocumentInfo, error)
}

// Config holds request defaults.
type Config struct {
	// TopK applies when a search omits top_k.
	TopK int
	// Strategy applies when a search omits strategy.
	Strategy searcher.Strategy
	// WithEmbeddings applies when an ingest omits with_embeddings.
	WithEmbeddings bool
	MaxBodyBytes   int64
}

// Server routes HTTP requests to a Backend.
type Server struct {
	backend Backend
	cfg     Config
	router  *gin.Engine
	logger  *slog.Logger
}

// New builds the router. It does not listen.
func New(backend Backend, cfg Config) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{backend: backend, cfg: cfg, logger: slog.Default()}
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.accessLog(), bodyLimit(cfg.MaxBodyBytes))

	r.GET("/healthz", s.health)
	v1 := r.Group("/v1")
	{
		v1.POST("/search", s.search)
		v1.GET("/documents", s.listDocuments)
		v1.POST("/documents", s.ingestDocument)
		v1.DELETE("/documents/:name", s.deleteDocument)
	}
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, docerrors.New(docerrors.ErrCodeInvalidPath, "no such route", nil), nil)
	})

	s.router = r
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled, then drains
// in-flight requests for up to five seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_server_listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http_server_stopped")
	return nil
}
