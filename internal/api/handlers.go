package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/lifecycle"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/pkg/indexer"
	"github.com/Aman-CERP/docrag/pkg/searcher"
	"github.com/Aman-CERP/docrag/pkg/version"
)

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query    string `json:"query"`
	Strategy string `json:"strategy,omitempty"`
	// TopK is a pointer so an explicit zero reaches the retriever.
	TopK *int `json:"top_k,omitempty"`
}

// IngestRequest is the body of POST /v1/documents.
type IngestRequest struct {
	DocName        string `json:"doc_name"`
	Text           string `json:"text"`
	WithEmbeddings *bool  `json:"with_embeddings,omitempty"`
	Replace        bool   `json:"replace,omitempty"`
}

// IngestResponse summarises one ingestion.
type IngestResponse struct {
	DocName        string                 `json:"doc_name"`
	Chunks         int                    `json:"chunks"`
	LexicalWritten int                    `json:"lexical_written"`
	VectorWritten  int                    `json:"vector_written"`
	Skipped        []indexer.SkippedChunk `json:"skipped,omitempty"`
	Replaced       *DeleteResponse        `json:"replaced,omitempty"`
	DurationMS     int64                  `json:"duration_ms"`
}

// DeleteResponse summarises one document delete.
type DeleteResponse struct {
	DocName string          `json:"doc_name"`
	Removed int             `json:"removed"`
	Lexical OutcomeResponse `json:"lexical"`
	Vector  OutcomeResponse `json:"vector"`
}

// OutcomeResponse is the delete outcome of one index.
type OutcomeResponse struct {
	Removed int    `json:"removed"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DocumentsResponse is the body of GET /v1/documents.
type DocumentsResponse struct {
	Documents []store.DocumentInfo `json:"documents"`
	Total     int                  `json:"total"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
}

func (s *Server) search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		status, bErr := bindError(err)
		writeError(c, status, bErr, nil)
		return
	}

	opts := searcher.Options{TopK: s.cfg.TopK, Strategy: s.cfg.Strategy}
	if req.TopK != nil {
		opts.TopK = *req.TopK
	}
	if req.Strategy != "" {
		strategy, err := searcher.ParseStrategy(req.Strategy)
		if err != nil {
			writeError(c, 0, err, nil)
			return
		}
		opts.Strategy = strategy
	}

	resp, err := s.backend.Search(c.Request.Context(), req.Query, opts)
	if err != nil {
		writeError(c, 0, err, nil)
		return
	}
	if resp.Results == nil {
		resp.Results = []searcher.Result{}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listDocuments(c *gin.Context) {
	docs, err := s.backend.ListDocuments(c.Request.Context())
	if err != nil {
		writeError(c, 0, err, nil)
		return
	}
	if docs == nil {
		docs = []store.DocumentInfo{}
	}
	c.JSON(http.StatusOK, DocumentsResponse{Documents: docs, Total: len(docs)})
}

func (s *Server) ingestDocument(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		status, bErr := bindError(err)
		writeError(c, status, bErr, nil)
		return
	}
	if strings.TrimSpace(req.DocName) == "" {
		writeError(c, http.StatusBadRequest, docerrors.ValidationError("doc_name is required", nil), nil)
		return
	}

	withEmbeddings := s.cfg.WithEmbeddings
	if req.WithEmbeddings != nil {
		withEmbeddings = *req.WithEmbeddings
	}

	res, err := s.backend.IngestDocument(c.Request.Context(), req.DocName, req.Text, lifecycle.IngestOptions{
		WithEmbeddings:  withEmbeddings,
		ReplaceExisting: req.Replace,
	})
	out := toIngestResponse(req.DocName, res)
	if err != nil {
		var partial any
		if out != nil {
			partial = out
		}
		writeError(c, 0, err, partial)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) deleteDocument(c *gin.Context) {
	name := c.Param("name")
	res, err := s.backend.DeleteDocument(c.Request.Context(), name)
	out := toDeleteResponse(res)
	if err != nil {
		var partial any
		if out != nil {
			partial = out
		}
		writeError(c, 0, err, partial)
		return
	}
	c.JSON(http.StatusOK, out)
}

func toIngestResponse(docName string, res *lifecycle.IngestResult) *IngestResponse {
	if res == nil {
		return nil
	}
	out := &IngestResponse{DocName: docName, Replaced: toDeleteResponse(res.Replaced)}
	if r := res.Report; r != nil {
		out.Chunks = r.Chunks
		out.LexicalWritten = r.LexicalWritten()
		out.VectorWritten = r.VectorWritten()
		out.Skipped = r.Skipped
		out.DurationMS = r.Duration.Milliseconds()
	}
	return out
}

func toDeleteResponse(res *lifecycle.DeleteResult) *DeleteResponse {
	if res == nil {
		return nil
	}
	outcome := func(o lifecycle.IndexOutcome) OutcomeResponse {
		r := OutcomeResponse{Removed: o.Removed, Skipped: o.Skipped}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		return r
	}
	return &DeleteResponse{
		DocName: res.DocName,
		Removed: res.Removed(),
		Lexical: outcome(res.Lexical),
		Vector:  outcome(res.Vector),
	}
}
