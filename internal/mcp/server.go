package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/telemetry"
	"github.com/Aman-CERP/docrag/pkg/searcher"
	"github.com/Aman-CERP/docrag/pkg/version"
)

// ServerName is reported to clients in the initialize handshake.
const ServerName = "docrag"

// Engine is what the server needs from a lifecycle.Manager.
type Engine interface {
	Search(ctx context.Context, query string, opts searcher.Options) (*searcher.Response, error)
	ListDocuments(ctx context.Context) ([]store.DocumentInfo, error)
	Lexical() store.LexicalIndex
	Vector() store.VectorIndex
	Embedder() embed.Embedder
}

// Server is the MCP server for docrag.
type Server struct {
	mcp    *mcp.Server
	engine Engine
	logger *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: ToolRetrieval,
		Description: "Search the indexed documents. Returns the top_k most relevant chunks with their " +
			"document name, chunk id and score. search_type selects lexical (keyword), vector (semantic) " +
			"or hybrid (both, the default).",
	},
	{
		Name:        ToolListDocuments,
		Description: "List every indexed document with its chunk count.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report index sizes and whether the embedder behind vector search is reachable.",
	},
}

// NewServer creates a new MCP server over engine.
func NewServer(engine Engine) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}

	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version.Version}, nil)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// SetMetrics sets the query metrics collector. When set, a query_metrics
// resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name with JSON-decoded arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolRetrieval:
		in := RetrievalInput{}
		in.Query, _ = args["query"].(string)
		in.SearchType, _ = args["search_type"].(string)
		if k, ok := args["top_k"].(float64); ok {
			in.TopK = int(k)
		}
		resp, err := s.retrieve(ctx, in)
		if err != nil {
			return nil, err
		}
		return ToRetrievalOutput(in.Query, resp), nil
	case ToolListDocuments:
		return s.listDocuments(ctx)
	case ToolIndexStatus:
		return s.indexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// retrieve runs one retrieval call and logs it under a request id. Query
// telemetry is recorded by the engine.
func (s *Server) retrieve(ctx context.Context, in RetrievalInput) (*searcher.Response, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	strategy, err := searcher.ParseStrategy(in.SearchType)
	if err != nil {
		return nil, MapError(err)
	}
	topK := clampTopK(in.TopK)

	s.logger.Info("retrieval_started",
		slog.String("request_id", requestID),
		slog.String("strategy", strategy.String()),
		slog.Int("top_k", topK))

	resp, err := s.engine.Search(ctx, in.Query, searcher.Options{TopK: topK, Strategy: strategy})
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("retrieval_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("retrieval_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(resp.Results)),
		slog.Bool("degraded", resp.Degraded()))
	return resp, nil
}

func (s *Server) listDocuments(ctx context.Context) (*ListDocumentsOutput, error) {
	docs, err := s.engine.ListDocuments(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	out := &ListDocumentsOutput{Documents: make([]DocumentOutput, 0, len(docs)), Total: len(docs)}
	for _, d := range docs {
		out.Documents = append(out.Documents, DocumentOutput{DocName: d.DocName, Chunks: d.Chunks, URI: DocumentURI(d.DocName)})
	}
	return out, nil
}

func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	docs, err := s.engine.ListDocuments(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	out := &IndexStatusOutput{Documents: len(docs)}
	if out.LexicalChunks, err = s.engine.Lexical().Count(ctx); err != nil {
		return nil, MapError(err)
	}

	if vec := s.engine.Vector(); vec != nil {
		out.VectorEnabled = true
		if out.VectorChunks, err = vec.Count(ctx); err != nil {
			return nil, MapError(err)
		}
	}

	out.Embeddings = EmbeddingInfo{Model: "none", Status: "none"}
	if emb := s.engine.Embedder(); emb != nil {
		out.Embeddings = EmbeddingInfo{Model: emb.ModelName(), Dimensions: emb.Dimensions(), Status: "unavailable"}
		if emb.Available(ctx) {
			out.Embeddings.Status = "ready"
		}
	}
	return out, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolRetrieval, Description: tools[0].Description}, s.mcpRetrievalHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolListDocuments, Description: tools[1].Description}, s.mcpListDocumentsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: tools[2].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpRetrievalHandler(ctx context.Context, _ *mcp.CallToolRequest, in RetrievalInput) (
	*mcp.CallToolResult,
	RetrievalOutput,
	error,
) {
	resp, err := s.retrieve(ctx, in)
	if err != nil {
		return nil, RetrievalOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatResults(in.Query, resp)}},
	}, ToRetrievalOutput(in.Query, resp), nil
}

func (s *Server) mcpListDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListDocumentsInput) (
	*mcp.CallToolResult,
	*ListDocumentsOutput,
	error,
) {
	out, err := s.listDocuments(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Transports accepted by Serve.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Serve runs the server on transport until ctx is canceled. addr is only
// used by the streamable HTTP transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case TransportStdio, "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	case TransportHTTP:
		return s.serveHTTP(ctx, addr)
	default:
		return docerrors.ValidationError(fmt.Sprintf("unknown transport: %s", transport), nil).
			WithSuggestion("use stdio or http")
	}
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
