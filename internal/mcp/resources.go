package mcp

import (
	"context"
	"encoding/json"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	uriScheme         = "docrag://"
	DocumentsURI      = uriScheme + "documents"
	QueryMetricsURI   = uriScheme + "query_metrics"
	documentURIPrefix = DocumentsURI + "/"
)

// DocumentURI returns the resource URI of an indexed document.
func DocumentURI(docName string) string {
	return documentURIPrefix + url.PathEscape(docName)
}

// registerResources registers the document list and the per-document
// text template.
func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         DocumentsURI,
		Name:        "documents",
		Description: "Indexed documents with their chunk counts",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: documentURIPrefix + "{name}",
		Name:        "document",
		Description: "Indexed text of one document, chunks joined in order",
		MIMEType:    "text/plain",
	}, s.handleDocumentResource)
}

func (s *Server) handleDocumentsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	out, err := s.listDocuments(ctx)
	if err != nil {
		return nil, err
	}
	content, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return textResult(DocumentsURI, "application/json", string(content)), nil
}

func (s *Server) handleDocumentResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return s.readDocument(ctx, req.Params.URI)
}

// readDocument reassembles a document from its lexical chunks.
func (s *Server) readDocument(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	escaped, ok := strings.CutPrefix(uri, documentURIPrefix)
	if !ok || escaped == "" {
		return nil, NewResourceNotFoundError(uri)
	}
	docName, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, NewInvalidParamsError("malformed document uri: " + uri)
	}

	chunks, err := s.engine.Lexical().DocumentChunks(ctx, docName)
	if err != nil {
		return nil, MapError(err)
	}
	if len(chunks) == 0 {
		return nil, NewResourceNotFoundError(uri)
	}

	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Content)
	}
	return textResult(uri, documentMimeType(docName), sb.String()), nil
}

// documentMimeType is the type of the extracted text served for docName.
// Only markdown survives extraction as markup.
func documentMimeType(docName string) string {
	switch strings.ToLower(filepath.Ext(docName)) {
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/plain"
	}
}

func textResult(uri, mimeType, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mimeType, Text: text}},
	}
}

// QueryMetricsOutput is the JSON structure for the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	QueryTypeCounts     map[string]int64    `json:"query_type_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	Since         string  `json:"since"`
	ZeroResultPct float64 `json:"zero_result_pct"`
	RepeatRate    float64 `json:"repeat_rate"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "query_metrics",
		URI:         QueryMetricsURI,
		Description: "Query patterns since the server started",
		MIMEType:    "application/json",
	}, s.handleQueryMetricsResource)
}

func (s *Server) handleQueryMetricsResource(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	out, err := s.queryMetrics()
	if err != nil {
		return nil, err
	}
	content, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return textResult(QueryMetricsURI, "application/json", string(content)), nil
}

func (s *Server) queryMetrics() (*QueryMetricsOutput, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}

	snapshot := metrics.Snapshot()
	out := &QueryMetricsOutput{
		Summary: QueryMetricsSummary{
			TotalQueries:  snapshot.TotalQueries,
			Since:         snapshot.Since.UTC().Format(time.RFC3339),
			ZeroResultPct: snapshot.ZeroResultPercentage(),
			RepeatRate:    snapshot.RepeatRate(),
		},
		QueryTypeCounts:     make(map[string]int64, len(snapshot.QueryTypeCounts)),
		TopTerms:            make([]QueryTermCount, 0, len(snapshot.TopTerms)),
		ZeroResultQueries:   snapshot.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snapshot.LatencyDistribution)),
	}
	for qt, count := range snapshot.QueryTypeCounts {
		out.QueryTypeCounts[string(qt)] = count
	}
	for _, tc := range snapshot.TopTerms {
		out.TopTerms = append(out.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	for bucket, count := range snapshot.LatencyDistribution {
		out.LatencyDistribution[string(bucket)] = count
	}
	return out, nil
}
