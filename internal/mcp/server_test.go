package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/lifecycle"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/pkg/searcher"
)

const testDims = 32

// MockEngine implements Engine for testing.
type MockEngine struct {
	SearchFn        func(ctx context.Context, query string, opts searcher.Options) (*searcher.Response, error)
	ListDocumentsFn func(ctx context.Context) ([]store.DocumentInfo, error)
	LexicalIndex    store.LexicalIndex
	VectorIndex     store.VectorIndex
	Emb             embed.Embedder
}

func (m *MockEngine) Search(ctx context.Context, query string, opts searcher.Options) (*searcher.Response, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, opts)
	}
	return &searcher.Response{Strategy: opts.Strategy, Results: []searcher.Result{}}, nil
}

func (m *MockEngine) ListDocuments(ctx context.Context) ([]store.DocumentInfo, error) {
	if m.ListDocumentsFn != nil {
		return m.ListDocumentsFn(ctx)
	}
	return []store.DocumentInfo{}, nil
}

func (m *MockEngine) Lexical() store.LexicalIndex { return m.LexicalIndex }
func (m *MockEngine) Vector() store.VectorIndex   { return m.VectorIndex }
func (m *MockEngine) Embedder() embed.Embedder    { return m.Emb }

// newManager builds an in-memory manager holding two documents.
func newManager(t *testing.T) *lifecycle.Manager {
	t.Helper()
	ctx := context.Background()
	m, err := lifecycle.New(
		lifecycle.WithLexical(store.NewBleveLexicalIndex("")),
		lifecycle.WithVector(store.NewHNSWVectorIndex("", store.DefaultVectorConfig(testDims))),
		lifecycle.WithEmbedder(embed.NewStaticEmbedder(testDims)),
		lifecycle.WithChunkSize(60),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.EnsureIndexes(ctx))

	docs := map[string]string{
		"install guide.md": "Install the command line tool with the package manager.",
		"faq.txt":          "Frequently asked questions about billing and invoices.",
	}
	for name, text := range docs {
		_, err := m.IngestDocument(ctx, name, text, lifecycle.IngestOptions{WithEmbeddings: true})
		require.NoError(t, err)
	}
	return m
}

func newTestServer(t *testing.T, engine Engine) *Server {
	t.Helper()
	srv, err := NewServer(engine)
	require.NoError(t, err)
	return srv
}

// =============================================================================
// Construction
// =============================================================================

func TestNewServer_RequiresEngine(t *testing.T) {
	_, err := NewServer(nil)

	assert.Error(t, err)
}

func TestServer_InfoAndTools(t *testing.T) {
	srv := newTestServer(t, &MockEngine{})

	name, ver := srv.Info()
	assert.Equal(t, "docrag", name)
	assert.NotEmpty(t, ver)

	var names []string
	for _, tool := range srv.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{ToolRetrieval, ToolListDocuments, ToolIndexStatus}, names)
	assert.NotNil(t, srv.MCPServer())
}

func TestServer_CallTool_Unknown(t *testing.T) {
	srv := newTestServer(t, &MockEngine{})

	_, err := srv.CallTool(context.Background(), "search_code", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

// =============================================================================
// retrieval
// =============================================================================

func TestRetrieval_PassesOptions(t *testing.T) {
	// Given: an engine capturing the options
	var got searcher.Options
	var gotQuery string
	engine := &MockEngine{
		SearchFn: func(ctx context.Context, query string, opts searcher.Options) (*searcher.Response, error) {
			gotQuery, got = query, opts
			return &searcher.Response{Strategy: opts.Strategy, Results: []searcher.Result{
				{DocName: "a.md", ChunkID: 3, Content: "hello", Score: 2.5, Source: searcher.SourceLexical},
			}}, nil
		},
	}
	srv := newTestServer(t, engine)

	// When: calling retrieval with JSON-decoded arguments
	res, err := srv.CallTool(context.Background(), ToolRetrieval, map[string]any{
		"query": "hello", "search_type": "lexical", "top_k": float64(3),
	})

	// Then: the options reach the engine and results are converted
	require.NoError(t, err)
	assert.Equal(t, "hello", gotQuery)
	assert.Equal(t, searcher.Options{TopK: 3, Strategy: searcher.Lexical}, got)
	out := res.(RetrievalOutput)
	assert.Equal(t, "lexical", out.Strategy)
	require.Len(t, out.Results, 1)
	assert.Equal(t, ResultOutput{DocName: "a.md", ChunkID: 3, Content: "hello", Score: 2.5, Source: "lexical"}, out.Results[0])
}

func TestRetrieval_TopKClamped(t *testing.T) {
	tests := []struct {
		name string
		topK any
		want int
	}{
		{"default", nil, DefaultTopK},
		{"zero", float64(0), DefaultTopK},
		{"negative", float64(-4), DefaultTopK},
		{"too large", float64(500), MaxTopK},
		{"in range", float64(7), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int
			engine := &MockEngine{SearchFn: func(ctx context.Context, query string, opts searcher.Options) (*searcher.Response, error) {
				got = opts.TopK
				return &searcher.Response{}, nil
			}}
			args := map[string]any{"query": "q"}
			if tt.topK != nil {
				args["top_k"] = tt.topK
			}

			_, err := newTestServer(t, engine).CallTool(context.Background(), ToolRetrieval, args)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetrieval_InvalidParams(t *testing.T) {
	srv := newTestServer(t, &MockEngine{})

	tests := map[string]map[string]any{
		"missing query":    {},
		"blank query":      {"query": "   "},
		"unknown strategy": {"query": "q", "search_type": "fuzzy"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := srv.CallTool(context.Background(), ToolRetrieval, args)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
		})
	}
}

func TestRetrieval_EngineErrorMapped(t *testing.T) {
	engine := &MockEngine{SearchFn: func(ctx context.Context, query string, opts searcher.Options) (*searcher.Response, error) {
		return nil, docerrors.IndexUnavailableError(store.IndexVector, errors.New("closed"))
	}}

	_, err := newTestServer(t, engine).CallTool(context.Background(), ToolRetrieval, map[string]any{"query": "q"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeIndexUnavailable, mcpErr.Code)
}

func TestRetrieval_DegradedWarnings(t *testing.T) {
	engine := &MockEngine{SearchFn: func(ctx context.Context, query string, opts searcher.Options) (*searcher.Response, error) {
		return &searcher.Response{
			Strategy: searcher.Hybrid,
			Results:  []searcher.Result{{DocName: "a.md", Source: searcher.SourceLexical}},
			Warnings: []searcher.BranchError{{Branch: searcher.SourceVector, Err: errors.New("gateway down")}},
		}, nil
	}}

	res, err := newTestServer(t, engine).CallTool(context.Background(), ToolRetrieval, map[string]any{"query": "q"})

	require.NoError(t, err)
	out := res.(RetrievalOutput)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "vector search failed")
}

func TestRetrieval_RealIndexes(t *testing.T) {
	// Given: a manager with two ingested documents
	srv := newTestServer(t, newManager(t))

	// When: searching lexically for a term of one document
	res, err := srv.CallTool(context.Background(), ToolRetrieval, map[string]any{
		"query": "invoices", "search_type": "lexical",
	})

	// Then: only that document matches
	require.NoError(t, err)
	out := res.(RetrievalOutput)
	require.NotEmpty(t, out.Results)
	for _, r := range out.Results {
		assert.Equal(t, "faq.txt", r.DocName)
	}
}

// =============================================================================
// list_documents and index_status
// =============================================================================

func TestListDocuments(t *testing.T) {
	srv := newTestServer(t, newManager(t))

	res, err := srv.CallTool(context.Background(), ToolListDocuments, nil)

	require.NoError(t, err)
	out := res.(*ListDocumentsOutput)
	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Documents, 2)
	assert.Equal(t, "faq.txt", out.Documents[0].DocName)
	assert.Equal(t, "docrag://documents/install%20guide.md", out.Documents[1].URI)
}

func TestIndexStatus(t *testing.T) {
	srv := newTestServer(t, newManager(t))

	res, err := srv.CallTool(context.Background(), ToolIndexStatus, nil)

	require.NoError(t, err)
	out := res.(*IndexStatusOutput)
	assert.Equal(t, 2, out.Documents)
	assert.True(t, out.VectorEnabled)
	assert.Positive(t, out.LexicalChunks)
	assert.Equal(t, out.LexicalChunks, out.VectorChunks)
	assert.Equal(t, testDims, out.Embeddings.Dimensions)
	assert.Equal(t, "ready", out.Embeddings.Status)
}

func TestIndexStatus_LexicalOnly(t *testing.T) {
	lexical := store.NewBleveLexicalIndex("")
	require.NoError(t, lexical.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = lexical.Close() })
	srv := newTestServer(t, &MockEngine{LexicalIndex: lexical})

	res, err := srv.CallTool(context.Background(), ToolIndexStatus, nil)

	require.NoError(t, err)
	out := res.(*IndexStatusOutput)
	assert.False(t, out.VectorEnabled)
	assert.Equal(t, "none", out.Embeddings.Status)
}

// =============================================================================
// Protocol round trip
// =============================================================================

func TestServer_OverInMemoryTransport(t *testing.T) {
	// Given: a client session connected to the server
	ctx := context.Background()
	srv := newTestServer(t, newManager(t))
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer func() { _ = serverSession.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	// When: listing tools
	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	// Then: the three tools are advertised
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolRetrieval, ToolListDocuments, ToolIndexStatus}, names)

	// When: calling retrieval
	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolRetrieval,
		Arguments: map[string]any{"query": "package manager", "search_type": "lexical"},
	})

	// Then: a markdown summary and structured results come back
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "install guide.md")
	assert.NotNil(t, result.StructuredContent)

	// When: reading a document resource
	doc, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: DocumentURI("faq.txt")})

	// Then: the indexed text is returned
	require.NoError(t, err)
	require.Len(t, doc.Contents, 1)
	assert.Equal(t, "Frequently asked questions about billing and invoices.", doc.Contents[0].Text)
}

func TestServer_Serve_UnknownTransport(t *testing.T) {
	srv := newTestServer(t, &MockEngine{})

	err := srv.Serve(context.Background(), "sse", "")

	assert.True(t, docerrors.IsValidation(err))
}
