package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/telemetry"
)

func TestDocumentURI_EscapesName(t *testing.T) {
	assert.Equal(t, "docrag://documents/a.md", DocumentURI("a.md"))
	assert.Equal(t, "docrag://documents/my%20notes.txt", DocumentURI("my notes.txt"))
}

func TestReadDocument(t *testing.T) {
	// Given: a server over real indexes
	srv := newTestServer(t, newManager(t))

	// When: reading an escaped document uri
	res, err := srv.readDocument(context.Background(), DocumentURI("install guide.md"))

	// Then: the text comes back with the markdown type
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "text/markdown", res.Contents[0].MIMEType)
	assert.Equal(t, "Install the command line tool with the package manager.", res.Contents[0].Text)
}

func TestReadDocument_NotFound(t *testing.T) {
	srv := newTestServer(t, newManager(t))

	for _, uri := range []string{DocumentURI("missing.md"), "docrag://documents/", "file:///etc/passwd"} {
		_, err := srv.readDocument(context.Background(), uri)

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr, uri)
		assert.Equal(t, ErrCodeDocumentNotFound, mcpErr.Code, uri)
	}
}

func TestDocumentsResource(t *testing.T) {
	srv := newTestServer(t, newManager(t))

	res, err := srv.handleDocumentsResource(context.Background(), nil)

	require.NoError(t, err)
	var out ListDocumentsOutput
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &out))
	assert.Equal(t, 2, out.Total)
}

func TestQueryMetrics(t *testing.T) {
	// Given: a server without metrics
	srv := newTestServer(t, &MockEngine{})

	// Then: the resource reports unavailability
	_, err := srv.queryMetrics()
	require.Error(t, err)

	// When: metrics are attached and a query recorded
	qm := telemetry.NewQueryMetrics(nil)
	t.Cleanup(func() { _ = qm.Close() })
	srv.SetMetrics(qm)
	qm.Record(telemetry.QueryEvent{
		Query: "billing invoices", QueryType: telemetry.QueryTypeHybrid,
		ResultCount: 0, Latency: 20 * time.Millisecond, Timestamp: time.Now(),
	})

	// Then: the snapshot is exposed
	out, err := srv.queryMetrics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Summary.TotalQueries)
	assert.Equal(t, int64(1), out.QueryTypeCounts["hybrid"])
	assert.Equal(t, []string{"billing invoices"}, out.ZeroResultQueries)
	assert.InDelta(t, 100.0, out.Summary.ZeroResultPct, 0.001)
}

func TestDocumentMimeType(t *testing.T) {
	assert.Equal(t, "text/markdown", documentMimeType("README.MD"))
	assert.Equal(t, "text/plain", documentMimeType("report.pdf"))
}
