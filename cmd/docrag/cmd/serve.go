package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/api"
	"github.com/Aman-CERP/docrag/internal/mcp"
	"github.com/Aman-CERP/docrag/pkg/searcher"
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	http      bool
	transport string
	addr      string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over MCP or HTTP",
		Long: `Serve the index until interrupted.

By default an MCP server runs on stdio, exposing the retrieval,
list_documents and index_status tools plus document resources. Nothing
but JSON-RPC is written to stdout in this mode; logs go to the log file.

  --transport http   serves MCP over streamable HTTP on --addr
  --http             serves the REST API (/v1/search, /v1/documents) on --addr

Examples:
  docrag serve
  docrag serve --transport http --addr 127.0.0.1:8765
  docrag serve --http`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runServe(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.http, "http", false, "Serve the REST API instead of MCP")
	cmd.Flags().StringVar(&opts.transport, "transport", mcp.TransportStdio, "MCP transport: stdio or http")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address for HTTP modes (default: server.http_addr)")
	cmd.MarkFlagsMutuallyExclusive("http", "transport")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	return withSession(ctx, func(ctx context.Context, s *session) error {
		addr := opts.addr
		if addr == "" {
			addr = s.cfg.Server.HTTPAddr
		}

		if opts.http {
			strategy, err := searcher.ParseStrategy(s.cfg.Search.Strategy)
			if err != nil {
				return err
			}
			srv, err := api.New(s.manager, api.Config{
				TopK:           s.cfg.Search.TopK,
				Strategy:       strategy,
				WithEmbeddings: s.cfg.Ingest.WithEmbeddings,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Serving HTTP API on http://%s\n", addr)
			return srv.ListenAndServe(ctx, addr)
		}

		srv, err := mcp.NewServer(s.manager)
		if err != nil {
			return err
		}
		srv.SetMetrics(s.queries)
		if opts.transport == mcp.TransportHTTP {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Serving MCP on http://%s\n", addr)
		}
		return srv.Serve(ctx, opts.transport, addr)
	})
}
