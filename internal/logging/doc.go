// Package logging writes docrag's structured logs.
//
// Logs are slog JSON lines written to ~/.docrag/logs/docrag.log through a
// size-rotating writer. With --debug the same lines are teed to stderr.
// The MCP stdio server must never write to stdout or stderr, so it logs to
// the file only. The Viewer backs 'docrag logs'.
package logging
