package indexer

import "context"

// Ingester is the contract the lifecycle manager and servers depend on.
//
// Implementations must be safe for concurrent use.
type Ingester interface {
	// Ingest chunks text and writes it under docName. Previously stored
	// chunks of docName are kept; callers wanting replacement delete first.
	//
	// The Report is returned even when err is non-nil, unless the input
	// itself was invalid.
	Ingest(ctx context.Context, docName, text string, withEmbeddings bool) (*Report, error)

	Close() error
}
