// Package indexer turns a document's text into records in both indexes.
//
// # Pipeline
//
//	text ──chunk.Split──▶ chunks ──▶ lexical.UpsertBatch   (always)
//	                        │
//	                        └──ants pool──▶ embed ──▶ vector.UpsertBatch
//	                                         (withEmbeddings only)
//
// Chunk ids come from one Split call, so a lexical record and a vector
// record for the same (doc_name, chunk_id) always hold the same content.
//
// # Degradation
//
// Chunks whose content is only whitespace are skipped by both indexes.
// Chunks that fail to embed, or embed to an empty vector, are logged,
// counted and left out of the vector index; the rest of the document is
// still indexed. When one index rejects a write the other index is still
// written and the returned error names the failed index.
//
// # Usage
//
//	idx, err := indexer.New(
//	    indexer.WithLexical(lex),
//	    indexer.WithVector(vec),
//	    indexer.WithEmbedder(emb),
//	    indexer.WithConcurrency(4),
//	)
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	report, err := idx.Ingest(ctx, "handbook.pdf", text, true)
package indexer
