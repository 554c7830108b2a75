// Package searcher answers queries against the lexical index, the vector
// index, or both.
//
//   - [LexicalSearcher]: BM25 search over the lexical index
//   - [VectorSearcher]: embeds the query, then cosine k-NN over the vector index
//   - [Retriever]: resolves a [Strategy] and, for hybrid, fuses both branches
//
// # Hybrid fusion
//
// Both branches run concurrently with the same topK. Their results are
// concatenated, stably sorted by score descending (ties: lexical before
// vector, then doc_name, then chunk_id), deduplicated by
// (doc_name, chunk_id) keeping the first occurrence, and truncated to topK.
//
// Raw BM25 and cosine scores are on different scales and are compared as
// is. [NormalizeMinMax] rescales each branch into [0, 1] first.
//
// # Degradation
//
// When one hybrid branch fails, the other branch's results are returned
// and the failure is reported in [Response.Warnings]. Only when both fail,
// or the caller's context ends, does Search return an error.
package searcher
