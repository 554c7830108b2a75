// Package chunk splits extracted document text into fixed-width chunks.
//
// Chunking is pure fixed-width slicing counted in characters (runes), with
// no sentence or word boundary awareness. Chunk ids are positions in the
// sequence, so the same text and size always produce the same ids. The
// Indexer relies on this to give a lexical hit and a vector hit for the
// same (doc_name, chunk_id) the same content.
package chunk

import (
	"iter"
	"unicode/utf8"

	"github.com/Aman-CERP/docrag/internal/store"
)

// DefaultSize is the default maximum chunk size in characters.
const DefaultSize = 500

// Split lazily yields consecutive, non-overlapping substrings of text of at
// most size characters each, paired with a dense 0-based chunk id.
// Empty text yields nothing. A non-positive size selects DefaultSize.
//
// Slicing happens on rune boundaries so multi-byte text is never cut
// mid-character; concatenating every yielded chunk reproduces text exactly.
func Split(text string, size int) iter.Seq2[int, string] {
	if size <= 0 {
		size = DefaultSize
	}
	return func(yield func(int, string) bool) {
		id, start, n := 0, 0, 0
		for i := range text {
			if n == size {
				if !yield(id, text[start:i]) {
					return
				}
				id++
				start, n = i, 0
			}
			n++
		}
		if start < len(text) {
			yield(id, text[start:])
		}
	}
}

// Count returns the number of chunks Split yields: ceil(L/size) where L is
// the character length of text.
func Count(text string, size int) int {
	if size <= 0 {
		size = DefaultSize
	}
	l := utf8.RuneCountInString(text)
	return (l + size - 1) / size
}

// Collect splits text into store chunks of docName with no vectors.
func Collect(docName, text string, size int) []store.Chunk {
	chunks := make([]store.Chunk, 0, Count(text, size))
	for id, content := range Split(text, size) {
		chunks = append(chunks, store.Chunk{DocName: docName, ChunkID: id, Content: content})
	}
	return chunks
}
