package mcp

// Tool names.
const (
	ToolRetrieval     = "retrieval"
	ToolListDocuments = "list_documents"
	ToolIndexStatus   = "index_status"
)

// Top-k bounds for the retrieval tool.
const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// RetrievalInput defines the input schema for the retrieval tool.
type RetrievalInput struct {
	Query      string `json:"query" jsonschema:"the natural language or keyword query"`
	SearchType string `json:"search_type,omitempty" jsonschema:"lexical, vector or hybrid (default hybrid)"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"maximum number of chunks to return, default 5, at most 50"`
}

// RetrievalOutput defines the output schema for the retrieval tool.
type RetrievalOutput struct {
	Query    string         `json:"query"`
	Strategy string         `json:"strategy"`
	Results  []ResultOutput `json:"results" jsonschema:"ranked chunks, best first"`
	// Warnings names hybrid branches that failed and were dropped.
	Warnings []string `json:"warnings,omitempty"`
}

// ResultOutput is one ranked chunk.
type ResultOutput struct {
	DocName string  `json:"doc_name" jsonschema:"name of the source document"`
	ChunkID int     `json:"chunk_id" jsonschema:"position of the chunk within the document"`
	Content string  `json:"content" jsonschema:"chunk text"`
	Score   float64 `json:"score" jsonschema:"relevance score; higher is better"`
	Source  string  `json:"source" jsonschema:"index that produced the result: lexical or vector"`
}

// ListDocumentsInput defines the input schema for the list_documents tool (no parameters).
type ListDocumentsInput struct{}

// ListDocumentsOutput defines the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Total     int              `json:"total"`
}

// DocumentOutput is one indexed document.
type DocumentOutput struct {
	DocName string `json:"doc_name"`
	Chunks  int    `json:"chunks"`
	URI     string `json:"uri"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Documents     int           `json:"documents"`
	LexicalChunks int           `json:"lexical_chunks"`
	VectorChunks  int           `json:"vector_chunks"`
	VectorEnabled bool          `json:"vector_enabled"`
	Embeddings    EmbeddingInfo `json:"embeddings"`
}

// EmbeddingInfo describes the embedder behind vector and hybrid search.
type EmbeddingInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	// Status is "ready", "unavailable" or "none".
	Status string `json:"status"`
}
