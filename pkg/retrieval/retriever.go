package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ai-docchat-be/pkg/document"
	"ai-docchat-be/pkg/embedding"
)

const DefaultK = 5

// Retriever returns documents ranked by relevance to query, best first.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]document.Document, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string, k int) ([]document.Document, error)

func (f RetrieverFunc) Search(ctx context.Context, query string, k int) ([]document.Document, error) {
	return f(ctx, query, k)
}

// ScoredChunk is one stored passage with its cosine similarity to the query.
type ScoredChunk struct {
	DocumentID string
	ChunkIndex int
	Content    string
	Metadata   map[string]interface{}
	Similarity float64
}

// ChunkQuery restricts a nearest-neighbour search.
type ChunkQuery struct {
	ThreadIDs []string
	Limit     int
	Threshold float64
	// Filter holds metadata equality constraints.
	Filter map[string]interface{}
}

// ChunkSearcher is the vector index behind VectorRetriever.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, vector []float32, q ChunkQuery) ([]ScoredChunk, error)
}

type VectorRetriever struct {
	embedder  embedding.EmbeddingProvider
	searcher  ChunkSearcher
	threshold float64
	threadID  string
	filter    map[string]interface{}
}

type Option func(*VectorRetriever)

// WithThreshold drops chunks whose similarity is below min.
func WithThreshold(min float64) Option {
	return func(r *VectorRetriever) { r.threshold = min }
}

func NewVectorRetriever(embedder embedding.EmbeddingProvider, searcher ChunkSearcher, opts ...Option) *VectorRetriever {
	r := &VectorRetriever{embedder: embedder, searcher: searcher}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ForThread scopes the retriever to a thread's private documents plus shared ones.
func (r *VectorRetriever) ForThread(threadID string) *VectorRetriever {
	scoped := *r
	scoped.threadID = threadID
	return &scoped
}

// WithFilter adds metadata equality filters; later keys override earlier ones.
func (r *VectorRetriever) WithFilter(filter map[string]interface{}) *VectorRetriever {
	scoped := *r
	scoped.filter = make(map[string]interface{}, len(r.filter)+len(filter))
	for k, v := range r.filter {
		scoped.filter[k] = v
	}
	for k, v := range filter {
		scoped.filter[k] = v
	}
	return &scoped
}

func (r *VectorRetriever) Search(ctx context.Context, query string, k int) ([]document.Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = DefaultK
	}
	if r.threadID == "" {
		return nil, errors.New("retriever is not scoped to a thread")
	}

	emb, err := r.embedder.Generate(ctx, query, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := r.searcher.SearchChunks(ctx, emb.Embedding.Values, ChunkQuery{
		ThreadIDs: []string{r.threadID, document.SharedThreadID},
		Limit:     k,
		Threshold: r.threshold,
		Filter:    r.filter,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	docs := make([]document.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chunkToDocument(c))
	}
	return docs, nil
}

// ChunkID is the stable id of a chunk, so re-retrieving it deduplicates in the reducer.
func ChunkID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s#%d", documentID, chunkIndex)
}

func chunkToDocument(c ScoredChunk) document.Document {
	meta := make(map[string]interface{}, len(c.Metadata)+2)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta["document_id"] = c.DocumentID
	meta["chunk_index"] = c.ChunkIndex
	return document.Document{
		ID:       ChunkID(c.DocumentID, c.ChunkIndex),
		Content:  c.Content,
		Metadata: meta,
	}
}
