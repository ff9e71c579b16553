package contract

import (
	"context"

	"ai-docchat-be/internal/entity"
	"ai-docchat-be/internal/repository/specification"
	"ai-docchat-be/pkg/retrieval"
)

type DocumentChunkRepository interface {
	retrieval.ChunkSearcher

	CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error
	// ReplaceDocument deletes every chunk of documentID and inserts chunks.
	ReplaceDocument(ctx context.Context, documentID string, chunks []*entity.DocumentChunk) error
	DeleteByThreadId(ctx context.Context, threadID string) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
