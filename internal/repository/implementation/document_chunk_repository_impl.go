package implementation

import (
	"context"
	"encoding/json"

	"ai-docchat-be/internal/entity"
	"ai-docchat-be/internal/mapper"
	"ai-docchat-be/internal/model"
	"ai-docchat-be/internal/repository/contract"
	"ai-docchat-be/internal/repository/specification"
	"ai-docchat-be/pkg/retrieval"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type DocumentChunkRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DocumentChunkMapper
}

func NewDocumentChunkRepository(db *gorm.DB) contract.DocumentChunkRepository {
	return &DocumentChunkRepositoryImpl{
		db:     db,
		mapper: mapper.NewDocumentChunkMapper(),
	}
}

func (r *DocumentChunkRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	models := make([]*model.DocumentChunk, len(chunks))
	for i, c := range chunks {
		models[i] = r.mapper.ToModel(c)
	}

	if err := r.db.WithContext(ctx).CreateInBatches(models, 100).Error; err != nil {
		return err
	}

	for i, m := range models {
		*chunks[i] = *r.mapper.ToEntity(m)
	}
	return nil
}

func (r *DocumentChunkRepositoryImpl) ReplaceDocument(ctx context.Context, documentID string, chunks []*entity.DocumentChunk) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error; err != nil {
		return err
	}
	return r.CreateBulk(ctx, chunks)
}

func (r *DocumentChunkRepositoryImpl) DeleteByThreadId(ctx context.Context, threadID string) error {
	return r.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&model.DocumentChunk{}).Error
}

func (r *DocumentChunkRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error) {
	var models []*model.DocumentChunk
	query := specification.Apply(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.DocumentChunk, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *DocumentChunkRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := specification.Apply(r.db.WithContext(ctx).Model(&model.DocumentChunk{}), specs...)
	err := query.Count(&count).Error
	return count, err
}

// SearchChunks ranks chunks of the given threads by cosine similarity.
// Cosine distance in pgvector is 1 - cosine_similarity.
func (r *DocumentChunkRepositoryImpl) SearchChunks(ctx context.Context, vector []float32, q retrieval.ChunkQuery) ([]retrieval.ScoredChunk, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = retrieval.DefaultK
	}

	type result struct {
		model.DocumentChunk
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(vector)
	query := r.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.*, 1 - (embedding <=> ?) as similarity", queryVector).
		Where("thread_id IN ?", q.ThreadIDs)

	if q.Threshold > 0 {
		query = query.Where("1 - (embedding <=> ?) >= ?", queryVector, q.Threshold)
	}
	if len(q.Filter) > 0 {
		filter, err := json.Marshal(q.Filter)
		if err != nil {
			return nil, err
		}
		query = query.Where("metadata @> ?::jsonb", string(filter))
	}

	err := query.
		Order(gorm.Expr("embedding <=> ?", queryVector)).
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	out := make([]retrieval.ScoredChunk, len(results))
	for i, res := range results {
		out[i] = retrieval.ScoredChunk{
			DocumentID: res.DocumentId,
			ChunkIndex: res.ChunkIndex,
			Content:    res.Content,
			Metadata:   mapper.DecodeMetadata(res.Metadata),
			Similarity: res.Similarity,
		}
	}
	return out, nil
}
