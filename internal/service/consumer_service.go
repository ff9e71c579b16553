package service

import (
	"context"
	"encoding/json"
	"maps"
	"strings"
	"time"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/internal/entity"
	"ai-docchat-be/internal/metrics"
	"ai-docchat-be/internal/pkg/logger"
	"ai-docchat-be/internal/repository/unitofwork"
	"ai-docchat-be/pkg/embedding"
	"ai-docchat-be/pkg/events"
	"ai-docchat-be/pkg/utils"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const consumerModule = "INGEST_CONSUMER"

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type ChunkingConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type consumerService struct {
	subscriber        message.Subscriber
	topicName         string
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	eventPublisher    EventPublisher
	chunking          ChunkingConfig
	logger            logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	eventPublisher EventPublisher,
	chunking ChunkingConfig,
	log logger.ILogger,
) IConsumerService {
	if chunking.ChunkSize <= 0 {
		chunking.ChunkSize = 1500
	}
	if chunking.ChunkOverlap < 0 || chunking.ChunkOverlap >= chunking.ChunkSize {
		chunking.ChunkOverlap = 200
	}
	return &consumerService{
		subscriber:        subscriber,
		topicName:         topicName,
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
		eventPublisher:    eventPublisher,
		chunking:          chunking,
		logger:            log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

// processMessage chunks, embeds and stores one document. Re-ingesting a document id
// replaces its previous chunks.
func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.IngestDocumentMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error(consumerModule, "Failed to unmarshal message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // a malformed payload never gets better
		return
	}

	details := map[string]interface{}{
		"document_id": payload.DocumentId,
		"thread_id":   payload.ThreadId,
		"source":      payload.Source,
	}

	if strings.TrimSpace(payload.Content) == "" {
		cs.logger.Warn(consumerModule, "Document has no text, nothing to index", details)
		msg.Ack()
		return
	}
	chunks := utils.SplitText(payload.Content, cs.chunking.ChunkSize, cs.chunking.ChunkOverlap)

	rows := make([]*entity.DocumentChunk, 0, len(chunks))
	now := time.Now()
	for i, chunk := range chunks {
		res, err := cs.embeddingProvider.Generate(ctx, chunk, embedding.TaskRetrievalDocument)
		if err != nil {
			cs.logger.Error(consumerModule, "Failed to embed chunk", map[string]interface{}{
				"document_id": payload.DocumentId,
				"chunk_index": i,
				"error":       err.Error(),
			})
			msg.Nack()
			return
		}

		meta := maps.Clone(payload.Metadata)
		if meta == nil {
			meta = map[string]interface{}{}
		}
		meta["chunk_index"] = i

		rows = append(rows, &entity.DocumentChunk{
			Id:         uuid.New(),
			DocumentId: payload.DocumentId,
			ChunkIndex: i,
			ThreadId:   payload.ThreadId,
			Content:    chunk,
			Metadata:   meta,
			Embedding:  res.Embedding.Values,
			CreatedAt:  now,
		})
	}

	err := unitofwork.Transact(ctx, cs.uowFactory, func(uow unitofwork.UnitOfWork) error {
		return uow.DocumentChunkRepository().ReplaceDocument(ctx, payload.DocumentId, rows)
	})
	if err != nil {
		cs.logger.Error(consumerModule, "Failed to store chunks", map[string]interface{}{
			"document_id": payload.DocumentId,
			"error":       err.Error(),
		})
		msg.Nack()
		return
	}

	metrics.ChunksIngested(len(rows))
	details["chunks"] = len(rows)
	cs.logger.Info(consumerModule, "Document indexed", details)

	if cs.eventPublisher != nil {
		ev := events.IngestCompleted(payload.ThreadId, payload.Source, 1, len(rows))
		if err := cs.eventPublisher.Publish(ctx, ev); err != nil {
			cs.logger.Warn(consumerModule, "Failed to publish ingest.completed", map[string]interface{}{"error": err.Error()})
		}
	}

	msg.Ack()
}
