package unitofwork

import (
	"context"

	"ai-docchat-be/internal/repository/contract"
	"ai-docchat-be/pkg/checkpoint"
)

// UnitOfWork hands out repositories that share one database handle. Between Begin and
// Commit (or Rollback) that handle is a transaction.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ConversationRepository() contract.ConversationRepository
	DocumentChunkRepository() contract.DocumentChunkRepository
	CheckpointRepository() checkpoint.Store
}
