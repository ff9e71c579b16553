package contract

import (
	"context"

	"ai-docchat-be/internal/entity"
	"ai-docchat-be/internal/repository/specification"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	Update(ctx context.Context, conversation *entity.Conversation) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// SoftDelete reports false when no live conversation has that id.
	SoftDelete(ctx context.Context, threadID string) (bool, error)
	// Restore reports false unless the conversation is currently deleted.
	Restore(ctx context.Context, threadID string) (bool, error)
	// Touch bumps updated_at, creating the row if needed, and sets the title when it is empty.
	Touch(ctx context.Context, threadID string, titleIfEmpty string) error
}
