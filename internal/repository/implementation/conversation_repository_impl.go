package implementation

import (
	"context"
	"errors"
	"time"

	"ai-docchat-be/internal/entity"
	"ai-docchat-be/internal/mapper"
	"ai-docchat-be/internal/model"
	"ai-docchat-be/internal/repository/contract"
	"ai-docchat-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConversationMapper
}

func NewConversationRepository(db *gorm.DB) contract.ConversationRepository {
	return &ConversationRepositoryImpl{
		db:     db,
		mapper: mapper.NewConversationMapper(),
	}
}

func (r *ConversationRepositoryImpl) Create(ctx context.Context, conversation *entity.Conversation) error {
	m := r.mapper.ToModel(conversation)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*conversation = *r.mapper.ToEntity(m)
	return nil
}

func (r *ConversationRepositoryImpl) Update(ctx context.Context, conversation *entity.Conversation) error {
	m := r.mapper.ToModel(conversation)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*conversation = *r.mapper.ToEntity(m)
	return nil
}

func (r *ConversationRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error) {
	var m model.Conversation
	query := specification.Apply(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ConversationRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error) {
	var models []*model.Conversation
	query := specification.Apply(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *ConversationRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := specification.Apply(r.db.WithContext(ctx).Model(&model.Conversation{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ConversationRepositoryImpl) SoftDelete(ctx context.Context, threadID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&model.Conversation{})
	return res.RowsAffected > 0, res.Error
}

func (r *ConversationRepositoryImpl) Restore(ctx context.Context, threadID string) (bool, error) {
	res := r.db.WithContext(ctx).Unscoped().
		Model(&model.Conversation{}).
		Where("thread_id = ? AND deleted_at IS NOT NULL", threadID).
		Updates(map[string]interface{}{"deleted_at": nil, "updated_at": time.Now()})
	return res.RowsAffected > 0, res.Error
}

func (r *ConversationRepositoryImpl) Touch(ctx context.Context, threadID string, titleIfEmpty string) error {
	now := time.Now()
	row := &model.Conversation{ThreadId: threadID, CreatedAt: now, UpdatedAt: now}
	if titleIfEmpty != "" {
		row.Title = &titleIfEmpty
	}

	// COALESCE keeps an existing title; a deleted conversation stays deleted.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "thread_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"updated_at": now,
			"title":      gorm.Expr("COALESCE(NULLIF(conversations.title, ''), EXCLUDED.title)"),
		}),
	}).Create(row).Error
}
