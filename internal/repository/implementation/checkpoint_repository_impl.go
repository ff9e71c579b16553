package implementation

import (
	"context"
	"errors"

	"ai-docchat-be/internal/model"
	"ai-docchat-be/pkg/checkpoint"
	"ai-docchat-be/pkg/rag/state"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckpointRepositoryImpl stores turn state in Postgres. The row keeps the
// versioned envelope so older payloads can be recognised.
type CheckpointRepositoryImpl struct {
	db *gorm.DB
}

func NewCheckpointRepository(db *gorm.DB) checkpoint.Store {
	return &CheckpointRepositoryImpl{db: db}
}

func (r *CheckpointRepositoryImpl) Load(ctx context.Context, threadID string) (*state.TurnState, error) {
	var m model.Checkpoint
	if err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return checkpoint.Decode(m.State)
}

func (r *CheckpointRepositoryImpl) Save(ctx context.Context, threadID string, s *state.TurnState) error {
	data, err := checkpoint.Encode(s)
	if err != nil {
		return err
	}
	m := &model.Checkpoint{ThreadId: threadID, Version: checkpoint.SchemaVersion, State: datatypes.JSON(data)}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "thread_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "state", "updated_at"}),
	}).Create(m).Error
}

func (r *CheckpointRepositoryImpl) Delete(ctx context.Context, threadID string) error {
	return r.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&model.Checkpoint{}).Error
}
