package unitofwork

import (
	"context"
	"errors"
	"testing"

	"ai-docchat-be/internal/repository/contract"
	"ai-docchat-be/pkg/checkpoint"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingUoW struct {
	beginErr  error
	commitErr error
	calls     []string
}

func (u *recordingUoW) Begin(context.Context) error {
	u.calls = append(u.calls, "begin")
	return u.beginErr
}

func (u *recordingUoW) Commit() error {
	u.calls = append(u.calls, "commit")
	return u.commitErr
}

func (u *recordingUoW) Rollback() error {
	u.calls = append(u.calls, "rollback")
	return nil
}

func (u *recordingUoW) ConversationRepository() contract.ConversationRepository   { return nil }
func (u *recordingUoW) DocumentChunkRepository() contract.DocumentChunkRepository { return nil }
func (u *recordingUoW) CheckpointRepository() checkpoint.Store                    { return nil }

type staticFactory struct{ uow *recordingUoW }

func (f staticFactory) NewUnitOfWork(context.Context) UnitOfWork { return f.uow }

func TestTransact(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		uow       *recordingUoW
		fnErr     error
		wantErr   error
		wantCalls []string
	}{
		{"commits on success", &recordingUoW{}, nil, nil, []string{"begin", "fn", "commit"}},
		{"rolls back on fn error", &recordingUoW{}, boom, boom, []string{"begin", "fn", "rollback"}},
		{"begin failure skips fn", &recordingUoW{beginErr: boom}, nil, boom, []string{"begin"}},
		{"commit failure rolls back", &recordingUoW{commitErr: boom}, nil, boom, []string{"begin", "fn", "commit", "rollback"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Transact(context.Background(), staticFactory{tt.uow}, func(uow UnitOfWork) error {
				tt.uow.calls = append(tt.uow.calls, "fn")
				return tt.fnErr
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, tt.uow.calls)
		})
	}
}

func TestTransact_RollsBackOnPanic(t *testing.T) {
	uow := &recordingUoW{}
	assert.Panics(t, func() {
		_ = Transact(context.Background(), staticFactory{uow}, func(UnitOfWork) error {
			panic("kaboom")
		})
	})
	assert.Equal(t, []string{"begin", "rollback"}, uow.calls)
}
