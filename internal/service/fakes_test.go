package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"ai-docchat-be/internal/entity"
	"ai-docchat-be/internal/repository/contract"
	"ai-docchat-be/internal/repository/specification"
	"ai-docchat-be/internal/repository/unitofwork"
	"ai-docchat-be/pkg/checkpoint"
	"ai-docchat-be/pkg/retrieval"
)

// fakeConversations understands the handful of specifications the services use.
type fakeConversations struct {
	mu   sync.Mutex
	rows map[string]*entity.Conversation
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{rows: map[string]*entity.Conversation{}}
}

func copyConversation(c *entity.Conversation) *entity.Conversation {
	out := *c
	return &out
}

func (f *fakeConversations) query(specs []specification.Specification) []*entity.Conversation {
	deleted := false
	threadID := ""
	limit, offset := -1, 0
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.OnlyDeleted:
			deleted = true
		case specification.ByThreadID:
			threadID = s.ThreadID
		case specification.Pagination:
			limit, offset = s.Limit, s.Offset
		}
	}

	var out []*entity.Conversation
	for _, c := range f.rows {
		if c.IsDeleted != deleted {
			continue
		}
		if threadID != "" && c.ThreadId != threadID {
			continue
		}
		out = append(out, copyConversation(c))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(*out[j].UpdatedAt)
	})
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit >= 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (f *fakeConversations) Create(_ context.Context, c *entity.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[c.ThreadId] = copyConversation(c)
	return nil
}

func (f *fakeConversations) Update(_ context.Context, c *entity.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[c.ThreadId] = copyConversation(c)
	return nil
}

func (f *fakeConversations) FindOne(_ context.Context, specs ...specification.Specification) (*entity.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := f.query(specs)
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (f *fakeConversations) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query(specs), nil
}

func (f *fakeConversations) Count(_ context.Context, specs ...specification.Specification) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var live []specification.Specification
	for _, s := range specs {
		if _, ok := s.(specification.Pagination); !ok {
			live = append(live, s)
		}
	}
	return int64(len(f.query(live))), nil
}

func (f *fakeConversations) SoftDelete(_ context.Context, threadID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[threadID]
	if !ok || c.IsDeleted {
		return false, nil
	}
	now := time.Now()
	c.IsDeleted = true
	c.DeletedAt = &now
	return true, nil
}

func (f *fakeConversations) Restore(_ context.Context, threadID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[threadID]
	if !ok || !c.IsDeleted {
		return false, nil
	}
	c.IsDeleted = false
	c.DeletedAt = nil
	return true, nil
}

func (f *fakeConversations) Touch(_ context.Context, threadID string, titleIfEmpty string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	c, ok := f.rows[threadID]
	if !ok {
		c = &entity.Conversation{ThreadId: threadID, CreatedAt: now}
		f.rows[threadID] = c
	}
	c.UpdatedAt = &now
	if (c.Title == nil || *c.Title == "") && titleIfEmpty != "" {
		title := titleIfEmpty
		c.Title = &title
	}
	return nil
}

type fakeChunks struct {
	mu       sync.Mutex
	byDoc    map[string][]*entity.DocumentChunk
	replaced int
}

func newFakeChunks() *fakeChunks {
	return &fakeChunks{byDoc: map[string][]*entity.DocumentChunk{}}
}

func (f *fakeChunks) SearchChunks(context.Context, []float32, retrieval.ChunkQuery) ([]retrieval.ScoredChunk, error) {
	return nil, nil
}

func (f *fakeChunks) CreateBulk(_ context.Context, chunks []*entity.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.byDoc[c.DocumentId] = append(f.byDoc[c.DocumentId], c)
	}
	return nil
}

func (f *fakeChunks) ReplaceDocument(_ context.Context, documentID string, chunks []*entity.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byDoc[documentID] = chunks
	f.replaced++
	return nil
}

func (f *fakeChunks) DeleteByThreadId(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, chunks := range f.byDoc {
		if len(chunks) > 0 && chunks[0].ThreadId == threadID {
			delete(f.byDoc, id)
		}
	}
	return nil
}

func (f *fakeChunks) FindAll(context.Context, ...specification.Specification) ([]*entity.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.DocumentChunk
	for _, chunks := range f.byDoc {
		out = append(out, chunks...)
	}
	return out, nil
}

func (f *fakeChunks) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, _ := f.FindAll(ctx, specs...)
	return int64(len(all)), nil
}

func (f *fakeChunks) get(documentID string) []*entity.DocumentChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byDoc[documentID]
}

type fakeUnitOfWork struct {
	conversations *fakeConversations
	chunks        *fakeChunks
	checkpoints   checkpoint.Store
}

func (u *fakeUnitOfWork) Begin(context.Context) error { return nil }
func (u *fakeUnitOfWork) Commit() error               { return nil }
func (u *fakeUnitOfWork) Rollback() error             { return nil }

func (u *fakeUnitOfWork) ConversationRepository() contract.ConversationRepository {
	return u.conversations
}

func (u *fakeUnitOfWork) DocumentChunkRepository() contract.DocumentChunkRepository {
	return u.chunks
}

func (u *fakeUnitOfWork) CheckpointRepository() checkpoint.Store { return u.checkpoints }

type fakeFactory struct{ uow *fakeUnitOfWork }

func (f fakeFactory) NewUnitOfWork(context.Context) unitofwork.UnitOfWork { return f.uow }

func newFakeFactory(checkpoints checkpoint.Store) (fakeFactory, *fakeUnitOfWork) {
	uow := &fakeUnitOfWork{
		conversations: newFakeConversations(),
		chunks:        newFakeChunks(),
		checkpoints:   checkpoints,
	}
	return fakeFactory{uow: uow}, uow
}
