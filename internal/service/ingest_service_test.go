package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/internal/entity"
	"ai-docchat-be/internal/pkg/logger"
	"ai-docchat-be/internal/pkg/serverutils"
	"ai-docchat-be/pkg/document"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingQueue struct {
	mu       sync.Mutex
	messages []dto.IngestDocumentMessage
	err      error
}

func (q *recordingQueue) Publish(_ context.Context, payload []byte) error {
	if q.err != nil {
		return q.err
	}
	var msg dto.IngestDocumentMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

type stubTitles struct {
	title string
	err   error
}

func (s stubTitles) Title(context.Context, string) (string, error) { return s.title, s.err }

func newIngestFixture(titles TitleLookup) (IIngestService, *recordingQueue, *fakeUnitOfWork) {
	queue := &recordingQueue{}
	factory, uow := newFakeFactory(nil)
	svc := NewIngestService(queue, factory, titles, 1024, logger.NewFromZap(zap.NewNop()))
	return svc, queue, uow
}

func appCode(t *testing.T, err error) int {
	t.Helper()
	var appErr *serverutils.AppError
	require.True(t, errors.As(err, &appErr), "want *AppError, got %v", err)
	return appErr.Code
}

func TestIngestPDF_Validation(t *testing.T) {
	svc, queue, _ := newIngestFixture(nil)

	tests := []struct {
		name     string
		threadID string
		filename string
		data     []byte
		code     int
	}{
		{"not a pdf name", "t1", "notes.txt", []byte("%PDF-1.4"), 400},
		{"upper case extension is rejected", "t1", "NOTES.PDF", []byte("%PDF-1.4"), 400},
		{"too large", "t1", "big.pdf", make([]byte, 2048), 413},
		{"blank thread", " ", "a.pdf", []byte("%PDF-1.4"), 400},
		{"pdf name with other content", "t1", "fake.pdf", []byte("hello"), 400},
		{"unreadable pdf", "t1", "broken.pdf", []byte("%PDF-1.4 truncated"), 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IngestPDF(context.Background(), tt.threadID, tt.filename, tt.data, dto.Configurable{})
			require.Error(t, err)
			assert.Equal(t, tt.code, appCode(t, err))
		})
	}
	assert.Empty(t, queue.messages)
}

func TestIngestDocuments_PrivateDocuments(t *testing.T) {
	svc, queue, _ := newIngestFixture(stubTitles{title: "Contracts"})

	res, err := svc.IngestDocuments(context.Background(), &dto.IngestDocumentsRequest{
		ThreadId: "t1",
		Docs: json.RawMessage(`[
			"plain text",
			{"id": "doc-1", "page_content": "record", "metadata": {"source": "a.pdf"}},
			{"id": "doc-1", "page_content": "duplicate"},
			42
		]`),
	})
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, 2, res.Pages)

	require.Len(t, queue.messages, 2)
	byID := map[string]dto.IngestDocumentMessage{}
	for _, m := range queue.messages {
		byID[m.DocumentId] = m
	}

	rec := byID["doc-1"]
	assert.Equal(t, "record", rec.Content)
	assert.Equal(t, "t1", rec.ThreadId)
	assert.Equal(t, "a.pdf", rec.Source)
	assert.Equal(t, "doc-1", rec.Metadata[document.MetaUUID])
	assert.Equal(t, document.VisibilityPrivate, rec.Metadata[document.MetaVisibility])
	assert.Equal(t, "Contracts", rec.Metadata[document.MetaConversationTitle])

	for id, m := range byID {
		if id != "doc-1" {
			assert.Equal(t, "inline", m.Source)
			assert.Equal(t, "plain text", m.Content)
		}
	}
}

func TestIngestDocuments_SharedDocuments(t *testing.T) {
	svc, queue, _ := newIngestFixture(stubTitles{err: errors.New("must not be called for shared docs")})

	_, err := svc.IngestDocuments(context.Background(), &dto.IngestDocumentsRequest{
		ThreadId: "t1",
		Docs:     json.RawMessage(`"handbook text"`),
		Config:   &dto.RunConfig{Configurable: dto.Configurable{IsShared: true}},
	})
	require.NoError(t, err)
	require.Len(t, queue.messages, 1)

	m := queue.messages[0]
	assert.Equal(t, document.SharedThreadID, m.ThreadId)
	assert.Equal(t, document.VisibilityShared, m.Metadata[document.MetaVisibility])
	assert.Nil(t, m.Metadata[document.MetaConversationTitle])
}

func TestIngestDocuments_TitleLookupFailureIsOnlyAWarning(t *testing.T) {
	svc, queue, _ := newIngestFixture(stubTitles{err: errors.New("db down")})

	_, err := svc.IngestDocuments(context.Background(), &dto.IngestDocumentsRequest{
		ThreadId: "t1",
		Docs:     json.RawMessage(`["text"]`),
	})
	require.NoError(t, err)
	require.Len(t, queue.messages, 1)
	assert.Nil(t, queue.messages[0].Metadata[document.MetaConversationTitle])
}

func TestIngestDocuments_DeleteClearsThreadChunks(t *testing.T) {
	svc, queue, uow := newIngestFixture(nil)
	require.NoError(t, uow.chunks.ReplaceDocument(context.Background(), "doc-1", []*entity.DocumentChunk{
		{DocumentId: "doc-1", ThreadId: "t1", Content: "x"},
	}))

	res, err := svc.IngestDocuments(context.Background(), &dto.IngestDocumentsRequest{
		ThreadId: "t1",
		Docs:     json.RawMessage(`"delete"`),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pages)
	assert.Empty(t, uow.chunks.get("doc-1"))
	assert.Empty(t, queue.messages)
}

func TestIngestDocuments_InvalidUpdate(t *testing.T) {
	svc, _, _ := newIngestFixture(nil)
	_, err := svc.IngestDocuments(context.Background(), &dto.IngestDocumentsRequest{
		ThreadId: "t1",
		Docs:     json.RawMessage(`{"page_content": "not wrapped in an array"}`),
	})
	require.Error(t, err)
	assert.Equal(t, 400, appCode(t, err))
}

func TestIngestDocuments_QueueFailure(t *testing.T) {
	svc, queue, _ := newIngestFixture(nil)
	queue.err = errors.New("queue closed")
	_, err := svc.IngestDocuments(context.Background(), &dto.IngestDocumentsRequest{
		ThreadId: "t1",
		Docs:     json.RawMessage(`["text"]`),
	})
	require.Error(t, err)
	assert.Equal(t, 500, appCode(t, err))
}
