package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/internal/pkg/logger"
	"ai-docchat-be/internal/pkg/serverutils"
	"ai-docchat-be/internal/repository/unitofwork"
	"ai-docchat-be/pkg/document"
	"ai-docchat-be/pkg/loader"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	ingestModule = "INGEST_SERVICE"

	// DefaultMaxUploadBytes caps a PDF upload.
	DefaultMaxUploadBytes = 10 * 1024 * 1024

	inlineSource = "inline"
)

type IIngestService interface {
	// CheckUpload rejects a file by name and size before its body is read.
	CheckUpload(filename string, size int64) error
	IngestPDF(ctx context.Context, threadID, filename string, data []byte, conf dto.Configurable) (*dto.IngestResponse, error)
	// IngestDocuments accepts the raw update forms: "delete", a string, or an array.
	IngestDocuments(ctx context.Context, req *dto.IngestDocumentsRequest) (*dto.IngestResponse, error)
}

// TitleLookup resolves the title of a thread's conversation.
type TitleLookup interface {
	Title(ctx context.Context, threadID string) (string, error)
}

type ingestService struct {
	publisher  IPublisherService
	uowFactory unitofwork.RepositoryFactory
	titles     TitleLookup
	maxBytes   int
	logger     logger.ILogger
	newID      func() string
}

func NewIngestService(
	publisher IPublisherService,
	uowFactory unitofwork.RepositoryFactory,
	titles TitleLookup,
	maxBytes int,
	log logger.ILogger,
) IIngestService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &ingestService{
		publisher:  publisher,
		uowFactory: uowFactory,
		titles:     titles,
		maxBytes:   maxBytes,
		logger:     log,
		newID:      uuid.NewString,
	}
}

func (s *ingestService) CheckUpload(filename string, size int64) error {
	if !strings.HasSuffix(filename, ".pdf") {
		return serverutils.BadRequest("Only PDF files are supported")
	}
	if size > int64(s.maxBytes) {
		return serverutils.NewAppError(fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Maximum size is %dMB", s.maxBytes/(1024*1024)), nil)
	}
	return nil
}

func (s *ingestService) IngestPDF(ctx context.Context, threadID, filename string, data []byte, conf dto.Configurable) (*dto.IngestResponse, error) {
	if err := s.CheckUpload(filename, int64(len(data))); err != nil {
		return nil, err
	}
	if strings.TrimSpace(threadID) == "" {
		return nil, serverutils.BadRequest("threadId cannot be empty")
	}

	pages, err := loader.LoadPDF(data, filename)
	if err != nil {
		if errors.Is(err, loader.ErrNotPDF) {
			return nil, serverutils.BadRequest("Only PDF files are supported")
		}
		s.logger.Error(ingestModule, "Failed to read PDF", map[string]interface{}{
			"thread_id": threadID,
			"source":    filename,
			"error":     err.Error(),
		})
		return nil, serverutils.Internal(fmt.Sprintf("Document ingestion failed: %v", err), err)
	}

	for i := range pages {
		pages[i].ID = s.newID()
		pages[i].Metadata[document.MetaUUID] = pages[i].ID
		pages[i].Metadata[document.MetaSource] = filename
	}
	s.stampVisibility(ctx, threadID, conf.IsShared, pages)

	docs, err := s.publish(ctx, threadID, document.Batch(pages...))
	if err != nil {
		return nil, err
	}

	return &dto.IngestResponse{
		Status:   "success",
		Message:  fmt.Sprintf("Successfully ingested %s (%d pages)", filename, len(docs)),
		ThreadId: threadID,
		Pages:    len(docs),
	}, nil
}

func (s *ingestService) IngestDocuments(ctx context.Context, req *dto.IngestDocumentsRequest) (*dto.IngestResponse, error) {
	update, err := document.ParseUpdate(req.Docs)
	if err != nil {
		return nil, serverutils.BadRequest(err.Error())
	}

	if _, ok := update.(document.ClearCommand); ok {
		if err := s.uowFactory.NewUnitOfWork(ctx).DocumentChunkRepository().DeleteByThreadId(ctx, req.ThreadId); err != nil {
			return nil, serverutils.Internal("Failed to delete documents", err)
		}
		s.logger.Info(ingestModule, "Cleared thread documents", map[string]interface{}{"thread_id": req.ThreadId})
		return &dto.IngestResponse{
			Status:   "success",
			Message:  "Deleted all documents of the thread",
			ThreadId: req.ThreadId,
		}, nil
	}

	conf := dto.Configurable{}
	if req.Config != nil {
		conf = req.Config.Configurable
	}

	// normalise first so every document has an id and metadata to stamp
	docs, err := s.reducer(req.ThreadId).Reduce(nil, update)
	if err != nil {
		return nil, serverutils.BadRequest(err.Error())
	}
	for i := range docs {
		docs[i].Metadata[document.MetaUUID] = docs[i].ID
		if docs[i].Source() == "" {
			docs[i].Metadata[document.MetaSource] = inlineSource
		}
	}
	s.stampVisibility(ctx, req.ThreadId, conf.IsShared, docs)

	published, err := s.publish(ctx, req.ThreadId, document.Batch(docs...))
	if err != nil {
		return nil, err
	}
	return &dto.IngestResponse{
		Status:   "success",
		Message:  fmt.Sprintf("Successfully ingested %d documents", len(published)),
		ThreadId: req.ThreadId,
		Pages:    len(published),
	}, nil
}

// stampVisibility marks documents shared or private to threadID. A failed title lookup
// only loses the label.
func (s *ingestService) stampVisibility(ctx context.Context, threadID string, shared bool, docs []document.Document) {
	var title interface{}
	if !shared && s.titles != nil {
		t, err := s.titles.Title(ctx, threadID)
		if err != nil {
			s.logger.Warn(ingestModule, "Could not fetch conversation title", map[string]interface{}{
				"thread_id": threadID,
				"error":     err.Error(),
			})
		} else if t != "" {
			title = t
		}
	}

	for i := range docs {
		if shared {
			docs[i].Metadata[document.MetaThreadID] = document.SharedThreadID
			docs[i].Metadata[document.MetaVisibility] = document.VisibilityShared
			docs[i].Metadata[document.MetaConversationTitle] = nil
		} else {
			docs[i].Metadata[document.MetaThreadID] = threadID
			docs[i].Metadata[document.MetaVisibility] = document.VisibilityPrivate
			docs[i].Metadata[document.MetaConversationTitle] = title
		}
	}
}

// publish runs the batch through the reducer, the same merge rule retrieval uses, and
// queues each resulting document for chunking.
func (s *ingestService) publish(ctx context.Context, threadID string, batch document.DocumentBatch) ([]document.Document, error) {
	docs, err := s.reducer(threadID).Reduce(nil, batch)
	if err != nil {
		return nil, serverutils.Internal("Document ingestion failed", err)
	}

	for _, d := range docs {
		target, _ := d.Metadata[document.MetaThreadID].(string)
		payload, err := json.Marshal(dto.IngestDocumentMessage{
			DocumentId: d.ID,
			ThreadId:   target,
			Source:     d.Source(),
			Content:    d.Content,
			Metadata:   d.Metadata,
		})
		if err != nil {
			return nil, serverutils.Internal("Document ingestion failed", err)
		}
		if err := s.publisher.Publish(ctx, payload); err != nil {
			s.logger.Error(ingestModule, "Failed to queue document", map[string]interface{}{
				"thread_id":   threadID,
				"document_id": d.ID,
				"error":       err.Error(),
			})
			return nil, serverutils.Internal("Document ingestion failed", err)
		}
	}

	s.logger.Info(ingestModule, "Documents queued for indexing", map[string]interface{}{
		"thread_id": threadID,
		"documents": len(docs),
	})
	return docs, nil
}

func (s *ingestService) reducer(threadID string) document.Reducer {
	return document.Reducer{
		NewID: s.newID,
		OnDrop: func(index int, reason string) {
			s.logger.Warn(ingestModule, "Dropped document", map[string]interface{}{
				"thread_id": threadID,
				"index":     index,
				"reason":    reason,
			})
		},
	}
}
