package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/internal/entity"
	"ai-docchat-be/internal/pkg/logger"
	"ai-docchat-be/internal/pkg/serverutils"
	"ai-docchat-be/internal/repository/specification"
	"ai-docchat-be/internal/repository/unitofwork"
	"ai-docchat-be/pkg/checkpoint"
	"ai-docchat-be/pkg/document"
	"ai-docchat-be/pkg/events"
	pktNats "ai-docchat-be/pkg/nats"

	"github.com/google/uuid"
)

const (
	conversationModule = "CONVERSATION_SERVICE"

	DefaultConversationLimit = 50
	// titleRunes bounds a title derived from the first question.
	titleRunes = 80

	activityDurable = "conversation-activity"
)

var ErrConversationNotFound = serverutils.NotFound("Conversation not found")

type IConversationService interface {
	List(ctx context.Context, req *dto.ListConversationsRequest) (*dto.ListConversationsResponse, error)
	Create(ctx context.Context, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error)
	History(ctx context.Context, threadID string) (*dto.ConversationHistoryResponse, error)
	UpdateTitle(ctx context.Context, req *dto.UpdateConversationTitleRequest) (*dto.ConversationResponse, error)
	Delete(ctx context.Context, threadID string) error
	ListDeleted(ctx context.Context) (*dto.ListDeletedConversationsResponse, error)
	Restore(ctx context.Context, threadID string) (*dto.ConversationResponse, error)

	// Title returns the title of a live conversation, "" when it has none.
	Title(ctx context.Context, threadID string) (string, error)
	RecordTurn(ctx context.Context, threadID, query string) error
	// ConsumeActivity keeps conversations fresh from turn.completed events.
	ConsumeActivity(ctx context.Context, sub *pktNats.Subscriber) error
}

type conversationService struct {
	uowFactory  unitofwork.RepositoryFactory
	checkpoints checkpoint.Store
	publisher   EventPublisher
	logger      logger.ILogger
}

func NewConversationService(
	uowFactory unitofwork.RepositoryFactory,
	checkpoints checkpoint.Store,
	publisher EventPublisher,
	log logger.ILogger,
) IConversationService {
	return &conversationService{
		uowFactory:  uowFactory,
		checkpoints: checkpoints,
		publisher:   publisher,
		logger:      log,
	}
}

func (s *conversationService) List(ctx context.Context, req *dto.ListConversationsRequest) (*dto.ListConversationsResponse, error) {
	limit := req.Limit
	if limit == 0 {
		limit = DefaultConversationLimit
	}
	if limit < 1 || limit > 100 {
		return nil, serverutils.BadRequest("limit must be between 1 and 100")
	}
	if req.Offset < 0 {
		return nil, serverutils.BadRequest("offset must not be negative")
	}

	repo := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository()

	total, err := repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	conversations, err := repo.FindAll(ctx,
		specification.OrderBy{Field: "updated_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: req.Offset},
	)
	if err != nil {
		return nil, err
	}

	res := &dto.ListConversationsResponse{
		Conversations: make([]dto.ConversationResponse, 0, len(conversations)),
		Total:         total,
		Limit:         limit,
		Offset:        req.Offset,
	}
	for _, c := range conversations {
		res.Conversations = append(res.Conversations, toConversationResponse(c))
	}
	return res, nil
}

func (s *conversationService) Create(ctx context.Context, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error) {
	now := time.Now()
	conversation := &entity.Conversation{
		ThreadId:  uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: &now,
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if utf8.RuneCountInString(title) > 500 {
			return nil, serverutils.BadRequest("title must be at most 500 characters")
		}
		if title != "" {
			conversation.Title = &title
		}
	}

	if err := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository().Create(ctx, conversation); err != nil {
		return nil, err
	}

	res := toConversationResponse(conversation)
	return &res, nil
}

// History reads the conversation's messages from its checkpoint. An unreadable
// checkpoint yields an empty history rather than an error.
func (s *conversationService) History(ctx context.Context, threadID string) (*dto.ConversationHistoryResponse, error) {
	conversation, err := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository().FindOne(ctx,
		specification.ByThreadID{ThreadID: threadID},
	)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	res := &dto.ConversationHistoryResponse{ThreadId: threadID, Messages: []dto.HistoryMessageResponse{}}

	saved, err := s.checkpoints.Load(ctx, threadID)
	if err != nil {
		s.logger.Warn(conversationModule, "Failed to load checkpoint, returning empty history", map[string]interface{}{
			"thread_id": threadID,
			"error":     err.Error(),
		})
		return res, nil
	}
	if saved == nil {
		return res, nil
	}

	for _, m := range saved.Messages {
		msg := dto.HistoryMessageResponse{Id: m.ID, Role: m.Role, Content: m.Content}
		for _, d := range m.Sources {
			msg.Sources = append(msg.Sources, toSourceDTO(d))
		}
		res.Messages = append(res.Messages, msg)
	}
	return res, nil
}

func (s *conversationService) UpdateTitle(ctx context.Context, req *dto.UpdateConversationTitleRequest) (*dto.ConversationResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, serverutils.BadRequest("title must not be empty")
	}

	repo := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository()
	conversation, err := repo.FindOne(ctx, specification.ByThreadID{ThreadID: req.ThreadId})
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	now := time.Now()
	conversation.Title = &title
	conversation.UpdatedAt = &now
	if err := repo.Update(ctx, conversation); err != nil {
		return nil, err
	}

	res := toConversationResponse(conversation)
	return &res, nil
}

// Delete only hides the conversation; its checkpoint stays so Restore brings it back whole.
func (s *conversationService) Delete(ctx context.Context, threadID string) error {
	deleted, err := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository().SoftDelete(ctx, threadID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrConversationNotFound
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.ConversationDeleted(threadID)); err != nil {
			s.logger.Warn(conversationModule, "Failed to publish conversation.deleted", map[string]interface{}{
				"thread_id": threadID,
				"error":     err.Error(),
			})
		}
	}
	return nil
}

func (s *conversationService) ListDeleted(ctx context.Context) (*dto.ListDeletedConversationsResponse, error) {
	conversations, err := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository().FindAll(ctx,
		specification.OnlyDeleted{},
		specification.OrderBy{Field: "deleted_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := &dto.ListDeletedConversationsResponse{
		Conversations: make([]dto.DeletedConversationResponse, 0, len(conversations)),
		Total:         len(conversations),
	}
	for _, c := range conversations {
		res.Conversations = append(res.Conversations, dto.DeletedConversationResponse{
			ThreadId:  c.ThreadId,
			Title:     c.Title,
			CreatedAt: c.CreatedAt,
			DeletedAt: c.DeletedAt,
			ExpiresAt: c.ExpiresAt(),
		})
	}
	return res, nil
}

func (s *conversationService) Restore(ctx context.Context, threadID string) (*dto.ConversationResponse, error) {
	repo := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository()
	restored, err := repo.Restore(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !restored {
		return nil, ErrConversationNotFound
	}

	conversation, err := repo.FindOne(ctx, specification.ByThreadID{ThreadID: threadID})
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	res := toConversationResponse(conversation)
	return &res, nil
}

func (s *conversationService) Title(ctx context.Context, threadID string) (string, error) {
	conversation, err := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository().FindOne(ctx,
		specification.ByThreadID{ThreadID: threadID},
	)
	if err != nil {
		return "", err
	}
	if conversation == nil || conversation.Title == nil {
		return "", nil
	}
	return *conversation.Title, nil
}

func (s *conversationService) RecordTurn(ctx context.Context, threadID, query string) error {
	return s.uowFactory.NewUnitOfWork(ctx).ConversationRepository().Touch(ctx, threadID, TitleFromQuery(query))
}

func (s *conversationService) ConsumeActivity(ctx context.Context, sub *pktNats.Subscriber) error {
	subject := pktNats.SubjectPrefix + events.TypeTurnCompleted
	return sub.Subscribe(ctx, subject, activityDurable, func(ctx context.Context, event events.Event) error {
		threadID, _ := event.Payload()["thread_id"].(string)
		if threadID == "" {
			s.logger.Warn(conversationModule, "turn.completed without thread_id", nil)
			return nil
		}
		query, _ := event.Payload()["query"].(string)
		if err := s.RecordTurn(ctx, threadID, query); err != nil {
			return fmt.Errorf("record turn for %s: %w", threadID, err)
		}
		return nil
	})
}

// TitleFromQuery shortens a first question into a conversation title.
func TitleFromQuery(query string) string {
	title := strings.Join(strings.Fields(query), " ")
	if utf8.RuneCountInString(title) <= titleRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:titleRunes])) + "..."
}

func toConversationResponse(c *entity.Conversation) dto.ConversationResponse {
	return dto.ConversationResponse{
		ThreadId:  c.ThreadId,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toSourceDTO(d document.Document) dto.SourceDocumentDTO {
	return dto.SourceDocumentDTO{Id: d.ID, PageContent: d.Content, Metadata: d.Metadata}
}
