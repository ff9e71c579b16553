package dto

import "time"

type CreateConversationRequest struct {
	Title *string `json:"title" validate:"omitempty,max=500"`
}

type UpdateConversationTitleRequest struct {
	ThreadId string
	Title    string `json:"title" validate:"required,min=1,max=500"`
}

type ListConversationsRequest struct {
	Limit  int `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `query:"offset" validate:"omitempty,min=0"`
}

type ConversationResponse struct {
	ThreadId  string     `json:"thread_id"`
	Title     *string    `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type DeletedConversationResponse struct {
	ThreadId  string     `json:"thread_id"`
	Title     *string    `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	Total         int64                  `json:"total"`
	Limit         int                    `json:"limit"`
	Offset        int                    `json:"offset"`
}

type ListDeletedConversationsResponse struct {
	Conversations []DeletedConversationResponse `json:"conversations"`
	Total         int                           `json:"total"`
}

type HistoryMessageResponse struct {
	Id      string              `json:"id"`
	Role    string              `json:"role"`
	Content string              `json:"content"`
	Sources []SourceDocumentDTO `json:"sources,omitempty"`
}

type SourceDocumentDTO struct {
	Id          string                 `json:"id"`
	PageContent string                 `json:"page_content"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type ConversationHistoryResponse struct {
	ThreadId string                   `json:"thread_id"`
	Messages []HistoryMessageResponse `json:"messages"`
}
