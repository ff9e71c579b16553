package dto

import "encoding/json"

type IngestResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	ThreadId string `json:"thread_id"`
	Pages    int    `json:"pages"`
}

// IngestDocumentsRequest carries raw document updates: "delete", a string, or an array of
// strings and document records.
type IngestDocumentsRequest struct {
	ThreadId string          `json:"threadId" validate:"required,min=1,max=128"`
	Docs     json.RawMessage `json:"docs" validate:"required"`
	Config   *RunConfig      `json:"config,omitempty"`
}

// IngestDocumentMessage is the queue payload handed to the chunk/embed consumer.
type IngestDocumentMessage struct {
	DocumentId string                 `json:"document_id"`
	ThreadId   string                 `json:"thread_id"`
	Source     string                 `json:"source"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
}
