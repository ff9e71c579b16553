package entity

import (
	"time"

	"github.com/google/uuid"
)

type DocumentChunk struct {
	Id         uuid.UUID
	DocumentId string
	ChunkIndex int
	ThreadId   string
	Content    string
	Metadata   map[string]interface{}
	Embedding  []float32
	CreatedAt  time.Time
}
