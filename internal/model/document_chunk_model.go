package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// DocumentChunk is one embedded slice of an ingested document. Re-ingesting a
// document replaces all of its rows; (document_id, chunk_index) is unique.
type DocumentChunk struct {
	Id         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentId string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_document_chunk"`
	ChunkIndex int             `gorm:"not null;default:0;uniqueIndex:idx_document_chunk"`
	ThreadId   string          `gorm:"type:varchar(128);not null;index"`
	Content    string          `gorm:"type:text"`
	Metadata   datatypes.JSON  `gorm:"type:jsonb"`
	Embedding  pgvector.Vector `gorm:"type:vector"` // dimension is fixed by cmd/migrate
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
