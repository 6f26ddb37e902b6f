package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// FilingChunk is one embedded piece of a filing. Collection separates text
// chunks from image captions.
type FilingChunk struct {
	Id         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Collection string          `gorm:"type:varchar(32);not null;index:idx_filing_chunks_collection_company"`
	Company    string          `gorm:"type:varchar(255);index:idx_filing_chunks_collection_company"`
	SourceFile string          `gorm:"type:text"`
	Content    string          `gorm:"type:text;not null"`
	Metadata   datatypes.JSON  `gorm:"type:jsonb"`
	Embedding  pgvector.Vector `gorm:"type:vector(768)"` // nomic-embed-text / jina v2 base
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
}

func (FilingChunk) TableName() string {
	return "filing_chunks"
}
