package implementation

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"filings-rag-be/internal/model"
	"filings-rag-be/internal/repository/contract"
	"filings-rag-be/internal/repository/specification"
	"filings-rag-be/pkg/database"
)

type FilingChunkRepositoryImpl struct {
	db *gorm.DB
}

func NewFilingChunkRepository(db *gorm.DB) contract.FilingChunkRepository {
	return &FilingChunkRepositoryImpl{db: db}
}

// Migrate creates the vector extension, both tables and the HNSW cosine index
// the retriever's ORDER BY relies on.
func (r *FilingChunkRepositoryImpl) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := database.EnableVector(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(&model.FilingChunk{}, &model.SessionSnapshot{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_filing_chunks_embedding
		ON filing_chunks USING hnsw (embedding vector_cosine_ops)`).Error
	if err != nil {
		return fmt.Errorf("create embedding index: %w", err)
	}
	return nil
}

func (r *FilingChunkRepositoryImpl) CreateBulk(ctx context.Context, chunks []*model.FilingChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 100).Error
}

func (r *FilingChunkRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var n int64
	query := specification.Apply(r.db.WithContext(ctx).Model(&model.FilingChunk{}), specs...)
	if err := query.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
