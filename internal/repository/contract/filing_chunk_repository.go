package contract

import (
	"context"

	"filings-rag-be/internal/model"
	"filings-rag-be/internal/repository/specification"
)

type FilingChunkRepository interface {
	Migrate(ctx context.Context) error
	CreateBulk(ctx context.Context, chunks []*model.FilingChunk) error
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
