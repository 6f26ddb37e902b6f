package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"filings-rag-be/internal/model"
	"filings-rag-be/internal/repository/contract"
	"filings-rag-be/internal/repository/specification"
	"filings-rag-be/pkg/session"
)

type SessionSnapshotRepositoryImpl struct {
	db *gorm.DB
}

func NewSessionSnapshotRepository(db *gorm.DB) contract.SessionSnapshotRepository {
	return &SessionSnapshotRepositoryImpl{db: db}
}

func (r *SessionSnapshotRepositoryImpl) Save(ctx context.Context, rec session.Record) error {
	if !session.ValidID(rec.SessionID) {
		return fmt.Errorf("%w: %q", session.ErrInvalidID, rec.SessionID)
	}
	data, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.SessionID, err)
	}
	m := &model.SessionSnapshot{
		SessionId:          rec.SessionID,
		UserId:             rec.UserID,
		ConversationLength: len(rec.Snapshot.History),
		Data:               data,
		CreatedAt:          rec.CreatedAt,
		LastActive:         rec.LastActive,
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "conversation_length", "data", "last_active", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.SessionID, err)
	}
	return nil
}

func (r *SessionSnapshotRepositoryImpl) Load(ctx context.Context, id string) (session.Record, error) {
	var m model.SessionSnapshot
	if err := r.db.WithContext(ctx).Where("session_id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return session.Record{}, session.ErrSessionNotFound
		}
		return session.Record{}, fmt.Errorf("load session %s: %w", id, err)
	}
	rec := session.Record{
		SessionID:  m.SessionId,
		UserID:     m.UserId,
		CreatedAt:  m.CreatedAt,
		LastActive: m.LastActive,
	}
	if err := json.Unmarshal(m.Data, &rec.Snapshot); err != nil {
		return session.Record{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return rec, nil
}

// List reads only the descriptive columns.
func (r *SessionSnapshotRepositoryImpl) List(ctx context.Context, userID string) ([]session.Info, error) {
	var models []model.SessionSnapshot
	query := specification.Apply(
		r.db.WithContext(ctx).Select("session_id", "user_id", "conversation_length", "created_at", "last_active"),
		specification.ByUser{UserID: userID},
		specification.OrderByLastActive{},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]session.Info, 0, len(models))
	for _, m := range models {
		out = append(out, session.Info{
			SessionID:          m.SessionId,
			UserID:             m.UserId,
			CreatedAt:          m.CreatedAt,
			LastActive:         m.LastActive,
			ConversationLength: m.ConversationLength,
		})
	}
	return out, nil
}

func (r *SessionSnapshotRepositoryImpl) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("session_id = ?", id).Delete(&model.SessionSnapshot{})
	if res.Error != nil {
		return fmt.Errorf("delete session %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (r *SessionSnapshotRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res := specification.Apply(r.db.WithContext(ctx), specification.LastActiveBefore{Cutoff: cutoff}).
		Delete(&model.SessionSnapshot{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}
