package specification

import (
	"time"

	"gorm.io/gorm"
)

// Specification narrows a query.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}

// Apply folds every specification into db.
func Apply(db *gorm.DB, specs ...Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

// ByUser matches rows owned by UserID. An empty id matches everything.
type ByUser struct {
	UserID string
}

func (s ByUser) Apply(db *gorm.DB) *gorm.DB {
	if s.UserID == "" {
		return db
	}
	return db.Where("user_id = ?", s.UserID)
}

type LastActiveBefore struct {
	Cutoff time.Time
}

func (s LastActiveBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("last_active < ?", s.Cutoff)
}

type OrderByLastActive struct{}

func (OrderByLastActive) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("last_active DESC")
}

type ByCollection struct {
	Collection string
}

func (s ByCollection) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("collection = ?", s.Collection)
}
