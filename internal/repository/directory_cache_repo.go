package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/sma-core-api/internal/models"
)

// DirectoryCacheRepository maintains the local mirror of external directory
// records written by the synchronization daemon.
type DirectoryCacheRepository interface {
	Upsert(ctx context.Context, entry *models.DirectoryCacheEntry) error
	Find(ctx context.Context, doctype, externalID string) (models.DirectoryCacheEntry, error)
	ListByDoctype(ctx context.Context, doctype string, limit, offset int) ([]models.DirectoryCacheEntry, int64, error)
	ExternalIDs(ctx context.Context, doctype string) ([]string, error)
	MarkDeleted(ctx context.Context, doctype, externalID string) error
	MarkRecycled(ctx context.Context, doctype, externalID string, at time.Time) error
}

type directoryCacheRepository struct {
	db *gorm.DB
}

// NewDirectoryCacheRepository constructs a directory cache repository backed by GORM.
func NewDirectoryCacheRepository(db *gorm.DB) DirectoryCacheRepository {
	return &directoryCacheRepository{db: db}
}

func (r *directoryCacheRepository) Upsert(ctx context.Context, entry *models.DirectoryCacheEntry) error {
	var existing models.DirectoryCacheEntry
	err := r.db.WithContext(ctx).
		Where("doctype = ? AND external_id = ?", entry.Doctype, entry.ExternalID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(entry).Error
	}
	if err != nil {
		return err
	}

	entry.ID = existing.ID
	entry.CreatedAt = existing.CreatedAt
	// A row flipping from deleted back to live means the identifier was
	// recycled for a new identity; stamp the boundary so stale references
	// cannot silently reattach to the new identity.
	if existing.Deleted && !entry.Deleted {
		now := time.Now().UTC()
		entry.RecycledAt = &now
	} else if entry.RecycledAt == nil {
		entry.RecycledAt = existing.RecycledAt
	}
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *directoryCacheRepository) Find(ctx context.Context, doctype, externalID string) (models.DirectoryCacheEntry, error) {
	var entry models.DirectoryCacheEntry
	err := r.db.WithContext(ctx).
		Where("doctype = ? AND external_id = ?", doctype, externalID).
		First(&entry).Error
	if err != nil {
		return models.DirectoryCacheEntry{}, err
	}
	return entry, nil
}

func (r *directoryCacheRepository) ListByDoctype(ctx context.Context, doctype string, limit, offset int) ([]models.DirectoryCacheEntry, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).
		Model(&models.DirectoryCacheEntry{}).
		Where("doctype = ? AND deleted = ?", doctype, false)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.DirectoryCacheEntry
	if err := query.Order("external_id ASC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *directoryCacheRepository) ExternalIDs(ctx context.Context, doctype string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.DirectoryCacheEntry{}).
		Where("doctype = ?", doctype).
		Pluck("external_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *directoryCacheRepository) MarkDeleted(ctx context.Context, doctype, externalID string) error {
	return r.db.WithContext(ctx).
		Model(&models.DirectoryCacheEntry{}).
		Where("doctype = ? AND external_id = ?", doctype, externalID).
		Update("deleted", true).Error
}

func (r *directoryCacheRepository) MarkRecycled(ctx context.Context, doctype, externalID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DirectoryCacheEntry{}).
		Where("doctype = ? AND external_id = ?", doctype, externalID).
		Updates(map[string]interface{}{"recycled_at": at, "deleted": false}).Error
}
