package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/sma-core-api/internal/models"
)

// InteractionStats aggregates a student's tutor usage for auditing.
type InteractionStats struct {
	TotalExchanges  int64      `json:"total_exchanges"`
	TotalTokens     int64      `json:"total_tokens"`
	FlaggedCount    int64      `json:"flagged_count"`
	AverageScore    float64    `json:"average_score"`
	ExchangesToday  int64      `json:"exchanges_today"`
	FirstExchangeAt *time.Time `json:"first_exchange_at,omitempty"`
	LastExchangeAt  *time.Time `json:"last_exchange_at,omitempty"`
}

// InteractionRepository appends and reads the AI interaction audit log.
// The log is append-only: no update or delete methods exist by design of the
// audit trail.
type InteractionRepository interface {
	Append(ctx context.Context, interaction *models.AIInteraction) error
	ListByStudent(ctx context.Context, studentID uint, limit, offset int) ([]models.AIInteraction, error)
	StatsByStudent(ctx context.Context, studentID uint) (InteractionStats, error)
	CountSince(ctx context.Context, studentID uint, since time.Time) (int64, error)
}

type interactionRepository struct {
	db *gorm.DB
}

// NewInteractionRepository constructs an interaction repository backed by GORM.
func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

func (r *interactionRepository) Append(ctx context.Context, interaction *models.AIInteraction) error {
	return r.db.WithContext(ctx).Create(interaction).Error
}

func (r *interactionRepository) ListByStudent(ctx context.Context, studentID uint, limit, offset int) ([]models.AIInteraction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var interactions []models.AIInteraction
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&interactions).Error
	if err != nil {
		return nil, err
	}
	return interactions, nil
}

func (r *interactionRepository) StatsByStudent(ctx context.Context, studentID uint) (InteractionStats, error) {
	var stats InteractionStats

	base := r.db.WithContext(ctx).Model(&models.AIInteraction{}).Where("student_id = ?", studentID)

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalExchanges).Error; err != nil {
		return InteractionStats{}, err
	}
	if stats.TotalExchanges == 0 {
		return stats, nil
	}

	row := struct {
		TotalTokens  int64
		FlaggedCount int64
		AverageScore float64
		FirstAt      time.Time
		LastAt       time.Time
	}{}
	err := base.Session(&gorm.Session{}).
		Select("COALESCE(SUM(total_tokens),0) AS total_tokens, " +
			"COALESCE(SUM(CASE WHEN flagged THEN 1 ELSE 0 END),0) AS flagged_count, " +
			"COALESCE(AVG(appropriateness_score),0) AS average_score, " +
			"MIN(created_at) AS first_at, MAX(created_at) AS last_at").
		Scan(&row).Error
	if err != nil {
		return InteractionStats{}, err
	}

	stats.TotalTokens = row.TotalTokens
	stats.FlaggedCount = row.FlaggedCount
	stats.AverageScore = row.AverageScore
	stats.FirstExchangeAt = &row.FirstAt
	stats.LastExchangeAt = &row.LastAt

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	today, err := r.CountSince(ctx, studentID, midnight)
	if err != nil {
		return InteractionStats{}, err
	}
	stats.ExchangesToday = today

	return stats, nil
}

func (r *interactionRepository) CountSince(ctx context.Context, studentID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AIInteraction{}).
		Where("student_id = ? AND created_at >= ?", studentID, since).
		Count(&count).Error
	return count, err
}
