package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/sma-core-api/internal/models"
)

// ApprovalRepository manages parental approvals and tutor preferences.
type ApprovalRepository interface {
	Grant(ctx context.Context, approval *models.ParentalApproval) error
	Revoke(ctx context.Context, parentID, studentID uint, scope string) error
	HasActiveApproval(ctx context.Context, studentID uint, scope string) (bool, error)
	Preferences(ctx context.Context, studentID uint) (models.TutorPreferences, error)
	SavePreferences(ctx context.Context, prefs *models.TutorPreferences) error
}

type approvalRepository struct {
	db *gorm.DB
}

// NewApprovalRepository constructs an approval repository backed by GORM.
func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Grant(ctx context.Context, approval *models.ParentalApproval) error {
	if approval.GrantedAt.IsZero() {
		approval.GrantedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(approval).Error
}

func (r *approvalRepository) Revoke(ctx context.Context, parentID, studentID uint, scope string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.ParentalApproval{}).
		Where("parent_id = ? AND student_id = ? AND scope = ? AND revoked_at IS NULL", parentID, studentID, scope).
		Update("revoked_at", now).Error
}

func (r *approvalRepository) HasActiveApproval(ctx context.Context, studentID uint, scope string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ParentalApproval{}).
		Where("student_id = ? AND scope = ? AND revoked_at IS NULL", studentID, scope).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *approvalRepository) Preferences(ctx context.Context, studentID uint) (models.TutorPreferences, error) {
	var prefs models.TutorPreferences
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&prefs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.TutorPreferences{StudentID: studentID}, nil
	}
	if err != nil {
		return models.TutorPreferences{}, err
	}
	return prefs, nil
}

func (r *approvalRepository) SavePreferences(ctx context.Context, prefs *models.TutorPreferences) error {
	var existing models.TutorPreferences
	err := r.db.WithContext(ctx).Where("student_id = ?", prefs.StudentID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(prefs).Error
	}
	if err != nil {
		return err
	}

	prefs.ID = existing.ID
	prefs.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).Save(prefs).Error
}
