package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/sma-core-api/internal/models"
)

// UserRepository persists application identities and their role sub-records.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uint) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateStatus(ctx context.Context, id uint, status string) error
	List(ctx context.Context, role string, limit, offset int) ([]models.User, int64, error)
	IsParentOf(ctx context.Context, parentID, studentID uint) (bool, error)
	IsTeacherOf(ctx context.Context, teacherID, studentID uint) (bool, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Preload("StudentInfo").
		Preload("TeacherInfo").
		Preload("TeacherInfo.Students").
		Preload("ParentInfo").
		Preload("ParentInfo.Children").
		Preload("AdminInfo").
		First(&user, id).Error
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Preload("StudentInfo").
		Preload("TeacherInfo").
		Preload("TeacherInfo.Students").
		Preload("ParentInfo").
		Preload("ParentInfo.Children").
		Preload("AdminInfo").
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) FindByExternalID(ctx context.Context, externalID string) (models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Update("status", status).Error
}

func (r *userRepository) List(ctx context.Context, role string, limit, offset int) ([]models.User, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Model(&models.User{})
	if role != "" {
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []models.User
	if err := query.Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) IsParentOf(ctx context.Context, parentID, studentID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ParentChild{}).
		Joins("JOIN parent_infos ON parent_infos.id = parent_children.parent_info_id").
		Where("parent_infos.user_id = ? AND parent_children.student_id = ?", parentID, studentID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *userRepository) IsTeacherOf(ctx context.Context, teacherID, studentID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TeacherStudent{}).
		Joins("JOIN teacher_infos ON teacher_infos.id = teacher_students.teacher_info_id").
		Where("teacher_infos.user_id = ? AND teacher_students.student_id = ?", teacherID, studentID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
