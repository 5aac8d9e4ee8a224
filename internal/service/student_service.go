package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/sma-core-api/internal/directory"
	"github.com/noah-isme/sma-core-api/internal/dto"
	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/internal/repository"
)

// ErrStudentNotFound covers both directory and mirror misses.
var ErrStudentNotFound = errors.New("student not found")

// StudentService reads and mutates directory-backed student records. Reads
// prefer the live directory and fall back to the local mirror when the
// directory is unreachable.
type StudentService interface {
	List(ctx context.Context, limit, offset int) (dto.StudentListResponse, error)
	Get(ctx context.Context, callerID uint, callerRole, externalID string) (dto.StudentResponse, error)
	Update(ctx context.Context, externalID string, req dto.UpdateStudentRequest) (dto.StudentResponse, error)
	Delete(ctx context.Context, externalID string) error
}

type studentService struct {
	adapter  *directory.Adapter
	cache    repository.DirectoryCacheRepository
	users    repository.UserRepository
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewStudentService wires the student service.
func NewStudentService(adapter *directory.Adapter, cache repository.DirectoryCacheRepository, users repository.UserRepository, validate *validator.Validate, logger zerolog.Logger) StudentService {
	return &studentService{
		adapter:  adapter,
		cache:    cache,
		users:    users,
		validate: validate,
		logger:   logger.With().Str("component", "student_service").Logger(),
	}
}

// List pages the local mirror. Listing never hits the directory: the sync
// daemon keeps the mirror current, and a full directory scan per request
// would not survive the upstream's page limits.
func (s *studentService) List(ctx context.Context, limit, offset int) (dto.StudentListResponse, error) {
	mapper, err := directory.MapperFor(models.RoleStudent)
	if err != nil {
		return dto.StudentListResponse{}, err
	}

	entries, total, err := s.cache.ListByDoctype(ctx, mapper.Doctype(), limit, offset)
	if err != nil {
		return dto.StudentListResponse{}, err
	}

	students := make([]dto.StudentResponse, 0, len(entries))
	for _, entry := range entries {
		students = append(students, dto.NewStudentResponseFromCache(entry))
	}

	return dto.StudentListResponse{
		Students: students,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

func (s *studentService) Get(ctx context.Context, callerID uint, callerRole, externalID string) (dto.StudentResponse, error) {
	if err := s.authorizeRead(ctx, callerID, callerRole, externalID); err != nil {
		return dto.StudentResponse{}, err
	}

	record, deleted, err := s.adapter.Get(ctx, models.RoleStudent, externalID)
	if err == nil {
		if deleted {
			return dto.StudentResponse{}, ErrStudentNotFound
		}
		return s.fromRecord(record), nil
	}
	if errors.Is(err, directory.ErrNotFound) {
		return dto.StudentResponse{}, ErrStudentNotFound
	}
	if !errors.Is(err, directory.ErrUpstream) && !errors.Is(err, directory.ErrTimeout) {
		return dto.StudentResponse{}, err
	}

	// Directory unreachable: serve the mirror so reads degrade instead of
	// failing outright.
	s.logger.Warn().Err(err).Str("external_id", externalID).Msg("directory unreachable, serving cached student")

	mapper, mapperErr := directory.MapperFor(models.RoleStudent)
	if mapperErr != nil {
		return dto.StudentResponse{}, mapperErr
	}
	entry, cacheErr := s.cache.Find(ctx, mapper.Doctype(), externalID)
	if errors.Is(cacheErr, gorm.ErrRecordNotFound) {
		return dto.StudentResponse{}, ErrStudentNotFound
	}
	if cacheErr != nil {
		return dto.StudentResponse{}, cacheErr
	}
	if entry.Deleted {
		return dto.StudentResponse{}, ErrStudentNotFound
	}
	return dto.NewStudentResponseFromCache(entry), nil
}

// authorizeRead enforces ownership for directory reads: admins may read any
// student, a student only their own record, parents and teachers only a
// linked student's record.
func (s *studentService) authorizeRead(ctx context.Context, callerID uint, callerRole, externalID string) error {
	switch callerRole {
	case models.RoleAdmin:
		return nil
	case models.RoleStudent, models.RoleParent, models.RoleTeacher:
		owner, err := s.users.FindByExternalID(ctx, externalID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No local account maps to this identifier; nothing to own.
			return ErrStudentAccess
		}
		if err != nil {
			return err
		}
		if callerRole == models.RoleStudent {
			if owner.ID == callerID {
				return nil
			}
			return ErrStudentAccess
		}
		var linked bool
		if callerRole == models.RoleParent {
			linked, err = s.users.IsParentOf(ctx, callerID, owner.ID)
		} else {
			linked, err = s.users.IsTeacherOf(ctx, callerID, owner.ID)
		}
		if err != nil {
			return err
		}
		if !linked {
			return ErrStudentAccess
		}
		return nil
	default:
		return ErrStudentAccess
	}
}

func (s *studentService) Update(ctx context.Context, externalID string, req dto.UpdateStudentRequest) (dto.StudentResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.StudentResponse{}, err
	}

	current, deleted, err := s.adapter.Get(ctx, models.RoleStudent, externalID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return dto.StudentResponse{}, ErrStudentNotFound
		}
		return dto.StudentResponse{}, err
	}
	if deleted {
		return dto.StudentResponse{}, ErrStudentNotFound
	}

	mapper, err := directory.MapperFor(models.RoleStudent)
	if err != nil {
		return dto.StudentResponse{}, err
	}
	profile := mapper.FromExternal(current)
	if req.Email != "" {
		profile.Email = req.Email
	}
	if req.FullName != "" {
		profile.FullName = req.FullName
	}
	profile.Role = models.RoleStudent

	record, err := s.adapter.Update(ctx, models.RoleStudent, externalID, profile)
	if err != nil {
		return dto.StudentResponse{}, err
	}

	return s.fromRecord(record), nil
}

// Delete soft-deletes the directory record and suspends the linked local
// account. The directory rejects hard deletes for linked records, so the
// sentinel rename plus disable flag is the deletion.
func (s *studentService) Delete(ctx context.Context, externalID string) error {
	if err := s.adapter.SoftDelete(ctx, models.RoleStudent, externalID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return ErrStudentNotFound
		}
		return err
	}

	mapper, err := directory.MapperFor(models.RoleStudent)
	if err != nil {
		return err
	}
	if err := s.cache.MarkDeleted(ctx, mapper.Doctype(), externalID); err != nil &&
		!errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn().Err(err).Str("external_id", externalID).Msg("failed to mark cached student deleted")
	}

	user, err := s.users.FindByExternalID(ctx, externalID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.users.UpdateStatus(ctx, user.ID, models.StatusInactive); err != nil {
		return err
	}

	s.logger.Info().Str("external_id", externalID).Uint("user_id", user.ID).Msg("student soft-deleted")
	return nil
}

func (s *studentService) fromRecord(record directory.Record) dto.StudentResponse {
	mapper, err := directory.MapperFor(models.RoleStudent)
	if err != nil {
		return dto.StudentResponse{}
	}
	profile := mapper.FromExternal(record)
	return dto.StudentResponse{
		ExternalID: record.Name(),
		Email:      profile.Email,
		FullName:   profile.FullName,
		Disabled:   profile.Disabled,
		Source:     dto.StudentSourceDirectory,
	}
}
