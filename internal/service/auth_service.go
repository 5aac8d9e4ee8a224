package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/noah-isme/sma-core-api/internal/directory"
	"github.com/noah-isme/sma-core-api/internal/dto"
	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/internal/observability"
	"github.com/noah-isme/sma-core-api/internal/repository"
	"github.com/noah-isme/sma-core-api/internal/token"
)

// Authentication failures surfaced to handlers.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountSuspended   = errors.New("account is not active")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPhotoType          = errors.New("photo must be a jpeg, png, or webp image")
	ErrPhotoTooLarge      = errors.New("photo exceeds maximum allowed size")
)

const maxPhotoBytes = 5 * 1024 * 1024

// FileStorage stores an image and returns its public URL.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// AuthService handles registration, login, token rotation, and profile updates.
type AuthService interface {
	Register(ctx context.Context, req dto.RegisterRequest) (dto.UserResponse, error)
	Login(ctx context.Context, req dto.LoginRequest) (dto.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (dto.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID uint) error
	Me(ctx context.Context, userID uint) (dto.UserResponse, error)
	UpdateProfile(ctx context.Context, userID uint, req dto.UpdateProfileRequest) (dto.UserResponse, error)
	UploadPhoto(ctx context.Context, userID uint, file *multipart.FileHeader) (dto.UserResponse, error)
}

type authService struct {
	users    repository.UserRepository
	tokens   *token.Manager
	adapter  *directory.Adapter
	cache    repository.DirectoryCacheRepository
	photos   FileStorage
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewAuthService wires the authentication service.
func NewAuthService(users repository.UserRepository, tokens *token.Manager, adapter *directory.Adapter, cache repository.DirectoryCacheRepository, photos FileStorage, validate *validator.Validate, logger zerolog.Logger) AuthService {
	return &authService{
		users:    users,
		tokens:   tokens,
		adapter:  adapter,
		cache:    cache,
		photos:   photos,
		validate: validate,
		logger:   logger.With().Str("component", "auth_service").Logger(),
	}
}

func (s *authService) Register(ctx context.Context, req dto.RegisterRequest) (dto.UserResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.UserResponse{}, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return dto.UserResponse{}, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.UserResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return dto.UserResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Status:       models.StatusPending,
	}

	switch req.Role {
	case models.RoleStudent:
		user.StudentInfo = &models.StudentInfo{NIS: req.NIS, ClassName: req.ClassName}
	case models.RoleTeacher:
		user.TeacherInfo = &models.TeacherInfo{EmployeeID: req.EmployeeID, Subject: req.Subject}
	case models.RoleParent:
		user.ParentInfo = &models.ParentInfo{Phone: req.Phone}
	case models.RoleAdmin:
		user.AdminInfo = &models.AdminInfo{}
	}

	// Directory first: a conflict there resolves to the existing record and
	// must not orphan a local row.
	record, recycled, err := s.adapter.Create(ctx, directory.Profile{
		Email:    user.Email,
		FullName: user.FullName,
		Role:     user.Role,
	})
	if err != nil {
		return dto.UserResponse{}, err
	}
	user.ExternalID = record.Name()

	// A recycled identifier previously named someone else; stamp the mirror
	// so stale cached rows cannot reattach the old identity to it.
	if recycled {
		if mapper, mapperErr := directory.MapperFor(user.Role); mapperErr == nil {
			if err := s.cache.MarkRecycled(ctx, mapper.Doctype(), user.ExternalID, time.Now().UTC()); err != nil &&
				!errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.Warn().Err(err).Str("external_id", user.ExternalID).
					Msg("failed to stamp recycled cache entry")
			}
		}
	}

	if err := s.users.Create(ctx, &user); err != nil {
		return dto.UserResponse{}, err
	}

	s.logger.Info().Uint("user_id", user.ID).Str("role", user.Role).
		Str("external_id", user.ExternalID).Msg("user registered")

	return dto.NewUserResponse(user), nil
}

func (s *authService) Login(ctx context.Context, req dto.LoginRequest) (dto.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.LoginResponse{}, err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		observability.AuthLogins().WithLabelValues("unknown_email").Inc()
		return dto.LoginResponse{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		observability.AuthLogins().WithLabelValues("bad_password").Inc()
		return dto.LoginResponse{}, ErrInvalidCredentials
	}

	// A role mismatch answers identically to a bad password so the endpoint
	// does not reveal which field was wrong.
	if user.Role != req.Role {
		observability.AuthLogins().WithLabelValues("role_mismatch").Inc()
		return dto.LoginResponse{}, ErrInvalidCredentials
	}

	if user.Status == models.StatusSuspended || user.Status == models.StatusInactive {
		observability.AuthLogins().WithLabelValues("suspended").Inc()
		return dto.LoginResponse{}, ErrAccountSuspended
	}

	pair, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return dto.LoginResponse{}, err
	}

	now := time.Now().UTC()
	user.LastLogin = &now
	if err := s.users.Update(ctx, &user); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to record last login")
	}

	observability.AuthLogins().WithLabelValues("ok").Inc()

	return dto.NewLoginResponse(user, pair), nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (dto.TokenResponse, error) {
	claims, err := s.tokens.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return dto.TokenResponse{}, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return dto.TokenResponse{}, token.ErrTokenInvalid
	}
	if user.Status == models.StatusSuspended || user.Status == models.StatusInactive {
		return dto.TokenResponse{}, ErrAccountSuspended
	}

	pair, err := s.tokens.Rotate(ctx, refreshToken, user)
	if err != nil {
		return dto.TokenResponse{}, err
	}

	return dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.Revoke(ctx, refreshToken)
}

func (s *authService) LogoutAll(ctx context.Context, userID uint) error {
	return s.tokens.RevokeAll(ctx, userID)
}

func (s *authService) Me(ctx context.Context, userID uint) (dto.UserResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return dto.UserResponse{}, err
	}
	return dto.NewUserResponse(user), nil
}

func (s *authService) UpdateProfile(ctx context.Context, userID uint, req dto.UpdateProfileRequest) (dto.UserResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.UserResponse{}, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return dto.UserResponse{}, err
	}

	if req.FullName != "" {
		user.FullName = strings.TrimSpace(req.FullName)
	}
	if req.Phone != "" && user.ParentInfo != nil {
		user.ParentInfo.Phone = req.Phone
	}

	// Keep the directory in step; the local row is only a mirror of the
	// fields the directory owns.
	if user.ExternalID != "" {
		if _, err := s.adapter.Update(ctx, user.Role, user.ExternalID, directory.Profile{
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
		}); err != nil {
			return dto.UserResponse{}, err
		}
	}

	if err := s.users.Update(ctx, &user); err != nil {
		return dto.UserResponse{}, err
	}

	return dto.NewUserResponse(user), nil
}

func (s *authService) UploadPhoto(ctx context.Context, userID uint, file *multipart.FileHeader) (dto.UserResponse, error) {
	if s.photos == nil {
		return dto.UserResponse{}, fmt.Errorf("photo storage is not configured")
	}
	if file == nil {
		return dto.UserResponse{}, fmt.Errorf("photo file is required")
	}
	if file.Size > maxPhotoBytes {
		return dto.UserResponse{}, ErrPhotoTooLarge
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return dto.UserResponse{}, err
	}

	handle, err := file.Open()
	if err != nil {
		return dto.UserResponse{}, err
	}
	defer handle.Close()

	detected, err := mimetype.DetectReader(handle)
	if err != nil {
		return dto.UserResponse{}, err
	}
	switch detected.String() {
	case "image/jpeg", "image/png", "image/webp":
	default:
		return dto.UserResponse{}, ErrPhotoType
	}

	if _, err := handle.Seek(0, io.SeekStart); err != nil {
		return dto.UserResponse{}, err
	}

	url, err := s.photos.Upload(ctx, file.Filename, handle)
	if err != nil {
		return dto.UserResponse{}, err
	}

	user.PhotoURL = url
	if err := s.users.Update(ctx, &user); err != nil {
		return dto.UserResponse{}, err
	}

	return dto.NewUserResponse(user), nil
}

// AccountStatus implements middleware.RelationshipChecker.
func (s *authService) AccountStatus(ctx context.Context, userID uint) (string, bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", false, err
	}
	return user.Status, user.EmailVerified, nil
}

// IsParentOf implements middleware.RelationshipChecker.
func (s *authService) IsParentOf(ctx context.Context, parentID, studentID uint) (bool, error) {
	return s.users.IsParentOf(ctx, parentID, studentID)
}

// IsTeacherOf implements middleware.RelationshipChecker.
func (s *authService) IsTeacherOf(ctx context.Context, teacherID, studentID uint) (bool, error) {
	return s.users.IsTeacherOf(ctx, teacherID, studentID)
}
