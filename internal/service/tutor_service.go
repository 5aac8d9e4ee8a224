package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-core-api/internal/dto"
	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/internal/observability"
	"github.com/noah-isme/sma-core-api/internal/repository"
	"github.com/noah-isme/sma-core-api/pkg/ai"
)

// Tutor policy failures surfaced to handlers.
var (
	ErrQuotaExceeded   = errors.New("daily tutor quota exceeded")
	ErrContentPolicy   = errors.New("message rejected by content policy")
	ErrStudentAccess   = errors.New("no access to this student")
	ErrTutorUnhealthy  = errors.New("tutor provider is not reachable")
	ErrApprovalMissing = errors.New("parental approval required")
	ErrApprovalInvalid = errors.New("approval must name a guardian and a student")
)

// appropriatenessFloor is the minimum score an exchange may carry before it
// is flagged in the audit log.
const appropriatenessFloor = 0.4

const (
	quotaKeyPrefix       = "tutor:quota:"
	suggestionsKeyPrefix = "tutor:suggestions:"
	suggestionsTTL       = 6 * time.Hour
	auditSubject         = "sma.tutor.interactions"
)

// TutorService runs AI tutoring exchanges under quota and audit rules.
type TutorService interface {
	Chat(ctx context.Context, callerID uint, callerRole string, req dto.ChatRequest) (dto.ChatResponse, error)
	History(ctx context.Context, studentID uint, limit, offset int) ([]dto.InteractionResponse, error)
	Stats(ctx context.Context, studentID uint) (repository.InteractionStats, error)
	Suggestions(ctx context.Context, studentID uint, subject string) (dto.SuggestionsResponse, error)
	AnalyzePerformance(ctx context.Context, studentID uint) (dto.PerformanceResponse, error)
	UpdatePreferences(ctx context.Context, studentID uint, req dto.PreferencesRequest) error
	GrantApproval(ctx context.Context, req dto.ApprovalRequest) (dto.ApprovalResponse, error)
	RevokeApproval(ctx context.Context, parentID, studentID uint, scope string) error
	Health(ctx context.Context) error
}

type tutorService struct {
	tutor        ai.Tutor
	interactions repository.InteractionRepository
	approvals    repository.ApprovalRepository
	users        repository.UserRepository
	redis        *redis.Client
	nats         *nats.Conn
	validate     *validator.Validate
	sanitizer    *bluemonday.Policy
	dailyQuota   int
	logger       zerolog.Logger
}

// NewTutorService wires the tutoring service. The NATS connection is optional;
// when nil, audit events are only persisted locally.
func NewTutorService(
	tutor ai.Tutor,
	interactions repository.InteractionRepository,
	approvals repository.ApprovalRepository,
	users repository.UserRepository,
	redisClient *redis.Client,
	natsConn *nats.Conn,
	validate *validator.Validate,
	dailyQuota int,
	logger zerolog.Logger,
) TutorService {
	if dailyQuota <= 0 {
		dailyQuota = 50
	}
	return &tutorService{
		tutor:        tutor,
		interactions: interactions,
		approvals:    approvals,
		users:        users,
		redis:        redisClient,
		nats:         natsConn,
		validate:     validate,
		sanitizer:    bluemonday.StrictPolicy(),
		dailyQuota:   dailyQuota,
		logger:       logger.With().Str("component", "tutor_service").Logger(),
	}
}

func (s *tutorService) Chat(ctx context.Context, callerID uint, callerRole string, req dto.ChatRequest) (dto.ChatResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.ChatResponse{}, err
	}

	studentID, err := s.resolveStudent(ctx, callerID, callerRole, req.StudentID)
	if err != nil {
		return dto.ChatResponse{}, err
	}

	message := strings.TrimSpace(s.sanitizer.Sanitize(req.Message))
	// Only the sanitized text may reach the model or the audit log.
	req.Message = message
	if message == "" {
		observability.TutorExchanges().WithLabelValues(models.InteractionOutcomeDenied).Inc()
		s.audit(ctx, studentID, callerID, callerRole, req, ai.TutorResult{}, models.InteractionOutcomeDenied)
		return dto.ChatResponse{}, ErrContentPolicy
	}

	remaining, err := s.consumeQuota(ctx, studentID)
	if err != nil {
		return dto.ChatResponse{}, err
	}
	if remaining < 0 {
		observability.TutorExchanges().WithLabelValues(models.InteractionOutcomeDenied).Inc()
		s.audit(ctx, studentID, callerID, callerRole, req, ai.TutorResult{}, models.InteractionOutcomeDenied)
		return dto.ChatResponse{}, ErrQuotaExceeded
	}

	prefs, err := s.approvals.Preferences(ctx, studentID)
	if err != nil {
		return dto.ChatResponse{}, err
	}

	result, err := s.tutor.Complete(ctx, ai.TutorInput{
		Message:       message,
		History:       req.ConversationHistory,
		Subject:       firstNonEmpty(req.Subject, prefs.SubjectFocus),
		Difficulty:    prefs.Difficulty,
		ResponseStyle: prefs.ResponseStyle,
		Context:       req.Context,
	})
	if err != nil {
		observability.TutorExchanges().WithLabelValues(models.InteractionOutcomeError).Inc()
		s.audit(ctx, studentID, callerID, callerRole, req, ai.TutorResult{}, models.InteractionOutcomeError)
		return dto.ChatResponse{}, fmt.Errorf("tutor completion: %w", err)
	}

	outcome := models.InteractionOutcomeOK
	if result.AppropriatenessScore < appropriatenessFloor {
		result.Flagged = true
		outcome = models.InteractionOutcomeFlagged
	}

	interaction := s.audit(ctx, studentID, callerID, callerRole, req, result, outcome)

	observability.TutorExchanges().WithLabelValues(outcome).Inc()
	observability.TutorTokens().WithLabelValues("prompt").Add(float64(result.Usage.PromptTokens))
	observability.TutorTokens().WithLabelValues("completion").Add(float64(result.Usage.CompletionTokens))

	if result.Flagged {
		s.logger.Warn().Uint("student_id", studentID).
			Float64("score", result.AppropriatenessScore).
			Msg("tutor exchange flagged")
		return dto.ChatResponse{}, ErrContentPolicy
	}

	return dto.ChatResponse{
		Reply:                result.Reply,
		Usage:                result.Usage,
		AppropriatenessScore: result.AppropriatenessScore,
		InteractionID:        interaction.ID,
	}, nil
}

// resolveStudent applies the access policy: students chat for themselves,
// parents and teachers need an active link to the student, admins may ask on
// behalf of any student.
func (s *tutorService) resolveStudent(ctx context.Context, callerID uint, callerRole string, requested uint) (uint, error) {
	switch callerRole {
	case models.RoleStudent:
		if requested != 0 && requested != callerID {
			return 0, ErrStudentAccess
		}
		return callerID, nil
	case models.RoleParent:
		if requested == 0 {
			return 0, ErrStudentAccess
		}
		linked, err := s.users.IsParentOf(ctx, callerID, requested)
		if err != nil {
			return 0, err
		}
		if linked {
			return requested, nil
		}
		// An unlinked parent may still hold an explicit tutor-access grant.
		granted, err := s.approvals.HasActiveApproval(ctx, requested, models.ApprovalScopeAITutor)
		if err != nil {
			return 0, err
		}
		if !granted {
			return 0, ErrApprovalMissing
		}
		return requested, nil
	case models.RoleTeacher:
		if requested == 0 {
			return 0, ErrStudentAccess
		}
		linked, err := s.users.IsTeacherOf(ctx, callerID, requested)
		if err != nil {
			return 0, err
		}
		if !linked {
			return 0, ErrStudentAccess
		}
		return requested, nil
	case models.RoleAdmin:
		if requested == 0 {
			return 0, ErrStudentAccess
		}
		return requested, nil
	default:
		return 0, ErrStudentAccess
	}
}

// consumeQuota increments the per-student daily counter and reports remaining
// exchanges; negative means the quota was already spent.
func (s *tutorService) consumeQuota(ctx context.Context, studentID uint) (int, error) {
	key := fmt.Sprintf("%s%d:%s", quotaKeyPrefix, studentID, time.Now().UTC().Format("2006-01-02"))

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("quota check: %w", err)
	}
	if count == 1 {
		s.redis.Expire(ctx, key, 24*time.Hour)
	}
	return s.dailyQuota - int(count), nil
}

// audit appends the exchange to the append-only log and, when NATS is
// connected, publishes a copy for downstream consumers. Audit failures are
// logged but never fail the exchange.
func (s *tutorService) audit(ctx context.Context, studentID, callerID uint, callerRole string, req dto.ChatRequest, result ai.TutorResult, outcome string) models.AIInteraction {
	interaction := models.AIInteraction{
		StudentID:            studentID,
		AskedByID:            callerID,
		AskedByRole:          callerRole,
		Subject:              req.Subject,
		Message:              req.Message,
		Reply:                result.Reply,
		PromptTokens:         result.Usage.PromptTokens,
		CompletionTokens:     result.Usage.CompletionTokens,
		TotalTokens:          result.Usage.TotalTokens,
		AppropriatenessScore: result.AppropriatenessScore,
		Flagged:              result.Flagged,
		Outcome:              outcome,
	}

	if err := s.interactions.Append(ctx, &interaction); err != nil {
		s.logger.Error().Err(err).Uint("student_id", studentID).Msg("failed to append interaction audit entry")
	}

	if s.nats != nil {
		payload, err := json.Marshal(interaction)
		if err == nil {
			if err := s.nats.Publish(auditSubject, payload); err != nil {
				s.logger.Warn().Err(err).Msg("failed to publish interaction event")
			}
		}
	}

	return interaction
}

func (s *tutorService) History(ctx context.Context, studentID uint, limit, offset int) ([]dto.InteractionResponse, error) {
	interactions, err := s.interactions.ListByStudent(ctx, studentID, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewInteractionResponseSlice(interactions), nil
}

func (s *tutorService) Stats(ctx context.Context, studentID uint) (repository.InteractionStats, error) {
	return s.interactions.StatsByStudent(ctx, studentID)
}

func (s *tutorService) Suggestions(ctx context.Context, studentID uint, subject string) (dto.SuggestionsResponse, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		prefs, err := s.approvals.Preferences(ctx, studentID)
		if err != nil {
			return dto.SuggestionsResponse{}, err
		}
		subject = firstNonEmpty(prefs.SubjectFocus, "general study skills")
	}

	key := fmt.Sprintf("%s%d:%s", suggestionsKeyPrefix, studentID, strings.ToLower(subject))
	if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
		var suggestions []string
		if err := json.Unmarshal([]byte(cached), &suggestions); err == nil {
			return dto.SuggestionsResponse{Subject: subject, Suggestions: suggestions, Cached: true}, nil
		}
	}

	result, err := s.tutor.Complete(ctx, ai.TutorInput{
		Message: fmt.Sprintf("Suggest three short study prompts for the subject %q. Answer with one prompt per line, nothing else.", subject),
		Subject: subject,
	})
	if err != nil {
		return dto.SuggestionsResponse{}, fmt.Errorf("tutor suggestions: %w", err)
	}

	suggestions := splitLines(result.Reply)
	if payload, err := json.Marshal(suggestions); err == nil {
		s.redis.Set(ctx, key, payload, suggestionsTTL)
	}

	return dto.SuggestionsResponse{Subject: subject, Suggestions: suggestions}, nil
}

func (s *tutorService) AnalyzePerformance(ctx context.Context, studentID uint) (dto.PerformanceResponse, error) {
	stats, err := s.interactions.StatsByStudent(ctx, studentID)
	if err != nil {
		return dto.PerformanceResponse{}, err
	}

	recent, err := s.interactions.ListByStudent(ctx, studentID, 20, 0)
	if err != nil {
		return dto.PerformanceResponse{}, err
	}

	flaggedRecently := 0
	subjects := map[string]int{}
	for _, interaction := range recent {
		if interaction.Flagged {
			flaggedRecently++
		}
		if interaction.Subject != "" {
			subjects[interaction.Subject]++
		}
	}

	var strengths, focus []string
	for subject, count := range subjects {
		if count >= 3 {
			strengths = append(strengths, subject)
		} else {
			focus = append(focus, subject)
		}
	}

	summary := fmt.Sprintf("%d exchanges recorded, %d today, average appropriateness %.2f.",
		stats.TotalExchanges, stats.ExchangesToday, stats.AverageScore)

	return dto.PerformanceResponse{
		StudentID:       studentID,
		Summary:         summary,
		Strengths:       strengths,
		FocusAreas:      focus,
		ExchangesSeen:   len(recent),
		FlaggedRecently: flaggedRecently,
	}, nil
}

func (s *tutorService) UpdatePreferences(ctx context.Context, studentID uint, req dto.PreferencesRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}

	prefs, err := s.approvals.Preferences(ctx, studentID)
	if err != nil {
		return err
	}

	if req.SubjectFocus != "" {
		prefs.SubjectFocus = req.SubjectFocus
	}
	if req.Difficulty != "" {
		prefs.Difficulty = req.Difficulty
	}
	if req.ResponseStyle != "" {
		prefs.ResponseStyle = req.ResponseStyle
	}

	return s.approvals.SavePreferences(ctx, &prefs)
}

// GrantApproval records a tutor-access grant letting an unlinked guardian ask
// on behalf of a student. Both sides must exist and carry the expected roles.
func (s *tutorService) GrantApproval(ctx context.Context, req dto.ApprovalRequest) (dto.ApprovalResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return dto.ApprovalResponse{}, err
	}

	parent, err := s.users.FindByID(ctx, req.ParentID)
	if err != nil {
		return dto.ApprovalResponse{}, err
	}
	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		return dto.ApprovalResponse{}, err
	}
	if parent.Role != models.RoleParent || student.Role != models.RoleStudent {
		return dto.ApprovalResponse{}, ErrApprovalInvalid
	}

	approval := models.ParentalApproval{
		ParentID:  req.ParentID,
		StudentID: req.StudentID,
		Scope:     firstNonEmpty(req.Scope, models.ApprovalScopeAITutor),
	}
	if err := s.approvals.Grant(ctx, &approval); err != nil {
		return dto.ApprovalResponse{}, err
	}

	s.logger.Info().Uint("parent_id", approval.ParentID).Uint("student_id", approval.StudentID).
		Str("scope", approval.Scope).Msg("tutor approval granted")

	return dto.NewApprovalResponse(approval), nil
}

// RevokeApproval withdraws an active grant; revoked grants stay on record.
func (s *tutorService) RevokeApproval(ctx context.Context, parentID, studentID uint, scope string) error {
	if parentID == 0 || studentID == 0 {
		return ErrApprovalInvalid
	}
	return s.approvals.Revoke(ctx, parentID, studentID, firstNonEmpty(scope, models.ApprovalScopeAITutor))
}

func (s *tutorService) Health(ctx context.Context) error {
	if err := s.tutor.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("tutor provider ping failed")
		return ErrTutorUnhealthy
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
