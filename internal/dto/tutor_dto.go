package dto

import (
	"time"

	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/pkg/ai"
)

// ChatRequest is one tutor exchange. StudentID is optional for students
// chatting for themselves; parents/teachers/admins must supply it.
type ChatRequest struct {
	Message             string       `json:"message" validate:"required,min=1,max=1000"`
	StudentID           uint         `json:"student_id,omitempty"`
	Subject             string       `json:"subject,omitempty" validate:"omitempty,max=128"`
	Context             string       `json:"context,omitempty" validate:"omitempty,max=2000"`
	ConversationHistory []ai.Message `json:"conversationHistory,omitempty" validate:"omitempty,max=20,dive"`
}

// ChatResponse mirrors the provider result plus audit fields.
type ChatResponse struct {
	Reply                string   `json:"reply"`
	Usage                ai.Usage `json:"usage"`
	AppropriatenessScore float64  `json:"appropriatenessScore"`
	InteractionID        uint     `json:"interaction_id"`
}

// InteractionResponse is one audit log entry.
type InteractionResponse struct {
	ID                   uint      `json:"id"`
	StudentID            uint      `json:"student_id"`
	AskedByRole          string    `json:"asked_by_role"`
	Subject              string    `json:"subject,omitempty"`
	Message              string    `json:"message"`
	Reply                string    `json:"reply"`
	TotalTokens          int       `json:"total_tokens"`
	AppropriatenessScore float64   `json:"appropriateness_score"`
	Flagged              bool      `json:"flagged"`
	Outcome              string    `json:"outcome"`
	CreatedAt            time.Time `json:"created_at"`
}

// NewInteractionResponse maps a model onto the public shape.
func NewInteractionResponse(interaction models.AIInteraction) InteractionResponse {
	return InteractionResponse{
		ID:                   interaction.ID,
		StudentID:            interaction.StudentID,
		AskedByRole:          interaction.AskedByRole,
		Subject:              interaction.Subject,
		Message:              interaction.Message,
		Reply:                interaction.Reply,
		TotalTokens:          interaction.TotalTokens,
		AppropriatenessScore: interaction.AppropriatenessScore,
		Flagged:              interaction.Flagged,
		Outcome:              interaction.Outcome,
		CreatedAt:            interaction.CreatedAt,
	}
}

// NewInteractionResponseSlice maps a list of audit entries.
func NewInteractionResponseSlice(interactions []models.AIInteraction) []InteractionResponse {
	responses := make([]InteractionResponse, 0, len(interactions))
	for _, interaction := range interactions {
		responses = append(responses, NewInteractionResponse(interaction))
	}
	return responses
}

// PreferencesRequest tunes the tutor for a student.
type PreferencesRequest struct {
	SubjectFocus  string `json:"subject_focus,omitempty" validate:"omitempty,max=128"`
	Difficulty    string `json:"difficulty,omitempty" validate:"omitempty,oneof=beginner intermediate advanced"`
	ResponseStyle string `json:"response_style,omitempty" validate:"omitempty,oneof=concise detailed socratic"`
}

// ApprovalRequest grants an unlinked guardian direct tutor access for a
// student.
type ApprovalRequest struct {
	ParentID  uint   `json:"parent_id" validate:"required"`
	StudentID uint   `json:"student_id" validate:"required"`
	Scope     string `json:"scope,omitempty" validate:"omitempty,oneof=ai_tutor"`
}

// ApprovalResponse echoes a stored grant.
type ApprovalResponse struct {
	ID        uint      `json:"id"`
	ParentID  uint      `json:"parent_id"`
	StudentID uint      `json:"student_id"`
	Scope     string    `json:"scope"`
	GrantedAt time.Time `json:"granted_at"`
}

// NewApprovalResponse maps a grant onto the public shape.
func NewApprovalResponse(approval models.ParentalApproval) ApprovalResponse {
	return ApprovalResponse{
		ID:        approval.ID,
		ParentID:  approval.ParentID,
		StudentID: approval.StudentID,
		Scope:     approval.Scope,
		GrantedAt: approval.GrantedAt,
	}
}

// SuggestionsResponse carries study prompts for a student/subject.
type SuggestionsResponse struct {
	Subject     string   `json:"subject"`
	Suggestions []string `json:"suggestions"`
	Cached      bool     `json:"cached"`
}

// PerformanceResponse summarises a student's recent tutor usage.
type PerformanceResponse struct {
	StudentID       uint     `json:"student_id"`
	Summary         string   `json:"summary"`
	Strengths       []string `json:"strengths,omitempty"`
	FocusAreas      []string `json:"focus_areas,omitempty"`
	ExchangesSeen   int      `json:"exchanges_seen"`
	FlaggedRecently int      `json:"flagged_recently"`
}
