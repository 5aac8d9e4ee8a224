package models

import "time"

// AIInteraction is an append-only audit entry for one tutor exchange.
// Rows are never updated after creation.
type AIInteraction struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	StudentID            uint      `gorm:"index;not null" json:"student_id"`
	AskedByID            uint      `gorm:"index;not null" json:"asked_by_id"`
	AskedByRole          string    `gorm:"size:32;not null" json:"asked_by_role"`
	Subject              string    `gorm:"size:128" json:"subject"`
	Message              string    `gorm:"type:text;not null" json:"message"`
	Reply                string    `gorm:"type:text" json:"reply"`
	PromptTokens         int       `json:"prompt_tokens"`
	CompletionTokens     int       `json:"completion_tokens"`
	TotalTokens          int       `json:"total_tokens"`
	AppropriatenessScore float64   `json:"appropriateness_score"`
	Flagged              bool      `gorm:"index" json:"flagged"`
	Outcome              string    `gorm:"size:32;not null;default:ok" json:"outcome"`
	CreatedAt            time.Time `gorm:"index" json:"created_at"`
}

// Interaction outcomes recorded in the audit log. Denied exchanges are
// logged too so quota and safety audits see every attempt.
const (
	InteractionOutcomeOK      = "ok"
	InteractionOutcomeFlagged = "flagged"
	InteractionOutcomeDenied  = "denied"
	InteractionOutcomeError   = "error"
)

// ApprovalScopeAITutor is the approval scope covering tutor access.
const ApprovalScopeAITutor = "ai_tutor"

// ParentalApproval records an explicit grant allowing direct tutor access
// on behalf of a student.
type ParentalApproval struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ParentID  uint       `gorm:"index;not null" json:"parent_id"`
	StudentID uint       `gorm:"index;not null" json:"student_id"`
	Scope     string     `gorm:"size:64;not null;default:ai_tutor" json:"scope"`
	GrantedAt time.Time  `json:"granted_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the approval is currently in force.
func (p ParentalApproval) Active() bool {
	return p.RevokedAt == nil
}

// TutorPreferences stores per-student tutor tuning choices.
type TutorPreferences struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	StudentID     uint      `gorm:"uniqueIndex;not null" json:"student_id"`
	SubjectFocus  string    `gorm:"size:128" json:"subject_focus"`
	Difficulty    string    `gorm:"size:32" json:"difficulty"`
	ResponseStyle string    `gorm:"size:32" json:"response_style"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
