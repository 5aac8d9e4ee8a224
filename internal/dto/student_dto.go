package dto

import (
	"time"

	"github.com/noah-isme/sma-core-api/internal/models"
)

// StudentResponse is the public shape of a directory-backed student record.
type StudentResponse struct {
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Disabled   bool      `json:"disabled"`
	Source     string    `json:"source"`
	SyncedAt   time.Time `json:"synced_at,omitempty"`
}

// Data sources for a student read: the live directory or the local mirror.
const (
	StudentSourceDirectory = "directory"
	StudentSourceCache     = "cache"
)

// UpdateStudentRequest patches a student's directory record.
type UpdateStudentRequest struct {
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	FullName string `json:"full_name,omitempty" validate:"omitempty,min=2,max=255"`
}

// StudentListResponse pages the student mirror.
type StudentListResponse struct {
	Students []StudentResponse `json:"students"`
	Total    int64             `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// NewStudentResponseFromCache maps a mirror row onto the public shape.
func NewStudentResponseFromCache(entry models.DirectoryCacheEntry) StudentResponse {
	return StudentResponse{
		ExternalID: entry.ExternalID,
		Email:      entry.Email,
		FullName:   entry.FullName,
		Disabled:   entry.Disabled,
		Source:     StudentSourceCache,
		SyncedAt:   entry.UpdatedAt,
	}
}
