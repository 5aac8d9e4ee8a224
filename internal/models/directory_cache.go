package models

import (
	"time"

	"gorm.io/datatypes"
)

// DirectoryCacheEntry mirrors one external directory record locally.
// Maintained by the synchronization daemon; request handlers read it as a
// fallback when the directory is unreachable.
type DirectoryCacheEntry struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ExternalID string `gorm:"size:255;not null;index:idx_directory_doctype_name,unique,priority:2" json:"external_id"`
	Doctype    string `gorm:"size:64;not null;index:idx_directory_doctype_name,unique,priority:1" json:"doctype"`
	Email      string `gorm:"size:255;index" json:"email"`
	FullName   string `gorm:"size:255" json:"full_name"`
	Role       string `gorm:"size:32" json:"role"`
	Disabled   bool   `json:"disabled"`
	// Deleted marks records carrying the deletion sentinel in the directory.
	// Such rows stay cached so a later recycle of the identifier can be
	// detected, but they are never served as a live identity.
	Deleted    bool           `gorm:"index" json:"deleted"`
	RecycledAt *time.Time     `json:"recycled_at,omitempty"`
	ModifiedAt time.Time      `json:"modified_at"`
	Payload    datatypes.JSON `json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
