package models

import "time"

// Role enumerates the RBAC roles recognised by the application.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleParent  = "parent"
	RoleAdmin   = "admin"
)

// Account status values. Deleted users transition to inactive instead of
// being removed, because the directory rejects hard deletes of linked records.
const (
	StatusActive    = "active"
	StatusPending   = "pending"
	StatusSuspended = "suspended"
	StatusInactive  = "inactive"
)

// User represents an application identity mirroring a directory record.
// Exactly one role sub-record is populated, matching Role.
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Email         string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash  string     `gorm:"size:255;not null" json:"-"`
	FullName      string     `gorm:"size:255;not null" json:"full_name"`
	Role          string     `gorm:"size:32;not null;index" json:"role"`
	Status        string     `gorm:"size:32;not null;default:pending" json:"status"`
	EmailVerified bool       `gorm:"not null;default:false" json:"email_verified"`
	PhotoURL      string     `gorm:"size:512" json:"photo_url,omitempty"`
	ExternalID    string     `gorm:"size:255;index" json:"external_id,omitempty"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	StudentInfo *StudentInfo `gorm:"foreignKey:UserID" json:"student_info,omitempty"`
	TeacherInfo *TeacherInfo `gorm:"foreignKey:UserID" json:"teacher_info,omitempty"`
	ParentInfo  *ParentInfo  `gorm:"foreignKey:UserID" json:"parent_info,omitempty"`
	AdminInfo   *AdminInfo   `gorm:"foreignKey:UserID" json:"admin_info,omitempty"`
}

// IsActive reports whether the account may use protected endpoints.
func (u User) IsActive() bool {
	return u.Status == StatusActive
}

// RoleInfoConsistent reports whether exactly the sub-record matching Role is populated.
func (u User) RoleInfoConsistent() bool {
	switch u.Role {
	case RoleStudent:
		return u.StudentInfo != nil && u.TeacherInfo == nil && u.ParentInfo == nil && u.AdminInfo == nil
	case RoleTeacher:
		return u.TeacherInfo != nil && u.StudentInfo == nil && u.ParentInfo == nil && u.AdminInfo == nil
	case RoleParent:
		return u.ParentInfo != nil && u.StudentInfo == nil && u.TeacherInfo == nil && u.AdminInfo == nil
	case RoleAdmin:
		return u.AdminInfo != nil && u.StudentInfo == nil && u.TeacherInfo == nil && u.ParentInfo == nil
	default:
		return false
	}
}

// StudentInfo carries student-specific profile fields.
type StudentInfo struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	NIS         string    `gorm:"size:64;index" json:"nis"`
	ClassName   string    `gorm:"size:128" json:"class_name"`
	GuardianID  *uint     `gorm:"index" json:"guardian_id,omitempty"`
	DateOfBirth time.Time `json:"date_of_birth"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TeacherInfo carries teacher-specific profile fields.
type TeacherInfo struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	EmployeeID string    `gorm:"size:64;index" json:"employee_id"`
	Subject    string    `gorm:"size:128" json:"subject"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Students []TeacherStudent `gorm:"foreignKey:TeacherInfoID" json:"students,omitempty"`
}

// TeacherStudent links a teacher to one of the students they teach.
type TeacherStudent struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	TeacherInfoID uint `gorm:"index;not null" json:"teacher_info_id"`
	StudentID     uint `gorm:"index;not null" json:"student_id"`
}

// ParentInfo carries guardian-specific profile fields.
type ParentInfo struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Phone     string    `gorm:"size:32" json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Children []ParentChild `gorm:"foreignKey:ParentInfoID" json:"children,omitempty"`
}

// ParentChild links a guardian to one of their students.
type ParentChild struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	ParentInfoID uint `gorm:"index;not null" json:"parent_info_id"`
	StudentID    uint `gorm:"index;not null" json:"student_id"`
}

// AdminInfo carries administrator-specific profile fields.
type AdminInfo struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Title     string    `gorm:"size:128" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
