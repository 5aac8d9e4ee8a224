package directory

import (
	"fmt"
	"strings"

	"github.com/noah-isme/sma-core-api/internal/models"
)

// DeletedPrefix marks soft-deleted records in their display name. The
// external system blocks hard deletes of linked records, so deletion renames
// and disables instead.
const DeletedPrefix = "[DELETED] "

// Profile is the internal shape the adapter translates to and from external
// records. It deliberately carries only the fields the directory owns.
type Profile struct {
	Email    string
	FullName string
	Role     string
	Disabled bool
}

// FieldMapper translates between the internal Profile and one doctype's
// external field names. ToExternal and FromExternal are pure inverses over
// the mapped fields, verified by round-trip tests.
type FieldMapper interface {
	Doctype() string
	EmailField() string
	// DisplayField names the external field carrying the record's display
	// name; the soft-delete sentinel is prefixed there.
	DisplayField() string
	ToExternal(p Profile) Record
	FromExternal(r Record) Profile
}

// MapperFor returns the mapper for a role. The mapping is role-dependent:
// students, guardians, and employees each use different external field names
// for the same internal concept.
func MapperFor(role string) (FieldMapper, error) {
	switch strings.ToLower(role) {
	case models.RoleStudent:
		return studentMapper{}, nil
	case models.RoleParent:
		return guardianMapper{}, nil
	case models.RoleTeacher, models.RoleAdmin:
		return employeeMapper{}, nil
	default:
		return nil, fmt.Errorf("no directory mapping for role %q", role)
	}
}

type studentMapper struct{}

func (studentMapper) Doctype() string      { return "Student" }
func (studentMapper) EmailField() string   { return "student_email_id" }
func (studentMapper) DisplayField() string { return "first_name" }

func (studentMapper) ToExternal(p Profile) Record {
	first, last := splitName(p.FullName)
	return Record{
		"first_name":       first,
		"last_name":        last,
		"student_email_id": p.Email,
		"enabled":          boolToInt(!p.Disabled),
	}
}

func (studentMapper) FromExternal(r Record) Profile {
	return Profile{
		Email:    r.StringField("student_email_id"),
		FullName: joinName(r.StringField("first_name"), r.StringField("last_name")),
		Role:     models.RoleStudent,
		Disabled: intField(r, "enabled") == 0,
	}
}

type guardianMapper struct{}

func (guardianMapper) Doctype() string      { return "Guardian" }
func (guardianMapper) EmailField() string   { return "email_address" }
func (guardianMapper) DisplayField() string { return "guardian_name" }

func (guardianMapper) ToExternal(p Profile) Record {
	return Record{
		"guardian_name": p.FullName,
		"email_address": p.Email,
	}
}

func (guardianMapper) FromExternal(r Record) Profile {
	return Profile{
		Email:    r.StringField("email_address"),
		FullName: r.StringField("guardian_name"),
		Role:     models.RoleParent,
	}
}

type employeeMapper struct{}

func (employeeMapper) Doctype() string      { return "Employee" }
func (employeeMapper) EmailField() string   { return "personal_email" }
func (employeeMapper) DisplayField() string { return "first_name" }

func (employeeMapper) ToExternal(p Profile) Record {
	first, last := splitName(p.FullName)
	status := "Active"
	if p.Disabled {
		status = "Inactive"
	}
	return Record{
		"first_name":     first,
		"last_name":      last,
		"personal_email": p.Email,
		"status":         status,
	}
}

func (employeeMapper) FromExternal(r Record) Profile {
	return Profile{
		Email:    r.StringField("personal_email"),
		FullName: joinName(r.StringField("first_name"), r.StringField("last_name")),
		Role:     models.RoleTeacher,
		Disabled: r.StringField("status") == "Inactive",
	}
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	idx := strings.LastIndex(full, " ")
	if idx < 0 {
		return full, ""
	}
	return full[:idx], full[idx+1:]
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intField(r Record, key string) int {
	switch v := r[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
