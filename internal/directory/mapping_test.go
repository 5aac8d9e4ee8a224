package directory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-core-api/internal/models"
)

func TestMapperForUnknownRole(t *testing.T) {
	_, err := MapperFor("janitor")
	require.Error(t, err)
}

func TestRoleDependentEmailFields(t *testing.T) {
	cases := map[string]string{
		models.RoleStudent: "student_email_id",
		models.RoleParent:  "email_address",
		models.RoleTeacher: "personal_email",
		models.RoleAdmin:   "personal_email",
	}

	for role, field := range cases {
		mapper, err := MapperFor(role)
		require.NoError(t, err)
		require.Equal(t, field, mapper.EmailField(), "role %s", role)
	}
}

func TestStudentMappingRoundTrip(t *testing.T) {
	mapper, err := MapperFor(models.RoleStudent)
	require.NoError(t, err)

	original := Profile{
		Email:    "siti.rahma@demo.com",
		FullName: "Siti Nur Rahma",
		Role:     models.RoleStudent,
	}

	external := mapper.ToExternal(original)
	require.Equal(t, "Siti Nur", external["first_name"])
	require.Equal(t, "Rahma", external["last_name"])
	require.Equal(t, "siti.rahma@demo.com", external["student_email_id"])
	require.Equal(t, 1, external["enabled"])

	back := mapper.FromExternal(external)
	require.Equal(t, original.Email, back.Email)
	require.Equal(t, original.FullName, back.FullName)
	require.False(t, back.Disabled)
}

func TestGuardianMappingRoundTrip(t *testing.T) {
	mapper, err := MapperFor(models.RoleParent)
	require.NoError(t, err)

	original := Profile{
		Email:    "guardian@demo.com",
		FullName: "Budi Santoso",
		Role:     models.RoleParent,
	}

	back := mapper.FromExternal(mapper.ToExternal(original))
	require.Equal(t, original.Email, back.Email)
	require.Equal(t, original.FullName, back.FullName)
}

func TestEmployeeMappingRoundTrip(t *testing.T) {
	mapper, err := MapperFor(models.RoleTeacher)
	require.NoError(t, err)

	original := Profile{
		Email:    "teacher@demo.com",
		FullName: "Dewi Lestari",
		Role:     models.RoleTeacher,
		Disabled: true,
	}

	external := mapper.ToExternal(original)
	require.Equal(t, "Inactive", external["status"])

	back := mapper.FromExternal(external)
	require.Equal(t, original.Email, back.Email)
	require.Equal(t, original.FullName, back.FullName)
	require.True(t, back.Disabled)
}

func TestSingleWordNameSplit(t *testing.T) {
	mapper, err := MapperFor(models.RoleStudent)
	require.NoError(t, err)

	external := mapper.ToExternal(Profile{FullName: "Cher", Email: "cher@demo.com"})
	require.Equal(t, "Cher", external["first_name"])
	require.Equal(t, "", external["last_name"])

	back := mapper.FromExternal(external)
	require.Equal(t, "Cher", back.FullName)
}
