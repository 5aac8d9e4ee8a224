package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-core-api/internal/directory"
	"github.com/noah-isme/sma-core-api/internal/repository"
)

func newSyncFixture(t *testing.T) (*SyncService, *fakeResourceServer, repository.DirectoryCacheRepository) {
	t.Helper()

	db := newTestDB(t)
	cache := repository.NewDirectoryCacheRepository(db)
	adapter, fake := newTestAdapter(t)

	svc, err := NewSyncService(adapter, cache, newTestRedis(t),
		time.Minute, time.Minute, zerolog.Nop())
	require.NoError(t, err)

	return svc, fake, cache
}

func seedStudents(fake *fakeResourceServer, count int) {
	for i := 0; i < count; i++ {
		fake.put("Student", directory.Record{
			"name":             formatStudentName(i),
			"first_name":       "Student",
			"last_name":        "Number",
			"student_email_id": formatStudentEmail(i),
			"enabled":          float64(1),
			"modified":         "2026-08-01 10:00:00.000000",
		})
	}
}

func formatStudentName(i int) string {
	return "STUDENT-" + string(rune('A'+i)) + "001"
}

func formatStudentEmail(i int) string {
	return "student." + string(rune('a'+i)) + "@demo.com"
}

func TestSyncMirrorsDirectoryRecords(t *testing.T) {
	svc, fake, cache := newSyncFixture(t)
	seedStudents(fake, 3)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Seen)
	require.Equal(t, 3, report.Updated)
	require.Zero(t, report.Skipped)

	entries, total, err := cache.ListByDoctype(context.Background(), "Student", 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Equal(t, "student.a@demo.com", entries[0].Email)
	require.False(t, entries[0].ModifiedAt.IsZero())
}

func TestSyncMarksVanishedRecordsDeleted(t *testing.T) {
	svc, fake, cache := newSyncFixture(t)
	ctx := context.Background()
	seedStudents(fake, 2)

	_, err := svc.RunOnce(ctx)
	require.NoError(t, err)

	// Remove one record upstream entirely.
	delete(fake.records["Student"], formatStudentName(0))

	report, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)

	entry, err := cache.Find(ctx, "Student", formatStudentName(0))
	require.NoError(t, err)
	require.True(t, entry.Deleted)
}

func TestSyncDetectsSoftDeleteSentinel(t *testing.T) {
	svc, fake, cache := newSyncFixture(t)
	ctx := context.Background()

	fake.put("Student", directory.Record{
		"name":             "STUDENT-GONE",
		"first_name":       directory.DeletedPrefix + "Former",
		"last_name":        "Student",
		"student_email_id": "former@demo.com",
		"enabled":          float64(0),
	})

	_, err := svc.RunOnce(ctx)
	require.NoError(t, err)

	entry, err := cache.Find(ctx, "Student", "STUDENT-GONE")
	require.NoError(t, err)
	require.True(t, entry.Deleted)
	require.True(t, entry.Disabled)
}

func TestSyncStampsRecycledIdentifier(t *testing.T) {
	svc, fake, cache := newSyncFixture(t)
	ctx := context.Background()

	fake.put("Student", directory.Record{
		"name":             "STUDENT-R1",
		"first_name":       directory.DeletedPrefix + "Old",
		"last_name":        "Identity",
		"student_email_id": "old@demo.com",
		"enabled":          float64(0),
	})
	_, err := svc.RunOnce(ctx)
	require.NoError(t, err)

	// The identifier comes back as a different live identity.
	fake.put("Student", directory.Record{
		"name":             "STUDENT-R1",
		"first_name":       "New",
		"last_name":        "Identity",
		"student_email_id": "new@demo.com",
		"enabled":          float64(1),
	})
	_, err = svc.RunOnce(ctx)
	require.NoError(t, err)

	entry, err := cache.Find(ctx, "Student", "STUDENT-R1")
	require.NoError(t, err)
	require.False(t, entry.Deleted)
	require.NotNil(t, entry.RecycledAt)
	require.Equal(t, "new@demo.com", entry.Email)
}

func TestSyncSkipsRecordsFailingSchema(t *testing.T) {
	svc, fake, cache := newSyncFixture(t)
	ctx := context.Background()

	// No name field: fails validation, must not be written.
	fake.records["Student"] = map[string]directory.Record{
		"": {"student_email_id": "anon@demo.com"},
	}

	report, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Zero(t, report.Updated)

	_, total, err := cache.ListByDoctype(ctx, "Student", 10, 0)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestSyncSkipsWhenLeaseHeld(t *testing.T) {
	db := newTestDB(t)
	cache := repository.NewDirectoryCacheRepository(db)
	adapter, _ := newTestAdapter(t)
	store := newTestRedis(t)

	svc, err := NewSyncService(adapter, cache, store, time.Minute, time.Minute, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "sync:lease", "other-instance", time.Minute).Err())

	_, err = svc.RunOnce(ctx)
	require.ErrorIs(t, err, ErrSyncInProgress)

	// Foreign lease must survive the skipped run.
	held, err := store.Get(ctx, "sync:lease").Result()
	require.NoError(t, err)
	require.Equal(t, "other-instance", held)
}

func TestSyncReleasesLeaseAfterRun(t *testing.T) {
	db := newTestDB(t)
	cache := repository.NewDirectoryCacheRepository(db)
	adapter, _ := newTestAdapter(t)
	store := newTestRedis(t)

	svc, err := NewSyncService(adapter, cache, store, time.Minute, time.Minute, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.RunOnce(ctx)
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "sync:lease").Result()
	require.NoError(t, err)
	require.Zero(t, exists)
}
