package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-core-api/internal/models"
)

// fakeDirectory emulates the external resource API: paged listings with
// filters, per-resource CRUD, and conflict answers for duplicates.
type fakeDirectory struct {
	mu      sync.Mutex
	records map[string]map[string]Record // doctype -> name -> record
	nextID  int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{records: map[string]map[string]Record{}, nextID: 1}
}

func (f *fakeDirectory) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/resource/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token test-key:test-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/resource/"), "/")
		doctype := parts[0]

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.records[doctype] == nil {
			f.records[doctype] = map[string]Record{}
		}

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			f.list(w, r, doctype)
		case len(parts) == 1 && r.Method == http.MethodPost:
			f.create(w, r, doctype)
		case len(parts) == 2 && r.Method == http.MethodGet:
			f.get(w, doctype, parts[1])
		case len(parts) == 2 && r.Method == http.MethodPut:
			f.update(w, r, doctype, parts[1])
		case len(parts) == 2 && r.Method == http.MethodDelete:
			// Everything in the fake is referentially linked.
			w.WriteHeader(http.StatusExpectationFailed)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	return mux
}

func (f *fakeDirectory) list(w http.ResponseWriter, r *http.Request, doctype string) {
	var filters [][]string
	if raw := r.URL.Query().Get("filters"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &filters)
	}
	start, _ := strconv.Atoi(r.URL.Query().Get("limit_start"))
	size, _ := strconv.Atoi(r.URL.Query().Get("limit_page_length"))
	if size <= 0 {
		size = 20
	}

	names := make([]string, 0, len(f.records[doctype]))
	for name := range f.records[doctype] {
		names = append(names, name)
	}
	// Deterministic ordering by name suffix.
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}

	matched := make([]Record, 0)
	for _, name := range names {
		record := f.records[doctype][name]
		ok := true
		for _, filter := range filters {
			if len(filter) == 3 && filter[1] == "=" && record.StringField(filter[0]) != filter[2] {
				ok = false
			}
		}
		if ok {
			matched = append(matched, record)
		}
	}

	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": matched[start:end]})
}

func (f *fakeDirectory) create(w http.ResponseWriter, r *http.Request, doctype string) {
	var fields Record
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Duplicate natural key answers 409.
	for _, existing := range f.records[doctype] {
		for _, key := range []string{"student_email_id", "email_address", "personal_email"} {
			if v := fields.StringField(key); v != "" && existing.StringField(key) == v {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
	}

	name := fmt.Sprintf("%s-%04d", strings.ToUpper(doctype), f.nextID)
	f.nextID++
	fields["name"] = name
	f.records[doctype][name] = fields

	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": fields})
}

func (f *fakeDirectory) get(w http.ResponseWriter, doctype, name string) {
	record, ok := f.records[doctype][name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": record})
}

func (f *fakeDirectory) update(w http.ResponseWriter, r *http.Request, doctype, name string) {
	record, ok := f.records[doctype][name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var patch Record
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for key, value := range patch {
		record[key] = value
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": record})
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeDirectory) {
	t.Helper()

	fake := newFakeDirectory()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		APISecret: "test-secret",
		Timeout:   5 * time.Second,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	return NewAdapter(client, zerolog.Nop()), fake
}

func TestAdapterCreateAndGet(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	record, _, err := adapter.Create(ctx, Profile{
		Email:    "student@demo.com",
		FullName: "John Doe",
		Role:     models.RoleStudent,
	})
	require.NoError(t, err)
	require.NotEmpty(t, record.Name())

	fetched, deleted, err := adapter.Get(ctx, models.RoleStudent, record.Name())
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, "student@demo.com", fetched.StringField("student_email_id"))
}

func TestAdapterCreateDuplicateFallsBackToLookup(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	profile := Profile{Email: "dup@demo.com", FullName: "Jane Roe", Role: models.RoleStudent}

	first, _, err := adapter.Create(ctx, profile)
	require.NoError(t, err)

	// Second create hits the 409 path and resolves to the existing record.
	second, recycled, err := adapter.Create(ctx, profile)
	require.NoError(t, err)
	require.False(t, recycled)
	require.Equal(t, first.Name(), second.Name())
}

func TestAdapterCreateRecyclesDeletedDuplicate(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	record, _, err := adapter.Create(ctx, Profile{
		Email:    "shared@demo.com",
		FullName: "Old Identity",
		Role:     models.RoleStudent,
	})
	require.NoError(t, err)
	externalID := record.Name()

	require.NoError(t, adapter.SoftDelete(ctx, models.RoleStudent, externalID))

	// The same natural key conflicts, but the duplicate is soft-deleted: the
	// identifier must come back carrying only the new identity.
	reborn, recycled, err := adapter.Create(ctx, Profile{
		Email:    "shared@demo.com",
		FullName: "New Person",
		Role:     models.RoleStudent,
	})
	require.NoError(t, err)
	require.True(t, recycled)
	require.Equal(t, externalID, reborn.Name())

	fetched, deleted, err := adapter.Get(ctx, models.RoleStudent, externalID)
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, "New", fetched.StringField("first_name"))
	require.NotContains(t, fetched.StringField("first_name"), DeletedPrefix)
	require.Equal(t, float64(1), fetched["enabled"])
}

func TestAdapterGetNotFound(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	_, _, err := adapter.Get(context.Background(), models.RoleStudent, "STUDENT-9999")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdapterSoftDeleteMarksSentinel(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	record, _, err := adapter.Create(ctx, Profile{
		Email:    "leaver@demo.com",
		FullName: "Left School",
		Role:     models.RoleStudent,
	})
	require.NoError(t, err)

	require.NoError(t, adapter.SoftDelete(ctx, models.RoleStudent, record.Name()))

	fetched, deleted, err := adapter.Get(ctx, models.RoleStudent, record.Name())
	require.NoError(t, err)
	require.True(t, deleted)
	require.True(t, strings.HasPrefix(fetched.StringField("first_name"), DeletedPrefix))
	require.Equal(t, float64(0), fetched["enabled"])
}

func TestAdapterRecycleReplacesIdentity(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	record, _, err := adapter.Create(ctx, Profile{
		Email:    "old.identity@demo.com",
		FullName: "Old Identity",
		Role:     models.RoleStudent,
	})
	require.NoError(t, err)
	externalID := record.Name()

	require.NoError(t, adapter.SoftDelete(ctx, models.RoleStudent, externalID))

	recycled, err := adapter.Recycle(ctx, externalID, Profile{
		Email:    "new.identity@demo.com",
		FullName: "New Identity",
		Role:     models.RoleStudent,
	})
	require.NoError(t, err)
	require.Equal(t, externalID, recycled.Name())

	// Lookups by the identifier must return only the new identity's fields.
	fetched, deleted, err := adapter.Get(ctx, models.RoleStudent, externalID)
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, "new.identity@demo.com", fetched.StringField("student_email_id"))
	require.Equal(t, "New", fetched.StringField("first_name"))
	require.NotContains(t, fetched.StringField("first_name"), "Old")
}

func TestAdapterRecycleRejectsLiveRecord(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	record, _, err := adapter.Create(ctx, Profile{
		Email:    "live@demo.com",
		FullName: "Still Here",
		Role:     models.RoleStudent,
	})
	require.NoError(t, err)

	_, err = adapter.Recycle(ctx, record.Name(), Profile{
		Email:    "other@demo.com",
		FullName: "Other Person",
		Role:     models.RoleStudent,
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestIteratorPagesLazily(t *testing.T) {
	adapter, fake := newTestAdapter(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, _, err := adapter.Create(ctx, Profile{
			Email:    fmt.Sprintf("student%d@demo.com", i),
			FullName: fmt.Sprintf("Student Number%d", i),
			Role:     models.RoleStudent,
		})
		require.NoError(t, err)
	}

	it, err := adapter.Find(ctx, models.RoleStudent, nil)
	require.NoError(t, err)
	it.pageSize = 3

	seen := map[string]bool{}
	for {
		record, err := it.Next(ctx)
		require.NoError(t, err)
		if record == nil {
			break
		}
		seen[record.Name()] = true
	}
	require.Len(t, seen, 7)
	require.Len(t, fake.records["Student"], 7)
}

func TestClientUpstreamErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:   server.URL,
		APIKey:    "k",
		APISecret: "s",
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "Student", "STUDENT-0001")
	require.ErrorIs(t, err, ErrUpstream)
}

func TestClientConflictOnLinkedDelete(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	record, _, err := adapter.Create(ctx, Profile{
		Email:    "linked@demo.com",
		FullName: "Linked Person",
		Role:     models.RoleStudent,
	})
	require.NoError(t, err)

	err = adapter.client.Delete(ctx, "Student", record.Name())
	require.ErrorIs(t, err, ErrConflict)
}
