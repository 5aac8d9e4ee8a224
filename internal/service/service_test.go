package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noah-isme/sma-core-api/internal/directory"
	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/pkg/ai"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.StudentInfo{},
		&models.TeacherInfo{},
		&models.TeacherStudent{},
		&models.ParentInfo{},
		&models.ParentChild{},
		&models.AdminInfo{},
		&models.AIInteraction{},
		&models.ParentalApproval{},
		&models.TutorPreferences{},
		&models.DirectoryCacheEntry{},
	))
	return db
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mini := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mini.Addr()})
}

// fakeResourceServer emulates the external directory's resource API for
// service-level tests: listings with filters and paging, CRUD, and conflict
// answers for duplicate natural keys.
type fakeResourceServer struct {
	mu      sync.Mutex
	records map[string]map[string]directory.Record
	nextID  int
	fail    bool
}

func newFakeResourceServer() *fakeResourceServer {
	return &fakeResourceServer{records: map[string]map[string]directory.Record{}, nextID: 1}
}

func (f *fakeResourceServer) put(doctype string, record directory.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records[doctype] == nil {
		f.records[doctype] = map[string]directory.Record{}
	}
	f.records[doctype][record.Name()] = record
}

func (f *fakeResourceServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/resource/"), "/")
		doctype := parts[0]
		if f.records[doctype] == nil {
			f.records[doctype] = map[string]directory.Record{}
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
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func (f *fakeResourceServer) list(w http.ResponseWriter, r *http.Request, doctype string) {
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
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}

	matched := make([]directory.Record, 0)
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

func (f *fakeResourceServer) create(w http.ResponseWriter, r *http.Request, doctype string) {
	var fields directory.Record
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

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

func (f *fakeResourceServer) get(w http.ResponseWriter, doctype, name string) {
	record, ok := f.records[doctype][name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": record})
}

func (f *fakeResourceServer) update(w http.ResponseWriter, r *http.Request, doctype, name string) {
	record, ok := f.records[doctype][name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var patch directory.Record
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for key, value := range patch {
		record[key] = value
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": record})
}

func newTestAdapter(t *testing.T) (*directory.Adapter, *fakeResourceServer) {
	t.Helper()

	fake := newFakeResourceServer()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	client, err := directory.NewClient(directory.ClientConfig{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		APISecret: "test-secret",
		Timeout:   5 * time.Second,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	return directory.NewAdapter(client, zerolog.Nop()), fake
}

func newValidator() *validator.Validate {
	return validator.New()
}

// stubTutor returns a canned result.
type stubTutor struct {
	result ai.TutorResult
	err    error
	calls  int
}

func (s *stubTutor) Complete(_ context.Context, _ ai.TutorInput) (ai.TutorResult, error) {
	s.calls++
	if s.err != nil {
		return ai.TutorResult{}, s.err
	}
	return s.result, nil
}

func (s *stubTutor) Ping(context.Context) error { return s.err }

// stubStorage records uploads and hands back a deterministic URL.
type stubStorage struct {
	uploads int
}

func (s *stubStorage) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	s.uploads++
	_, _ = io.Copy(io.Discard, reader)
	return "https://cdn.test/" + name, nil
}
