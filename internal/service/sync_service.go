package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/datatypes"

	"github.com/noah-isme/sma-core-api/internal/directory"
	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/internal/observability"
	"github.com/noah-isme/sma-core-api/internal/repository"
)

// ErrSyncInProgress means another instance holds the sync lease.
var ErrSyncInProgress = errors.New("synchronization already running")

const syncLeaseKey = "sync:lease"

// recordSchema gates what the daemon accepts from the directory. Records
// missing a name or carrying the wrong types are skipped, not written.
const recordSchema = `{
	"type": "object",
	"properties": {
		"name":     {"type": "string", "minLength": 1},
		"modified": {"type": "string"}
	},
	"required": ["name"]
}`

// Timestamp layouts the directory has been observed to emit.
var modifiedLayouts = []string{
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// SyncReport summarises one synchronization run.
type SyncReport struct {
	Started  time.Time `json:"started"`
	Duration string    `json:"duration"`
	Seen     int       `json:"seen"`
	Updated  int       `json:"updated"`
	Deleted  int       `json:"deleted"`
	Skipped  int       `json:"skipped"`
}

// SyncService pulls the external directory into the local mirror on an
// interval. Runs are serialised across instances with a Redis lease; a run
// that finds the lease held skips instead of queueing.
type SyncService struct {
	adapter  *directory.Adapter
	cache    repository.DirectoryCacheRepository
	redis    *redis.Client
	schema   *jsonschema.Schema
	interval time.Duration
	leaseTTL time.Duration
	logger   zerolog.Logger
}

// NewSyncService wires the synchronization daemon.
func NewSyncService(adapter *directory.Adapter, cache repository.DirectoryCacheRepository, redisClient *redis.Client, interval, leaseTTL time.Duration, logger zerolog.Logger) (*SyncService, error) {
	schema, err := jsonschema.CompileString("record.schema.json", recordSchema)
	if err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Minute
	}
	return &SyncService{
		adapter:  adapter,
		cache:    cache,
		redis:    redisClient,
		schema:   schema,
		interval: interval,
		leaseTTL: leaseTTL,
		logger:   logger.With().Str("component", "sync_service").Logger(),
	}, nil
}

// Run starts the interval loop and blocks until the context is cancelled.
// The first pass runs immediately.
func (s *SyncService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		report, err := s.RunOnce(ctx)
		switch {
		case errors.Is(err, ErrSyncInProgress):
			s.logger.Info().Msg("sync lease held elsewhere, skipping run")
		case err != nil:
			s.logger.Error().Err(err).Msg("sync run failed")
		default:
			s.logger.Info().Int("seen", report.Seen).Int("updated", report.Updated).
				Int("deleted", report.Deleted).Int("skipped", report.Skipped).
				Str("duration", report.Duration).Msg("sync run complete")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single full pass over every synchronised doctype.
func (s *SyncService) RunOnce(ctx context.Context) (SyncReport, error) {
	leaseID := uuid.NewString()
	acquired, err := s.redis.SetNX(ctx, syncLeaseKey, leaseID, s.leaseTTL).Result()
	if err != nil {
		return SyncReport{}, fmt.Errorf("acquire sync lease: %w", err)
	}
	if !acquired {
		observability.SyncRuns().WithLabelValues("skipped").Inc()
		return SyncReport{}, ErrSyncInProgress
	}
	defer s.releaseLease(leaseID)

	report := SyncReport{Started: time.Now().UTC()}

	for _, role := range []string{models.RoleStudent, models.RoleParent, models.RoleTeacher} {
		if err := s.syncRole(ctx, role, &report); err != nil {
			observability.SyncRuns().WithLabelValues("error").Inc()
			report.Duration = time.Since(report.Started).String()
			return report, fmt.Errorf("sync %s: %w", role, err)
		}
	}

	observability.SyncRuns().WithLabelValues("ok").Inc()
	report.Duration = time.Since(report.Started).String()
	return report, nil
}

func (s *SyncService) syncRole(ctx context.Context, role string, report *SyncReport) error {
	mapper, err := directory.MapperFor(role)
	if err != nil {
		return err
	}

	iter, err := s.adapter.Find(ctx, role, []string{"*"})
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for {
		record, err := iter.Next(ctx)
		if err != nil {
			return err
		}
		if record == nil {
			break
		}
		report.Seen++

		if err := s.schema.Validate(map[string]interface{}(record)); err != nil {
			report.Skipped++
			s.logger.Warn().Err(err).Str("doctype", mapper.Doctype()).
				Msg("skipping record failing schema validation")
			continue
		}

		externalID := record.Name()
		seen[externalID] = true

		profile := mapper.FromExternal(record)
		payload, err := json.Marshal(record)
		if err != nil {
			report.Skipped++
			continue
		}

		entry := models.DirectoryCacheEntry{
			ExternalID: externalID,
			Doctype:    mapper.Doctype(),
			Email:      profile.Email,
			FullName:   profile.FullName,
			Role:       role,
			Disabled:   profile.Disabled,
			Deleted:    directory.IsDeleted(record, mapper),
			ModifiedAt: parseModified(record.StringField("modified")),
			Payload:    datatypes.JSON(payload),
		}
		if err := s.cache.Upsert(ctx, &entry); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", mapper.Doctype(), externalID, err)
		}
		report.Updated++
		observability.SyncRecordsUpdated().Inc()
	}

	// Rows present locally but absent upstream were removed entirely from the
	// directory; mark them deleted rather than dropping the history.
	known, err := s.cache.ExternalIDs(ctx, mapper.Doctype())
	if err != nil {
		return err
	}
	for _, id := range known {
		if seen[id] {
			continue
		}
		if err := s.cache.MarkDeleted(ctx, mapper.Doctype(), id); err != nil {
			return err
		}
		report.Deleted++
	}

	return nil
}

// releaseLease drops the lease only if this run still owns it; an expired
// lease may already belong to another instance.
func (s *SyncService) releaseLease(leaseID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	current, err := s.redis.Get(ctx, syncLeaseKey).Result()
	if err != nil || current != leaseID {
		return
	}
	s.redis.Del(ctx, syncLeaseKey)
}

func parseModified(value string) time.Time {
	for _, layout := range modifiedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
