package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

const defaultPageSize = 100

// Adapter translates between internal user identities and external directory
// records. Identifiers handed out here are only stable until the record is
// renamed or recycled; callers must not cache identifier-to-identity
// assumptions across a deletion boundary.
type Adapter struct {
	client *Client
	logger zerolog.Logger
}

// NewAdapter wraps a directory client.
func NewAdapter(client *Client, logger zerolog.Logger) *Adapter {
	return &Adapter{
		client: client,
		logger: logger.With().Str("component", "directory_adapter").Logger(),
	}
}

// Create inserts an external record for the profile. A conflict answer means
// a duplicate already exists, so the adapter falls back to a lookup by the
// natural key (the role-specific email field) instead of failing hard. When
// the duplicate is a soft-deleted record its identifier is recycled for the
// new profile rather than handed out still carrying the prior identity; the
// returned flag reports that a recycle happened so callers can invalidate
// anything keyed on the identifier.
func (a *Adapter) Create(ctx context.Context, p Profile) (Record, bool, error) {
	mapper, err := MapperFor(p.Role)
	if err != nil {
		return nil, false, err
	}

	record, err := a.client.Create(ctx, mapper.Doctype(), mapper.ToExternal(p))
	if err == nil {
		return record, false, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, false, err
	}

	a.logger.Info().Str("email", p.Email).Str("doctype", mapper.Doctype()).
		Msg("duplicate on create, falling back to natural-key lookup")

	existing, lookupErr := a.FindByEmail(ctx, p.Role, p.Email)
	if lookupErr != nil {
		return nil, false, fmt.Errorf("%w: duplicate reported but lookup failed: %v", ErrConflict, lookupErr)
	}
	if IsDeleted(existing, mapper) {
		recycled, recycleErr := a.Recycle(ctx, existing.Name(), p)
		if recycleErr != nil {
			return nil, false, recycleErr
		}
		return recycled, true, nil
	}
	return existing, false, nil
}

// Update patches an external record with the mapped profile fields.
func (a *Adapter) Update(ctx context.Context, role, externalID string, p Profile) (Record, error) {
	mapper, err := MapperFor(role)
	if err != nil {
		return nil, err
	}
	return a.client.Update(ctx, mapper.Doctype(), externalID, mapper.ToExternal(p))
}

// Get fetches one record and reports whether it carries the deletion sentinel.
func (a *Adapter) Get(ctx context.Context, role, externalID string) (Record, bool, error) {
	mapper, err := MapperFor(role)
	if err != nil {
		return nil, false, err
	}

	record, err := a.client.Get(ctx, mapper.Doctype(), externalID)
	if err != nil {
		return nil, false, err
	}
	return record, IsDeleted(record, mapper), nil
}

// FindByEmail locates a record by the role's natural key.
func (a *Adapter) FindByEmail(ctx context.Context, role, email string) (Record, error) {
	mapper, err := MapperFor(role)
	if err != nil {
		return nil, err
	}

	records, err := a.client.List(ctx, mapper.Doctype(), ListQuery{
		Fields:   []string{"*"},
		Filters:  [][]string{{mapper.EmailField(), "=", email}},
		PageSize: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// Find returns a lazy iterator over all records of the role's doctype.
func (a *Adapter) Find(ctx context.Context, role string, fields []string) (*Iterator, error) {
	mapper, err := MapperFor(role)
	if err != nil {
		return nil, err
	}
	return newIterator(a.client, mapper.Doctype(), fields), nil
}

// SoftDelete disables a record and prefixes its display name with the
// deletion sentinel. Used in place of hard deletion, which the external
// system rejects for referentially linked records.
func (a *Adapter) SoftDelete(ctx context.Context, role, externalID string) error {
	mapper, err := MapperFor(role)
	if err != nil {
		return err
	}

	record, err := a.client.Get(ctx, mapper.Doctype(), externalID)
	if err != nil {
		return err
	}

	display := record.StringField(mapper.DisplayField())
	if !strings.HasPrefix(display, DeletedPrefix) {
		display = DeletedPrefix + display
	}

	patch := Record{mapper.DisplayField(): display}
	disabled := mapper.ToExternal(Profile{Disabled: true})
	for _, key := range []string{"enabled", "status"} {
		if v, ok := disabled[key]; ok {
			patch[key] = v
		}
	}

	_, err = a.client.Update(ctx, mapper.Doctype(), externalID, patch)
	return err
}

// Recycle repurposes a soft-deleted record's identifier for a new profile.
// Every mapped field is overwritten and the sentinel cleared in one update,
// so lookups by the identifier afterwards see only the new identity. The
// identifier is therefore not permanently bound to one logical user.
func (a *Adapter) Recycle(ctx context.Context, externalID string, p Profile) (Record, error) {
	mapper, err := MapperFor(p.Role)
	if err != nil {
		return nil, err
	}

	current, err := a.client.Get(ctx, mapper.Doctype(), externalID)
	if err != nil {
		return nil, err
	}
	if !IsDeleted(current, mapper) {
		return nil, fmt.Errorf("%w: record %s is not soft-deleted", ErrConflict, externalID)
	}

	fields := mapper.ToExternal(p)
	// Overwrite the display field explicitly in case ToExternal left it
	// untouched for this role, clearing the sentinel.
	if _, ok := fields[mapper.DisplayField()]; !ok {
		fields[mapper.DisplayField()] = strings.TrimPrefix(
			current.StringField(mapper.DisplayField()), DeletedPrefix)
	}

	record, err := a.client.Update(ctx, mapper.Doctype(), externalID, fields)
	if err != nil {
		return nil, err
	}

	a.logger.Info().Str("external_id", externalID).Str("doctype", mapper.Doctype()).
		Msg("recycled soft-deleted directory identifier")

	return record, nil
}

// IsDeleted reports whether the record carries the deletion sentinel.
func IsDeleted(record Record, mapper FieldMapper) bool {
	return strings.HasPrefix(record.StringField(mapper.DisplayField()), DeletedPrefix)
}

// Iterator pages lazily through a doctype's listing. Next fetches pages on
// demand so callers never hold the full record set unless they drain it.
type Iterator struct {
	client   *Client
	doctype  string
	fields   []string
	start    int
	buffer   []Record
	index    int
	done     bool
	pageSize int
}

func newIterator(client *Client, doctype string, fields []string) *Iterator {
	if len(fields) == 0 {
		fields = []string{"*"}
	}
	return &Iterator{
		client:   client,
		doctype:  doctype,
		fields:   fields,
		pageSize: defaultPageSize,
	}
}

// Next returns the next record, or (nil, nil) when the listing is exhausted.
func (it *Iterator) Next(ctx context.Context) (Record, error) {
	if it.index >= len(it.buffer) {
		if it.done {
			return nil, nil
		}
		page, err := it.client.List(ctx, it.doctype, ListQuery{
			Fields:   it.fields,
			PageSize: it.pageSize,
			Start:    it.start,
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			it.done = true
			return nil, nil
		}
		if len(page) < it.pageSize {
			it.done = true
		}
		it.start += len(page)
		it.buffer = page
		it.index = 0
	}

	record := it.buffer[it.index]
	it.index++
	return record, nil
}
