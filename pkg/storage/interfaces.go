package storage

import (
	"context"
	"time"

	"github.com/openfed/manage/pkg/model"
)

// Store is the document store contract the engine is written against. The
// query engine behind it is opaque: filters are dotted attribute paths
// relative to a record's data tree (e.g. "entityid",
// "metaDataFields.coin:institution_id", "allowedEntities.name" for
// list-of-map membership).
//
// FindByID returns (nil, nil) when no record exists; absence is a legal
// answer the engine inspects, not an error.
type Store interface {
	FindByID(ctx context.Context, id, entityType string) (*model.MetaData, error)

	// Save inserts a new document.
	Save(ctx context.Context, record *model.MetaData) error

	// Update replaces the document with a matching id+type, guarded by the
	// record's version; a stale version yields *model.ConflictError. The
	// stored version is incremented on success.
	Update(ctx context.Context, record *model.MetaData) error

	Remove(ctx context.Context, record *model.MetaData) error

	// NextCounterValue returns the next value of the store-wide monotonic
	// counter used for eid assignment.
	NextCounterValue(ctx context.Context) (int64, error)

	// FindByFilter returns the records of entityType matching the filter.
	// With matchAll every condition must hold, otherwise any one suffices.
	// When requestedAttributes is non-empty the returned records carry only
	// those data keys (plus entityid).
	FindByFilter(ctx context.Context, entityType string, filter map[string]interface{}, matchAll bool, requestedAttributes []string) ([]*model.MetaData, error)

	// FindByRawQuery evaluates a raw JSON filter expression against records
	// of entityType.
	FindByRawQuery(ctx context.Context, entityType, rawQuery string) ([]*model.MetaData, error)

	// ListRevisions returns the archived snapshots of revisionType whose
	// parent pointer equals parentID, ordered by ascending revision number.
	ListRevisions(ctx context.Context, revisionType, parentID string) ([]*model.MetaData, error)
}

// Config holds settings for the storage backend.
type Config struct {
	Type string // "memory" or "postgres"

	PostgresURL      string
	PostgresMaxConns int
	PostgresTimeout  time.Duration

	// Read cache in front of FindByID.
	CacheEnabled bool
	CacheSize    int
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		PostgresMaxConns: 20,
		PostgresTimeout:  10 * time.Second,
		CacheEnabled:     true,
		CacheSize:        4096,
	}
}
