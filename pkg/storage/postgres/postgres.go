// Package postgres implements the document store on PostgreSQL, keeping the
// attribute tree and revision envelope in a JSONB column so the filter
// queries the engine needs stay expressible without a fixed schema.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq" // postgres driver

	"github.com/openfed/manage/pkg/model"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metadata_documents (
	id       TEXT   NOT NULL,
	type     TEXT   NOT NULL,
	version  BIGINT NOT NULL DEFAULT 0,
	document JSONB  NOT NULL,
	PRIMARY KEY (id, type)
);
CREATE INDEX IF NOT EXISTS idx_metadata_entityid
	ON metadata_documents ((document->'data'->>'entityid'), type);
CREATE INDEX IF NOT EXISTS idx_metadata_parent
	ON metadata_documents ((document->'revision'->>'parentId'), type);
CREATE SEQUENCE IF NOT EXISTS metadata_eid_seq;
`

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	db *sql.DB
}

// New opens a connection pool and ensures the schema exists.
func New(url string, maxConns int) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	store := &Store{db: db}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an existing connection; used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("failed to create metadata schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

type document struct {
	Revision *model.Revision        `json:"revision,omitempty"`
	Data     map[string]interface{} `json:"data"`
}

func encodeDocument(record *model.MetaData) ([]byte, error) {
	return json.Marshal(document{Revision: record.Revision, Data: record.Data})
}

func decodeRecord(id, entityType string, version int64, raw []byte) (*model.MetaData, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", entityType, id, err)
	}
	if doc.Data == nil {
		doc.Data = map[string]interface{}{}
	}
	return &model.MetaData{ID: id, Type: entityType, Version: version, Revision: doc.Revision, Data: doc.Data}, nil
}

func (s *Store) FindByID(ctx context.Context, id, entityType string) (*model.MetaData, error) {
	var (
		version int64
		raw     []byte
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT version, document FROM metadata_documents WHERE id = $1 AND type = $2",
		id, entityType).Scan(&version, &raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return decodeRecord(id, entityType, version, raw)
}

func (s *Store) Save(ctx context.Context, record *model.MetaData) error {
	raw, err := encodeDocument(record)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO metadata_documents (id, type, version, document) VALUES ($1, $2, $3, $4)",
		record.ID, record.Type, record.Version, raw)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, record *model.MetaData) error {
	raw, err := encodeDocument(record)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE metadata_documents SET version = version + 1, document = $1 WHERE id = $2 AND type = $3 AND version = $4",
		raw, record.ID, record.Type, record.Version)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		existing, err := s.FindByID(ctx, record.ID, record.Type)
		if err != nil {
			return err
		}
		if existing == nil {
			return &model.NotFoundError{ID: record.ID, Type: record.Type}
		}
		return &model.ConflictError{ID: record.ID, Type: record.Type, Version: record.Version}
	}
	record.Version++
	return nil
}

func (s *Store) Remove(ctx context.Context, record *model.MetaData) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM metadata_documents WHERE id = $1 AND type = $2",
		record.ID, record.Type)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return &model.NotFoundError{ID: record.ID, Type: record.Type}
	}
	return nil
}

func (s *Store) NextCounterValue(ctx context.Context) (int64, error) {
	var value int64
	if err := s.db.QueryRowContext(ctx, "SELECT nextval('metadata_eid_seq')").Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to advance eid counter: %w", err)
	}
	return value, nil
}

func (s *Store) FindByFilter(ctx context.Context, entityType string, filter map[string]interface{}, matchAll bool, requestedAttributes []string) ([]*model.MetaData, error) {
	query := "SELECT id, version, document FROM metadata_documents WHERE type = $1"
	args := []interface{}{entityType}

	// Deterministic condition order for stable query plans and tests.
	paths := make([]string, 0, len(filter))
	for path := range filter {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var conditions []string
	for _, path := range paths {
		expr, err := jsonPathExpr(path, filter[path])
		if err != nil {
			return nil, err
		}
		args = append(args, expr)
		conditions = append(conditions, fmt.Sprintf("jsonb_path_exists(document->'data', $%d::jsonpath)", len(args)))
	}
	if len(conditions) > 0 {
		operator := " OR "
		if matchAll {
			operator = " AND "
		}
		query += " AND (" + strings.Join(conditions, operator) + ")"
	}
	query += " ORDER BY id"

	records, err := s.queryRecords(ctx, entityType, query, args...)
	if err != nil {
		return nil, err
	}
	if len(requestedAttributes) > 0 {
		for _, record := range records {
			projectAttributes(record, requestedAttributes)
		}
	}
	return records, nil
}

// jsonPathExpr builds a lax jsonpath like $."allowedEntities"."name" ? (@ == "x").
// Lax mode unwraps arrays on member access, which gives the list-of-map
// membership semantics filters rely on.
func jsonPathExpr(path string, value interface{}) (string, error) {
	var b strings.Builder
	b.WriteString("$")
	for _, part := range strings.Split(path, ".") {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(part, `"`, `\"`))
		b.WriteString(`"`)
	}
	literal, err := jsonPathLiteral(value)
	if err != nil {
		return "", fmt.Errorf("unsupported filter value for %s: %w", path, err)
	}
	b.WriteString(" ? (@ == ")
	b.WriteString(literal)
	b.WriteString(")")
	return b.String(), nil
}

func jsonPathLiteral(value interface{}) (string, error) {
	switch t := value.(type) {
	case string:
		return strconv.Quote(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return "", fmt.Errorf("type %T not comparable in a filter", value)
	}
}

func (s *Store) FindByRawQuery(ctx context.Context, entityType, rawQuery string) ([]*model.MetaData, error) {
	var filter map[string]interface{}
	if err := json.Unmarshal([]byte(rawQuery), &filter); err != nil {
		return nil, fmt.Errorf("invalid raw query: %w", err)
	}
	return s.FindByFilter(ctx, entityType, filter, true, nil)
}

func (s *Store) ListRevisions(ctx context.Context, revisionType, parentID string) ([]*model.MetaData, error) {
	query := `SELECT id, version, document FROM metadata_documents
		WHERE type = $1 AND document->'revision'->>'parentId' = $2
		ORDER BY (document->'revision'->>'number')::int`
	return s.queryRecords(ctx, revisionType, query, revisionType, parentID)
}

func (s *Store) queryRecords(ctx context.Context, entityType, query string, args ...interface{}) ([]*model.MetaData, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var records []*model.MetaData
	for rows.Next() {
		var (
			id      string
			version int64
			raw     []byte
		)
		if err := rows.Scan(&id, &version, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		record, err := decodeRecord(id, entityType, version, raw)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func projectAttributes(record *model.MetaData, requestedAttributes []string) {
	keep := map[string]bool{"entityid": true}
	for _, attr := range requestedAttributes {
		keep[attr] = true
	}
	for key := range record.Data {
		if !keep[key] {
			delete(record.Data, key)
		}
	}
}
