// Package catalog stores the resources and mappings that job configurations
// point at. The Store resolves both for validation and bundle assembly.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/dataloader/db"
	"github.com/teranos/dataloader/errors"
)

// Resource is a connection target: a database, a file drop, an HTTP endpoint
type Resource struct {
	ID            string                 `json:"id" yaml:"id" toml:"id"`
	Name          string                 `json:"name" yaml:"name" toml:"name"`
	Type          string                 `json:"type" yaml:"type" toml:"type"`
	Configuration map[string]interface{} `json:"configuration,omitempty" yaml:"configuration,omitempty" toml:"configuration,omitempty"`
	CreatedAt     time.Time              `json:"createdAt" yaml:"-" toml:"-"`
	UpdatedAt     time.Time              `json:"updatedAt" yaml:"-" toml:"-"`
}

// MappingField maps one source column onto a target column
type MappingField struct {
	Source   string `json:"source" yaml:"source" toml:"source"`
	Target   string `json:"target" yaml:"target" toml:"target"`
	DataType string `json:"dataType,omitempty" yaml:"dataType,omitempty" toml:"dataType,omitempty"`
}

// Mapping is an ordered field list
type Mapping struct {
	ID        string         `json:"id" yaml:"id" toml:"id"`
	Name      string         `json:"name" yaml:"name" toml:"name"`
	Fields    []MappingField `json:"fields" yaml:"fields" toml:"fields"`
	CreatedAt time.Time      `json:"createdAt" yaml:"-" toml:"-"`
	UpdatedAt time.Time      `json:"updatedAt" yaml:"-" toml:"-"`
}

// Store persists resources and mappings
type Store struct {
	db      *sql.DB
	dialect db.Dialect
	logger  *zap.SugaredLogger
}

// NewStore creates a catalog store
func NewStore(database *sql.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{db: database, dialect: db.DialectOf(database), logger: logger}
}

// PutResource inserts r, or replaces it when r.ID already exists.
// An empty ID is assigned a new uuid.
func (s *Store) PutResource(ctx context.Context, r *Resource) error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.NewValidationError("resource name is required")
	}
	if strings.TrimSpace(r.Type) == "" {
		return errors.NewValidationError("resource %s has no type", r.Name)
	}

	config := "{}"
	if len(r.Configuration) > 0 {
		b, err := json.Marshal(r.Configuration)
		if err != nil {
			return errors.NewValidationError("resource %s configuration is not JSON-encodable: %v", r.Name, err)
		}
		config = string(b)
	}

	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	query := s.dialect.Rebind(`INSERT INTO resources (id, name, resource_type, configuration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			resource_type = excluded.resource_type,
			configuration = excluded.configuration,
			updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query, r.ID, r.Name, r.Type, config, db.FormatTime(r.CreatedAt), db.FormatTime(r.UpdatedAt))
	if err != nil {
		if _, ok := db.AsUniqueViolation(err); ok {
			return errors.NewDuplicationError("resource name %q already used", r.Name)
		}
		s.logger.Errorw("Failed to store resource", "resource_id", r.ID, "error", err)
		return errors.WrapStore(err, "put resource")
	}
	return nil
}

// GetResource resolves a resource by id
func (s *Store) GetResource(ctx context.Context, id string) (*Resource, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT id, name, resource_type, configuration, created_at, updated_at FROM resources WHERE id = ?`), id)
	r, err := scanResource(row)
	if db.IsNoRows(err) {
		return nil, errors.NewNotFoundError("resource %s", id)
	}
	if err != nil {
		return nil, errors.WrapStore(err, "get resource")
	}
	return r, nil
}

// ListResources returns every resource ordered by name
func (s *Store) ListResources(ctx context.Context) ([]*Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, resource_type, configuration, created_at, updated_at FROM resources ORDER BY name`)
	if err != nil {
		return nil, errors.WrapStore(err, "list resources")
	}
	defer rows.Close()

	var resources []*Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, errors.WrapStore(err, "scan resource")
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStore(err, "list resources")
	}
	return resources, nil
}

// DeleteResource removes a resource. Job configurations pointing at it are
// left alone and fail validation on their next publish.
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "resources", "resource", id)
}

// PutMapping inserts or replaces m together with its field list
func (s *Store) PutMapping(ctx context.Context, m *Mapping) error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.NewValidationError("mapping name is required")
	}
	for i, f := range m.Fields {
		if f.Source == "" || f.Target == "" {
			return errors.NewValidationError("mapping %s field %d needs source and target", m.Name, i)
		}
	}

	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapStore(err, "begin mapping write")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.dialect.Rebind(`INSERT INTO mappings (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`),
		m.ID, m.Name, db.FormatTime(m.CreatedAt), db.FormatTime(m.UpdatedAt))
	if err != nil {
		if _, ok := db.AsUniqueViolation(err); ok {
			return errors.NewDuplicationError("mapping name %q already used", m.Name)
		}
		return errors.WrapStore(err, "put mapping")
	}

	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM mapping_fields WHERE mapping_id = ?`), m.ID); err != nil {
		return errors.WrapStore(err, "replace mapping fields")
	}

	insertField := s.dialect.Rebind(`INSERT INTO mapping_fields (mapping_id, position, source_field, target_field, data_type)
		VALUES (?, ?, ?, ?, ?)`)
	for i, f := range m.Fields {
		var dataType sql.NullString
		if f.DataType != "" {
			dataType = sql.NullString{String: f.DataType, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, insertField, m.ID, i, f.Source, f.Target, dataType); err != nil {
			return errors.WrapStore(err, "insert mapping field")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapStore(err, "commit mapping")
	}
	return nil
}

// GetMapping resolves a mapping and its ordered fields
func (s *Store) GetMapping(ctx context.Context, id string) (*Mapping, error) {
	var (
		m                    Mapping
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT id, name, created_at, updated_at FROM mappings WHERE id = ?`), id).
		Scan(&m.ID, &m.Name, &createdAt, &updatedAt)
	if db.IsNoRows(err) {
		return nil, errors.NewNotFoundError("mapping %s", id)
	}
	if err != nil {
		return nil, errors.WrapStore(err, "get mapping")
	}
	if m.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.WrapStore(err, "parse mapping timestamp")
	}
	if m.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, errors.WrapStore(err, "parse mapping timestamp")
	}

	if m.Fields, err = s.mappingFields(ctx, id); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMappings returns every mapping ordered by name, fields included
func (s *Store) ListMappings(ctx context.Context) ([]*Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM mappings ORDER BY name`)
	if err != nil {
		return nil, errors.WrapStore(err, "list mappings")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.WrapStore(err, "scan mapping")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStore(err, "list mappings")
	}

	mappings := make([]*Mapping, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMapping(ctx, id)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// DeleteMapping removes a mapping; its fields cascade
func (s *Store) DeleteMapping(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "mappings", "mapping", id)
}

func (s *Store) mappingFields(ctx context.Context, mappingID string) ([]MappingField, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT source_field, target_field, data_type FROM mapping_fields WHERE mapping_id = ? ORDER BY position`), mappingID)
	if err != nil {
		return nil, errors.WrapStore(err, "list mapping fields")
	}
	defer rows.Close()

	fields := []MappingField{}
	for rows.Next() {
		var (
			f        MappingField
			dataType sql.NullString
		)
		if err := rows.Scan(&f.Source, &f.Target, &dataType); err != nil {
			return nil, errors.WrapStore(err, "scan mapping field")
		}
		f.DataType = dataType.String
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStore(err, "list mapping fields")
	}
	return fields, nil
}

func (s *Store) deleteByID(ctx context.Context, table, entity, id string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM `+table+` WHERE id = ?`), id)
	if err != nil {
		return errors.WrapStore(err, "delete "+entity)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapStore(err, "delete "+entity)
	}
	if n == 0 {
		return errors.NewNotFoundError("%s %s", entity, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResource(row rowScanner) (*Resource, error) {
	var (
		r                            Resource
		config, createdAt, updatedAt string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Type, &config, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if config != "" && config != "{}" {
		if err := json.Unmarshal([]byte(config), &r.Configuration); err != nil {
			return nil, errors.Wrapf(err, "decode configuration of resource %s", r.ID)
		}
	}
	var err error
	if r.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
