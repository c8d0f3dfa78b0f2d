package jobconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/teranos/dataloader/db"
	"github.com/teranos/dataloader/errors"
)

const recordColumns = `id, parent_id, revision, item_id, name, description, severity, impacts,
	source_resource_id, source_resource_type, source_user_fields, source_system_fields,
	target_resource_id, target_resource_type, target_user_fields, target_system_fields,
	mapping_id, chunk_size, schedule_expression, is_scheduled, lifecycle_state, is_active,
	published_version, deployed_version, derived_from, created_by, created_at, updated_by, updated_at`

type recordStore struct {
	q       queryer
	dialect db.Dialect
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *recordStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.q.QueryRowContext(ctx, s.dialect.Rebind(`SELECT `+recordColumns+` FROM job_configs WHERE id = ?`), id)
	rec, err := scanRecord(row)
	if db.IsNoRows(err) {
		return nil, errors.NewNotFoundError("job configuration %s", id)
	}
	if err != nil {
		return nil, errors.WrapStore(err, "get job configuration")
	}
	return rec, nil
}

func (s *recordStore) Insert(ctx context.Context, rec *Record) (InsertResult, error) {
	args, err := recordArgs(rec)
	if err != nil {
		return InsertResult{}, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	query := s.dialect.Rebind(`INSERT INTO job_configs (` + recordColumns + `) VALUES (` + placeholders + `)`)

	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		if v, ok := db.AsUniqueViolation(err); ok {
			switch {
			case v.Involves("revision"), v.Involves("published_version"), v.Involves("deployed_version"):
				return InsertResult{Outcome: Conflict, Constraint: v.Constraint}, nil
			case v.Involves("name"):
				return InsertResult{}, errors.NewDuplicationError("draft name %q already used for item %s", rec.Name, rec.ItemID)
			default:
				return InsertResult{}, errors.Mark(errors.Wrap(err, "insert job configuration"), errors.ErrDuplication)
			}
		}
		return InsertResult{}, errors.WrapStore(err, "insert job configuration")
	}
	return InsertResult{Outcome: Inserted, Record: rec}, nil
}

func (s *recordStore) Update(ctx context.Context, rec *Record) error {
	srcUser, srcSys, tgtUser, tgtSys, err := encodeFragments(rec)
	if err != nil {
		return err
	}

	query := s.dialect.Rebind(`UPDATE job_configs SET
		name = ?, description = ?, severity = ?, impacts = ?,
		source_resource_id = ?, source_resource_type = ?, source_user_fields = ?, source_system_fields = ?,
		target_resource_id = ?, target_resource_type = ?, target_user_fields = ?, target_system_fields = ?,
		mapping_id = ?, chunk_size = ?, schedule_expression = ?, is_scheduled = ?, is_active = ?,
		updated_by = ?, updated_at = ?
		WHERE id = ?`)

	res, err := s.q.ExecContext(ctx, query,
		rec.Name, nullString(rec.Description), nullString(rec.Notes.Severity), nullString(rec.Notes.Impacts),
		nullString(rec.Source.ResourceID), nullString(rec.Source.ResourceType), srcUser, srcSys,
		nullString(rec.Target.ResourceID), nullString(rec.Target.ResourceType), tgtUser, tgtSys,
		nullString(rec.MappingID), nullInt(rec.ChunkSize), nullString(rec.ScheduleExpression), rec.IsScheduled, rec.IsActive,
		nullString(rec.UpdatedBy), db.FormatTime(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		if v, ok := db.AsUniqueViolation(err); ok && v.Involves("name") {
			return errors.NewDuplicationError("draft name %q already used for item %s", rec.Name, rec.ItemID)
		}
		return errors.WrapStore(err, "update job configuration")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapStore(err, "update job configuration")
	}
	if n == 0 {
		return errors.NewNotFoundError("job configuration %s", rec.ID)
	}
	return nil
}

func (s *recordStore) Latest(ctx context.Context, parentID string) (*Record, error) {
	row := s.q.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT `+recordColumns+` FROM job_configs WHERE parent_id = ? ORDER BY revision DESC LIMIT 1`), parentID)
	rec, err := scanRecord(row)
	if db.IsNoRows(err) {
		return nil, errors.NewNotFoundError("lineage %s", parentID)
	}
	if err != nil {
		return nil, errors.WrapStore(err, "get latest in lineage")
	}
	return rec, nil
}

func (s *recordStore) NextRevision(ctx context.Context, parentID string) (int, error) {
	var max sql.NullInt64
	err := s.q.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT MAX(revision) FROM job_configs WHERE parent_id = ?`), parentID).Scan(&max)
	if err != nil {
		return 0, errors.WrapStore(err, "read lineage revision")
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}

func (s *recordStore) VersionLabels(ctx context.Context, parentID string, state State) ([]string, error) {
	column := "published_version"
	if state == StateDeployed {
		column = "deployed_version"
	} else if state != StatePublished {
		return nil, errors.NewValidationError("%s records carry no version label", state)
	}

	rows, err := s.q.QueryContext(ctx, s.dialect.Rebind(
		`SELECT `+column+` FROM job_configs WHERE parent_id = ? AND lifecycle_state = ? AND `+column+` IS NOT NULL`),
		parentID, string(state))
	if err != nil {
		return nil, errors.WrapStore(err, "list version labels")
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, errors.WrapStore(err, "scan version label")
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStore(err, "list version labels")
	}
	return labels, nil
}

func (s *recordStore) Lineage(ctx context.Context, parentID string) ([]*Record, error) {
	rows, err := s.q.QueryContext(ctx, s.dialect.Rebind(
		`SELECT `+recordColumns+` FROM job_configs WHERE parent_id = ? ORDER BY revision`), parentID)
	if err != nil {
		return nil, errors.WrapStore(err, "list lineage")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.WrapStore(err, "scan job configuration")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStore(err, "list lineage")
	}
	return records, nil
}

func (s *recordStore) DeleteLineage(ctx context.Context, parentID string) (int64, error) {
	res, err := s.q.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM job_configs WHERE parent_id = ?`), parentID)
	if err != nil {
		return 0, errors.WrapStore(err, "delete lineage")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapStore(err, "delete lineage")
	}
	return n, nil
}

func recordArgs(rec *Record) ([]interface{}, error) {
	srcUser, srcSys, tgtUser, tgtSys, err := encodeFragments(rec)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		rec.ID, rec.ParentID, rec.Revision, rec.ItemID, rec.Name,
		nullString(rec.Description), nullString(rec.Notes.Severity), nullString(rec.Notes.Impacts),
		nullString(rec.Source.ResourceID), nullString(rec.Source.ResourceType), srcUser, srcSys,
		nullString(rec.Target.ResourceID), nullString(rec.Target.ResourceType), tgtUser, tgtSys,
		nullString(rec.MappingID), nullInt(rec.ChunkSize), nullString(rec.ScheduleExpression), rec.IsScheduled,
		string(rec.State), rec.IsActive,
		nullString(rec.PublishedVersion), nullString(rec.DeployedVersion), nullString(rec.DerivedFrom),
		nullString(rec.CreatedBy), db.FormatTime(rec.CreatedAt),
		nullString(rec.UpdatedBy), db.FormatTime(rec.UpdatedAt),
	}, nil
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                                       Record
		description, severity, impacts            sql.NullString
		srcID, srcType, tgtID, tgtType, mappingID sql.NullString
		srcUser, srcSys, tgtUser, tgtSys          string
		chunkSize                                 sql.NullInt64
		schedule, state                           sql.NullString
		publishedVersion, deployedVersion         sql.NullString
		derivedFrom, createdBy, updatedBy         sql.NullString
		createdAt, updatedAt                      string
	)

	err := row.Scan(
		&rec.ID, &rec.ParentID, &rec.Revision, &rec.ItemID, &rec.Name, &description, &severity, &impacts,
		&srcID, &srcType, &srcUser, &srcSys,
		&tgtID, &tgtType, &tgtUser, &tgtSys,
		&mappingID, &chunkSize, &schedule, &rec.IsScheduled, &state, &rec.IsActive,
		&publishedVersion, &deployedVersion, &derivedFrom, &createdBy, &createdAt, &updatedBy, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Description = description.String
	rec.Notes = Notes{Severity: severity.String, Impacts: impacts.String}
	rec.Source = Fragment{ResourceID: srcID.String, ResourceType: srcType.String}
	rec.Target = Fragment{ResourceID: tgtID.String, ResourceType: tgtType.String}
	rec.MappingID = mappingID.String
	if chunkSize.Valid {
		n := int(chunkSize.Int64)
		rec.ChunkSize = &n
	}
	rec.ScheduleExpression = schedule.String
	rec.State = State(state.String)
	rec.PublishedVersion = publishedVersion.String
	rec.DeployedVersion = deployedVersion.String
	rec.DerivedFrom = derivedFrom.String
	rec.CreatedBy = createdBy.String
	rec.UpdatedBy = updatedBy.String

	for _, f := range []struct {
		raw string
		dst *map[string]interface{}
	}{
		{srcUser, &rec.Source.UserFields},
		{srcSys, &rec.Source.SystemFields},
		{tgtUser, &rec.Target.UserFields},
		{tgtSys, &rec.Target.SystemFields},
	} {
		if *f.dst, err = decodeFields(f.raw); err != nil {
			return nil, errors.Wrapf(err, "decode fields of %s", rec.ID)
		}
	}

	if rec.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "parse created_at of %s", rec.ID)
	}
	if rec.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "parse updated_at of %s", rec.ID)
	}
	return &rec, nil
}

func encodeFragments(rec *Record) (srcUser, srcSys, tgtUser, tgtSys string, err error) {
	if srcUser, err = encodeFields(rec.Source.UserFields); err != nil {
		return
	}
	if srcSys, err = encodeFields(rec.Source.SystemFields); err != nil {
		return
	}
	if tgtUser, err = encodeFields(rec.Target.UserFields); err != nil {
		return
	}
	tgtSys, err = encodeFields(rec.Target.SystemFields)
	return
}

func encodeFields(m map[string]interface{}) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", errors.NewValidationError("fields are not JSON-encodable: %v", err)
	}
	return string(b), nil
}

func decodeFields(raw string) (map[string]interface{}, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
