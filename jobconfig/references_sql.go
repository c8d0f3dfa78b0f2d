package jobconfig

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/dataloader/db"
	"github.com/teranos/dataloader/errors"
)

type referenceStore struct {
	q       queryer
	dialect db.Dialect
}

func (s *referenceStore) Get(ctx context.Context, parentID string) (*Reference, error) {
	row := s.q.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT parent_id, item_id, published_id, created_at, updated_at FROM job_references WHERE parent_id = ?`), parentID)
	ref, err := scanReference(row)
	if db.IsNoRows(err) {
		return nil, errors.NewNotFoundError("lineage %s", parentID)
	}
	if err != nil {
		return nil, errors.WrapStore(err, "get lineage reference")
	}
	return ref, nil
}

func (s *referenceStore) Create(ctx context.Context, ref *Reference) error {
	_, err := s.q.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO job_references (parent_id, item_id, published_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
		ref.ParentID, ref.ItemID, nullString(ref.PublishedID), db.FormatTime(ref.CreatedAt), db.FormatTime(ref.UpdatedAt))
	if err != nil {
		if _, ok := db.AsUniqueViolation(err); ok {
			return errors.NewDuplicationError("lineage %s already registered", ref.ParentID)
		}
		return errors.WrapStore(err, "create lineage reference")
	}
	return nil
}

func (s *referenceStore) SetPublished(ctx context.Context, parentID, recordID string) error {
	res, err := s.q.ExecContext(ctx, s.dialect.Rebind(
		`UPDATE job_references SET published_id = ?, updated_at = ? WHERE parent_id = ?`),
		recordID, db.FormatTime(time.Now()), parentID)
	if err != nil {
		return errors.WrapStore(err, "update lineage reference")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapStore(err, "update lineage reference")
	}
	if n == 0 {
		return errors.NewNotFoundError("lineage %s", parentID)
	}
	return nil
}

func (s *referenceStore) Delete(ctx context.Context, parentID string) error {
	res, err := s.q.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM job_references WHERE parent_id = ?`), parentID)
	if err != nil {
		return errors.WrapStore(err, "delete lineage reference")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapStore(err, "delete lineage reference")
	}
	if n == 0 {
		return errors.NewNotFoundError("lineage %s", parentID)
	}
	return nil
}

// ListByItem returns the lineages of itemID, or every lineage when itemID is empty
func (s *referenceStore) ListByItem(ctx context.Context, itemID string) ([]*Reference, error) {
	query := `SELECT parent_id, item_id, published_id, created_at, updated_at FROM job_references`
	var args []interface{}
	if itemID != "" {
		query += ` WHERE item_id = ?`
		args = append(args, itemID)
	}
	query += ` ORDER BY created_at, parent_id`

	rows, err := s.q.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, errors.WrapStore(err, "list lineage references")
	}
	defer rows.Close()

	var refs []*Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, errors.WrapStore(err, "scan lineage reference")
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStore(err, "list lineage references")
	}
	return refs, nil
}

func scanReference(row rowScanner) (*Reference, error) {
	var (
		ref                  Reference
		publishedID          sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&ref.ParentID, &ref.ItemID, &publishedID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	ref.PublishedID = publishedID.String

	var err error
	if ref.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, errors.Wrapf(err, "parse created_at of lineage %s", ref.ParentID)
	}
	if ref.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, errors.Wrapf(err, "parse updated_at of lineage %s", ref.ParentID)
	}
	return &ref, nil
}
