package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/image-storage/internal/model"
)

// PostgresStore persists records in a single images table. Uniqueness of
// the UUID key is enforced by the primary key, so duplicate detection does
// not depend on error-string sniffing.
type PostgresStore struct {
	db *dbpg.DB
}

// NewPostgresStore creates a PostgresStore on top of an open connection.
func NewPostgresStore(db *dbpg.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Put inserts a new record, reporting ErrDuplicateID when the UUID is taken.
func (s *PostgresStore) Put(ctx context.Context, rec model.ImageRecord) error {
	query := `
		INSERT INTO images (id, original_name, stored_path, user_path, size_bytes, format, width, height, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := s.db.ExecContext(
		ctx, query,
		rec.UUID, rec.OriginalName, rec.StoredPath, rec.UserPath,
		rec.SizeBytes, string(rec.Format), rec.Width, rec.Height, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put: failed to insert record: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put: failed to get number of rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDuplicateID
	}

	return nil
}

// Get retrieves a record by UUID.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (model.ImageRecord, error) {
	query := `
		SELECT original_name, stored_path, user_path, size_bytes, format, width, height, created_at
		FROM images
		WHERE id = $1
	`

	var rec model.ImageRecord
	var format string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.OriginalName, &rec.StoredPath, &rec.UserPath,
		&rec.SizeBytes, &format, &rec.Width, &rec.Height, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ImageRecord{}, ErrNotFound
		}

		return model.ImageRecord{}, fmt.Errorf("get: failed to get record: %w", err)
	}

	rec.UUID = id
	rec.Format = model.Format(format)

	return rec, nil
}

// Delete removes a record by UUID.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM images WHERE id = $1
	`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: failed to delete record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: failed to get number of rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns records under pathPrefix, newest first, plus the total
// number of matches. Reads go to the master so a freshly inserted record is
// visible to an immediately following list.
func (s *PostgresStore) List(ctx context.Context, pathPrefix string, limit, offset int) ([]model.ImageRecord, int, error) {
	pattern := likeEscape(pathPrefix) + "/%"

	var total int
	countQuery := `
		SELECT COUNT(*) FROM images
		WHERE stored_path = $1 OR stored_path LIKE $2 ESCAPE '\'
	`
	if err := s.db.QueryRowContext(ctx, countQuery, pathPrefix, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("list: failed to count records: %w", err)
	}

	query := `
		SELECT id, original_name, stored_path, user_path, size_bytes, format, width, height, created_at
		FROM images
		WHERE stored_path = $1 OR stored_path LIKE $2 ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := s.db.Master.QueryContext(ctx, query, pathPrefix, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list: failed to query records: %w", err)
	}
	defer rows.Close()

	records := make([]model.ImageRecord, 0, limit)
	for rows.Next() {
		var rec model.ImageRecord
		var format string

		if err := rows.Scan(
			&rec.UUID, &rec.OriginalName, &rec.StoredPath, &rec.UserPath,
			&rec.SizeBytes, &format, &rec.Width, &rec.Height, &rec.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("list: failed to scan record: %w", err)
		}

		rec.Format = model.Format(format)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list: failed to iterate records: %w", err)
	}

	return records, total, nil
}

// Close closes the master and all slave connections.
func (s *PostgresStore) Close() error {
	var errs []error

	if err := s.db.Master.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close master: %w", err))
	}
	for i, slave := range s.db.Slaves {
		if err := slave.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close slave %d: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// likeEscape neutralizes LIKE metacharacters in a literal path prefix.
func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
