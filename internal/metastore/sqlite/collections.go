package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hazeldav/hazeldav/internal/metastore"
)

// GetCollectionMeta returns the stored metadata for path.
func (s *Store) GetCollectionMeta(ctx context.Context, path string) (metastore.CollectionMeta, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT path, kind, display_name, description, color, timezone, supported_components,
		 owner_principal, created_at, updated_at
		FROM collection_meta WHERE path = ?`, path)
	return scanCollectionMeta(row.Scan)
}

// PutCollectionMeta inserts or replaces the metadata row for meta.Path.
func (s *Store) PutCollectionMeta(ctx context.Context, meta metastore.CollectionMeta) error {
	now := time.Now().UTC()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO collection_meta (
				path, kind, display_name, description, color, timezone,
				supported_components, owner_principal, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				kind = excluded.kind,
				display_name = excluded.display_name,
				description = excluded.description,
				color = excluded.color,
				timezone = excluded.timezone,
				supported_components = excluded.supported_components,
				owner_principal = excluded.owner_principal,
				updated_at = excluded.updated_at
		`, meta.Path, meta.Kind, meta.DisplayName, meta.Description, meta.Color, meta.TimeZone,
			strings.Join(meta.SupportedComponents, ","), meta.OwnerPrincipal, meta.CreatedAt, meta.UpdatedAt)
		return err
	})
}

// DeleteCollectionMeta removes the metadata row for path, if present.
func (s *Store) DeleteCollectionMeta(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM collection_meta WHERE path = ?`, path)
	return err
}

// ListCollections returns every collection owned by ownerPrincipal, or every
// collection in the store when ownerPrincipal is empty.
func (s *Store) ListCollections(ctx context.Context, ownerPrincipal string) ([]metastore.CollectionMeta, error) {
	var rows *sql.Rows
	var err error
	if ownerPrincipal == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT path, kind, display_name, description, color, timezone, supported_components,
			 owner_principal, created_at, updated_at
			FROM collection_meta`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT path, kind, display_name, description, color, timezone, supported_components,
			 owner_principal, created_at, updated_at
			FROM collection_meta WHERE owner_principal = ?`, ownerPrincipal)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []metastore.CollectionMeta
	for rows.Next() {
		m, err := scanCollectionMeta(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanCollectionMeta(scan func(dest ...any) error) (metastore.CollectionMeta, error) {
	var m metastore.CollectionMeta
	var components string
	if err := scan(&m.Path, &m.Kind, &m.DisplayName, &m.Description, &m.Color, &m.TimeZone,
		&components, &m.OwnerPrincipal, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return metastore.CollectionMeta{}, metastore.ErrNotFound
		}
		return metastore.CollectionMeta{}, err
	}
	if components != "" {
		m.SupportedComponents = strings.Split(components, ",")
	}
	return m, nil
}
