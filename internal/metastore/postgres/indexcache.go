package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hazeldav/hazeldav/internal/metastore"
)

// GetIndexCache returns the cached index blob for (path, treeHash), or
// metastore.ErrNotFound if this generation was never stored or was pruned.
func (s *Store) GetIndexCache(ctx context.Context, path, treeHash string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM index_cache WHERE path = $1 AND tree_hash = $2`, path, treeHash).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, metastore.ErrNotFound
	}
	return data, err
}

// PutIndexCache stores data as the index generation for (path, treeHash).
func (s *Store) PutIndexCache(ctx context.Context, path, treeHash string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO index_cache (path, tree_hash, data, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path, tree_hash) DO UPDATE SET data = excluded.data, created_at = excluded.created_at
	`, path, treeHash, data, time.Now().UTC())
	return err
}

// PruneIndexCache drops every generation for path other than keepTreeHash.
func (s *Store) PruneIndexCache(ctx context.Context, path string, keepTreeHash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM index_cache WHERE path = $1 AND tree_hash != $2`, path, keepTreeHash)
	return err
}
