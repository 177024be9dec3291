package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidleathers/cloud-posture-engine/internal/infrastructure/config"
)

// PostgresStore implements Store over a registry_items(pk, sk, payload)
// table. The (pk, sk) primary key gives the range-scan semantics the
// registry contract requires.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Put(ctx context.Context, item Item) error {
	query := `
		INSERT INTO registry_items (pk, sk, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (pk, sk) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, item.PK, item.SK, item.Payload)
	if err != nil {
		return fmt.Errorf("putting registry item %s/%s: %w", item.PK, item.SK, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, pk, sk string) (Item, error) {
	item := Item{PK: pk, SK: sk}
	query := `SELECT payload FROM registry_items WHERE pk = $1 AND sk = $2`

	err := s.pool.QueryRow(ctx, query, pk, sk).Scan(&item.Payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("getting registry item %s/%s: %w", pk, sk, err)
	}
	return item, nil
}

func (s *PostgresStore) Query(ctx context.Context, pk, skPrefix string, limit int, cursor string) ([]Item, string, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	// Fetch one past the limit to decide whether a continuation cursor is
	// needed without a second round trip.
	fetch := limit
	if fetch > 0 {
		fetch++
	}

	query := `
		SELECT sk, payload FROM registry_items
		WHERE pk = $1 AND sk LIKE $2 || '%' AND sk > $3
		ORDER BY sk ASC`
	args := []any{pk, skPrefix, after}
	if fetch > 0 {
		query += ` LIMIT $4`
		args = append(args, fetch)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("querying registry partition %s: %w", pk, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item := Item{PK: pk}
		if err := rows.Scan(&item.SK, &item.Payload); err != nil {
			return nil, "", fmt.Errorf("scanning registry item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("reading registry partition %s: %w", pk, err)
	}

	next := ""
	if limit > 0 && len(items) > limit {
		items = items[:limit]
		next = EncodeCursor(items[len(items)-1].SK)
	}
	return items, next, nil
}

func (s *PostgresStore) Delete(ctx context.Context, pk, sk string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM registry_items WHERE pk = $1 AND sk = $2`, pk, sk)
	if err != nil {
		return fmt.Errorf("deleting registry item %s/%s: %w", pk, sk, err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
