package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nftbay/marketd/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates a new ActivityStore backed by the given
// connection pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// Record appends one terminal transaction outcome. The detail map is
// stored as JSONB.
func (s *ActivityStore) Record(ctx context.Context, e domain.ActivityEntry) error {
	detailJSON, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal activity detail: %w", err)
	}

	const query = `
		INSERT INTO activity (id, kind, state, tx_hash, entity_id, account, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.pool.Exec(ctx, query,
		e.ID, string(e.Kind), string(e.State), e.Hash, e.EntityID, e.Account, detailJSON, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record activity %s: %w", e.ID, err)
	}
	return nil
}

// List returns activity entries newest first, with pagination and
// optional time filtering.
func (s *ActivityStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ActivityEntry, error) {
	query := `SELECT id, kind, state, tx_hash, entity_id, account, detail, created_at FROM activity WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.query(ctx, query, args...)
}

// ListBefore returns every entry recorded before the cutoff, oldest
// first, for archiving.
func (s *ActivityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ActivityEntry, error) {
	const query = `
		SELECT id, kind, state, tx_hash, entity_id, account, detail, created_at
		FROM activity WHERE created_at < $1 ORDER BY created_at ASC`
	return s.query(ctx, query, before)
}

// DeleteBefore removes every entry recorded before the cutoff and
// returns the number of rows deleted.
func (s *ActivityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM activity WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete activity before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *ActivityStore) query(ctx context.Context, query string, args ...any) ([]domain.ActivityEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.ActivityEntry
	for rows.Next() {
		var (
			e          domain.ActivityEntry
			kind       string
			state      string
			detailJSON []byte
		)
		if err := rows.Scan(&e.ID, &kind, &state, &e.Hash, &e.EntityID, &e.Account, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan activity entry: %w", err)
		}
		e.Kind = domain.TxKind(kind)
		e.State = domain.TxState(state)
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal activity detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activity entries rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.ActivityStore = (*ActivityStore)(nil)
