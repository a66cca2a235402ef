package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maintenance-gate/internal/maintenance"
)

const (
	selectStateSQL = `SELECT mode, response_options FROM maintenance_state WHERE id = 1`
	upsertStateSQL = `INSERT INTO maintenance_state (id, mode, response_options, updated_at)
VALUES (1, $1, $2, now())
ON CONFLICT (id) DO UPDATE SET mode = EXCLUDED.mode, response_options = EXCLUDED.response_options, updated_at = now()`
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps the state in the single-row maintenance_state table.
type PostgresStore struct {
	db querier
}

var _ maintenance.Store = (*PostgresStore)(nil)

func NewPostgresStore(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ReadState(ctx context.Context) (*maintenance.State, error) {
	var (
		mode string
		raw  []byte
	)
	if err := s.db.QueryRow(ctx, selectStateSQL).Scan(&mode, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select maintenance state: %w", err)
	}

	state := &maintenance.State{Mode: maintenance.Mode(mode)}
	if len(raw) > 0 && string(raw) != "null" {
		var opts maintenance.ResponseOptions
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("decode response options: %w", err)
		}
		state.ResponseOptions = &opts
	}
	return state, nil
}

func (s *PostgresStore) WriteState(ctx context.Context, state maintenance.State) error {
	var options any
	if state.ResponseOptions != nil {
		raw, err := json.Marshal(state.ResponseOptions)
		if err != nil {
			return fmt.Errorf("encode response options: %w", err)
		}
		options = string(raw)
	}
	if _, err := s.db.Exec(ctx, upsertStateSQL, string(state.Mode), options); err != nil {
		return fmt.Errorf("upsert maintenance state: %w", err)
	}
	return nil
}
