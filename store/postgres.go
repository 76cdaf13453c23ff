package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"callpilot.dev/call"
)

//go:embed schema.sql
var schemaFS embed.FS

// Postgres backs the Store contract with a two-table schema. The
// context window is stored as JSONB; ClaimTrigger is a single
// conditional upsert so concurrent workers cannot both advance the
// cooldown marker.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded schema.sql: %w", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) GetCall(ctx context.Context, callID string) (*CallState, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT call_id, status, created_at, started_at, window_seconds,
		       context_window, last_trigger_ts, active_card_id
		FROM call_state WHERE call_id = $1`, callID)

	var (
		state  CallState
		window []byte
	)
	err := row.Scan(
		&state.CallID,
		&state.Status,
		&state.CreatedAt,
		&state.StartedAt,
		&state.WindowSeconds,
		&window,
		&state.LastTriggerTS,
		&state.ActiveCardID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load call state: %w", err)
	}

	if len(window) > 0 {
		var w call.Window
		if err := json.Unmarshal(window, &w); err != nil {
			return nil, fmt.Errorf("failed to decode context window: %w", err)
		}
		state.ContextWindow = &w
	}
	return &state, nil
}

func (p *Postgres) PutCall(ctx context.Context, state *CallState) error {
	window, err := marshalWindow(state.ContextWindow)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO call_state
			(call_id, status, created_at, started_at, window_seconds,
			 context_window, last_trigger_ts, active_card_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (call_id) DO UPDATE SET
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at,
			started_at = EXCLUDED.started_at,
			window_seconds = EXCLUDED.window_seconds,
			context_window = EXCLUDED.context_window,
			last_trigger_ts = EXCLUDED.last_trigger_ts,
			active_card_id = EXCLUDED.active_card_id`,
		state.CallID, state.Status, state.CreatedAt, state.StartedAt,
		state.WindowSeconds, window, state.LastTriggerTS, state.ActiveCardID,
	)
	if err != nil {
		return fmt.Errorf("failed to store call state: %w", err)
	}
	return nil
}

// columnFor whitelists partial-update field names.
var columnFor = map[string]string{
	"status":          "status",
	"started_at":      "started_at",
	"window_seconds":  "window_seconds",
	"context_window":  "context_window",
	"last_trigger_ts": "last_trigger_ts",
	"active_card_id":  "active_card_id",
}

func (p *Postgres) UpdateCall(ctx context.Context, callID string, fields Fields) error {
	set := make([]string, 0, len(fields))
	args := []any{callID}

	for key, value := range fields {
		column, ok := columnFor[key]
		if !ok {
			return fmt.Errorf("unknown call-state field: %s", key)
		}
		if key == "context_window" {
			window := value.(call.Window)
			encoded, err := marshalWindow(&window)
			if err != nil {
				return err
			}
			value = encoded
		}
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if len(set) == 0 {
		return nil
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO call_state (call_id) VALUES ($1)
		ON CONFLICT (call_id) DO NOTHING`, callID)
	if err != nil {
		return fmt.Errorf("failed to ensure call state row: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(
		"UPDATE call_state SET %s WHERE call_id = $1",
		strings.Join(set, ", ")), args...)
	if err != nil {
		return fmt.Errorf("failed to update call state: %w", err)
	}
	return nil
}

func (p *Postgres) ListCalls(ctx context.Context) ([]*CallState, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT call_id, status, created_at, started_at, window_seconds,
		       last_trigger_ts, active_card_id
		FROM call_state ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	var states []*CallState
	for rows.Next() {
		var state CallState
		err := rows.Scan(
			&state.CallID,
			&state.Status,
			&state.CreatedAt,
			&state.StartedAt,
			&state.WindowSeconds,
			&state.LastTriggerTS,
			&state.ActiveCardID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call state: %w", err)
		}
		states = append(states, &state)
	}
	return states, rows.Err()
}

func (p *Postgres) ClaimTrigger(ctx context.Context, callID string, now, cooldown int64) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO call_state (call_id, last_trigger_ts) VALUES ($1, $2)
		ON CONFLICT (call_id) DO UPDATE SET last_trigger_ts = $2
		WHERE call_state.last_trigger_ts <= $2 - $3`,
		callID, now, cooldown)
	if err != nil {
		return false, fmt.Errorf("failed to claim trigger slot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) RegisterConnection(ctx context.Context, callID, connectionID string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO call_connections (call_id, connection_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, callID, connectionID)
	if err != nil {
		return fmt.Errorf("failed to register connection: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveConnection(ctx context.Context, callID, connectionID string) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM call_connections WHERE call_id = $1 AND connection_id = $2`,
		callID, connectionID)
	if err != nil {
		return fmt.Errorf("failed to remove connection: %w", err)
	}
	return nil
}

func (p *Postgres) ListConnections(ctx context.Context, callID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT connection_id FROM call_connections WHERE call_id = $1`, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan connection id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func marshalWindow(w *call.Window) ([]byte, error) {
	if w == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode context window: %w", err)
	}
	return encoded, nil
}
