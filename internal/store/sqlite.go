package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"frameforge/internal/domain"
)

// SQLite persists session snapshots as JSON rows in the sessions table.
type SQLite struct {
	DB *sql.DB
}

func (p SQLite) Save(ctx context.Context, s domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO sessions(id,phase,data_json,created_at,updated_at) VALUES (?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET phase=excluded.phase, data_json=excluded.data_json, updated_at=excluded.updated_at`,
		s.ID, string(s.Phase), string(data), s.CreatedAt.UTC().Format(time.RFC3339Nano), s.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (p SQLite) LoadAll(ctx context.Context) ([]domain.Session, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, data_json FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Session
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var s domain.Session
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", id, err)
		}
		if !s.Phase.Valid() {
			return nil, fmt.Errorf("session %s has unknown phase %q", id, s.Phase)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
