package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"frameforge/internal/domain"
)

// Journal keeps the history of emitted events per session, independent of
// whether they were ever delivered.
type Journal interface {
	Append(ctx context.Context, evt Event) error
	// List returns the newest limit events of a session, oldest first.
	List(ctx context.Context, sessionID string, limit int) ([]Event, error)
}

type MemoryJournal struct {
	mu     sync.RWMutex
	events map[string][]Event
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{events: map[string][]Event{}}
}

func (j *MemoryJournal) Append(_ context.Context, evt Event) error {
	j.mu.Lock()
	j.events[evt.SessionID] = append(j.events[evt.SessionID], evt)
	j.mu.Unlock()
	return nil
}

func (j *MemoryJournal) List(_ context.Context, sessionID string, limit int) ([]Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	items := j.events[sessionID]
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return append([]Event(nil), items...), nil
}

// SQLJournal stores events in the events table created by the migrations.
type SQLJournal struct {
	DB *sql.DB
}

func (w SQLJournal) Append(ctx context.Context, evt Event) error {
	payload := evt.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(event_id,ts,type,session_id,phase,status,payload_json) VALUES (?,?,?,?,?,?,?)`,
		evt.ID, evt.Timestamp.UTC().Format(time.RFC3339Nano), string(evt.Type), evt.SessionID, string(evt.Phase), evt.Status, string(data))
	return err
}

func (w SQLJournal) List(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := w.DB.QueryContext(ctx, `SELECT event_id,ts,type,session_id,phase,status,payload_json FROM (
		SELECT id,event_id,ts,type,session_id,phase,status,payload_json FROM events WHERE session_id=? ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var evt Event
		var ts, typ, phase, payload string
		if err := rows.Scan(&evt.ID, &ts, &typ, &evt.SessionID, &phase, &evt.Status, &payload); err != nil {
			return nil, err
		}
		evt.Type = Type(typ)
		evt.Phase = domain.Phase(phase)
		if evt.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse event ts %q: %w", ts, err)
		}
		if payload != "" && payload != "{}" {
			if err := json.Unmarshal([]byte(payload), &evt.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}
