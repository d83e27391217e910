package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sandevgo/mnemo/internal/core"
)

const eventColumns = `id, kind, source, content, diff, file, metadata, created_at, processed`

func scanEvent(row scanner) (*core.Event, error) {
	var (
		e         core.Event
		kind      string
		metadata  string
		createdAt int64
		processed int
	)
	if err := row.Scan(&e.ID, &kind, &e.Source, &e.Content, &e.Diff, &e.File, &metadata, &createdAt, &processed); err != nil {
		return nil, err
	}
	e.Kind = core.EventKind(kind)
	e.CreatedAt = fromMillis(createdAt)
	e.Processed = processed == 1
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
			return nil, fmt.Errorf("event %s: failed to decode metadata: %w", e.ID, err)
		}
	}
	return &e, nil
}

// RecordEvent appends e. Events are never updated except for the processed flag.
func (s *Store) RecordEvent(ctx context.Context, e *core.Event) error {
	if e.Kind == "" {
		return &core.ValidationError{Field: "kind", Reason: "must not be empty"}
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	metadata := "{}"
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		metadata = string(b)
	}

	_, err := s.q.ExecContext(ctx, `INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Source, e.Content, e.Diff, e.File, metadata,
		toMillis(e.CreatedAt), boolInt(e.Processed))
	if isDuplicateError(err) {
		return &core.ValidationError{Field: "id", Reason: fmt.Sprintf("event %s already exists", e.ID)}
	}
	return wrapErr("record event", err)
}

func (s *Store) GetEvent(ctx context.Context, id string) (*core.Event, error) {
	e, err := scanEvent(s.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get event", err)
	}
	return e, nil
}

func (s *Store) ListUnprocessedEvents(ctx context.Context, limit int) ([]*core.Event, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE processed = 0 ORDER BY created_at, id LIMIT ?`,
		sqlLimit(limit))
	if err != nil {
		return nil, wrapErr("list events", err)
	}
	defer rows.Close()

	var events []*core.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, wrapErr("list events", err)
		}
		events = append(events, e)
	}
	return events, wrapErr("list events", rows.Err())
}

func (s *Store) MarkEventProcessed(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE events SET processed = 1 WHERE id = ?`, id)
	return wrapErr("mark event processed", err)
}
