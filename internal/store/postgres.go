package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"retroboard/internal/retro"
)

// PostgresStore persists whole session documents as JSONB rows plus the
// team-wide action backlog.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetDocument(ctx context.Context, teamID, sessionID string) (retro.Document, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM sessions WHERE team_id=$1 AND id=$2
	`, teamID, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return retro.Document{}, false, nil
	}
	if err != nil {
		return retro.Document{}, false, fmt.Errorf("get session: %w", err)
	}
	var doc retro.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return retro.Document{}, false, fmt.Errorf("decode session: %w", err)
	}
	return doc, true, nil
}

func (s *PostgresStore) SaveDocument(ctx context.Context, teamID, sessionID string, doc retro.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, team_id, status, doc, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, doc=EXCLUDED.doc, updated_at=NOW()
	`, sessionID, teamID, doc.Status, raw)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGlobalActions(ctx context.Context, teamID string) ([]retro.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM actions WHERE team_id=$1 ORDER BY created_at ASC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	items := make([]retro.Action, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		var action retro.Action
		if err := json.Unmarshal(raw, &action); err != nil {
			return nil, fmt.Errorf("decode action: %w", err)
		}
		items = append(items, action)
	}
	return items, rows.Err()
}

func (s *PostgresStore) AppendOrUpdateGlobalAction(ctx context.Context, teamID string, action retro.Action) error {
	raw, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO actions (id, team_id, done, doc, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET done=EXCLUDED.done, doc=EXCLUDED.doc
	`, action.ID, teamID, action.Done, raw, action.CreatedAt)
	if err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteGlobalAction(ctx context.Context, teamID, actionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM actions WHERE team_id=$1 AND id=$2`, teamID, actionID)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
