package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/hazyhaar/screengallery/dbopen"
)

// Load is one metadata load of the gallery.
type Load struct {
	ID          string `json:"load_id"`
	FileKey     string `json:"file_key"`
	StartedAt   int64  `json:"started_at"`
	FinishedAt  *int64 `json:"finished_at,omitempty"`
	Status      string `json:"status"`
	ScreenCount int    `json:"screen_count"`
	Error       string `json:"error,omitempty"`
}

// StartLoad records a load in progress.
func (s *Store) StartLoad(ctx context.Context, id, fileKey string) error {
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO load_history (load_id, file_key, started_at, status)
		VALUES (?, ?, ?, 'loading')`,
		id, fileKey, time.Now().UnixMilli())
	return err
}

// FinishLoad records the outcome of a load.
func (s *Store) FinishLoad(ctx context.Context, id, status string, screenCount int, errMsg string) error {
	_, err := dbopen.Exec(ctx, s.DB, `
		UPDATE load_history
		SET finished_at = ?, status = ?, screen_count = ?, error = ?
		WHERE load_id = ?`,
		time.Now().UnixMilli(), status, screenCount, errMsg, id)
	return err
}

// RecentLoads returns the latest loads, newest first.
func (s *Store) RecentLoads(ctx context.Context, limit int) ([]*Load, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT load_id, file_key, started_at, finished_at, status, screen_count, error
		FROM load_history ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loads []*Load
	for rows.Next() {
		l := &Load{}
		var finished sql.NullInt64
		if err := rows.Scan(&l.ID, &l.FileKey, &l.StartedAt, &finished,
			&l.Status, &l.ScreenCount, &l.Error); err != nil {
			return nil, err
		}
		if finished.Valid {
			l.FinishedAt = &finished.Int64
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}
