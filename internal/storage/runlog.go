package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"etlpipe/internal/domain"
)

// runsTable holds one row per pipeline run when history is enabled.
const runsTable = bookkeepingPrefix + "runs"

// RunLogStore implements persistence for pipeline run logs.
type RunLogStore struct {
	db *DB
}

// NewRunLogStore creates a new RunLogStore. The store must have been opened
// with history enabled.
func NewRunLogStore(db *DB) *RunLogStore {
	return &RunLogStore{db: db}
}

func (s *RunLogStore) CreateRunLog(ctx context.Context, l *domain.RunLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	d := s.db.dialect
	_, err := s.db.conn.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, started_at, finished_at, status, sources, tables_loaded, rows_read, rows_written, error)
		 VALUES (%s)`, d.quote(runsTable), d.placeholders(9)),
		l.ID, l.StartedAt.UTC(), l.FinishedAt.UTC(), string(l.Status), l.Sources, l.Tables, l.RowsRead, l.RowsWritten, l.Error,
	)
	return err
}

// ListRunLogs returns the most recent runs first.
func (s *RunLogStore) ListRunLogs(ctx context.Context, limit int) ([]domain.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	d := s.db.dialect
	rows, err := s.db.conn.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, started_at, finished_at, status, sources, tables_loaded, rows_read, rows_written, error
		 FROM %s ORDER BY started_at DESC LIMIT %d`, d.quote(runsTable), limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.RunLog
	for rows.Next() {
		var l domain.RunLog
		var status string
		var errMsg *string
		if err := rows.Scan(&l.ID, &l.StartedAt, &l.FinishedAt, &status, &l.Sources, &l.Tables, &l.RowsRead, &l.RowsWritten, &errMsg); err != nil {
			return nil, err
		}
		l.Status = domain.RunStatus(status)
		if errMsg != nil {
			l.Error = *errMsg
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
