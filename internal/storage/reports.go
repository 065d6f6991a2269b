package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SaveReport persists r and returns its new id.
func (s *Store) SaveReport(ctx context.Context, r Report) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reports(task_id, project_name, name, origin, run_id, total, passed, failed,
			duration_ms, content_type, body, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		nullInt(r.TaskID), r.ProjectName, r.Name, r.Origin, nullStr(r.RunID),
		r.Total, r.Passed, r.Failed, r.Duration.Milliseconds(),
		nullStr(r.ContentType), r.Body, formatTime(r.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetReport returns ErrReportNotFound for unknown ids.
func (s *Store) GetReport(ctx context.Context, id int64) (Report, error) {
	var (
		r         Report
		taskID    sql.NullInt64
		runID, ct sql.NullString
		durMS     int64
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, project_name, name, origin, run_id, total, passed, failed,
			duration_ms, content_type, body, created_at
		 FROM reports WHERE id = ?`, id,
	).Scan(&r.ID, &taskID, &r.ProjectName, &r.Name, &r.Origin, &runID, &r.Total, &r.Passed, &r.Failed,
		&durMS, &ct, &r.Body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrReportNotFound
	}
	if err != nil {
		return Report{}, err
	}
	r.TaskID = taskID.Int64
	r.RunID = runID.String
	r.ContentType = ct.String
	r.Duration = time.Duration(durMS) * time.Millisecond
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}

// LatestReports returns up to limit most recent reports of a task, newest first,
// without bodies.
func (s *Store) LatestReports(ctx context.Context, taskID int64, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_name, name, origin, total, passed, failed, duration_ms, created_at
		 FROM reports WHERE task_id = ? ORDER BY id DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Report
	for rows.Next() {
		var (
			r         Report
			durMS     int64
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.ProjectName, &r.Name, &r.Origin, &r.Total, &r.Passed, &r.Failed,
			&durMS, &createdAt); err != nil {
			return nil, err
		}
		r.TaskID = taskID
		r.Duration = time.Duration(durMS) * time.Millisecond
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
