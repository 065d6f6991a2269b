package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"apitask/internal/task/model"
)

const taskColumns = `id, num, name, project_name, scope_kind, schedule, task_type,
	notify_sender, notify_credential, notify_recipients, status, created_at, updated_at`

// CreateTask inserts t with status Created and returns the stored copy.
// A zero Num is replaced by the next number within the project.
func (s *Store) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	now := time.Now()
	t.Status = model.StatusCreated
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Type == "" {
		t.Type = model.TypeCron
	}
	if t.Scope == nil {
		t.Scope = model.WholeProject{}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if t.Num <= 0 {
			n, err := nextNum(ctx, tx, t.ProjectName)
			if err != nil {
				return err
			}
			t.Num = n
		}
		sender, cred, rcpt := notifyColumns(t.Notification)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tasks(num, name, project_name, scope_kind, schedule, task_type,
				notify_sender, notify_credential, notify_recipients, status, created_at, updated_at)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
			t.Num, t.Name, t.ProjectName, string(t.Scope.Kind()), t.Schedule, t.Type,
			sender, cred, rcpt, t.Status.String(), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return model.ErrDuplicateName
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		t.ID = id
		return writeScope(ctx, tx, id, t)
	})
	if err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// UpdateTask rewrites every mutable column of t, including status.
func (s *Store) UpdateTask(ctx context.Context, t model.Task) (model.Task, error) {
	t.UpdatedAt = time.Now()
	if t.Scope == nil {
		t.Scope = model.WholeProject{}
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sender, cred, rcpt := notifyColumns(t.Notification)
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET num=?, name=?, project_name=?, scope_kind=?, schedule=?, task_type=?,
				notify_sender=?, notify_credential=?, notify_recipients=?, status=?, updated_at=?
			 WHERE id=?`,
			t.Num, t.Name, t.ProjectName, string(t.Scope.Kind()), t.Schedule, t.Type,
			sender, cred, rcpt, t.Status.String(), formatTime(t.UpdatedAt), t.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return model.ErrDuplicateName
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}
		return writeScope(ctx, tx, t.ID, t)
	})
	if err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// SetStatus updates only the status column.
func (s *Store) SetStatus(ctx context.Context, id int64, st model.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`,
		st.String(), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// GetTask returns model.ErrNotFound for unknown ids.
func (s *Store) GetTask(ctx context.Context, id int64) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	r, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, model.ErrNotFound
	}
	if err != nil {
		return model.Task{}, err
	}
	tasks, err := s.loadScopes(ctx, []taskRow{r})
	if err != nil {
		return model.Task{}, err
	}
	return tasks[0], nil
}

// NameTaken reports whether a task other than exceptID already uses name.
func (s *Store) NameTaken(ctx context.Context, name string, exceptID int64) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM tasks WHERE name = ? AND id != ? LIMIT 1`, name, exceptID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteTask removes the row and its scope. Unknown ids yield model.ErrNotFound.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM task_scope WHERE task_id = ?`, id)
		return err
	})
}

// ListTasks returns one page of a project's tasks ordered by id, plus the total match count.
// An empty ProjectName lists across all projects.
func (s *Store) ListTasks(ctx context.Context, q model.ListQuery) ([]model.Task, int, error) {
	q = q.Normalize()

	var (
		where []string
		args  []any
	)
	if q.ProjectName != "" {
		where = append(where, "project_name = ?")
		args = append(args, q.ProjectName)
	}
	if q.NameFilter != "" {
		where = append(where, `name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q.NameFilter)+"%")
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks`+cond+` ORDER BY id ASC LIMIT ? OFFSET ?`,
		append(args, q.PageSize, q.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	raw, err := scanTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	tasks, err := s.loadScopes(ctx, raw)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// ListScheduled returns every task whose status says a live job should exist.
func (s *Store) ListScheduled(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status IN (?, ?) ORDER BY id ASC`,
		model.StatusRunning.String(), model.StatusPaused.String())
	if err != nil {
		return nil, err
	}
	raw, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	return s.loadScopes(ctx, raw)
}

func nextNum(ctx context.Context, tx *sql.Tx, project string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(num), 0) + 1 FROM tasks WHERE project_name = ?`, project).Scan(&n)
	return n, err
}

const (
	listCases = "case"
	listSets  = "set"
)

func writeScope(ctx context.Context, tx *sql.Tx, id int64, t model.Task) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_scope WHERE task_id = ?`, id); err != nil {
		return err
	}
	var cases []int64
	if t.Scope.Kind() == model.ScopeCases {
		cases = t.Scope.IDs()
	}
	for _, l := range []struct {
		name string
		ids  []int64
	}{{listCases, cases}, {listSets, t.SelectedSets()}} {
		for pos, item := range l.ids {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO task_scope(task_id, list, pos, item_id) VALUES(?,?,?,?)`,
				id, l.name, pos, item); err != nil {
				return err
			}
		}
	}
	return nil
}

// taskRow is a scanned task whose scope ids are not loaded yet.
type taskRow struct {
	task      model.Task
	scopeKind model.ScopeKind
}

// loadScopes attaches case and set ids from task_scope in one query.
func (s *Store) loadScopes(ctx context.Context, raw []taskRow) ([]model.Task, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ph := make([]string, 0, len(raw))
	args := make([]any, 0, len(raw))
	for _, r := range raw {
		ph = append(ph, "?")
		args = append(args, r.task.ID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, list, item_id FROM task_scope WHERE task_id IN (`+strings.Join(ph, ",")+`) ORDER BY task_id, list, pos`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cases := make(map[int64][]int64, len(raw))
	sets := make(map[int64][]int64, len(raw))
	for rows.Next() {
		var (
			taskID, item int64
			list         string
		)
		if err := rows.Scan(&taskID, &list, &item); err != nil {
			return nil, err
		}
		switch list {
		case listCases:
			cases[taskID] = append(cases[taskID], item)
		case listSets:
			sets[taskID] = append(sets[taskID], item)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Task, len(raw))
	for i, r := range raw {
		id := r.task.ID
		out[i] = r.task
		out[i].SetIDs = sets[id]
		scopeIDs := cases[id]
		if r.scopeKind == model.ScopeSets {
			scopeIDs = sets[id]
		}
		out[i].Scope = model.ScopeFromKind(r.scopeKind, scopeIDs)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (taskRow, error) {
	var (
		t                    model.Task
		scopeKind, status    string
		sender, cred, rcpt   sql.NullString
		createdAt, updatedAt string
	)
	if err := r.Scan(&t.ID, &t.Num, &t.Name, &t.ProjectName, &scopeKind, &t.Schedule, &t.Type,
		&sender, &cred, &rcpt, &status, &createdAt, &updatedAt); err != nil {
		return taskRow{}, err
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return taskRow{}, fmt.Errorf("task %d: %w", t.ID, err)
	}
	t.Status = st
	if sender.Valid && sender.String != "" {
		n, err := model.NewNotification(sender.String, cred.String, rcpt.String)
		if err != nil {
			return taskRow{}, fmt.Errorf("task %d: %w", t.ID, err)
		}
		t.Notification = n
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return taskRow{task: t, scopeKind: model.ScopeKind(scopeKind)}, nil
}

func scanTasks(rows *sql.Rows) ([]taskRow, error) {
	defer rows.Close()
	var out []taskRow
	for rows.Next() {
		r, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func notifyColumns(n *model.Notification) (any, any, any) {
	if n == nil {
		return nil, nil, nil
	}
	return nullStr(n.Sender), nullStr(n.Credential), nullStr(n.RecipientList())
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
