package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/randalmurphal/taskboard/internal/db/driver"
	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/task"
)

const taskColumns = `id, task_number, project_id, status, text, notes, tags, priority, sort_order,
	blocked_by, external_issue_id, external_issue_repo, created_at, updated_at`

// TaskFilter narrows ListTasks. The zero value lists every task.
type TaskFilter struct {
	// ProjectID limits results to one project. Ignored when InboxOnly is set.
	ProjectID string
	// InboxOnly limits results to tasks without a project.
	InboxOnly bool
	Statuses  []task.Status
	// SkipNotes leaves WorkNotes unloaded for listings that do not need them.
	SkipNotes bool
}

// TaskUpdate is a partial update. Nil fields are left untouched; the
// statement only names the columns that are set.
type TaskUpdate struct {
	Text      *string
	Notes     *string
	Tags      *[]string
	Priority  *task.Priority
	SortOrder *int
	BlockedBy *[]int
	// ProjectID moves the task; an empty string moves it to the inbox.
	ProjectID *string
}

// IsEmpty reports whether the update changes nothing.
func (u TaskUpdate) IsEmpty() bool {
	return u.Text == nil && u.Notes == nil && u.Tags == nil && u.Priority == nil &&
		u.SortOrder == nil && u.BlockedBy == nil && u.ProjectID == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(sc rowScanner) (*task.Task, error) {
	var (
		t                    task.Task
		projectID, extRepo   sql.NullString
		extID                sql.NullInt64
		status, priority     string
		tags, blockedBy      string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&t.ID, &t.Number, &projectID, &status, &t.Text, &t.Notes, &tags, &priority,
		&t.SortOrder, &blockedBy, &extID, &extRepo, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	t.ProjectID = projectID.String
	t.ExternalIssueID = int(extID.Int64)
	t.ExternalIssueRepo = extRepo.String
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)

	if err := decodeJSONList(tags, &t.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for task #%d: %w", t.Number, err)
	}
	// A blocked_by column that cannot be read is an error, not an empty list:
	// guessing would silently drop dependencies.
	if err := decodeJSONList(blockedBy, &t.BlockedBy); err != nil {
		return nil, fmt.Errorf("decode blocked_by for task #%d: %w", t.Number, err)
	}
	if t.BlockedBy == nil {
		t.BlockedBy = []int{}
	}
	t.WorkNotes = []task.WorkNote{}
	return &t, nil
}

func decodeJSONList[T any](raw string, dst *[]T) error {
	if strings.TrimSpace(raw) == "" || raw == "null" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func encodeJSONList[T any](v []T) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func scanTasks(rows *sql.Rows) ([]*task.Task, error) {
	defer func() { _ = rows.Close() }()
	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// CreateTask inserts t, assigning its id, task_number, sort_order, and
// timestamps. The number and sort order are allocated inside the same
// transaction as the insert. Any WorkNotes on t are appended to its ledger.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		return tx.CreateTask(t)
	})
}

// CreateTask is the transactional form of Store.CreateTask.
func (t *TxOps) CreateTask(tk *task.Task) error {
	if err := task.ValidateText(tk.Text); err != nil {
		return err
	}
	tk.Text = strings.TrimSpace(tk.Text)
	if tk.Status == "" {
		tk.Status = task.IntakeStatus
	}
	tk.Tags = task.NormalizeTags(tk.Tags)
	tk.BlockedBy = task.NormalizeBlockedBy(tk.BlockedBy)
	if err := task.ValidateBlockedBy(0, tk.BlockedBy); err != nil {
		return err
	}
	if tk.ProjectID != "" {
		if _, err := getProject(t, tk.ProjectID); err != nil {
			return err
		}
	}

	number, err := t.nextTaskNumber()
	if err != nil {
		return err
	}
	if err := task.ValidateBlockedBy(number, tk.BlockedBy); err != nil {
		return err
	}

	var sortOrder int
	if err := t.QueryRow(`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM tasks WHERE status = ?`,
		string(tk.Status)).Scan(&sortOrder); err != nil {
		return fmt.Errorf("allocate sort order: %w", err)
	}

	if tk.ID == "" {
		tk.ID = task.NewID()
	}
	tk.Number = number
	tk.SortOrder = sortOrder
	tk.CreatedAt = t.now
	tk.UpdatedAt = t.now

	_, err = t.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tk.ID, tk.Number, nullString(tk.ProjectID), string(tk.Status), tk.Text, tk.Notes,
		encodeJSONList(tk.Tags), string(tk.Priority), tk.SortOrder, encodeJSONList(tk.BlockedBy),
		nullInt(tk.ExternalIssueID), nullString(tk.ExternalIssueRepo),
		formatTime(tk.CreatedAt), formatTime(tk.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	pending := tk.WorkNotes
	tk.WorkNotes = []task.WorkNote{}
	for _, n := range pending {
		n, err := task.PrepareAppend(n, t.now)
		if err != nil {
			return err
		}
		if err := t.insertWorkNote(tk.ID, n); err != nil {
			return err
		}
		tk.WorkNotes = append(tk.WorkNotes, n)
	}
	return nil
}

// nextTaskNumber bumps the task_number counter. The counter row lock
// serializes concurrent creators, and the value only ever grows.
func (t *TxOps) nextTaskNumber() (int, error) {
	var n int
	err := t.QueryRow(`UPDATE counters SET value = value + 1 WHERE name = 'task_number' RETURNING value`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("allocate task number: %w", err)
	}
	return n, nil
}

// GetTask loads a task and its ledger by id.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return getTaskWhere(s.conn(ctx), "id = ?", id, id)
}

// GetTaskByNumber loads a task and its ledger by task number.
func (s *Store) GetTaskByNumber(ctx context.Context, number int) (*task.Task, error) {
	return getTaskWhere(s.conn(ctx), "task_number = ?", fmt.Sprintf("#%d", number), number)
}

// ResolveTask accepts "#12", "12", or a task id.
func (s *Store) ResolveTask(ctx context.Context, ref string) (*task.Task, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(strings.TrimPrefix(ref, "#")); err == nil {
		return s.GetTaskByNumber(ctx, n)
	}
	return s.GetTask(ctx, ref)
}

// GetTask loads a task and its ledger inside the transaction.
func (t *TxOps) GetTask(id string) (*task.Task, error) {
	return getTaskWhere(t, "id = ?", id, id)
}

// GetTaskForUpdate loads a task without its ledger and, on PostgreSQL,
// locks the row until the transaction ends. SQLite transactions already
// hold the write lock from BEGIN.
func (t *TxOps) GetTaskForUpdate(id string) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	if t.dialect == driver.DialectPostgres {
		query += ` FOR UPDATE`
	}
	tk, err := scanTask(t.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, boarderrors.ErrTaskNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return tk, nil
}

func getTaskWhere(q queryer, where, ref string, arg any) (*task.Task, error) {
	tk, err := scanTask(q.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, boarderrors.ErrTaskNotFound(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", ref, err)
	}
	notes, err := listWorkNotes(q, tk.ID)
	if err != nil {
		return nil, err
	}
	tk.WorkNotes = notes
	return tk, nil
}

// ListTasks returns tasks matching the filter ordered by task number.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]*task.Task, error) {
	return listTasks(s.conn(ctx), f)
}

func listTasks(q queryer, f TaskFilter) ([]*task.Task, error) {
	var (
		where []string
		args  []any
	)
	switch {
	case f.InboxOnly:
		where = append(where, "project_id IS NULL")
	case f.ProjectID != "":
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			ph[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(ph, ", ")+")")
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY task_number`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if f.SkipNotes || len(tasks) == 0 {
		return tasks, nil
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	notes, err := listWorkNotesBatch(q, ids)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if n, ok := notes[t.ID]; ok {
			t.WorkNotes = n
		}
	}
	return tasks, nil
}

// TasksBlockedBy returns the tasks whose blocked_by list contains number.
// Membership is decided on the decoded integer list, never by text search.
func (s *Store) TasksBlockedBy(ctx context.Context, number int) ([]*task.Task, error) {
	rows, err := s.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE blocked_by <> '[]' ORDER BY task_number`)
	if err != nil {
		return nil, fmt.Errorf("list blocked tasks: %w", err)
	}
	candidates, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	var out []*task.Task
	for _, t := range candidates {
		for _, n := range t.BlockedBy {
			if n == number {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

// UpdateTask applies a partial update and returns the updated task.
func (s *Store) UpdateTask(ctx context.Context, id string, u TaskUpdate) (*task.Task, error) {
	var updated *task.Task
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		if err := tx.UpdateTask(id, u); err != nil {
			return err
		}
		var err error
		updated, err = tx.GetTask(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateTask writes only the fields set in u, plus updated_at.
func (t *TxOps) UpdateTask(id string, u TaskUpdate) error {
	var (
		sets []string
		args []any
	)
	if u.Text != nil {
		if err := task.ValidateText(*u.Text); err != nil {
			return err
		}
		sets = append(sets, "text = ?")
		args = append(args, strings.TrimSpace(*u.Text))
	}
	if u.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *u.Notes)
	}
	if u.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, encodeJSONList(task.NormalizeTags(*u.Tags)))
	}
	if u.Priority != nil {
		if _, err := task.ParsePriority(string(*u.Priority)); err != nil {
			return err
		}
		sets = append(sets, "priority = ?")
		args = append(args, string(*u.Priority))
	}
	if u.SortOrder != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *u.SortOrder)
	}
	if u.BlockedBy != nil {
		var number int
		err := t.QueryRow(`SELECT task_number FROM tasks WHERE id = ?`, id).Scan(&number)
		if errors.Is(err, sql.ErrNoRows) {
			return boarderrors.ErrTaskNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("get task number: %w", err)
		}
		blockedBy := task.NormalizeBlockedBy(*u.BlockedBy)
		if err := task.ValidateBlockedBy(number, blockedBy); err != nil {
			return err
		}
		sets = append(sets, "blocked_by = ?")
		args = append(args, encodeJSONList(blockedBy))
	}
	if u.ProjectID != nil {
		if *u.ProjectID != "" {
			if _, err := getProject(t, *u.ProjectID); err != nil {
				return err
			}
		}
		sets = append(sets, "project_id = ?")
		args = append(args, nullString(*u.ProjectID))
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(t.now), id)

	res, err := t.Exec(`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRow(res, boarderrors.ErrTaskNotFound(id))
}

// SetStatus writes status and updated_at.
func (t *TxOps) SetStatus(id string, status task.Status) error {
	res, err := t.Exec(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(t.now), id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return requireRow(res, boarderrors.ErrTaskNotFound(id))
}

// CompareAndSetStatus moves a task from one status to another only if it is
// still in from. It reports whether this caller won.
func (t *TxOps) CompareAndSetStatus(id string, from, to task.Status) (bool, error) {
	res, err := t.Exec(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), formatTime(t.now), id, string(from))
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	return n == 1, nil
}

// SetBlockedBy replaces the blocker list and bumps updated_at.
func (t *TxOps) SetBlockedBy(id string, blockedBy []int) error {
	res, err := t.Exec(`UPDATE tasks SET blocked_by = ?, updated_at = ? WHERE id = ?`,
		encodeJSONList(blockedBy), formatTime(t.now), id)
	if err != nil {
		return fmt.Errorf("set blocked_by: %w", err)
	}
	return requireRow(res, boarderrors.ErrTaskNotFound(id))
}

// SetExternalIssueRepoIfUnset records the repo only when none is stored
// yet. It reports whether the column was written.
func (t *TxOps) SetExternalIssueRepoIfUnset(id, repo string) (bool, error) {
	if repo == "" {
		return false, nil
	}
	res, err := t.Exec(`UPDATE tasks SET external_issue_repo = ?, updated_at = ?
		WHERE id = ? AND (external_issue_repo IS NULL OR external_issue_repo = '')`,
		repo, formatTime(t.now), id)
	if err != nil {
		return false, fmt.Errorf("set external issue repo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set external issue repo: %w", err)
	}
	return n == 1, nil
}

// DeleteTask removes a task and its ledger. Callers that need dependency
// cleanup go through the lifecycle package.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		return tx.DeleteTask(id)
	})
}

// DeleteTask is the transactional form of Store.DeleteTask.
func (t *TxOps) DeleteTask(id string) error {
	if _, err := t.Exec(`DELETE FROM task_work_notes WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete work notes: %w", err)
	}
	res, err := t.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireRow(res, boarderrors.ErrTaskNotFound(id))
}

// FindTaskByExternalIssue returns the task materialized from an external
// issue in a project, without its ledger, or nil. Rows with no recorded repo still match, for
// tasks imported before the repo was tracked; an exact repo match wins.
func (s *Store) FindTaskByExternalIssue(ctx context.Context, projectID string, issueID int, repo string) (*task.Task, error) {
	row := s.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE project_id = ? AND external_issue_id = ?
		  AND (external_issue_repo = ? OR external_issue_repo IS NULL OR external_issue_repo = '')
		ORDER BY CASE WHEN external_issue_repo = ? THEN 0 ELSE 1 END, task_number
		LIMIT 1`,
		projectID, issueID, repo, repo)
	tk, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find task by external issue %d: %w", issueID, err)
	}
	return tk, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
