package db

import (
	"context"
	"fmt"
	"strings"

	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/task"
)

// listChunk bounds the number of placeholders in one IN (...) clause.
const listChunk = 500

func (t *TxOps) insertWorkNote(taskID string, n task.WorkNote) error {
	_, err := t.Exec(`
		INSERT INTO task_work_notes (task_id, id, content, author, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		taskID, n.ID, n.Content, string(n.Author), formatTime(n.Timestamp))
	if err != nil {
		return fmt.Errorf("insert work note: %w", err)
	}
	return nil
}

// AppendWorkNote appends one note to a task's ledger and bumps the task's
// updated_at. The stored, normalized note is returned.
func (s *Store) AppendWorkNote(ctx context.Context, taskID string, n task.WorkNote) (task.WorkNote, error) {
	var out task.WorkNote
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		var err error
		out, err = tx.AppendWorkNote(taskID, n)
		return err
	})
	return out, err
}

// AppendWorkNote is the transactional form of Store.AppendWorkNote.
// Notes that normalize to empty content are rejected before anything is
// written.
func (t *TxOps) AppendWorkNote(taskID string, n task.WorkNote) (task.WorkNote, error) {
	n, err := task.PrepareAppend(n, t.now)
	if err != nil {
		return task.WorkNote{}, err
	}
	if err := t.touch(taskID); err != nil {
		return task.WorkNote{}, err
	}
	if err := t.insertWorkNote(taskID, n); err != nil {
		return task.WorkNote{}, err
	}
	return n, nil
}

func (t *TxOps) touch(taskID string) error {
	res, err := t.Exec(`UPDATE tasks SET updated_at = ? WHERE id = ?`, formatTime(t.now), taskID)
	if err != nil {
		return fmt.Errorf("touch task: %w", err)
	}
	return requireRow(res, boarderrors.ErrTaskNotFound(taskID))
}

// CountWorkNotes returns the number of notes in a task's ledger.
func (t *TxOps) CountWorkNotes(taskID string) (int, error) {
	var n int
	if err := t.QueryRow(`SELECT COUNT(*) FROM task_work_notes WHERE task_id = ?`, taskID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count work notes: %w", err)
	}
	return n, nil
}

// ListWorkNotes returns a task's ledger in append order.
func (s *Store) ListWorkNotes(ctx context.Context, taskID string) ([]task.WorkNote, error) {
	return listWorkNotes(s.conn(ctx), taskID)
}

// ListWorkNotes returns a task's ledger in append order.
func (t *TxOps) ListWorkNotes(taskID string) ([]task.WorkNote, error) {
	return listWorkNotes(t, taskID)
}

func listWorkNotes(q queryer, taskID string) ([]task.WorkNote, error) {
	byTask, err := listWorkNotesBatch(q, []string{taskID})
	if err != nil {
		return nil, err
	}
	if notes, ok := byTask[taskID]; ok {
		return notes, nil
	}
	return []task.WorkNote{}, nil
}

func listWorkNotesBatch(q queryer, taskIDs []string) (map[string][]task.WorkNote, error) {
	out := make(map[string][]task.WorkNote, len(taskIDs))
	for start := 0; start < len(taskIDs); start += listChunk {
		end := min(start+listChunk, len(taskIDs))
		chunk := taskIDs[start:end]

		ph := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := q.Query(`
			SELECT task_id, id, content, author, created_at
			FROM task_work_notes
			WHERE task_id IN (`+ph+`)
			ORDER BY task_id, seq`, args...)
		if err != nil {
			return nil, fmt.Errorf("list work notes: %w", err)
		}
		for rows.Next() {
			var (
				taskID, createdAt, author string
				n                         task.WorkNote
			)
			if err := rows.Scan(&taskID, &n.ID, &n.Content, &author, &createdAt); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan work note: %w", err)
			}
			n.Author = task.ParseAuthor(author)
			n.Timestamp = parseTime(createdAt)
			out[taskID] = append(out[taskID], n)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate work notes: %w", err)
		}
	}
	return out, nil
}

// ReplaceWorkNotes rewrites a task's entire ledger. It is the one
// non-additive ledger write: discarding existing history is logged at warn.
// Every replacement note is validated before anything is deleted.
func (s *Store) ReplaceWorkNotes(ctx context.Context, taskID string, notes []task.WorkNote) ([]task.WorkNote, error) {
	var out []task.WorkNote
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		prepared := make([]task.WorkNote, 0, len(notes))
		seen := make(map[string]bool, len(notes))
		for _, n := range notes {
			n, err := task.PrepareAppend(n, tx.now)
			if err != nil {
				return err
			}
			if seen[n.ID] {
				return fmt.Errorf("replace work notes: duplicate note id %q", n.ID)
			}
			seen[n.ID] = true
			prepared = append(prepared, n)
		}

		existing, err := tx.CountWorkNotes(taskID)
		if err != nil {
			return err
		}
		if err := tx.touch(taskID); err != nil {
			return err
		}
		if existing > 0 {
			s.logger.Warn("replacing work notes discards existing history",
				"task_id", taskID, "discarded", existing, "replacement", len(prepared))
		}

		if _, err := tx.Exec(`DELETE FROM task_work_notes WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("clear work notes: %w", err)
		}
		for _, n := range prepared {
			if err := tx.insertWorkNote(taskID, n); err != nil {
				return err
			}
		}
		out = prepared
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NoteImport reports the outcome of ImportWorkNotes.
type NoteImport struct {
	Task  *task.Task      `json:"task"`
	Added []task.WorkNote `json:"added"`
	// Skipped counts incoming notes already in the ledger.
	Skipped int `json:"skipped"`
	// Clean is false when raw held entries that could not be read as notes.
	Clean bool `json:"clean"`
}

// ImportWorkNotes appends a batch of loose ledger input to a task. raw may
// be a JSON array of notes or strings, a single note, or legacy plain text.
// Notes whose id is already in the ledger are skipped, so re-importing an
// exported ledger adds nothing. Unreadable entries are dropped and logged.
func (s *Store) ImportWorkNotes(ctx context.Context, taskID, raw string) (*NoteImport, error) {
	var out *NoteImport
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		tk, err := tx.GetTaskForUpdate(taskID)
		if err != nil {
			return err
		}
		if tk.WorkNotes, err = tx.ListWorkNotes(taskID); err != nil {
			return err
		}

		incoming, clean := task.NormalizeBatch(raw, tx.now)
		if !clean {
			s.logger.Warn("work note batch had unreadable entries",
				"task", tk.Number, "kept", len(incoming))
		}

		known := make(map[string]bool, len(tk.WorkNotes))
		for _, n := range tk.WorkNotes {
			known[n.ID] = true
		}
		res := &NoteImport{Task: tk, Added: []task.WorkNote{}, Clean: clean}
		for _, n := range task.Merge(tk.WorkNotes, incoming, tx.now) {
			if known[n.ID] {
				continue
			}
			n, err := task.Append(tk, n, tx.now)
			if err != nil {
				return err
			}
			if err := tx.insertWorkNote(taskID, n); err != nil {
				return err
			}
			res.Added = append(res.Added, n)
		}
		res.Skipped = len(incoming) - len(res.Added)
		if len(res.Added) > 0 {
			if err := tx.touch(taskID); err != nil {
				return err
			}
			tk.UpdatedAt = tx.now
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
