package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
	"github.com/randalmurphal/taskboard/internal/task"
)

const projectColumns = `id, name, external_repo_url, local_path, last_sync_at, created_at`

func scanProject(sc rowScanner) (*task.Project, error) {
	var (
		p         task.Project
		lastSync  sql.NullString
		createdAt string
	)
	if err := sc.Scan(&p.ID, &p.Name, &p.ExternalRepoURL, &p.LocalPath, &lastSync, &createdAt); err != nil {
		return nil, err
	}
	p.LastSyncAt = parseNullTime(lastSync)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func getProject(q queryer, id string) (*task.Project, error) {
	p, err := scanProject(q.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, boarderrors.ErrProjectNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

// CreateProject inserts a project, assigning its id and created_at.
// Project names are unique.
func (s *Store) CreateProject(ctx context.Context, p *task.Project) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return boarderrors.ErrValidation("name", "project name must not be empty")
	}
	if existing, err := s.GetProjectByName(ctx, p.Name); err == nil {
		return boarderrors.ErrValidation("name", fmt.Sprintf("project %q already exists (%s)", p.Name, existing.ID))
	} else if !boarderrors.HasCode(err, boarderrors.CodeProjectNotFound) {
		return err
	}

	if p.ID == "" {
		p.ID = task.NewID()
	}
	p.CreatedAt = s.Now()

	_, err := s.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.ExternalRepoURL, p.LocalPath, nil, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject loads a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*task.Project, error) {
	return getProject(s.conn(ctx), id)
}

// GetProjectByName loads a project by its unique name.
func (s *Store) GetProjectByName(ctx context.Context, name string) (*task.Project, error) {
	p, err := scanProject(s.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, boarderrors.ErrProjectNotFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", name, err)
	}
	return p, nil
}

// ResolveProject accepts a project id or name.
func (s *Store) ResolveProject(ctx context.Context, ref string) (*task.Project, error) {
	p, err := s.GetProject(ctx, ref)
	if err == nil || !boarderrors.HasCode(err, boarderrors.CodeProjectNotFound) {
		return p, err
	}
	return s.GetProjectByName(ctx, ref)
}

// ListProjects returns every project ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]*task.Project, error) {
	rows, err := s.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*task.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

// DeleteProject removes a project. Its tasks move to the inbox.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.RunInTx(ctx, func(tx *TxOps) error {
		if _, err := tx.Exec(`UPDATE tasks SET project_id = NULL, updated_at = ? WHERE project_id = ?`,
			formatTime(tx.now), id); err != nil {
			return fmt.Errorf("detach project tasks: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return requireRow(res, boarderrors.ErrProjectNotFound(id))
	})
}

// UpdateProjectSyncTime records a completed reconciliation pass.
func (s *Store) UpdateProjectSyncTime(ctx context.Context, id string, at time.Time) error {
	res, err := s.ExecContext(ctx, `UPDATE projects SET last_sync_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("update project sync time: %w", err)
	}
	return requireRow(res, boarderrors.ErrProjectNotFound(id))
}
