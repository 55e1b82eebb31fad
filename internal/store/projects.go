package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/massy-ia/citydesk/internal/apperr"
)

const researchSelect = `SELECT p.id, p.title, p.description, p.status, p.created_at, p.updated_at,
        p.user_id, p.results, p.tags, ` + publicUserColumns + `
    FROM research_projects p LEFT JOIN users u ON u.id = p.user_id`

func scanResearch(row scanner) (*ResearchProject, error) {
	var (
		project    ResearchProject
		owner      sql.NullString
		results    sql.NullString
		tags       sql.NullString
		researcher nullPublicUser
	)
	dest := append([]any{&project.ID, &project.Title, &project.Description, &project.Status,
		&project.CreatedAt, &project.UpdatedAt, &owner, &results, &tags}, researcher.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	project.OwnerID = stringPtr(owner)
	project.Researcher = researcher.user()
	if err := decodeJSON(results, &project.Results); err != nil {
		return nil, err
	}
	if err := decodeJSON(tags, &project.Tags); err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *SQLiteStore) CreateResearchProjects(ctx context.Context, projects ...*ResearchProject) error {
	return s.withTx(ctx, "failed to insert research projects", func(tx *sql.Tx) error {
		for _, project := range projects {
			now := s.now()
			project.ID = uuid.NewString()
			project.CreatedAt, project.UpdatedAt = now, now
			if project.Status == "" {
				project.Status = ResearchStatusDraft
			}
			results, err := encodeJSON(project.Results)
			if err != nil {
				return err
			}
			tags, err := encodeJSON(project.Tags)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO research_projects (id, title, description, status,
                created_at, updated_at, user_id, results, tags) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				project.ID, project.Title, project.Description, project.Status, project.CreatedAt,
				project.UpdatedAt, nullString(project.OwnerID), results, tags); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListResearchProjects returns projects newest first. An empty ownerID lists every
// project; limit <= 0 disables the limit.
func (s *SQLiteStore) ListResearchProjects(ctx context.Context, ownerID string, limit int) ([]ResearchProject, error) {
	query := researchSelect
	var args []any
	if ownerID != "" {
		query += " WHERE p.user_id = ?"
		args = append(args, ownerID)
	}
	query += " ORDER BY p.updated_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("failed to query research projects", err)
	}
	defer rows.Close()

	projects := []ResearchProject{}
	for rows.Next() {
		project, err := scanResearch(rows)
		if err != nil {
			return nil, mapError("failed to scan research project row", err)
		}
		projects = append(projects, *project)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to iterate research projects", err)
	}
	return projects, nil
}

// GetResearchProject only returns a project owned by ownerID.
func (s *SQLiteStore) GetResearchProject(ctx context.Context, id, ownerID string) (*ResearchProject, error) {
	project, err := scanResearch(s.db.QueryRowContext(ctx, researchSelect+" WHERE p.id = ? AND p.user_id = ?", id, ownerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("project not found")
		}
		return nil, mapError("failed to query research project", err)
	}
	return project, nil
}

func (s *SQLiteStore) CountResearchProjects(ctx context.Context, status string) (int, error) {
	return countRows(ctx, s.db, "research_projects", status)
}

func scanUrbanism(row scanner) (*UrbanismProject, error) {
	var (
		project UrbanismProject
		owner   sql.NullString
	)
	if err := row.Scan(&project.ID, &project.Title, &project.Description, &project.Status, &project.Content,
		&project.Analysis, &owner, &project.CreatedAt, &project.UpdatedAt); err != nil {
		return nil, err
	}
	project.OwnerID = stringPtr(owner)
	return &project, nil
}

func insertUrbanism(ctx context.Context, tx *sql.Tx, project *UrbanismProject) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO urbanism_projects (id, title, description, status, content,
        analysis, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.Title, project.Description, project.Status, project.Content, project.Analysis,
		nullString(project.OwnerID), project.CreatedAt, project.UpdatedAt)
	return err
}

func (s *SQLiteStore) prepareUrbanism(project *UrbanismProject) {
	project.ID = uuid.NewString()
	if project.Status == "" {
		project.Status = UrbanismStatusOpen
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = s.now()
	}
	if project.UpdatedAt.IsZero() {
		project.UpdatedAt = project.CreatedAt
	}
}

func (s *SQLiteStore) CreateUrbanismProject(ctx context.Context, project *UrbanismProject) error {
	s.prepareUrbanism(project)
	return s.withTx(ctx, "failed to insert urbanism project", func(tx *sql.Tx) error {
		return insertUrbanism(ctx, tx, project)
	})
}

// AddUrbanismProjectsByTitle inserts the projects whose exact title is not
// already stored and returns how many were inserted.
func (s *SQLiteStore) AddUrbanismProjectsByTitle(ctx context.Context, projects []*UrbanismProject) (int, error) {
	inserted := 0
	err := s.withTx(ctx, "failed to insert urbanism projects", func(tx *sql.Tx) error {
		for _, project := range projects {
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM urbanism_projects WHERE title = ?",
				project.Title).Scan(&exists); err != nil {
				return err
			}
			if exists > 0 {
				continue
			}
			s.prepareUrbanism(project)
			if err := insertUrbanism(ctx, tx, project); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *SQLiteStore) ListUrbanismProjects(ctx context.Context, limit int) ([]UrbanismProject, error) {
	query := `SELECT id, title, description, status, content, analysis, user_id, created_at, updated_at
        FROM urbanism_projects ORDER BY updated_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("failed to query urbanism projects", err)
	}
	defer rows.Close()

	projects := []UrbanismProject{}
	for rows.Next() {
		project, err := scanUrbanism(rows)
		if err != nil {
			return nil, mapError("failed to scan urbanism project row", err)
		}
		projects = append(projects, *project)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to iterate urbanism projects", err)
	}
	return projects, nil
}

func (s *SQLiteStore) CountUrbanismProjects(ctx context.Context, status string) (int, error) {
	return countRows(ctx, s.db, "urbanism_projects", status)
}
