// project_repository.go implements ProjectRepository, reading and replacing the complete
// contents of the project tables. The registry is saved as a whole, so every write is one
// transaction that clears the tables and inserts the current state.
package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/projectns/projectns/internal/db/models"
)

// ProjectRepository handles database operations for projects and their children
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// LoadSnapshot reads every project with its marks, contacts and namespaces.
// Children whose project row is missing are dropped by the foreign keys, so every
// child returned here belongs to a project in the result.
func (r *ProjectRepository) LoadSnapshot(ctx context.Context) (*models.ProjectSnapshot, error) {
	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects,
		`SELECT name, position, open_registration, reg_info, created_at, creator, last_mark
		 FROM projects ORDER BY position, name`); err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}

	var marks []models.ProjectMark
	if err := r.db.SelectContext(ctx, &marks,
		`SELECT project_name, number, marked_at, setter_id, setter_name, text
		 FROM project_marks ORDER BY project_name, number`); err != nil {
		return nil, fmt.Errorf("failed to load project marks: %w", err)
	}

	var contacts []models.ProjectContact
	if err := r.db.SelectContext(ctx, &contacts,
		`SELECT project_name, account_name, position, visible, secondary
		 FROM project_contacts ORDER BY project_name, position`); err != nil {
		return nil, fmt.Errorf("failed to load project contacts: %w", err)
	}

	var namespaces []models.ProjectNamespace
	if err := r.db.SelectContext(ctx, &namespaces,
		`SELECT project_name, kind, namespace, position
		 FROM project_namespaces ORDER BY project_name, kind, position`); err != nil {
		return nil, fmt.Errorf("failed to load project namespaces: %w", err)
	}

	snap := &models.ProjectSnapshot{Projects: make([]models.ProjectRowSet, len(projects))}
	index := make(map[string]int, len(projects))
	for i, p := range projects {
		snap.Projects[i].Project = p
		index[p.Name] = i
	}
	for _, m := range marks {
		if i, ok := index[m.ProjectName]; ok {
			snap.Projects[i].Marks = append(snap.Projects[i].Marks, m)
		}
	}
	for _, c := range contacts {
		if i, ok := index[c.ProjectName]; ok {
			snap.Projects[i].Contacts = append(snap.Projects[i].Contacts, c)
		}
	}
	for _, n := range namespaces {
		if i, ok := index[n.ProjectName]; ok {
			snap.Projects[i].Namespaces = append(snap.Projects[i].Namespaces, n)
		}
	}
	return snap, nil
}

// ReplaceSnapshot replaces the contents of every project table with snap
func (r *ProjectRepository) ReplaceSnapshot(ctx context.Context, snap *models.ProjectSnapshot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	for _, table := range []string{"project_namespaces", "project_contacts", "project_marks", "projects"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i := range snap.Projects {
		set := &snap.Projects[i]
		p := set.Project
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO projects (name, position, open_registration, reg_info, created_at, creator, last_mark)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.Name, p.Position, p.OpenRegistration, p.RegInfo, p.CreatedAt, p.Creator, p.LastMark,
		); err != nil {
			return fmt.Errorf("failed to insert project %s: %w", p.Name, err)
		}
		for _, m := range set.Marks {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO project_marks (project_name, number, marked_at, setter_id, setter_name, text)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				m.ProjectName, m.Number, m.MarkedAt, m.SetterID, m.SetterName, m.Text,
			); err != nil {
				return fmt.Errorf("failed to insert mark %d for %s: %w", m.Number, p.Name, err)
			}
		}
		for _, c := range set.Contacts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO project_contacts (project_name, account_name, position, visible, secondary)
				 VALUES ($1, $2, $3, $4, $5)`,
				c.ProjectName, c.AccountName, c.Position, c.Visible, c.Secondary,
			); err != nil {
				return fmt.Errorf("failed to insert contact %s for %s: %w", c.AccountName, p.Name, err)
			}
		}
		for _, n := range set.Namespaces {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO project_namespaces (project_name, kind, namespace, position)
				 VALUES ($1, $2, $3, $4)`,
				n.ProjectName, n.Kind, n.Namespace, n.Position,
			); err != nil {
				return fmt.Errorf("failed to insert %s namespace %s for %s: %w", n.Kind, n.Namespace, p.Name, err)
			}
		}
	}

	return tx.Commit()
}
