package persist

import (
	"context"
	"log/slog"
	"time"

	"github.com/projectns/projectns/internal/db/models"
)

// SnapshotRepository is the part of repositories.ProjectRepository the SQL store needs.
type SnapshotRepository interface {
	LoadSnapshot(ctx context.Context) (*models.ProjectSnapshot, error)
	ReplaceSnapshot(ctx context.Context, snap *models.ProjectSnapshot) error
}

// SQLStore keeps rows in the Postgres project tables. Every Save replaces the tables
// inside one transaction.
type SQLStore struct {
	repo SnapshotRepository
}

// NewSQLStore creates a store backed by repo.
func NewSQLStore(repo SnapshotRepository) *SQLStore {
	return &SQLStore{repo: repo}
}

// Load reads the tables back as rows in export order.
func (s *SQLStore) Load(ctx context.Context) ([]Row, error) {
	snap, err := s.repo.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, set := range snap.Projects {
		p := set.Project
		pr := ProjectRow{Name: p.Name, OpenRegistration: p.OpenRegistration, Creator: p.Creator, LastMark: uint(p.LastMark)}
		if p.CreatedAt != nil {
			pr.CreatedAt = *p.CreatedAt
		}
		rows = append(rows, pr)
		if p.RegInfo != "" {
			rows = append(rows, RegInfoRow{ProjectName: p.Name, Text: p.RegInfo})
		}
		for _, m := range set.Marks {
			rows = append(rows, MarkRow{
				ProjectName: p.Name,
				Number:      uint(m.Number),
				Time:        m.MarkedAt,
				SetterID:    m.SetterID,
				SetterName:  m.SetterName,
				Text:        m.Text,
			})
		}
		for _, c := range set.Contacts {
			rows = append(rows, ContactRow{ProjectName: p.Name, Account: c.AccountName, Visible: c.Visible, Secondary: c.Secondary})
		}
		for _, n := range set.Namespaces {
			if n.Kind == models.NamespaceKindChannel {
				rows = append(rows, ChannelNSRow{ProjectName: p.Name, Namespace: n.Namespace})
			}
		}
		for _, n := range set.Namespaces {
			if n.Kind == models.NamespaceKindCloak {
				rows = append(rows, CloakNSRow{ProjectName: p.Name, Namespace: n.Namespace})
			}
		}
	}
	return rows, nil
}

// Save groups rows by project and replaces the tables. Rows whose project row is not
// part of the batch cannot satisfy the foreign keys and are dropped with a warning.
func (s *SQLStore) Save(ctx context.Context, rows []Row) error {
	snap := &models.ProjectSnapshot{}
	index := make(map[string]int)

	for _, row := range rows {
		if pr, ok := row.(ProjectRow); ok {
			if _, dup := index[pr.Name]; dup {
				slog.Warn("dropping duplicate project row", "project", pr.Name)
				continue
			}
			p := models.Project{
				Name:             pr.Name,
				Position:         len(snap.Projects),
				OpenRegistration: pr.OpenRegistration,
				Creator:          pr.Creator,
				LastMark:         int64(pr.LastMark),
			}
			if !pr.CreatedAt.IsZero() {
				created := pr.CreatedAt
				p.CreatedAt = &created
			}
			index[pr.Name] = len(snap.Projects)
			snap.Projects = append(snap.Projects, models.ProjectRowSet{Project: p})
		}
	}

	for _, row := range rows {
		if _, ok := row.(ProjectRow); ok {
			continue
		}
		i, ok := index[row.Project()]
		if !ok {
			slog.Warn("dropping row for unknown project", "type", row.Type(), "project", row.Project())
			continue
		}
		set := &snap.Projects[i]
		switch r := row.(type) {
		case RegInfoRow:
			set.Project.RegInfo = r.Text
		case MarkRow:
			set.Marks = append(set.Marks, models.ProjectMark{
				ProjectName: r.ProjectName,
				Number:      int64(r.Number),
				MarkedAt:    markTime(r.Time),
				SetterID:    r.SetterID,
				SetterName:  r.SetterName,
				Text:        r.Text,
			})
		case ContactRow:
			set.Contacts = append(set.Contacts, models.ProjectContact{
				ProjectName: r.ProjectName,
				AccountName: r.Account,
				Position:    len(set.Contacts),
				Visible:     r.Visible,
				Secondary:   r.Secondary,
			})
		case ChannelNSRow:
			set.Namespaces = append(set.Namespaces, models.ProjectNamespace{
				ProjectName: r.ProjectName,
				Kind:        models.NamespaceKindChannel,
				Namespace:   r.Namespace,
				Position:    countKind(set.Namespaces, models.NamespaceKindChannel),
			})
		case CloakNSRow:
			set.Namespaces = append(set.Namespaces, models.ProjectNamespace{
				ProjectName: r.ProjectName,
				Kind:        models.NamespaceKindCloak,
				Namespace:   r.Namespace,
				Position:    countKind(set.Namespaces, models.NamespaceKindCloak),
			})
		}
	}

	return s.repo.ReplaceSnapshot(ctx, snap)
}

func countKind(ns []models.ProjectNamespace, kind string) int {
	n := 0
	for _, x := range ns {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

// marked_at is NOT NULL; marks restored without a time are stored at the epoch.
func markTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}
