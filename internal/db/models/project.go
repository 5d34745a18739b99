// Package models defines the database model types for the project services daemon.
// Each type corresponds to a database table and uses struct tags for sqlx row scanning.
// Models are pure data types. Registry rules live in internal/projects, query logic in repositories.
package models

import "time"

// Namespace kinds stored in project_namespaces.kind
const (
	NamespaceKindChannel = "channel"
	NamespaceKindCloak   = "cloak"
)

// Project is one row of the projects table
type Project struct {
	Name             string     `db:"name"`
	Position         int        `db:"position"` // export order
	OpenRegistration bool       `db:"open_registration"`
	RegInfo          string     `db:"reg_info"`   // empty = unset
	CreatedAt        *time.Time `db:"created_at"` // nil for projects migrated without creation metadata
	Creator          string     `db:"creator"`    // empty = unknown
	LastMark         int64      `db:"last_mark"`  // highest mark number ever issued
}

// ProjectMark is one staff mark; numbers are unique per project
type ProjectMark struct {
	ProjectName string    `db:"project_name"`
	Number      int64     `db:"number"`
	MarkedAt    time.Time `db:"marked_at"`
	SetterID    string    `db:"setter_id"`
	SetterName  string    `db:"setter_name"`
	Text        string    `db:"text"`
}

// ProjectContact links an account (by name) to a project
type ProjectContact struct {
	ProjectName string `db:"project_name"`
	AccountName string `db:"account_name"`
	Position    int    `db:"position"`
	Visible     bool   `db:"visible"`
	Secondary   bool   `db:"secondary"`
}

// ProjectNamespace is a channel or cloak namespace owned by a project
type ProjectNamespace struct {
	ProjectName string `db:"project_name"`
	Kind        string `db:"kind"`
	Namespace   string `db:"namespace"`
	Position    int    `db:"position"`
}

// ProjectSnapshot is the full content of the project tables, read or written in one transaction
type ProjectSnapshot struct {
	Projects []ProjectRowSet
}

// ProjectRowSet groups one project with its children in display order
type ProjectRowSet struct {
	Project    Project
	Marks      []ProjectMark
	Contacts   []ProjectContact
	Namespaces []ProjectNamespace
}
