// Package persist moves the project registry to and from durable storage as typed rows.
// A project's own row always precedes the rows that reference it when exporting;
// importing tolerates any order.
package persist

import (
	"context"
	"time"
)

// RowType names a row kind. The values are the tags used by the flat-file format.
type RowType string

const (
	TypeProject   RowType = "FNGROUP"
	TypeRegInfo   RowType = "FNGRI"
	TypeMark      RowType = "FNGM"
	TypeContact   RowType = "FNGC"
	TypeChannelNS RowType = "FNCNS"
	TypeCloakNS   RowType = "FNHNS"
)

// Row is one durable record.
type Row interface {
	Type() RowType
	// Project returns the name of the project the row belongs to.
	Project() string
}

type ProjectRow struct {
	Name             string
	OpenRegistration bool
	CreatedAt        time.Time
	Creator          string
	// LastMark is the highest mark number ever issued for the project.
	LastMark uint
}

type RegInfoRow struct {
	ProjectName string
	Text        string
}

type MarkRow struct {
	ProjectName string
	Number      uint
	Time        time.Time
	SetterID    string
	SetterName  string
	Text        string
}

type ContactRow struct {
	ProjectName string
	Account     string
	Visible     bool
	Secondary   bool
}

type ChannelNSRow struct {
	ProjectName string
	Namespace   string
}

type CloakNSRow struct {
	ProjectName string
	Namespace   string
}

func (r ProjectRow) Type() RowType   { return TypeProject }
func (r ProjectRow) Project() string { return r.Name }

func (r RegInfoRow) Type() RowType   { return TypeRegInfo }
func (r RegInfoRow) Project() string { return r.ProjectName }

func (r MarkRow) Type() RowType   { return TypeMark }
func (r MarkRow) Project() string { return r.ProjectName }

func (r ContactRow) Type() RowType   { return TypeContact }
func (r ContactRow) Project() string { return r.ProjectName }

func (r ChannelNSRow) Type() RowType   { return TypeChannelNS }
func (r ChannelNSRow) Project() string { return r.ProjectName }

func (r CloakNSRow) Type() RowType   { return TypeCloakNS }
func (r CloakNSRow) Project() string { return r.ProjectName }

// Store is durable storage for rows. Save replaces everything previously saved.
type Store interface {
	Load(ctx context.Context) ([]Row, error)
	Save(ctx context.Context, rows []Row) error
}
