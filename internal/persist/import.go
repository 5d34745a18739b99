package persist

import (
	"fmt"
	"log/slog"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/namespace"
	"github.com/projectns/projectns/internal/projects"
)

// AccountResolver resolves stored account names to live account references.
type AccountResolver interface {
	FindByName(name string) (accounts.Ref, bool)
}

// ImportReport summarises an Import.
type ImportReport struct {
	Projects int
	Rows     int
	Deferred int
	Skipped  int
	Problems []string
}

type importer struct {
	reg      *projects.Registry
	dir      AccountResolver
	opts     projects.Options
	drafts   map[string]*projects.Draft
	order    []string
	pending  map[string][]Row
	channels map[string]string
	cloaks   map[string]string
	contacts map[string]map[string]bool
	marks    map[string]map[uint]bool
	report   ImportReport
}

// Import loads rows into reg. Rows referencing a project whose row has not been read yet
// are held back and attached once that row appears. Rows that still reference an unknown
// project at the end, or that reference unknown accounts or namespaces that are already
// claimed, are logged and skipped. Every surviving project is inserted in one
// all-or-nothing Registry.Restore.
func Import(reg *projects.Registry, dir AccountResolver, rows []Row) (ImportReport, error) {
	im := &importer{
		reg:      reg,
		dir:      dir,
		opts:     reg.Options(),
		drafts:   make(map[string]*projects.Draft),
		pending:  make(map[string][]Row),
		channels: make(map[string]string),
		cloaks:   make(map[string]string),
		contacts: make(map[string]map[string]bool),
		marks:    make(map[string]map[uint]bool),
	}

	for _, row := range rows {
		im.report.Rows++
		im.apply(row)
	}

	for name, held := range im.pending {
		for _, row := range held {
			im.skip(row, fmt.Sprintf("project %s does not exist", name))
		}
	}

	out := make([]projects.Draft, 0, len(im.order))
	for _, key := range im.order {
		out = append(out, *im.drafts[key])
	}
	if err := reg.Restore(out); err != nil {
		return im.report, fmt.Errorf("failed to restore imported projects: %w", err)
	}
	im.report.Projects = len(out)
	return im.report, nil
}

func projectKey(name string) string {
	return namespace.PolicyASCII.Fold(name)
}

func (im *importer) apply(row Row) {
	if pr, ok := row.(ProjectRow); ok {
		im.addProject(pr)
		return
	}

	key := projectKey(row.Project())
	d, ok := im.drafts[key]
	if !ok {
		im.pending[key] = append(im.pending[key], row)
		im.report.Deferred++
		return
	}
	im.attach(d, row)
}

func (im *importer) addProject(pr ProjectRow) {
	key := projectKey(pr.Name)
	if _, exists := im.drafts[key]; exists {
		im.skip(pr, "duplicate project row")
		return
	}
	if _, exists := im.reg.Find(pr.Name); exists {
		im.skip(pr, "project already registered")
		return
	}

	d := &projects.Draft{
		Name:             pr.Name,
		OpenRegistration: pr.OpenRegistration,
		CreatedAt:        pr.CreatedAt,
		Creator:          pr.Creator,
		LastMark:         pr.LastMark,
	}
	im.drafts[key] = d
	im.order = append(im.order, key)
	im.contacts[key] = make(map[string]bool)
	im.marks[key] = make(map[uint]bool)

	held := im.pending[key]
	delete(im.pending, key)
	for _, row := range held {
		im.attach(d, row)
	}
}

func (im *importer) attach(d *projects.Draft, row Row) {
	key := projectKey(d.Name)

	switch r := row.(type) {
	case RegInfoRow:
		d.RegInfo = r.Text

	case MarkRow:
		if im.marks[key][r.Number] {
			im.skip(r, fmt.Sprintf("duplicate mark number %d", r.Number))
			return
		}
		im.marks[key][r.Number] = true
		d.Marks = append(d.Marks, projects.Mark{
			Number:     r.Number,
			Time:       r.Time,
			Text:       r.Text,
			SetterID:   r.SetterID,
			SetterName: r.SetterName,
		})

	case ContactRow:
		ref, ok := im.dir.FindByName(r.Account)
		if !ok {
			im.skip(r, fmt.Sprintf("account %s is not registered", r.Account))
			return
		}
		if im.contacts[key][ref.ID] {
			im.skip(r, fmt.Sprintf("duplicate contact %s", r.Account))
			return
		}
		im.contacts[key][ref.ID] = true
		d.Contacts = append(d.Contacts, projects.DraftContact{Account: ref, Visible: r.Visible, Secondary: r.Secondary})

	case ChannelNSRow:
		nsKey := im.opts.ChannelPolicy.Fold(r.Namespace)
		if owner, ok := im.channels[nsKey]; ok {
			im.skip(r, fmt.Sprintf("channel namespace already belongs to %s", owner))
			return
		}
		if owner, ok := im.reg.ChannelOwner(r.Namespace); ok {
			im.skip(r, fmt.Sprintf("channel namespace already belongs to %s", owner))
			return
		}
		im.channels[nsKey] = d.Name
		d.ChannelNamespaces = append(d.ChannelNamespaces, r.Namespace)

	case CloakNSRow:
		ns := namespace.CanonicalCloak(r.Namespace)
		if ns == "" {
			im.skip(r, "empty cloak namespace")
			return
		}
		nsKey := im.opts.CloakPolicy.Fold(ns)
		if owner, ok := im.cloaks[nsKey]; ok {
			im.skip(r, fmt.Sprintf("cloak namespace already belongs to %s", owner))
			return
		}
		if owner, ok := im.reg.CloakOwner(ns); ok {
			im.skip(r, fmt.Sprintf("cloak namespace already belongs to %s", owner))
			return
		}
		im.cloaks[nsKey] = d.Name
		d.CloakNamespaces = append(d.CloakNamespaces, ns)

	default:
		im.skip(row, "unsupported row type")
	}
}

func (im *importer) skip(row Row, reason string) {
	im.report.Skipped++
	problem := fmt.Sprintf("%s for %s: %s", row.Type(), row.Project(), reason)
	im.report.Problems = append(im.report.Problems, problem)
	slog.Warn("skipping stored row", "type", row.Type(), "project", row.Project(), "reason", reason)
}
