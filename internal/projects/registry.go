// Package projects holds the project registry: the primary project index, the channel and
// cloak namespace indexes, the contact ledger and each project's mark log. One mutex guards
// all of them, so cross-index invariants are never observed half-updated.
package projects

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/projectns/projectns/internal/namespace"
	"github.com/projectns/projectns/internal/validation"
)

// Options configures a Registry.
type Options struct {
	// Separators is the namespace separator set; empty means "-".
	Separators string
	// ChannelPolicy and CloakPolicy select how each namespace kind is compared.
	ChannelPolicy namespace.Policy
	CloakPolicy   namespace.Policy

	DefaultOpenRegistration bool

	NameLength    int
	ChannelLength int
	CloakLength   int

	// Clock returns the current time; defaults to time.Now.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ChannelPolicy == "" {
		o.ChannelPolicy = namespace.PolicyRFC1459
	}
	if o.CloakPolicy == "" {
		o.CloakPolicy = namespace.PolicyExact
	}
	if o.NameLength <= 0 {
		o.NameLength = validation.DefaultProjectNameLength
	}
	if o.ChannelLength <= 0 {
		o.ChannelLength = validation.DefaultChannelLength
	}
	if o.CloakLength <= 0 {
		o.CloakLength = validation.DefaultCloakLength
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Stats summarises registry size.
type Stats struct {
	Projects          int
	ChannelNamespaces int
	CloakNamespaces   int
	Contacts          int
	Marks             int
}

// Registry owns every project and the indexes derived from them.
type Registry struct {
	mu sync.Mutex

	opts   Options
	parser *namespace.Parser

	projects  map[string]*project   // project name, ASCII folded
	byChannel map[string]*project   // channel namespace, folded by ChannelPolicy
	byCloak   map[string]*project   // cloak namespace, folded by CloakPolicy
	byAccount map[string][]*contact // account ID
}

// New creates an empty registry.
func New(opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		opts:      opts,
		parser:    namespace.NewParser(opts.Separators, opts.ChannelPolicy),
		projects:  make(map[string]*project),
		byChannel: make(map[string]*project),
		byCloak:   make(map[string]*project),
		byAccount: make(map[string][]*contact),
	}
}

// Parser returns the channel namespace parser the registry uses.
func (r *Registry) Parser() *namespace.Parser { return r.parser }

// Options returns the effective options.
func (r *Registry) Options() Options { return r.opts }

func nameKey(name string) string { return namespace.PolicyASCII.Fold(name) }

func (r *Registry) channelKey(ns string) string { return r.opts.ChannelPolicy.Fold(ns) }

func (r *Registry) cloakKey(ns string) string { return r.opts.CloakPolicy.Fold(ns) }

func (r *Registry) lookup(name string) (*project, error) {
	p, ok := r.projects[nameKey(name)]
	if !ok {
		return nil, notFound(name)
	}
	return p, nil
}

// Create registers a new project seeded from the configured defaults.
func (r *Registry) Create(name, creator string) (ProjectView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.projects[nameKey(name)]; exists {
		return ProjectView{}, fmt.Errorf("project %s: %w", name, ErrConflict)
	}
	if err := validation.ValidateProjectName(name, r.opts.NameLength); err != nil {
		return ProjectView{}, invalid("project name", err)
	}

	p := &project{
		name:             name,
		openRegistration: r.opts.DefaultOpenRegistration,
		createdAt:        r.opts.Clock().UTC(),
		creator:          creator,
	}
	r.projects[nameKey(name)] = p
	return p.view(), nil
}

// Find returns a copy of the named project.
func (r *Registry) Find(name string) (ProjectView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[nameKey(name)]
	if !ok {
		return ProjectView{}, false
	}
	return p.view(), true
}

// Len returns the number of registered projects.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.projects)
}

// Stats counts the registry contents.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Projects:          len(r.projects),
		ChannelNamespaces: len(r.byChannel),
		CloakNamespaces:   len(r.byCloak),
	}
	for _, p := range r.projects {
		s.Contacts += len(p.contacts)
		s.Marks += len(p.marks)
	}
	return s
}

// Rename changes a project's name. A pure case change is allowed; renaming to the
// byte-identical current name reports ErrNoChange.
func (r *Registry) Rename(name, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(name)
	if err != nil {
		return err
	}
	if err := validation.ValidateProjectName(newName, r.opts.NameLength); err != nil {
		return invalid("project name", err)
	}
	if p.name == newName {
		return fmt.Errorf("project %s: %w", newName, ErrNoChange)
	}
	if other, ok := r.projects[nameKey(newName)]; ok && other != p {
		return fmt.Errorf("project %s: %w", newName, ErrConflict)
	}

	// Delete before insert: both keys are equal when only the case changes.
	delete(r.projects, nameKey(p.name))
	p.name = newName
	r.projects[nameKey(newName)] = p
	return nil
}

// Drop removes a project together with its contacts, namespaces and marks.
func (r *Registry) Drop(name string) (DropResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(name)
	if err != nil {
		return DropResult{}, err
	}

	res := DropResult{
		Name:              p.name,
		ChannelNamespaces: append([]string{}, p.channelNS...),
		CloakNamespaces:   append([]string{}, p.cloakNS...),
		Marks:             len(p.marks),
	}

	for _, c := range p.contacts {
		r.unlinkAccount(c)
		res.Contacts = append(res.Contacts, c.account)
	}
	p.contacts = nil

	for _, ns := range p.channelNS {
		delete(r.byChannel, r.channelKey(ns))
	}
	p.channelNS = nil

	for _, ns := range p.cloakNS {
		delete(r.byCloak, r.cloakKey(ns))
	}
	p.cloakNS = nil

	p.marks = nil
	delete(r.projects, nameKey(p.name))
	return res, nil
}

// SetOpenRegistration sets whether anyone, rather than only contacts, may register
// channels in the project's namespaces.
func (r *Registry) SetOpenRegistration(name string, open bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(name)
	if err != nil {
		return err
	}
	if p.openRegistration == open {
		return fmt.Errorf("project %s open registration: %w", p.name, ErrNoChange)
	}
	p.openRegistration = open
	return nil
}

// SetRegInfo sets the "see also" text shown when channel registration is refused.
// Empty text clears it; text must fit on one line.
func (r *Registry) SetRegInfo(name, text string) error {
	if err := validation.ValidateText(text); err != nil {
		return invalid("reginfo", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(name)
	if err != nil {
		return err
	}
	p.regInfo = text
	return nil
}

// sorted returns every project ordered by folded name.
func (r *Registry) sorted() []*project {
	out := make([]*project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return nameKey(out[i].name) < nameKey(out[j].name) })
	return out
}

// All returns every project in display order.
func (r *Registry) All() []ProjectView {
	return r.List("")
}

// List returns projects whose name matches the glob pattern. An empty pattern matches all.
func (r *Registry) List(pattern string) []ProjectView {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []ProjectView
	for _, p := range r.sorted() {
		if pattern == "" || namespace.Match(pattern, p.name) {
			out = append(out, p.view())
		}
	}
	return out
}

// AuditKind selects what Audit checks for.
type AuditKind int

const (
	AuditAll AuditKind = iota
	AuditChannels
	AuditContacts
)

// Audit returns projects without channel namespaces, without contacts, or either.
func (r *Registry) Audit(kind AuditKind) []ProjectView {
	r.mu.Lock()
	defer r.mu.Unlock()

	checkChannels := kind == AuditAll || kind == AuditChannels
	checkContacts := kind == AuditAll || kind == AuditContacts

	var out []ProjectView
	for _, p := range r.sorted() {
		if (checkChannels && len(p.channelNS) == 0) || (checkContacts && len(p.contacts) == 0) {
			out = append(out, p.view())
		}
	}
	return out
}
