package projects

import (
	"errors"
	"fmt"

	"github.com/projectns/projectns/internal/namespace"
)

// Drafts returns a copy of every project in display order.
func (r *Registry) Drafts() []Draft {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.sorted()
	out := make([]Draft, 0, len(all))
	for _, p := range all {
		out = append(out, p.draft())
	}
	return out
}

// TakeAll empties the registry and returns its former contents. Afterwards the caller
// owns the state; the registry holds nothing.
func (r *Registry) TakeAll() []Draft {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.sorted()
	out := make([]Draft, 0, len(all))
	for _, p := range all {
		out = append(out, p.draft())
	}

	r.projects = make(map[string]*project)
	r.byChannel = make(map[string]*project)
	r.byCloak = make(map[string]*project)
	r.byAccount = make(map[string][]*contact)
	return out
}

// Restore inserts every draft and rebuilds the namespace and account indexes from them.
// Either all drafts are inserted or, on the first inconsistency, none are. Drafts are
// not checked against the name and namespace format rules, since stored data may predate
// the current configuration; uniqueness is always enforced.
func (r *Registry) Restore(drafts []Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make(map[string]bool, len(drafts))
	channels := make(map[string]string)
	cloaks := make(map[string]string)

	for _, d := range drafts {
		if d.Name == "" {
			return invalid("project name", errors.New("empty name in restored project"))
		}
		key := nameKey(d.Name)
		if names[key] || r.projects[key] != nil {
			return fmt.Errorf("restore project %s: %w", d.Name, ErrConflict)
		}
		names[key] = true

		for _, ns := range d.ChannelNamespaces {
			k := r.channelKey(ns)
			if owner, ok := channels[k]; ok {
				return &NamespaceError{Namespace: ns, Owner: owner, Err: ErrConflict}
			}
			if owner, ok := r.byChannel[k]; ok {
				return &NamespaceError{Namespace: ns, Owner: owner.name, Err: ErrConflict}
			}
			channels[k] = d.Name
		}
		for _, raw := range d.CloakNamespaces {
			ns := namespace.CanonicalCloak(raw)
			if ns == "" {
				return invalid("cloak namespace", fmt.Errorf("project %s has an empty cloak namespace", d.Name))
			}
			k := r.cloakKey(ns)
			if owner, ok := cloaks[k]; ok {
				return &NamespaceError{Namespace: ns, Owner: owner, Err: ErrConflict}
			}
			if owner, ok := r.byCloak[k]; ok {
				return &NamespaceError{Namespace: ns, Owner: owner.name, Err: ErrConflict}
			}
			cloaks[k] = d.Name
		}

		seen := make(map[string]bool, len(d.Contacts))
		for _, c := range d.Contacts {
			if c.Account.IsZero() {
				return invalid("contact", fmt.Errorf("project %s has a contact without an account", d.Name))
			}
			if seen[c.Account.ID] {
				return fmt.Errorf("restore contact %s for %s: %w", c.Account.Name, d.Name, ErrConflict)
			}
			seen[c.Account.ID] = true
		}

		marks := make(map[uint]bool, len(d.Marks))
		for _, m := range d.Marks {
			if marks[m.Number] {
				return fmt.Errorf("restore mark %d for %s: %w", m.Number, d.Name, ErrConflict)
			}
			marks[m.Number] = true
		}
	}

	for _, d := range drafts {
		r.insertDraft(d)
	}
	return nil
}

func (r *Registry) insertDraft(d Draft) {
	p := &project{
		name:             d.Name,
		openRegistration: d.OpenRegistration,
		regInfo:          d.RegInfo,
		createdAt:        d.CreatedAt,
		creator:          d.Creator,
		marks:            append([]Mark{}, d.Marks...),
		lastMark:         d.LastMark,
	}
	for _, m := range p.marks {
		if m.Number > p.lastMark {
			p.lastMark = m.Number
		}
	}
	for _, ns := range d.ChannelNamespaces {
		p.channelNS = append(p.channelNS, ns)
		r.byChannel[r.channelKey(ns)] = p
	}
	for _, raw := range d.CloakNamespaces {
		ns := namespace.CanonicalCloak(raw)
		p.cloakNS = append(p.cloakNS, ns)
		r.byCloak[r.cloakKey(ns)] = p
	}
	for _, dc := range d.Contacts {
		c := &contact{project: p, account: dc.Account, visible: dc.Visible, secondary: dc.Secondary}
		p.contacts = append(p.contacts, c)
		r.byAccount[dc.Account.ID] = append(r.byAccount[dc.Account.ID], c)
	}
	r.projects[nameKey(p.name)] = p
}
