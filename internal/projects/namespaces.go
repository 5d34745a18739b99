package projects

import (
	"sort"

	"github.com/projectns/projectns/internal/namespace"
	"github.com/projectns/projectns/internal/validation"
)

// NamespaceEntry pairs a namespace with the project that owns it.
type NamespaceEntry struct {
	Namespace string `json:"namespace"`
	Project   string `json:"project"`
}

// AddChannelNamespace claims a channel namespace for a project. The namespace must be
// its own root: with "-" as separator "#foo-bar" is refused and "#foo" is suggested.
func (r *Registry) AddChannelNamespace(name, ns string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := validation.ValidateChannelNamespace(ns, r.opts.ChannelLength); err != nil {
		return invalid("channel namespace", err)
	}
	p, err := r.lookup(name)
	if err != nil {
		return err
	}
	if root := r.parser.Root(ns); root != ns {
		return &NamespaceError{Namespace: ns, Root: root, Err: ErrNotRoot}
	}
	if owner, ok := r.byChannel[r.channelKey(ns)]; ok {
		return &NamespaceError{Namespace: ns, Owner: owner.name, Err: ErrConflict}
	}

	r.byChannel[r.channelKey(ns)] = p
	p.channelNS = append(p.channelNS, ns)
	return nil
}

// RemoveChannelNamespace releases a channel namespace. Removing a namespace that belongs
// to a different project fails with ErrWrongOwner and names the real owner.
func (r *Registry) RemoveChannelNamespace(name, ns string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(name)
	if err != nil {
		return err
	}
	key := r.channelKey(ns)
	owner, ok := r.byChannel[key]
	if !ok {
		return &NamespaceError{Namespace: ns, Err: ErrNotFound}
	}
	if owner != p {
		return &NamespaceError{Namespace: ns, Owner: owner.name, Err: ErrWrongOwner}
	}

	delete(r.byChannel, key)
	p.channelNS = removeFolded(p.channelNS, key, r.opts.ChannelPolicy)
	return nil
}

// AddCloakNamespace claims a cloak namespace. Trailing '/' and '*' runs are stripped
// before validation, storage and comparison. Re-adding a namespace the project already
// owns reports ErrNoChange.
func (r *Registry) AddCloakNamespace(name, ns string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns = namespace.CanonicalCloak(ns)
	if err := validation.ValidateCloakNamespace(ns, r.opts.CloakLength); err != nil {
		return ns, invalid("cloak namespace", err)
	}
	p, err := r.lookup(name)
	if err != nil {
		return ns, err
	}
	if owner, ok := r.byCloak[r.cloakKey(ns)]; ok {
		if owner == p {
			return ns, &NamespaceError{Namespace: ns, Owner: owner.name, Err: ErrNoChange}
		}
		return ns, &NamespaceError{Namespace: ns, Owner: owner.name, Err: ErrConflict}
	}

	r.byCloak[r.cloakKey(ns)] = p
	p.cloakNS = append(p.cloakNS, ns)
	return ns, nil
}

// RemoveCloakNamespace releases a cloak namespace with the same contract as
// RemoveChannelNamespace.
func (r *Registry) RemoveCloakNamespace(name, ns string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns = namespace.CanonicalCloak(ns)
	p, err := r.lookup(name)
	if err != nil {
		return ns, err
	}
	key := r.cloakKey(ns)
	owner, ok := r.byCloak[key]
	if !ok {
		return ns, &NamespaceError{Namespace: ns, Err: ErrNotFound}
	}
	if owner != p {
		return ns, &NamespaceError{Namespace: ns, Owner: owner.name, Err: ErrWrongOwner}
	}

	delete(r.byCloak, key)
	p.cloakNS = removeFolded(p.cloakNS, key, r.opts.CloakPolicy)
	return ns, nil
}

// ChannelToProject finds the project owning channel or its nearest registered ancestor.
// The matched namespace is returned as well; when nothing matches it is the channel itself.
func (r *Registry) ChannelToProject(channel string) (ProjectView, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched, ok := r.parser.Walk(channel, func(candidate string) bool {
		_, found := r.byChannel[r.channelKey(candidate)]
		return found
	})
	if !ok {
		return ProjectView{}, matched, false
	}
	key := r.channelKey(matched)
	p := r.byChannel[key]
	for _, ns := range p.channelNS {
		if r.channelKey(ns) == key {
			matched = ns
			break
		}
	}
	return p.view(), matched, true
}

// ChannelOwner returns the project owning exactly ns, without walking ancestors.
func (r *Registry) ChannelOwner(ns string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byChannel[r.channelKey(ns)]
	if !ok {
		return "", false
	}
	return p.name, true
}

// CloakOwner returns the project owning the canonical form of ns.
func (r *Registry) CloakOwner(ns string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byCloak[r.cloakKey(namespace.CanonicalCloak(ns))]
	if !ok {
		return "", false
	}
	return p.name, true
}

// CloakToProject performs a single canonicalized lookup in the cloak index.
func (r *Registry) CloakToProject(cloak string) (ProjectView, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns := namespace.CanonicalCloak(cloak)
	p, ok := r.byCloak[r.cloakKey(ns)]
	if !ok {
		return ProjectView{}, ns, false
	}
	return p.view(), ns, true
}

// ListChannelNamespaces returns every channel namespace matching pattern, sorted.
func (r *Registry) ListChannelNamespaces(pattern string) []NamespaceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return listNamespaces(r.sorted(), pattern, func(p *project) []string { return p.channelNS })
}

// ListCloakNamespaces returns every cloak namespace matching pattern, sorted.
func (r *Registry) ListCloakNamespaces(pattern string) []NamespaceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return listNamespaces(r.sorted(), pattern, func(p *project) []string { return p.cloakNS })
}

func listNamespaces(all []*project, pattern string, get func(*project) []string) []NamespaceEntry {
	var out []NamespaceEntry
	for _, p := range all {
		for _, ns := range get(p) {
			if pattern == "" || namespace.Match(pattern, ns) {
				out = append(out, NamespaceEntry{Namespace: ns, Project: p.name})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return namespace.PolicyRFC1459.Fold(out[i].Namespace) < namespace.PolicyRFC1459.Fold(out[j].Namespace)
	})
	return out
}

func removeFolded(list []string, key string, policy namespace.Policy) []string {
	for i, ns := range list {
		if policy.Fold(ns) == key {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
