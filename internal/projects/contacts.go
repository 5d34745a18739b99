package projects

import (
	"fmt"

	"github.com/projectns/projectns/internal/accounts"
)

// ContactChange lists the attributes a SetContactAttributes call actually changed.
type ContactChange struct {
	Contact          ContactView
	VisibleChanged   bool
	SecondaryChanged bool
}

// AddContact links an account to a project. An existing link is reported as ErrConflict
// and left untouched.
func (r *Registry) AddContact(name string, acct accounts.Ref, visible, secondary bool) (ContactView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if acct.IsZero() {
		return ContactView{}, invalid("contact", fmt.Errorf("account reference is empty"))
	}
	p, err := r.lookup(name)
	if err != nil {
		return ContactView{}, err
	}
	if _, c := p.findContact(acct.ID); c != nil {
		return c.view(), fmt.Errorf("contact %s for %s: %w", acct.Name, p.name, ErrConflict)
	}

	c := &contact{project: p, account: acct, visible: visible, secondary: secondary}
	p.contacts = append(p.contacts, c)
	r.byAccount[acct.ID] = append(r.byAccount[acct.ID], c)
	return c.view(), nil
}

// RemoveContact removes both halves of a project/account link. It reports whether a link
// existed and how many contacts the project has left.
func (r *Registry) RemoveContact(name, accountID string) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(name)
	if err != nil {
		return false, 0, err
	}
	i, c := p.findContact(accountID)
	if c == nil {
		return false, len(p.contacts), nil
	}

	r.unlinkAccount(c)
	p.contacts = append(p.contacts[:i:i], p.contacts[i+1:]...)
	return true, len(p.contacts), nil
}

// SetContactAttributes updates the requested attributes of an existing contact. Nil
// pointers leave an attribute alone. When every requested value already matches,
// ErrNoChange is returned and nothing is modified.
func (r *Registry) SetContactAttributes(name, accountID string, visible, secondary *bool) (ContactChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(name)
	if err != nil {
		return ContactChange{}, err
	}
	_, c := p.findContact(accountID)
	if c == nil {
		return ContactChange{}, fmt.Errorf("contact %s for %s: %w", accountID, p.name, ErrNotFound)
	}
	if visible == nil && secondary == nil {
		return ContactChange{}, invalid("contact attributes", fmt.Errorf("nothing to change"))
	}

	var change ContactChange
	if visible != nil && *visible != c.visible {
		change.VisibleChanged = true
	}
	if secondary != nil && *secondary != c.secondary {
		change.SecondaryChanged = true
	}
	if !change.VisibleChanged && !change.SecondaryChanged {
		return ContactChange{Contact: c.view()}, fmt.Errorf("contact %s for %s: %w", c.account.Name, p.name, ErrNoChange)
	}

	if change.VisibleChanged {
		c.visible = *visible
	}
	if change.SecondaryChanged {
		c.secondary = *secondary
	}
	change.Contact = c.view()
	return change, nil
}

// IsContact reports whether accountID is a contact of the named project.
func (r *Registry) IsContact(name, accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.lookup(name)
	if err != nil {
		return false
	}
	_, c := p.findContact(accountID)
	return c != nil
}

// ProjectsForAccount returns the projects an account is a contact for, in the order the
// links were made.
func (r *Registry) ProjectsForAccount(accountID string) []ProjectView {
	r.mu.Lock()
	defer r.mu.Unlock()

	links := r.byAccount[accountID]
	out := make([]ProjectView, 0, len(links))
	for _, c := range links {
		out = append(out, c.project.view())
	}
	return out
}

// ContactsForAccount returns the account's contact links.
func (r *Registry) ContactsForAccount(accountID string) []ContactView {
	r.mu.Lock()
	defer r.mu.Unlock()

	links := r.byAccount[accountID]
	out := make([]ContactView, 0, len(links))
	for _, c := range links {
		out = append(out, c.view())
	}
	return out
}

// AccountDeleted removes every contact link held by the account and returns the names of
// the projects it was removed from.
func (r *Registry) AccountDeleted(acct accounts.Ref) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	links := r.byAccount[acct.ID]
	delete(r.byAccount, acct.ID)

	names := make([]string, 0, len(links))
	for _, c := range links {
		p := c.project
		if i, found := p.findContact(acct.ID); found != nil {
			p.contacts = append(p.contacts[:i:i], p.contacts[i+1:]...)
		}
		names = append(names, p.name)
	}
	return names
}

// AccountRenamed refreshes the display name stored in the account's contact links.
func (r *Registry) AccountRenamed(acct accounts.Ref) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	links := r.byAccount[acct.ID]
	for _, c := range links {
		c.account.Name = acct.Name
	}
	return len(links)
}

func (r *Registry) unlinkAccount(c *contact) {
	links := r.byAccount[c.account.ID]
	for i, other := range links {
		if other == c {
			links = append(links[:i:i], links[i+1:]...)
			break
		}
	}
	if len(links) == 0 {
		delete(r.byAccount, c.account.ID)
		return
	}
	r.byAccount[c.account.ID] = links
}
