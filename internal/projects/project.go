package projects

import (
	"time"

	"github.com/projectns/projectns/internal/accounts"
)

// Mark is an immutable staff note attached to a project.
type Mark struct {
	Number     uint      `json:"number"`
	Time       time.Time `json:"time"`
	Text       string    `json:"text"`
	SetterID   string    `json:"setter_id"`
	SetterName string    `json:"setter_name"`
}

// ContactView is a copy of one project/account contact link.
type ContactView struct {
	Project   string       `json:"project"`
	Account   accounts.Ref `json:"account"`
	Visible   bool         `json:"visible"`
	Secondary bool         `json:"secondary"`
}

// ProjectView is a point-in-time copy of a project. It shares no memory with the registry.
type ProjectView struct {
	Name              string        `json:"name"`
	OpenRegistration  bool          `json:"open_registration"`
	RegInfo           string        `json:"reginfo,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	Creator           string        `json:"creator,omitempty"`
	ChannelNamespaces []string      `json:"channel_namespaces"`
	CloakNamespaces   []string      `json:"cloak_namespaces"`
	Contacts          []ContactView `json:"contacts"`
	Marks             []Mark        `json:"marks"`
}

// HasContact reports whether accountID is one of the project's contacts.
func (v ProjectView) HasContact(accountID string) bool {
	for _, c := range v.Contacts {
		if c.Account.ID == accountID {
			return true
		}
	}
	return false
}

// DraftContact is a contact inside a Draft.
type DraftContact struct {
	Account   accounts.Ref
	Visible   bool
	Secondary bool
}

// Draft is the complete state of one project, used to move projects in and out of a
// registry in bulk.
type Draft struct {
	Name              string
	OpenRegistration  bool
	RegInfo           string
	CreatedAt         time.Time
	Creator           string
	ChannelNamespaces []string
	CloakNamespaces   []string
	Contacts          []DraftContact
	Marks             []Mark
	// LastMark is the highest mark number ever issued. Values below the highest number
	// in Marks are raised to it.
	LastMark uint
}

// DropResult reports what a Drop removed.
type DropResult struct {
	Name              string
	ChannelNamespaces []string
	CloakNamespaces   []string
	Contacts          []accounts.Ref
	Marks             int
}

type project struct {
	name             string
	openRegistration bool
	regInfo          string
	createdAt        time.Time
	creator          string
	channelNS        []string
	cloakNS          []string
	contacts         []*contact
	marks            []Mark
	lastMark         uint
}

// contact is shared between project.contacts and Registry.byAccount.
type contact struct {
	project   *project
	account   accounts.Ref
	visible   bool
	secondary bool
}

func (c *contact) view() ContactView {
	return ContactView{
		Project:   c.project.name,
		Account:   c.account,
		Visible:   c.visible,
		Secondary: c.secondary,
	}
}

func (p *project) view() ProjectView {
	v := ProjectView{
		Name:              p.name,
		OpenRegistration:  p.openRegistration,
		RegInfo:           p.regInfo,
		CreatedAt:         p.createdAt,
		Creator:           p.creator,
		ChannelNamespaces: append([]string{}, p.channelNS...),
		CloakNamespaces:   append([]string{}, p.cloakNS...),
		Contacts:          make([]ContactView, 0, len(p.contacts)),
		Marks:             append([]Mark{}, p.marks...),
	}
	for _, c := range p.contacts {
		v.Contacts = append(v.Contacts, c.view())
	}
	return v
}

func (p *project) draft() Draft {
	d := Draft{
		Name:              p.name,
		OpenRegistration:  p.openRegistration,
		RegInfo:           p.regInfo,
		CreatedAt:         p.createdAt,
		Creator:           p.creator,
		ChannelNamespaces: append([]string{}, p.channelNS...),
		CloakNamespaces:   append([]string{}, p.cloakNS...),
		Contacts:          make([]DraftContact, 0, len(p.contacts)),
		Marks:             append([]Mark{}, p.marks...),
		LastMark:          p.lastMark,
	}
	for _, c := range p.contacts {
		d.Contacts = append(d.Contacts, DraftContact{Account: c.account, Visible: c.visible, Secondary: c.secondary})
	}
	return d
}

func (p *project) findContact(accountID string) (int, *contact) {
	for i, c := range p.contacts {
		if c.account.ID == accountID {
			return i, c
		}
	}
	return -1, nil
}
