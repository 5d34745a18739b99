// Package handoff carries the project registry across a module reload without touching
// durable storage. The outgoing module captures a versioned Snapshot; the incoming module
// restores it, migrating records written by older schema revisions forward.
package handoff

import (
	"errors"
	"sync"
	"time"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/projects"
)

// Schema revisions. Each constant names the first revision whose records carry a field.
const (
	SchemaVersion = 10

	MinVersionCloakNamespaces  = 4
	MinVersionCreationMetadata = 9
	MinVersionContactObjects   = 10
)

var (
	// ErrSchemaIncompatible means the snapshot was captured by a newer schema revision.
	// The process must be restarted instead of reloaded.
	ErrSchemaIncompatible = errors.New("snapshot schema is newer than this module")
	// ErrSnapshotConsumed means the snapshot was already restored once.
	ErrSnapshotConsumed = errors.New("snapshot has already been restored")
)

// ContactRecord is a contact in the shape used from MinVersionContactObjects on.
type ContactRecord struct {
	Account   accounts.Ref
	Visible   bool
	Secondary bool
}

// ProjectRecord is one project as captured by some schema revision. Which fields are
// meaningful depends on the snapshot version; Restore only reads the fields that existed
// at that version.
type ProjectRecord struct {
	Name              string
	OpenRegistration  bool
	RegInfo           string
	ChannelNamespaces []string
	Marks             []projects.Mark
	LastMark          uint

	// MinVersionCloakNamespaces
	CloakNamespaces []string

	// MinVersionCreationMetadata
	CreatedAt time.Time
	Creator   string

	// Before MinVersionContactObjects a contact was a bare account reference.
	LegacyContacts []accounts.Ref

	// MinVersionContactObjects
	Contacts []ContactRecord
}

// Snapshot is the in-process handle passed from the outgoing module to the incoming one.
type Snapshot struct {
	Version  int
	Service  string
	Build    string
	Projects []*ProjectRecord

	mu       sync.Mutex
	consumed bool
}

// Consumed reports whether the snapshot has been restored.
func (s *Snapshot) Consumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed
}

// Capture empties reg into a snapshot at the current schema revision. From here on the
// snapshot owns the state.
func Capture(reg *projects.Registry, service, build string) *Snapshot {
	drafts := reg.TakeAll()
	snap := &Snapshot{
		Version:  SchemaVersion,
		Service:  service,
		Build:    build,
		Projects: make([]*ProjectRecord, 0, len(drafts)),
	}
	for _, d := range drafts {
		rec := &ProjectRecord{
			Name:              d.Name,
			OpenRegistration:  d.OpenRegistration,
			RegInfo:           d.RegInfo,
			ChannelNamespaces: d.ChannelNamespaces,
			Marks:             d.Marks,
			LastMark:          d.LastMark,
			CloakNamespaces:   d.CloakNamespaces,
			CreatedAt:         d.CreatedAt,
			Creator:           d.Creator,
			Contacts:          make([]ContactRecord, 0, len(d.Contacts)),
		}
		for _, c := range d.Contacts {
			rec.Contacts = append(rec.Contacts, ContactRecord{Account: c.Account, Visible: c.Visible, Secondary: c.Secondary})
		}
		snap.Projects = append(snap.Projects, rec)
	}
	return snap
}
