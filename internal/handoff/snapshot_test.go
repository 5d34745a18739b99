package handoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/projects"
)

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newRegistry() *projects.Registry {
	return projects.New(projects.Options{Clock: func() time.Time { return created }})
}

func newDirectory(t *testing.T, refs ...accounts.Ref) *accounts.Directory {
	t.Helper()
	dir := accounts.NewDirectory(nil, nil)
	for _, ref := range refs {
		_, err := dir.Register(context.Background(), ref)
		require.NoError(t, err)
	}
	return dir
}

var (
	alice = accounts.Ref{ID: "A1", Name: "alice"}
	bob   = accounts.Ref{ID: "B2", Name: "bob"}
)

func populate(t *testing.T, reg *projects.Registry) {
	t.Helper()
	_, err := reg.Create("foo", "alice")
	require.NoError(t, err)
	_, err = reg.Create("bar", "bob")
	require.NoError(t, err)
	require.NoError(t, reg.AddChannelNamespace("foo", "#foo"))
	require.NoError(t, reg.AddChannelNamespace("bar", "#bar"))
	_, err = reg.AddCloakNamespace("foo", "foo/")
	require.NoError(t, err)
	_, err = reg.AddContact("foo", alice, true, false)
	require.NoError(t, err)
	_, err = reg.AddContact("bar", alice, false, true)
	require.NoError(t, err)
	_, err = reg.AddMark("foo", bob, "one")
	require.NoError(t, err)
	_, err = reg.AddMark("foo", bob, "two")
	require.NoError(t, err)
	require.NoError(t, reg.DeleteMark("foo", 2))
	require.NoError(t, reg.SetRegInfo("bar", "see /bar"))
	require.NoError(t, reg.SetOpenRegistration("bar", true))
}

func TestCaptureRestore_Identical(t *testing.T) {
	dir := newDirectory(t, alice, bob)
	reg := newRegistry()
	populate(t, reg)
	before := reg.All()

	snap := Capture(reg, "ProjectServ", "1.0.0")
	assert.Equal(t, SchemaVersion, snap.Version)
	assert.Equal(t, 0, reg.Len(), "capture hands ownership to the snapshot")

	next := newRegistry()
	service, err := Restore(snap, next, dir)
	require.NoError(t, err)
	assert.Equal(t, "ProjectServ", service)
	assert.Equal(t, before, next.All())
	assert.True(t, snap.Consumed())

	// Indexes were rebuilt.
	v, _, ok := next.ChannelToProject("#foo-dev")
	require.True(t, ok)
	assert.Equal(t, "foo", v.Name)
	owner, ok := next.CloakOwner("foo")
	require.True(t, ok)
	assert.Equal(t, "foo", owner)
	assert.Len(t, next.ProjectsForAccount(alice.ID), 2)

	// The mark counter never goes backwards across a reload.
	m, err := next.AddMark("foo", bob, "three")
	require.NoError(t, err)
	assert.Equal(t, uint(3), m.Number)
}

func TestRestore_Twice(t *testing.T) {
	reg := newRegistry()
	populate(t, reg)
	snap := Capture(reg, "ProjectServ", "")

	_, err := Restore(snap, newRegistry(), nil)
	require.NoError(t, err)
	_, err = Restore(snap, newRegistry(), nil)
	assert.ErrorIs(t, err, ErrSnapshotConsumed)
}

func TestRestore_NewerSchemaRefused(t *testing.T) {
	snap := &Snapshot{
		Version: SchemaVersion + 1,
		Service: "ProjectServ",
		Projects: []*ProjectRecord{
			{Name: "future", ChannelNamespaces: []string{"#future"}},
		},
	}
	reg := newRegistry()

	_, err := Restore(snap, reg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaIncompatible))
	assert.Equal(t, 0, reg.Len(), "registry must stay empty")
	assert.False(t, snap.Consumed())
	assert.Len(t, snap.Projects, 1, "snapshot is left intact")
}

func TestRestore_InvalidVersion(t *testing.T) {
	_, err := Restore(&Snapshot{Version: 0}, newRegistry(), nil)
	assert.Error(t, err)
}

func TestRestore_Version3DropsLaterFields(t *testing.T) {
	dir := newDirectory(t, alice, accounts.Ref{ID: bob.ID, Name: "robert"})
	snap := &Snapshot{
		Version: 3,
		Service: "ProjectServ",
		Projects: []*ProjectRecord{{
			Name:              "old",
			OpenRegistration:  true,
			RegInfo:           "see /old",
			ChannelNamespaces: []string{"#old"},
			Marks:             []projects.Mark{{Number: 7, Time: created, Text: "legacy"}},
			// Fields below did not exist at version 3 and must be ignored.
			CloakNamespaces: []string{"old"},
			CreatedAt:       created,
			Creator:         "ghost",
			Contacts:        []ContactRecord{{Account: alice, Visible: true}},
			// What version 3 actually carried.
			LegacyContacts: []accounts.Ref{alice, bob, {ID: "gone", Name: "gone"}},
		}},
	}

	reg := newRegistry()
	_, err := Restore(snap, reg, dir)
	require.NoError(t, err)

	v, ok := reg.Find("old")
	require.True(t, ok)
	assert.True(t, v.OpenRegistration)
	assert.Equal(t, "see /old", v.RegInfo)
	assert.Equal(t, []string{"#old"}, v.ChannelNamespaces)
	assert.Empty(t, v.CloakNamespaces)
	assert.True(t, v.CreatedAt.IsZero())
	assert.Empty(t, v.Creator)

	require.Len(t, v.Contacts, 2, "the deleted account is dropped")
	assert.Equal(t, alice, v.Contacts[0].Account)
	assert.False(t, v.Contacts[0].Visible)
	assert.False(t, v.Contacts[0].Secondary)
	assert.Equal(t, "robert", v.Contacts[1].Account.Name, "names are refreshed from the directory")

	m, err := reg.AddMark("old", alice, "next")
	require.NoError(t, err)
	assert.Equal(t, uint(8), m.Number)
}

func TestRestore_VersionGates(t *testing.T) {
	rec := func() *ProjectRecord {
		return &ProjectRecord{
			Name:            "p",
			CloakNamespaces: []string{"p"},
			CreatedAt:       created,
			Creator:         "alice",
			LegacyContacts:  []accounts.Ref{alice},
			Contacts:        []ContactRecord{{Account: alice, Visible: true, Secondary: true}},
		}
	}
	tests := []struct {
		version      int
		wantCloaks   int
		wantCreation bool
		wantVisible  bool
	}{
		{1, 0, false, false},
		{MinVersionCloakNamespaces - 1, 0, false, false},
		{MinVersionCloakNamespaces, 1, false, false},
		{MinVersionCreationMetadata, 1, true, false},
		{MinVersionContactObjects, 1, true, true},
	}
	for _, tt := range tests {
		reg := newRegistry()
		_, err := Restore(&Snapshot{Version: tt.version, Projects: []*ProjectRecord{rec()}}, reg, nil)
		require.NoError(t, err, "version %d", tt.version)

		v, ok := reg.Find("p")
		require.True(t, ok)
		assert.Len(t, v.CloakNamespaces, tt.wantCloaks, "version %d cloaks", tt.version)
		assert.Equal(t, tt.wantCreation, !v.CreatedAt.IsZero(), "version %d creation", tt.version)
		require.Len(t, v.Contacts, 1, "version %d contacts", tt.version)
		assert.Equal(t, tt.wantVisible, v.Contacts[0].Visible, "version %d visible", tt.version)
	}
}

func TestRestore_ConflictingRecordsLeaveRegistryEmpty(t *testing.T) {
	snap := &Snapshot{
		Version: SchemaVersion,
		Projects: []*ProjectRecord{
			{Name: "a", ChannelNamespaces: []string{"#shared"}},
			{Name: "b", ChannelNamespaces: []string{"#SHARED"}},
		},
	}
	reg := newRegistry()
	_, err := Restore(snap, reg, nil)
	require.Error(t, err)
	assert.Equal(t, 0, reg.Len())
	assert.False(t, snap.Consumed())
}
