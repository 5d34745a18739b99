package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/db/models"
)

var errProjectDB = errors.New("project db error")

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newProjectRepo(t *testing.T) (*ProjectRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewProjectRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var (
	projectCols   = []string{"name", "position", "open_registration", "reg_info", "created_at", "creator", "last_mark"}
	markCols      = []string{"project_name", "number", "marked_at", "setter_id", "setter_name", "text"}
	contactCols   = []string{"project_name", "account_name", "position", "visible", "secondary"}
	namespaceCols = []string{"project_name", "kind", "namespace", "position"}
)

func sampleSnapshot() *models.ProjectSnapshot {
	created := time.Unix(1700000000, 0).UTC()
	return &models.ProjectSnapshot{Projects: []models.ProjectRowSet{{
		Project: models.Project{Name: "foo", OpenRegistration: true, CreatedAt: &created, Creator: "alice"},
		Marks: []models.ProjectMark{
			{ProjectName: "foo", Number: 1, MarkedAt: created, SetterID: "A1", SetterName: "alice", Text: "hello"},
		},
		Contacts: []models.ProjectContact{
			{ProjectName: "foo", AccountName: "bob", Visible: true},
		},
		Namespaces: []models.ProjectNamespace{
			{ProjectName: "foo", Kind: models.NamespaceKindChannel, Namespace: "#foo"},
			{ProjectName: "foo", Kind: models.NamespaceKindCloak, Namespace: "foo/", Position: 0},
		},
	}}}
}

// ---------------------------------------------------------------------------
// LoadSnapshot
// ---------------------------------------------------------------------------

func TestLoadSnapshot_GroupsChildren(t *testing.T) {
	repo, mock := newProjectRepo(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .* FROM projects").WillReturnRows(
		sqlmock.NewRows(projectCols).
			AddRow("foo", 0, true, "", now, "alice", 0).
			AddRow("bar", 1, false, "see /faq", nil, "", 4))
	mock.ExpectQuery("SELECT .* FROM project_marks").WillReturnRows(
		sqlmock.NewRows(markCols).
			AddRow("bar", 1, now, "A1", "alice", "first").
			AddRow("ghost", 1, now, "", "", "orphan"))
	mock.ExpectQuery("SELECT .* FROM project_contacts").WillReturnRows(
		sqlmock.NewRows(contactCols).AddRow("foo", "bob", 0, true, false))
	mock.ExpectQuery("SELECT .* FROM project_namespaces").WillReturnRows(
		sqlmock.NewRows(namespaceCols).
			AddRow("foo", "channel", "#foo", 0).
			AddRow("foo", "cloak", "foo", 0))

	snap, err := repo.LoadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Projects) != 2 {
		t.Fatalf("projects = %d, want 2", len(snap.Projects))
	}
	foo, bar := snap.Projects[0], snap.Projects[1]
	if foo.Project.Name != "foo" || len(foo.Contacts) != 1 || len(foo.Namespaces) != 2 {
		t.Errorf("unexpected foo set: %+v", foo)
	}
	if bar.Project.CreatedAt != nil {
		t.Errorf("bar created_at = %v, want nil", bar.Project.CreatedAt)
	}
	if len(bar.Marks) != 1 || bar.Marks[0].Text != "first" {
		t.Errorf("bar marks = %+v", bar.Marks)
	}
	if bar.Project.LastMark != 4 {
		t.Errorf("bar last_mark = %d, want 4", bar.Project.LastMark)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLoadSnapshot_Error(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("SELECT .* FROM projects").WillReturnError(errProjectDB)

	if _, err := repo.LoadSnapshot(context.Background()); !errors.Is(err, errProjectDB) {
		t.Errorf("err = %v, want wrapped errProjectDB", err)
	}
}

// ---------------------------------------------------------------------------
// ReplaceSnapshot
// ---------------------------------------------------------------------------

func expectClear(mock sqlmock.Sqlmock) {
	for _, table := range []string{"project_namespaces", "project_contacts", "project_marks", "projects"} {
		mock.ExpectExec("DELETE FROM " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
}

func TestReplaceSnapshot_Success(t *testing.T) {
	repo, mock := newProjectRepo(t)

	mock.ExpectBegin()
	expectClear(mock)
	mock.ExpectExec("INSERT INTO projects").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO project_marks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO project_contacts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO project_namespaces").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO project_namespaces").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.ReplaceSnapshot(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplaceSnapshot_EmptyClearsTables(t *testing.T) {
	repo, mock := newProjectRepo(t)

	mock.ExpectBegin()
	expectClear(mock)
	mock.ExpectCommit()

	if err := repo.ReplaceSnapshot(context.Background(), &models.ProjectSnapshot{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReplaceSnapshot_BeginError(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectBegin().WillReturnError(errProjectDB)

	if err := repo.ReplaceSnapshot(context.Background(), sampleSnapshot()); err == nil {
		t.Error("expected error from Begin")
	}
}

func TestReplaceSnapshot_InsertErrorRollsBack(t *testing.T) {
	repo, mock := newProjectRepo(t)

	mock.ExpectBegin()
	expectClear(mock)
	mock.ExpectExec("INSERT INTO projects").WillReturnError(errProjectDB)
	mock.ExpectRollback()

	err := repo.ReplaceSnapshot(context.Background(), sampleSnapshot())
	if !errors.Is(err, errProjectDB) {
		t.Errorf("err = %v, want wrapped errProjectDB", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// CountProjects
// ---------------------------------------------------------------------------

// ---------------------------------------------------------------------------
// AccountRepository
// ---------------------------------------------------------------------------

func newAccountRepo(t *testing.T) (*AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAccountRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var accountCols = []string{"id", "name", "created_at", "updated_at"}

func TestListAccounts(t *testing.T) {
	repo, mock := newAccountRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(
		sqlmock.NewRows(accountCols).AddRow("A1", "alice", now, now).AddRow("B2", "bob", now, now))

	refs, err := repo.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []accounts.Ref{{ID: "A1", Name: "alice"}, {ID: "B2", Name: "bob"}}
	if len(refs) != len(want) {
		t.Fatalf("refs = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %v, want %v", i, refs[i], want[i])
		}
	}
}

func TestUpsertAccount(t *testing.T) {
	repo, mock := newAccountRepo(t)
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs("A1", "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertAccount(context.Background(), accounts.Ref{ID: "A1", Name: "alice"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteAccount_Error(t *testing.T) {
	repo, mock := newAccountRepo(t)
	mock.ExpectExec("DELETE FROM accounts").WillReturnError(errProjectDB)

	if err := repo.DeleteAccount(context.Background(), "A1"); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// CommandLogRepository
// ---------------------------------------------------------------------------

func newCommandLogRepo(t *testing.T) (*CommandLogRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCommandLogRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestCommandLogAppend(t *testing.T) {
	repo, mock := newCommandLogRepo(t)
	mock.ExpectQuery("INSERT INTO command_log").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	entry := &models.CommandLogEntry{Source: "alice", Verb: "REGISTER", Line: "PROJECT:REGISTER: foo"}
	if err := repo.Append(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID != 42 {
		t.Errorf("id = %d, want 42", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("created_at was not stamped")
	}
}
