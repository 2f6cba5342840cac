package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSplitStatementsRespectsQuotedSemicolons(t *testing.T) {
	raw := `insert into roles (id, name) values ('01X', 'a;b');
	select 1;`
	stmts := splitStatements(raw)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[0], "'a;b'") {
		t.Fatalf("quoted semicolon split a statement: %q", stmts[0])
	}
}

func TestSplitStatementsDropsTrailingWhitespace(t *testing.T) {
	stmts := splitStatements("select 1;\n\n   \n")
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d: %q", len(stmts), stmts)
	}
}

func TestListScriptsOrdersAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_audit.up.sql", "0001_init.up.sql", "0001_init.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	scripts, err := listScripts(dir, upSuffix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(scripts) != 2 || scripts[0].name != "0001_init.up.sql" || scripts[1].name != "0002_audit.up.sql" {
		t.Fatalf("unexpected scripts: %+v", scripts)
	}
}

func TestListScriptsMissingDir(t *testing.T) {
	scripts, err := listScripts(filepath.Join(t.TempDir(), "absent"), upSuffix)
	if err != nil || scripts != nil {
		t.Fatalf("expected no scripts for missing dir, got %v, %v", scripts, err)
	}
}

func TestUpAppliesPendingMigration(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "0001_init.up.sql"), []byte("create table t (id text);"), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table t").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0001_init.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mgr := NewManager(db, dir, "")
	if err := mgr.Up(context.Background()); err != nil {
		t.Fatalf("up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVerifySeedRolesReportsMissing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select exists").WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("select exists").WithArgs("clinician").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("select exists").WithArgs("staff").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	mgr := NewManager(db, "", "")
	err = mgr.VerifySeedRoles(context.Background())
	if err == nil || !strings.Contains(err.Error(), "clinician") {
		t.Fatalf("expected missing clinician role error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVerifySeedRolesAllPresent(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	for range BaselineRoles {
		mock.ExpectQuery("select exists").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}

	mgr := NewManager(db, "", "")
	if err := mgr.VerifySeedRoles(context.Background()); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
