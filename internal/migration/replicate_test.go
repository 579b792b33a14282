package migration

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leandro-jm/bulk-migration/internal/database"
)

func TestBuildInsertSQL(t *testing.T) {
	got := buildInsertSQL("users", []string{"id", "name"})
	want := `INSERT INTO "users" ("id", "name") VALUES ($1, $2)`
	if got != want {
		t.Errorf("buildInsertSQL = %q, want %q", got, want)
	}
}

func TestBuildUpsertSQLWithNonPKColumns(t *testing.T) {
	got := buildUpsertSQL("users", []string{"id", "name", "email"}, []string{"id"})
	want := `INSERT INTO "users" ("id", "name", "email") VALUES ($1, $2, $3) ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name", "email" = EXCLUDED."email"`
	if got != want {
		t.Errorf("buildUpsertSQL = %q, want %q", got, want)
	}
}

func TestBuildUpsertSQLPKOnlyFallsBackToDoNothing(t *testing.T) {
	got := buildUpsertSQL("memberships", []string{"id"}, []string{"id"})
	want := `INSERT INTO "memberships" ("id") VALUES ($1) ON CONFLICT ("id") DO NOTHING`
	if got != want {
		t.Errorf("buildUpsertSQL = %q, want %q", got, want)
	}
}

func TestSelectAllSQL(t *testing.T) {
	got := selectAllSQL("users", []string{"id", "name"})
	want := `SELECT "id", "name" FROM "users"`
	if got != want {
		t.Errorf("selectAllSQL = %q, want %q", got, want)
	}
}

func TestColumnNames(t *testing.T) {
	cols := []database.ColumnDescriptor{{Name: "id"}, {Name: "name"}}
	got := columnNames(cols)
	want := []string{"id", "name"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("columnNames = %v, want %v", got, want)
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New(`duplicate key value violates unique constraint "users_email_key"`), true},
		{errors.New("unique constraint violation"), true},
		{errors.New("connection refused"), false},
	}
	for _, c := range cases {
		if got := isDuplicateKeyError(c.err); got != c.want {
			t.Errorf("isDuplicateKeyError(%q) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestIsDuplicateKeyErrorPrefersPgErrorCode(t *testing.T) {
	// A message that matches neither substring still counts as a duplicate
	// key when the driver reports unique_violation (23505).
	err := &pgconn.PgError{Code: "23505", Message: "some translated, unrelated-looking message"}
	if !isDuplicateKeyError(err) {
		t.Errorf("isDuplicateKeyError with Code 23505 = false, want true")
	}

	notUnique := &pgconn.PgError{Code: "23503", Message: "duplicate key mentioned but wrong code"}
	if isDuplicateKeyError(notUnique) {
		t.Errorf("isDuplicateKeyError with Code 23503 = true, want false")
	}
}

func TestIsAlreadyExistsErrorFallsBackToSubstring(t *testing.T) {
	err := errors.New(`constraint "users_email_key" already exists`)
	if !isAlreadyExistsError(err) {
		t.Errorf("isAlreadyExistsError(%q) = false, want true", err)
	}
	if isAlreadyExistsError(errors.New("connection refused")) {
		t.Errorf("isAlreadyExistsError unrelated error = true, want false")
	}
}

func TestTruncatedPayloadLimitsLength(t *testing.T) {
	row := make([]any, 0, 100)
	for i := 0; i < 100; i++ {
		row = append(row, "some moderately long value to pad out the json payload")
	}
	out := truncatedPayload(row)
	if len(out) > 200 {
		t.Errorf("truncatedPayload length = %d, want <= 200", len(out))
	}
}
