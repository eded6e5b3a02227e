package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"lib:secret@tcp(db:3306)/library?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		DSN("lib", "secret", "db", "3306", "library"))
	assert.Equal(t,
		"lib@tcp(db:3306)/library?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		DSN("lib", "", "db", "3306", "library"))
}

func TestStatements(t *testing.T) {
	stmts := Statements()
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "study_tables")
	assert.Contains(t, stmts[0], "idx_study_tables_floor")
	assert.Contains(t, stmts[1], "study_seats")
	assert.Contains(t, stmts[2], "lease_holds")
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, s := range Statements() {
		mock.ExpectExec(regexp.QuoteMeta(s)).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
