package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowgraph/internal/metadata"
)

type account struct{}

func (*account) Describe(b *metadata.Builder) {
	b.Name("Account").Constructor(func() metadata.Describer { return &account{} })
	b.Key("AccountId", metadata.TypeInt, metadata.DatabaseGenerated)
	b.Column("Email", metadata.TypeString)
	b.Column("Balance", metadata.TypeDecimal).Precision(2)
	b.Reference("Owner", func() metadata.Describer { return &owner{} })
}

type owner struct{}

func (*owner) Describe(b *metadata.Builder) {
	b.Name("Owner").Constructor(func() metadata.Describer { return &owner{} })
	b.Key("Code", metadata.TypeString, metadata.Unmanaged)
	b.HardDelete()
}

func openSQLite(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return New(db, &SQLiteDialect{})
}

func TestMigrator_CreateAndAlter(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	reg := metadata.NewRegistry()
	require.NoError(t, reg.Register(&account{}, &owner{}))

	// an older version of the table without Balance and Owner
	_, err := s.DB.ExecContext(ctx, `CREATE TABLE "Account" ("AccountId" INTEGER PRIMARY KEY AUTOINCREMENT, "Email" TEXT)`)
	require.NoError(t, err)

	m := NewMigrator(s, reg)
	require.NoError(t, m.MigrateAll(ctx))

	cols, err := s.dialect.GetColumns(ctx, s.DB, "Account")
	require.NoError(t, err)
	for _, c := range []string{"AccountId", "Email", "Balance", "Code", "Active"} {
		assert.True(t, cols[c], "missing column %s", c)
	}

	ownerCols, err := s.dialect.GetColumns(ctx, s.DB, "Owner")
	require.NoError(t, err)
	assert.True(t, ownerCols["Code"])
	assert.False(t, ownerCols["Active"], "hard-delete tables carry no active column")

	// idempotent
	require.NoError(t, m.MigrateAll(ctx))

	id, err := s.ExecuteInsert(ctx, `INSERT INTO "Account" ("Email") VALUES (?1) RETURNING "AccountId"`, "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	active, err := s.ExecuteScalar(ctx, `SELECT "Active" FROM "Account" WHERE "AccountId" = ?1`, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
}
