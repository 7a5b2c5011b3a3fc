package query

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowgraph/internal/entity"
	"rowgraph/internal/metadata"
	"rowgraph/internal/sample"
	"rowgraph/internal/store"
)

func newBuilder(opts ...Option) *Builder {
	return NewBuilder(metadata.NewRegistry(), &store.PostgresDialect{}, opts...)
}

func TestBuildInsert(t *testing.T) {
	b := newBuilder()
	inv := sample.NewInvoice()
	inv.SetID(int64(10))
	inv.SetNumber("F-1")
	inv.SetAmount(12.5)
	inv.Set("Note", "not persisted")
	inv.Customer().SetID(int64(5))

	st, err := b.BuildInsert(inv)
	require.NoError(t, err)
	sql, args := b.Render(st)
	assert.Equal(t, `INSERT INTO "Invoice" ("InvoiceId", "Number", "Amount", "CustomerId", "Active") VALUES ($1, $2, $3, $4, $5)`, sql)
	assert.Equal(t, []any{int64(10), "F-1", 12.5, int64(5), true}, args)
}

func TestBuildInsert_SkipsUnsetReference(t *testing.T) {
	b := newBuilder()
	inv := sample.NewInvoice()
	inv.SetNumber("F-2")
	inv.Customer().Set(sample.NewCustomer()) // resolved but not saved yet

	st, err := b.BuildInsert(inv)
	require.NoError(t, err)
	assert.Equal(t, []string{"Number", "Active"}, st.Columns())
}

func TestBuildInsert_DatabaseGeneratedKey(t *testing.T) {
	b := newBuilder()
	p := sample.NewProduct()
	p.SetName("Widget")

	st, err := b.BuildInsert(p)
	require.NoError(t, err)
	sql, _ := b.Render(st)
	assert.Equal(t, `INSERT INTO "Product" ("Name", "Active") VALUES ($1, $2) RETURNING "ProductId"`, sql)

	my := NewBuilder(metadata.NewRegistry(), &store.MySQLDialect{})
	st, err = my.BuildInsert(p)
	require.NoError(t, err)
	sql, _ = my.Render(st)
	assert.Equal(t, "INSERT INTO `Product` (`Name`, `Active`) VALUES (?, ?)", sql)
}

func TestBuildUpdate(t *testing.T) {
	b := newBuilder()
	inv := sample.NewInvoice()
	inv.SetNumber("F-1")

	_, err := b.BuildUpdate(inv)
	assert.ErrorIs(t, err, ErrMissingIdentifier)

	inv.SetID(int64(10))
	inv.Customer().SetID(int64(5))
	inv.Customer().Clear()
	st, err := b.BuildUpdate(inv)
	require.NoError(t, err)
	sql, args := b.Render(st)
	assert.Equal(t, `UPDATE "Invoice" SET "Number" = $1, "CustomerId" = $2 WHERE "InvoiceId" = $3`, sql)
	assert.Equal(t, []any{"F-1", nil, int64(10)}, args)
}

func TestBuildUpdate_UntouchedReferenceIsLeftAlone(t *testing.T) {
	b := newBuilder()
	c := sample.NewCustomer()
	c.SetID(int64(4))
	c.SetName("ACME")
	assert.Equal(t, entity.RefEmpty, c.CustomerType().State())

	st, err := b.BuildUpdate(c)
	require.NoError(t, err)
	sql, _ := b.Render(st)
	assert.Equal(t, `UPDATE "Customer" SET "Name" = $1 WHERE "CustomerId" = $2`, sql)

	c.CustomerType().SetID(int64(2))
	c.CustomerType().Clear()
	st, err = b.BuildUpdate(c)
	require.NoError(t, err)
	sql, args := b.Render(st)
	assert.Equal(t, `UPDATE "Customer" SET "Name" = $1, "CustomerTypeId" = $2 WHERE "CustomerId" = $3`, sql)
	assert.Equal(t, []any{"ACME", nil, int64(4)}, args)
}

func TestBuildDelete_SoftAndHard(t *testing.T) {
	b := newBuilder()
	line := sample.NewLine()

	_, err := b.BuildDelete(line)
	assert.ErrorIs(t, err, ErrMissingIdentifier)

	line.SetID(int64(3))
	st, err := b.BuildDelete(line)
	require.NoError(t, err)
	assert.Empty(t, st.Assignments, "soft-delete column is added when rendering")
	sql, args := b.Render(st)
	assert.Equal(t, `UPDATE "Line" SET "Active" = $1 WHERE "LineId" = $2`, sql)
	assert.Equal(t, []any{false, int64(3)}, args)

	hard := &hardNote{}
	hard.SetID("n1")
	st, err = b.BuildDelete(hard)
	require.NoError(t, err)
	sql, _ = b.Render(st)
	assert.Equal(t, `DELETE FROM "Note" WHERE "NoteId" = $1`, sql)
}

type hardNote struct{ entity.Base }

func (*hardNote) Describe(b *metadata.Builder) {
	b.Name("Note").Constructor(func() metadata.Describer { return &hardNote{} })
	b.Key("NoteId", metadata.TypeString, metadata.Unmanaged)
	b.HardDelete()
}

func TestBuildSelect_EqualityAndLike(t *testing.T) {
	b := newBuilder()
	filter := sample.NewInvoice()
	filter.SetNumber("#like#F-%")
	filter.SetAmount(12.5)
	filter.Customer().SetID(int64(5))

	st, err := b.BuildSelect(filter)
	require.NoError(t, err)

	like, ok := st.Filter("t0", "Number")
	require.True(t, ok)
	assert.Equal(t, "LIKE", like.Op)
	assert.Equal(t, "F-%", like.Value)

	eq, ok := st.Filter("t0", "Amount")
	require.True(t, ok)
	assert.Equal(t, "=", eq.Op)

	sql, args := b.Render(st)
	assert.Equal(t, `SELECT t0."InvoiceId" AS "InvoiceId", t0."Number" AS "Number", t0."Amount" AS "Amount", t0."IssuedAt" AS "IssuedAt", `+
		`t1."CustomerId" AS "Customer.CustomerId", t1."Name" AS "Customer.Name", t1."Email" AS "Customer.Email", t1."Vip" AS "Customer.Vip", `+
		`t1."CustomerTypeId" AS "Customer.CustomerType.CustomerTypeId" `+
		`FROM "Invoice" t0 INNER JOIN "Customer" t1 ON t1."CustomerId" = t0."CustomerId" `+
		`WHERE t0."Active" = $1 AND t0."Number" LIKE $2 AND t0."Amount" = $3 AND t0."CustomerId" = $4 ORDER BY t0."InvoiceId"`, sql)
	assert.Equal(t, []any{true, "F-%", 12.5, int64(5)}, args)
}

func TestBuildSelect_PlainStringIsEquality(t *testing.T) {
	b := newBuilder()
	filter := sample.NewCustomer()
	filter.SetName("abc")

	st, err := b.BuildSelect(filter)
	require.NoError(t, err)
	c, ok := st.Filter("t0", "Name")
	require.True(t, ok)
	assert.Equal(t, "=", c.Op)
	assert.Equal(t, "abc", c.Value)

	filter.SetName("#like#abc")
	st, err = b.BuildSelect(filter)
	require.NoError(t, err)
	c, _ = st.Filter("t0", "Name")
	assert.Equal(t, "LIKE", c.Op)
	assert.Equal(t, "abc", c.Value)
}

func TestBuildSelect_NestedJoins(t *testing.T) {
	b := newBuilder()
	inv := sample.NewInvoice()
	inv.SetNumber("F-9")
	inv.Customer().SetID(int64(5))
	filter := sample.NewLine()
	filter.Invoice().Set(inv)

	st, err := b.BuildSelect(filter)
	require.NoError(t, err)

	require.Len(t, st.Joins, 3)
	assert.Equal(t, Join{Left: true, Table: "Product", Alias: "t1", Column: "ProductId", ParentAlias: "t0", ParentColumn: "ProductId"}, st.Joins[0])
	assert.Equal(t, Join{Table: "Invoice", Alias: "t2", Column: "InvoiceId", ParentAlias: "t0", ParentColumn: "InvoiceId"}, st.Joins[1])
	assert.Equal(t, Join{Table: "Customer", Alias: "t3", Column: "CustomerId", ParentAlias: "t2", ParentColumn: "CustomerId"}, st.Joins[2])

	_, ok := st.Filter("t2", "Number")
	assert.True(t, ok)
	c, ok := st.Filter("t2", "CustomerId")
	require.True(t, ok)
	assert.Equal(t, int64(5), c.Value)

	var aliases []string
	for _, p := range st.Projections {
		aliases = append(aliases, p.As)
	}
	assert.Contains(t, aliases, "Invoice.Number")
	assert.Contains(t, aliases, "Invoice.Customer.Name")
	assert.Contains(t, aliases, "Product.Name")
	assert.NotContains(t, aliases, "Product.Suppliers")

	sql, _ := b.Render(st)
	assert.Contains(t, sql, `LEFT JOIN "Product" t1 ON t1."ProductId" = t0."ProductId"`)
	assert.Contains(t, sql, `INNER JOIN "Customer" t3 ON t3."CustomerId" = t2."CustomerId"`)
	assert.Contains(t, sql, `t3."Name" AS "Invoice.Customer.Name"`)
	assert.Contains(t, sql, `t3."CustomerTypeId" AS "Invoice.Customer.CustomerType.CustomerTypeId"`)
}

type node struct{ entity.Base }

func (*node) Describe(b *metadata.Builder) {
	b.Name("Node").Constructor(func() metadata.Describer { return &node{} })
	b.Column("Label", metadata.TypeString)
	b.Reference("Parent", func() metadata.Describer { return &node{} }).Optional()
}

func TestBuildSelect_CycleFailsFast(t *testing.T) {
	b := newBuilder()
	a, c := &node{}, &node{}
	entity.SetRef(a, "Parent", c)
	entity.SetRef(c, "Parent", a)

	_, err := b.BuildSelect(a)
	assert.ErrorIs(t, err, ErrReferenceCycle)

	// a self-referencing type without a value cycle is fine
	leaf := &node{}
	entity.SetRef(leaf, "Parent", &node{})
	_, err = b.BuildSelect(leaf)
	assert.NoError(t, err)
}

func TestBuildSelect_InactiveFilter(t *testing.T) {
	b := newBuilder()
	filter := sample.NewCustomer()
	filter.SetActive(false)

	st, err := b.BuildSelect(filter)
	require.NoError(t, err)
	c, ok := st.Filter("t0", "Active")
	require.True(t, ok)
	assert.Equal(t, false, c.Value)
}

func TestRender_LiteralMode(t *testing.T) {
	b := newBuilder(WithMode(ModeLiteral))
	inv := sample.NewInvoice()
	inv.SetID(int64(10))
	inv.SetNumber("O'Brien")
	inv.SetAmount(1234.5)
	inv.SetIssuedAt(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))

	st, err := b.BuildInsert(inv)
	require.NoError(t, err)
	sql, args := b.Render(st)
	assert.Nil(t, args)
	assert.Equal(t, `INSERT INTO "Invoice" ("InvoiceId", "Number", "Amount", "IssuedAt", "Active") VALUES (10, 'O''Brien', 1234.5, '2024-03-01 09:30:00', 1)`, sql)
}

func TestLiteral(t *testing.T) {
	id := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	cases := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{"abc", "'abc'"},
		{true, "1"},
		{false, "0"},
		{0.25, "0.25"},
		{float32(1.5), "1.5"},
		{int64(42), "42"},
		{decimal.RequireFromString("10.50"), "10.5"},
		{id, "'7d444840-9dc0-11d1-b245-5ffdce74fad2'"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Literal(tc.in), "%#v", tc.in)
	}
}

func TestLike(t *testing.T) {
	b := newBuilder(WithLikeMarker("~"))
	assert.Equal(t, "~%big%red%", b.Like("  big  red "))
}
