package metadata

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct{}

func (*order) Describe(b *Builder) {
	b.Name("Order").Table("Orders").Constructor(func() Describer { return &order{} })
	b.Column("Number", TypeString)
	b.Column("Total", TypeDecimal).Precision(2)
	b.Column("Scratch", TypeString).Transient()
	b.Reference("Buyer", func() Describer { return &buyer{} }).Column("BuyerRef")
	b.Dependences("Items", "Order", func() Describer { return &orderItem{} })
	b.Check("Number == ''", "number is required")
}

type buyer struct{}

func (*buyer) Describe(b *Builder) {
	b.Name("Buyer").Constructor(func() Describer { return &buyer{} })
	b.Key("Code", TypeString, Unmanaged)
	b.Column("Name", TypeString)
	b.Column("Vip", TypeBool)
}

type orderItem struct{}

func (*orderItem) Describe(b *Builder) {
	b.Name("OrderItem").Constructor(func() Describer { return &orderItem{} })
	b.Column("Quantity", TypeInt)
	b.Reference("Order", func() Describer { return &order{} })
}

type ambiguous struct{}

func (*ambiguous) Describe(b *Builder) {
	b.Constructor(func() Describer { return &ambiguous{} })
	b.Key("A", TypeInt, SelfAssigned)
	b.Key("B", TypeInt, SelfAssigned)
}

type noCtor struct{}

func (*noCtor) Describe(b *Builder) {
	b.Column("Name", TypeString)
}

type badBackRef struct{}

func (*badBackRef) Describe(b *Builder) {
	b.Name("BadBackRef").Constructor(func() Describer { return &badBackRef{} })
	b.Dependences("Items", "Quantity", func() Describer { return &orderItem{} })
}

func TestPrototype_Conventions(t *testing.T) {
	reg := NewRegistry()

	p, err := reg.Prototype(&orderItem{})
	require.NoError(t, err)
	assert.Equal(t, "OrderItem", p.Table)
	assert.Equal(t, "OrderItemId", p.Key.Name)
	assert.Equal(t, TypeInt, p.Key.Type)
	assert.Equal(t, SelfAssigned, p.Strategy)
	assert.Equal(t, "Active", p.ActiveColumn)
	assert.True(t, p.SoftDelete)
	assert.Equal(t, "OrderId", p.Field("Order").Column)
	assert.False(t, p.HasDependents())
}

func TestPrototype_Overrides(t *testing.T) {
	reg := NewRegistry(WithActiveColumn("Enabled"))

	p, err := reg.Prototype(&order{})
	require.NoError(t, err)
	assert.Equal(t, "Orders", p.Table)
	assert.Equal(t, "BuyerRef", p.Field("Buyer").Column)
	assert.Equal(t, "Enabled", p.ActiveColumn)
	assert.True(t, p.Field("Scratch").Transient)

	var cols []string
	for _, f := range p.Columns() {
		cols = append(cols, f.Name)
	}
	assert.Equal(t, []string{"Number", "Total"}, cols)
	require.Len(t, p.References(), 1)
	require.Len(t, p.Dependents(), 1)
	assert.Equal(t, KindDependences, p.Dependents()[0].Kind)
	assert.True(t, p.HasDependents())

	b, err := reg.Prototype(&buyer{})
	require.NoError(t, err)
	assert.Equal(t, "Code", b.Key.Name)
	assert.Equal(t, Unmanaged, b.Strategy)
	assert.Equal(t, []string{"Vip"}, b.BoolColumns())
}

func TestPrototype_SnakePluralNaming(t *testing.T) {
	reg := NewRegistry(WithNaming(NamingSnakePlural))

	p, err := reg.Prototype(&orderItem{})
	require.NoError(t, err)
	assert.Equal(t, "order_items", p.Table)
}

func TestPrototype_CachedOnce(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	results := make([]*Prototype, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := reg.Prototype(&order{})
			if err == nil {
				results[i] = p
			}
		}(i)
	}
	wg.Wait()

	for _, p := range results {
		require.NotNil(t, p)
		assert.Same(t, results[0], p)
	}
	assert.Same(t, results[0], reg.Lookup("Order"))
}

func TestPrototype_MappingErrors(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Prototype(&ambiguous{})
	var me *MappingError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "ambiguous", me.Entity)
	assert.Contains(t, me.Reason, "ambiguous key")

	// same error on every lookup
	_, again := reg.Prototype(&ambiguous{})
	assert.Equal(t, err, again)

	_, err = reg.Prototype(&noCtor{})
	require.True(t, errors.As(err, &me))
	assert.Contains(t, me.Reason, "constructor")
}

func TestTarget_ValidatesBackReference(t *testing.T) {
	reg := NewRegistry()

	owner, err := reg.Prototype(&order{})
	require.NoError(t, err)
	target, err := reg.Target(owner, owner.Field("Items"))
	require.NoError(t, err)
	assert.Equal(t, "OrderItem", target.Name)

	bad, err := reg.Prototype(&badBackRef{})
	require.NoError(t, err)
	_, err = reg.Target(bad, bad.Field("Items"))
	var me *MappingError
	require.True(t, errors.As(err, &me))
	assert.Contains(t, me.Reason, "back-reference")
}

func TestCheck_Violated(t *testing.T) {
	reg := NewRegistry()
	p, err := reg.Prototype(&order{})
	require.NoError(t, err)
	require.Len(t, p.Checks, 1)

	violated, err := p.Checks[0].Violated(map[string]any{"Number": ""})
	require.NoError(t, err)
	assert.True(t, violated)

	violated, err = p.Checks[0].Violated(map[string]any{"Number": "F-1"})
	require.NoError(t, err)
	assert.False(t, violated)
}

func TestAll_SortedByName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&orderItem{}, &buyer{}, &order{}))

	var names []string
	for _, p := range reg.All() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Buyer", "Order", "OrderItem"}, names)
}

type invoiceRow struct{}

func (*invoiceRow) Describe(b *Builder) {
	b.Name("InvoiceRow").Constructor(func() Describer { return &invoiceRow{} })
	b.Column("Label", TypeString)
	b.Column("InvoiceRowId", TypeString)
	b.Reference("Buyer", func() Describer { return &buyer{} })
	b.Reference("Payer", func() Describer { return &buyer{} })
	b.Reference("Previous", func() Describer { return &invoiceRow{} }).Optional()
}

func TestPrototype_KeyAdoptedFromConventionalColumn(t *testing.T) {
	reg := NewRegistry()

	p, err := reg.Prototype(&invoiceRow{})
	require.NoError(t, err)
	assert.Equal(t, "InvoiceRowId", p.Key.Name)
	assert.Equal(t, TypeString, p.Key.Type)
	for _, f := range p.Columns() {
		assert.NotEqual(t, "InvoiceRowId", f.Name, "key is not also a column")
	}
}

func TestPrototype_ReferenceColumnFollowsTargetKey(t *testing.T) {
	reg := NewRegistry()

	p, err := reg.Prototype(&invoiceRow{})
	require.NoError(t, err)
	assert.Equal(t, "Code", p.Field("Buyer").Column)
	assert.Equal(t, "PayerId", p.Field("Payer").Column, "second reference to the same target")
	assert.Equal(t, "PreviousId", p.Field("Previous").Column, "self reference would collide with the key")
}

func TestTypeKey_IncludesImportPath(t *testing.T) {
	assert.Equal(t, "*rowgraph/internal/metadata.order", typeKey(reflect.TypeOf(&order{})))
	assert.Equal(t, "rowgraph/internal/metadata.buyer", typeKey(reflect.TypeOf(buyer{})))
}
