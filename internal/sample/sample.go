// Package sample holds a small invoicing model used by the demo command and
// by tests across the module.
package sample

import (
	"time"

	"github.com/shopspring/decimal"

	"rowgraph/internal/entity"
	"rowgraph/internal/metadata"
)

// All returns one instance of every sample type, for registration.
func All() []metadata.Describer {
	return []metadata.Describer{
		NewCustomerType(), NewCustomer(), NewProfile(), NewInvoice(), NewLine(),
		NewProduct(), NewSupplier(), NewProductSupplier(),
	}
}

type CustomerType struct{ entity.Base }

func NewCustomerType() *CustomerType { return &CustomerType{} }

func (*CustomerType) Describe(b *metadata.Builder) {
	b.Constructor(func() metadata.Describer { return NewCustomerType() })
	b.Column("Name", metadata.TypeString)
}

func (c *CustomerType) Name() string     { return entity.String(c, "Name") }
func (c *CustomerType) SetName(v string) { c.Set("Name", v) }

type Customer struct{ entity.Base }

func NewCustomer() *Customer { return &Customer{} }

func (*Customer) Describe(b *metadata.Builder) {
	b.Constructor(func() metadata.Describer { return NewCustomer() })
	b.Column("Name", metadata.TypeString)
	b.Column("Email", metadata.TypeString)
	b.Column("Vip", metadata.TypeBool)
	b.Reference("CustomerType", func() metadata.Describer { return NewCustomerType() }).Optional()
	b.Dependence("Profile", "Customer", func() metadata.Describer { return NewProfile() })
}

func (c *Customer) Name() string      { return entity.String(c, "Name") }
func (c *Customer) SetName(v string)  { c.Set("Name", v) }
func (c *Customer) Email() string     { return entity.String(c, "Email") }
func (c *Customer) SetEmail(v string) { c.Set("Email", v) }
func (c *Customer) Vip() bool         { return entity.Bool(c, "Vip") }
func (c *Customer) SetVip(v bool)     { c.Set("Vip", v) }

func (c *Customer) CustomerType() entity.Reference[*CustomerType] {
	return entity.ReferenceOf[*CustomerType](c, "CustomerType")
}

func (c *Customer) Profile() entity.Dependence[*Profile] {
	return entity.DependenceOf[*Profile](c, "Profile")
}

// Profile is owned one-to-one by a Customer.
type Profile struct{ entity.Base }

func NewProfile() *Profile { return &Profile{} }

func (*Profile) Describe(b *metadata.Builder) {
	b.Constructor(func() metadata.Describer { return NewProfile() })
	b.Column("Bio", metadata.TypeString)
	b.Reference("Customer", func() metadata.Describer { return NewCustomer() })
}

func (p *Profile) Bio() string     { return entity.String(p, "Bio") }
func (p *Profile) SetBio(v string) { p.Set("Bio", v) }

type Invoice struct{ entity.Base }

func NewInvoice() *Invoice { return &Invoice{} }

func (*Invoice) Describe(b *metadata.Builder) {
	b.Constructor(func() metadata.Describer { return NewInvoice() })
	b.Column("Number", metadata.TypeString)
	b.Column("Amount", metadata.TypeFloat)
	b.Column("IssuedAt", metadata.TypeTime)
	b.Column("Note", metadata.TypeString).Transient()
	b.Reference("Customer", func() metadata.Describer { return NewCustomer() })
	b.Dependences("Lines", "Invoice", func() metadata.Describer { return NewLine() })
	b.Check("Number == ''", "invoice number is required")
}

func (i *Invoice) Number() string          { return entity.String(i, "Number") }
func (i *Invoice) SetNumber(v string)      { i.Set("Number", v) }
func (i *Invoice) Amount() float64         { return entity.Float64(i, "Amount") }
func (i *Invoice) SetAmount(v float64)     { i.Set("Amount", v) }
func (i *Invoice) IssuedAt() time.Time     { return entity.Time(i, "IssuedAt") }
func (i *Invoice) SetIssuedAt(v time.Time) { i.Set("IssuedAt", v) }

func (i *Invoice) Customer() entity.Reference[*Customer] {
	return entity.ReferenceOf[*Customer](i, "Customer")
}

func (i *Invoice) Lines() entity.Dependences[*Line] {
	return entity.DependencesOf[*Line](i, "Lines")
}

type Line struct{ entity.Base }

func NewLine() *Line { return &Line{} }

func (*Line) Describe(b *metadata.Builder) {
	b.Constructor(func() metadata.Describer { return NewLine() })
	b.Column("Description", metadata.TypeString)
	b.Column("Quantity", metadata.TypeInt)
	b.Column("Price", metadata.TypeDecimal).Precision(2)
	b.Reference("Product", func() metadata.Describer { return NewProduct() }).Optional()
	b.Reference("Invoice", func() metadata.Describer { return NewInvoice() })
	b.Check("Quantity < 0", "quantity cannot be negative")
}

func (l *Line) Description() string     { return entity.String(l, "Description") }
func (l *Line) SetDescription(v string) { l.Set("Description", v) }
func (l *Line) Quantity() int64         { return entity.Int64(l, "Quantity") }
func (l *Line) SetQuantity(v int64)     { l.Set("Quantity", v) }

func (l *Line) Price() decimal.Decimal     { return entity.Decimal(l, "Price") }
func (l *Line) SetPrice(v decimal.Decimal) { l.Set("Price", v) }

func (l *Line) Product() entity.Reference[*Product] {
	return entity.ReferenceOf[*Product](l, "Product")
}

func (l *Line) Invoice() entity.Reference[*Invoice] {
	return entity.ReferenceOf[*Invoice](l, "Invoice")
}

// Product keys are generated by the database.
type Product struct{ entity.Base }

func NewProduct() *Product { return &Product{} }

func (*Product) Describe(b *metadata.Builder) {
	b.Constructor(func() metadata.Describer { return NewProduct() })
	b.Key("ProductId", metadata.TypeInt, metadata.DatabaseGenerated)
	b.Column("Name", metadata.TypeString)
	b.Dependences("Suppliers", "Product", func() metadata.Describer { return NewProductSupplier() })
}

func (p *Product) Name() string     { return entity.String(p, "Name") }
func (p *Product) SetName(v string) { p.Set("Name", v) }

func (p *Product) Suppliers() entity.Dependences[*ProductSupplier] {
	return entity.DependencesOf[*ProductSupplier](p, "Suppliers")
}

// Supplier keys are strings issued by the key vault.
type Supplier struct{ entity.Base }

func NewSupplier() *Supplier { return &Supplier{} }

func (*Supplier) Describe(b *metadata.Builder) {
	b.Constructor(func() metadata.Describer { return NewSupplier() })
	b.Key("Code", metadata.TypeString, metadata.SelfAssigned)
	b.Column("Name", metadata.TypeString)
	b.Dependences("Products", "Supplier", func() metadata.Describer { return NewProductSupplier() })
}

func (s *Supplier) Name() string     { return entity.String(s, "Name") }
func (s *Supplier) SetName(v string) { s.Set("Name", v) }

func (s *Supplier) Products() entity.Dependences[*ProductSupplier] {
	return entity.DependencesOf[*ProductSupplier](s, "Products")
}

// ProductSupplier links products and suppliers.
type ProductSupplier struct{ entity.Base }

func NewProductSupplier() *ProductSupplier { return &ProductSupplier{} }

func (*ProductSupplier) Describe(b *metadata.Builder) {
	b.Constructor(func() metadata.Describer { return NewProductSupplier() })
	b.Link()
	b.Column("Price", metadata.TypeFloat)
	b.Reference("Product", func() metadata.Describer { return NewProduct() })
	b.Reference("Supplier", func() metadata.Describer { return NewSupplier() })
}

func (ps *ProductSupplier) Price() float64     { return entity.Float64(ps, "Price") }
func (ps *ProductSupplier) SetPrice(v float64) { ps.Set("Price", v) }

func (ps *ProductSupplier) Product() entity.Reference[*Product] {
	return entity.ReferenceOf[*Product](ps, "Product")
}

func (ps *ProductSupplier) Supplier() entity.Reference[*Supplier] {
	return entity.ReferenceOf[*Supplier](ps, "Supplier")
}
