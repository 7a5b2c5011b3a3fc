package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"rowgraph/internal/metadata"
)

// Migrator creates and extends tables from entity prototypes.
type Migrator struct {
	store  *Store
	reg    *metadata.Registry
	logger *slog.Logger
}

func NewMigrator(store *Store, reg *metadata.Registry) *Migrator {
	return &Migrator{store: store, reg: reg, logger: store.logger}
}

// Migrate ensures every table matches its prototype.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, protos ...*metadata.Prototype) error {
	for _, p := range protos {
		exists, err := m.store.dialect.TableExists(ctx, m.store.DB, p.Table)
		if err != nil {
			return fmt.Errorf("check table %s exists: %w", p.Table, err)
		}
		if !exists {
			err = m.createTable(ctx, p)
		} else {
			err = m.alterTable(ctx, p)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// MigrateAll migrates every prototype known to the registry.
func (m *Migrator) MigrateAll(ctx context.Context) error {
	return m.Migrate(ctx, m.reg.All()...)
}

func (m *Migrator) createTable(ctx context.Context, p *metadata.Prototype) error {
	defs, err := m.columnDefs(p)
	if err != nil {
		return err
	}
	d := m.store.dialect
	cols := []string{m.keyDef(p)}
	for _, def := range defs {
		cols = append(cols, def.sql)
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.QuoteIdent(p.Table), strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", p.Table, err)
	}
	m.logger.Info("table created", "entity", p.Name, "table", p.Table)
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, p *metadata.Prototype) error {
	d := m.store.dialect
	existing, err := d.GetColumns(ctx, m.store.DB, p.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", p.Table, err)
	}
	defs, err := m.columnDefs(p)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if existing[def.column] {
			continue
		}
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.QuoteIdent(p.Table), def.sql)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", p.Table, def.column, err)
		}
		m.logger.Info("column added", "table", p.Table, "column", def.column)
	}
	return nil
}

type columnDef struct {
	column string
	sql    string
}

func (m *Migrator) keyDef(p *metadata.Prototype) string {
	d := m.store.dialect
	if p.Strategy == metadata.DatabaseGenerated {
		return d.GeneratedKeyDef(p.Key.Column, p.Key.Type)
	}
	return d.QuoteIdent(p.Key.Column) + " " + d.ColumnType(p.Key.Type, 0) + " PRIMARY KEY"
}

func (m *Migrator) columnDefs(p *metadata.Prototype) ([]columnDef, error) {
	d := m.store.dialect
	var defs []columnDef
	for _, f := range p.Fields {
		if !f.IsPersisted() {
			continue
		}
		colType := d.ColumnType(f.Type, f.Precision)
		if f.Kind == metadata.KindReference {
			target, err := m.reg.Target(p, f)
			if err != nil {
				return nil, err
			}
			colType = d.ColumnType(target.Key.Type, 0)
		}
		defs = append(defs, columnDef{column: f.Column, sql: d.QuoteIdent(f.Column) + " " + colType})
	}
	if p.SoftDelete {
		defs = append(defs, columnDef{
			column: p.ActiveColumn,
			sql:    d.QuoteIdent(p.ActiveColumn) + " " + d.ColumnType(metadata.TypeBool, 0) + " NOT NULL DEFAULT " + boolDefault(d),
		})
	}
	return defs, nil
}

func boolDefault(d Dialect) string {
	if d.Name() == "postgres" {
		return "TRUE"
	}
	return "1"
}
