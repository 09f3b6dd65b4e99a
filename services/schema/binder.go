package schema

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"gorm.io/gorm"
	gormschema "gorm.io/gorm/schema"
)

var Module = fx.Module("schema.module",
	fx.Provide(Default),
)

// Registration pairs a model name with a constructor for its zero value.
type Registration struct {
	Name string
	New  func() any
}

// Table is the static set of models bound to every tenant connection.
type Table struct {
	registrations []Registration
}

func NewTable(regs ...Registration) *Table {
	return &Table{registrations: append([]Registration(nil), regs...)}
}

// Default returns the back-office model set.
func Default() *Table {
	return NewTable(
		Registration{Name: "customers", New: func() any { return &Customer{} }},
		Registration{Name: "accounts", New: func() any { return &Account{} }},
		Registration{Name: "ipo_applications", New: func() any { return &IPOApplication{} }},
		Registration{Name: "portfolios", New: func() any { return &Portfolio{} }},
		Registration{Name: "fees", New: func() any { return &Fee{} }},
	)
}

func (t *Table) Names() []string {
	names := make([]string, 0, len(t.registrations))
	for _, r := range t.registrations {
		names = append(names, r.Name)
	}
	return names
}

// Models returns a fresh zero value for every registration, for migrations.
func (t *Table) Models() []any {
	models := make([]any, 0, len(t.registrations))
	for _, r := range t.registrations {
		models = append(models, r.New())
	}
	return models
}

// Model is one registration bound to one connection.
type Model struct {
	Name   string
	Schema *gormschema.Schema
	db     *gorm.DB
	newFn  func() any
}

// DB returns a session scoped to this model on the bound connection.
func (m *Model) DB(ctx context.Context) *gorm.DB {
	return m.db.WithContext(ctx).Model(m.newFn())
}

// Conn is the connection this model was bound to.
func (m *Model) Conn() *gorm.DB {
	return m.db
}

// Bindings maps a model name to its binding on one connection.
type Bindings map[string]*Model

func (b Bindings) Model(name string) (*Model, bool) {
	m, ok := b[name]
	return m, ok
}

// Bind parses every registered model and its relations against db's own
// schema cache and returns sessions scoped to db.
func (t *Table) Bind(db *gorm.DB) (Bindings, error) {
	if db == nil {
		return nil, fmt.Errorf("bind: nil connection")
	}

	conn := db.Session(&gorm.Session{NewDB: true})
	bindings := make(Bindings, len(t.registrations))
	for _, r := range t.registrations {
		if _, dup := bindings[r.Name]; dup {
			return nil, fmt.Errorf("bind: duplicate model %q", r.Name)
		}

		stmt := &gorm.Statement{DB: conn}
		if err := stmt.Parse(r.New()); err != nil {
			return nil, fmt.Errorf("bind %s: %w", r.Name, err)
		}

		bindings[r.Name] = &Model{
			Name:   r.Name,
			Schema: stmt.Schema,
			db:     conn,
			newFn:  r.New,
		}
	}

	return bindings, nil
}
