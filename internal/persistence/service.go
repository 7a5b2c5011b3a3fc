// Package persistence saves, deletes and loads entity graphs. Saving an
// entity cascades through the dependents it owns inside one transaction.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rowgraph/internal/entity"
	"rowgraph/internal/instrument"
	"rowgraph/internal/metadata"
	"rowgraph/internal/query"
	"rowgraph/internal/store"
)

// KeyIssuer hands out self-assigned primary keys.
type KeyIssuer interface {
	NextKey(ctx context.Context, typeName string, keyType metadata.FieldType) (any, error)
}

type Option func(*Service)

// WithVault sets the issuer of self-assigned keys. Without one, saving a
// self-assigned entity requires the caller to set its identifier.
func WithVault(v KeyIssuer) Option {
	return func(s *Service) { s.vault = v }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithInstrumenter(inst instrument.Instrumenter) Option {
	return func(s *Service) {
		if inst != nil {
			s.inst = inst
		}
	}
}

func WithLikeMarker(marker string) Option {
	return func(s *Service) { s.likeMarker = marker }
}

func WithRenderMode(m query.Mode) Option {
	return func(s *Service) { s.mode = m }
}

// Service is the persistence entry point. It implements entity.Session, so
// entities it loads or saves resolve their lazy relationships through it.
type Service struct {
	exec       store.Executor
	reg        *metadata.Registry
	builder    *query.Builder
	vault      KeyIssuer
	logger     *slog.Logger
	inst       instrument.Instrumenter
	likeMarker string
	mode       query.Mode
}

var _ entity.Session = (*Service)(nil)

func New(exec store.Executor, reg *metadata.Registry, opts ...Option) *Service {
	s := &Service{
		exec:   exec,
		reg:    reg,
		logger: slog.Default(),
		inst:   &instrument.NoopInstrumenter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.builder = query.NewBuilder(reg, exec.Dialect(), query.WithLikeMarker(s.likeMarker), query.WithMode(s.mode))
	return s
}

// Builder returns the statement builder used by the service.
func (s *Service) Builder() *query.Builder { return s.builder }

func (s *Service) Prototype(e entity.Entity) (*metadata.Prototype, error) {
	return s.reg.Prototype(e)
}

// executor returns the transaction of the scope carried by ctx, or the
// service's own executor.
func (s *Service) executor(ctx context.Context) (store.Executor, *Scope, error) {
	sc := scopeFrom(ctx)
	if sc == nil {
		return s.exec, nil, nil
	}
	if sc.done {
		return nil, nil, ErrScopeClosed
	}
	return sc.tx, sc, nil
}

// PersistEntity saves e with everything it owns. An entity already saved, or
// one carrying an identifier it could not have assigned itself, is updated;
// anything else is inserted and receives its key.
func (s *Service) PersistEntity(ctx context.Context, e entity.Entity) error {
	return s.run(ctx, "persist", e, func(ctx context.Context, c *cascade, p *metadata.Prototype) error {
		return c.persist(ctx, p, e)
	})
}

// UpdateEntity saves an entity that already has an identifier.
func (s *Service) UpdateEntity(ctx context.Context, e entity.Entity) error {
	return s.run(ctx, "update", e, func(ctx context.Context, c *cascade, p *metadata.Prototype) error {
		c.enter(p, e)
		return c.update(ctx, p, e)
	})
}

// DeleteEntity deletes e and every loaded or pending dependent. Soft-deleted
// types only have their active flag cleared.
func (s *Service) DeleteEntity(ctx context.Context, e entity.Entity) error {
	return s.run(ctx, "delete", e, func(ctx context.Context, c *cascade, p *metadata.Prototype) error {
		c.enter(p, e)
		return c.delete(ctx, p, e)
	})
}

// DeleteEntityByID deletes the row of template's type with the given id.
// Nothing is cascaded since no dependents are loaded.
func (s *Service) DeleteEntityByID(ctx context.Context, template entity.Entity, id any) (err error) {
	ctx, span := s.inst.StartSpan(ctx, "persistence", "delete")
	defer func() {
		span.SetStatus(instrument.Status(err))
		span.End()
	}()

	p, err := s.reg.Prototype(template)
	if err != nil {
		return err
	}
	span.SetEntity(p.Name)
	st, err := s.builder.BuildDeleteByID(p, id)
	if err != nil {
		return MissingIdentifierError(p.Name, err)
	}
	exec, _, err := s.executor(ctx)
	if err != nil {
		return err
	}
	text, args := s.builder.Render(st)
	if _, err := exec.ExecuteNonQuery(ctx, text, args...); err != nil {
		return fmt.Errorf("delete %s %v: %w", p.Name, id, err)
	}
	return nil
}

type step func(ctx context.Context, c *cascade, p *metadata.Prototype) error

// run executes fn in the caller's scope when ctx carries one. Otherwise
// entities owning dependents, and link entities, get a scope of their own;
// everything else runs as a single statement without a transaction. On
// failure the in-memory state of every touched entity is restored.
func (s *Service) run(ctx context.Context, action string, e entity.Entity, fn step) (err error) {
	ctx, span := s.inst.StartSpan(ctx, "persistence", action)
	defer func() {
		span.SetStatus(instrument.Status(err))
		span.End()
	}()

	p, err := s.reg.Prototype(e)
	if err != nil {
		return err
	}
	span.SetEntity(p.Name)

	exec, sc, err := s.executor(ctx)
	if err != nil {
		return err
	}
	c := newCascade(s, exec)

	if sc != nil || !(p.HasDependents() || p.Link) {
		if err := fn(ctx, c, p); err != nil {
			c.journal.revert()
			return err
		}
		if sc != nil {
			sc.journal.merge(c.journal)
		}
		return nil
	}

	ctx, sc, err = s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s %s: %w", action, p.Name, err)
	}
	defer sc.Close()
	c.exec = sc.tx

	if err := fn(ctx, c, p); err != nil {
		c.journal.revert()
		s.inst.EmitEvent("persistence", "rollback", p.Name)
		s.logger.Warn("cascade failed", "action", action, "entity", p.Name, "error", err)
		return cascadeError(p.Name, action, err)
	}
	sc.journal.merge(c.journal)
	if err := sc.Commit(); err != nil {
		return cascadeError(p.Name, action, err)
	}
	s.logger.Debug("cascade committed", "action", action, "entity", p.Name, "statements", c.statements)
	return nil
}

// GetEntity loads the entity of template's type with the given id. template
// is only used for its type and may be a nil pointer.
func (s *Service) GetEntity(ctx context.Context, template entity.Entity, id any) (entity.Entity, error) {
	p, err := s.reg.Prototype(template)
	if err != nil {
		return nil, err
	}
	filter, err := newInstance(p)
	if err != nil {
		return nil, err
	}
	filter.Record().SetID(id)
	found, err := s.GetEntities(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, NotFoundError(p.Name, id)
	}
	return found[0], nil
}

// Get satisfies entity.Session.
func (s *Service) Get(ctx context.Context, template entity.Entity, id any) (entity.Entity, error) {
	return s.GetEntity(ctx, template, id)
}

// Find satisfies entity.Session.
func (s *Service) Find(ctx context.Context, filter entity.Entity) ([]entity.Entity, error) {
	return s.GetEntities(ctx, filter)
}

// GetEntities runs filter as a query-by-example and materializes each row,
// joined references included.
func (s *Service) GetEntities(ctx context.Context, filter entity.Entity) (out []entity.Entity, err error) {
	ctx, span := s.inst.StartSpan(ctx, "persistence", "find")
	defer func() {
		span.SetStatus(instrument.Status(err))
		span.End()
	}()

	st, cur, err := s.selectRows(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	span.SetEntity(st.Prototype.Name)

	m := &materializer{svc: s, root: st.Prototype, active: filter.Record().Active()}
	for cur.Next() {
		e, err := m.row(cur)
		if err != nil {
			return nil, fmt.Errorf("materialize %s: %w", st.Prototype.Name, err)
		}
		out = append(out, e)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEntitiesTabular runs filter like GetEntities but returns the raw rows,
// keyed by field path.
func (s *Service) GetEntitiesTabular(ctx context.Context, filter entity.Entity) (t *store.Table, err error) {
	ctx, span := s.inst.StartSpan(ctx, "persistence", "tabular")
	defer func() {
		span.SetStatus(instrument.Status(err))
		span.End()
	}()

	st, cur, err := s.selectRows(ctx, filter)
	if err != nil {
		return nil, err
	}
	span.SetEntity(st.Prototype.Name)
	return store.ReadTable(cur)
}

// ExecuteProcedure calls a stored procedure and returns its result set.
func (s *Service) ExecuteProcedure(ctx context.Context, name string, params ...store.Param) (t *store.Table, err error) {
	ctx, span := s.inst.StartSpan(ctx, "persistence", "procedure")
	defer func() {
		span.SetStatus(instrument.Status(err))
		span.End()
	}()
	span.SetEntity(name)

	exec, _, err := s.executor(ctx)
	if err != nil {
		return nil, err
	}
	return exec.ExecuteTabular(ctx, name, params...)
}

func (s *Service) selectRows(ctx context.Context, filter entity.Entity) (*query.Statement, store.Cursor, error) {
	st, err := s.builder.BuildSelect(filter)
	if err != nil {
		return nil, nil, err
	}
	exec, _, err := s.executor(ctx)
	if err != nil {
		return nil, nil, err
	}
	text, args := s.builder.Render(st)
	cur, err := exec.ExecuteReader(ctx, text, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("select %s: %w", st.Prototype.Name, err)
	}
	return st, cur, nil
}

// Get loads the E with the given id.
func Get[E entity.Entity](ctx context.Context, s *Service, id any) (E, error) {
	var zero E
	found, err := s.GetEntity(ctx, zero, id)
	if err != nil {
		return zero, err
	}
	e, ok := found.(E)
	if !ok {
		return zero, fmt.Errorf("get: loaded %T, want %T", found, zero)
	}
	return e, nil
}

// Find runs filter as a query-by-example.
func Find[E entity.Entity](ctx context.Context, s *Service, filter E) ([]E, error) {
	found, err := s.GetEntities(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]E, 0, len(found))
	for _, f := range found {
		e, ok := f.(E)
		if !ok {
			return nil, fmt.Errorf("find: loaded %T, want %T", f, filter)
		}
		out = append(out, e)
	}
	return out, nil
}

func newInstance(p *metadata.Prototype) (entity.Entity, error) {
	e, ok := p.New().(entity.Entity)
	if !ok {
		return nil, fmt.Errorf("%s: constructor does not return an entity", p.Name)
	}
	return e, nil
}

func isMissingIdentifier(err error) bool {
	return errors.Is(err, query.ErrMissingIdentifier)
}
