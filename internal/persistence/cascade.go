package persistence

import (
	"context"
	"fmt"

	"rowgraph/internal/entity"
	"rowgraph/internal/metadata"
	"rowgraph/internal/store"
)

// cascade carries the state of one save or delete through the entity graph:
// the executor, entities already visited, and the undo journal.
type cascade struct {
	svc        *Service
	exec       store.Executor
	visited    map[string]bool
	tracked    map[*entity.Base]bool
	journal    journal
	statements int
}

func newCascade(s *Service, exec store.Executor) *cascade {
	return &cascade{
		svc:     s,
		exec:    exec,
		visited: make(map[string]bool),
		tracked: make(map[*entity.Base]bool),
	}
}

func visitKeys(p *metadata.Prototype, e entity.Entity) []string {
	keys := []string{fmt.Sprintf("%s@%p", p.Name, e.Record())}
	if id := e.Record().ID(); id != nil {
		keys = append(keys, fmt.Sprintf("%s:%v", p.Name, id))
	}
	return keys
}

// enter marks e visited. It returns false when e was visited before, either
// as the same instance or as another instance with the same identifier.
func (c *cascade) enter(p *metadata.Prototype, e entity.Entity) bool {
	keys := visitKeys(p, e)
	for _, k := range keys {
		if c.visited[k] {
			return false
		}
	}
	for _, k := range keys {
		c.visited[k] = true
	}
	return true
}

func (c *cascade) seen(p *metadata.Prototype, e entity.Entity) bool {
	for _, k := range visitKeys(p, e) {
		if c.visited[k] {
			return true
		}
	}
	return false
}

// track snapshots e the first time the cascade is about to change it.
func (c *cascade) track(e entity.Entity) {
	rec := e.Record()
	if c.tracked[rec] {
		return
	}
	c.tracked[rec] = true
	c.journal.add(rec.Snapshot())
}

func (c *cascade) persist(ctx context.Context, p *metadata.Prototype, e entity.Entity) error {
	if !c.enter(p, e) {
		return nil
	}
	rec := e.Record()
	if rec.Persisted() || (rec.ID() != nil && p.Strategy != metadata.SelfAssigned) {
		return c.update(ctx, p, e)
	}
	return c.insert(ctx, p, e)
}

func (c *cascade) insert(ctx context.Context, p *metadata.Prototype, e entity.Entity) error {
	c.track(e)
	rec := e.Record()

	if p.Link {
		if err := c.persistReferences(ctx, p, e); err != nil {
			return err
		}
	}
	if err := c.svc.validate(p, e); err != nil {
		return err
	}

	switch p.Strategy {
	case metadata.SelfAssigned:
		if rec.ID() == nil {
			if c.svc.vault == nil {
				return GeneratedIdentifierError(p.Name, "no key vault configured for self-assigned keys")
			}
			id, err := c.svc.vault.NextKey(ctx, p.Name, p.Key.Type)
			if err != nil {
				return fmt.Errorf("issue key for %s: %w", p.Name, err)
			}
			rec.SetID(id)
		}
	case metadata.Unmanaged:
		if rec.ID() == nil {
			return GeneratedIdentifierError(p.Name, "unmanaged key must be set before saving")
		}
	}

	st, err := c.svc.builder.BuildInsert(e)
	if err != nil {
		return err
	}
	text, args := c.svc.builder.Render(st)
	c.statements++
	if rec.ID() == nil {
		id, err := c.exec.ExecuteInsert(ctx, text, args...)
		if err != nil {
			return fmt.Errorf("insert %s: %w", p.Name, err)
		}
		if id == nil {
			return GeneratedIdentifierError(p.Name, "database returned no key")
		}
		key, err := coerce(id, p.Key.Type)
		if err != nil {
			return GeneratedIdentifierError(p.Name, err.Error())
		}
		rec.SetID(key)
	} else if _, err := c.exec.ExecuteNonQuery(ctx, text, args...); err != nil {
		return fmt.Errorf("insert %s: %w", p.Name, err)
	}

	c.enter(p, e)
	c.saved(e)
	return c.saveDependents(ctx, p, e)
}

func (c *cascade) update(ctx context.Context, p *metadata.Prototype, e entity.Entity) error {
	rec := e.Record()
	if rec.ID() == nil {
		return MissingIdentifierError(p.Name, nil)
	}
	c.track(e)

	if p.Link {
		if err := c.persistReferences(ctx, p, e); err != nil {
			return err
		}
	}
	if err := c.svc.validate(p, e); err != nil {
		return err
	}

	st, err := c.svc.builder.BuildUpdate(e)
	if err != nil {
		if isMissingIdentifier(err) {
			return MissingIdentifierError(p.Name, err)
		}
		return err
	}
	if len(st.Assignments) > 0 {
		text, args := c.svc.builder.Render(st)
		c.statements++
		if _, err := c.exec.ExecuteNonQuery(ctx, text, args...); err != nil {
			return fmt.Errorf("update %s %v: %w", p.Name, rec.ID(), err)
		}
	}

	c.saved(e)
	return c.saveDependents(ctx, p, e)
}

func (c *cascade) saved(e entity.Entity) {
	rec := e.Record()
	rec.MarkPersisted(true)
	rec.MarkClean()
	rec.Bind(c.svc)
}

// persistReferences saves the referenced entities of a link entity that
// exist only in memory, so the link row can carry their keys.
func (c *cascade) persistReferences(ctx context.Context, p *metadata.Prototype, e entity.Entity) error {
	for _, f := range p.References() {
		slot := entity.PeekRef(e, f.Name)
		if slot == nil || slot.Target() == nil {
			continue
		}
		target := slot.Target()
		tp, err := c.svc.reg.Target(p, f)
		if err != nil {
			return err
		}
		if c.seen(tp, target) {
			continue
		}
		tr := target.Record()
		if tr.Persisted() || !tr.IsDirty() {
			continue
		}
		if err := c.persist(ctx, tp, target); err != nil {
			return fmt.Errorf("%s.%s: %w", p.Name, f.Name, err)
		}
	}
	return nil
}

// saveDependents writes the pending changes of every owned field, each child
// first pointed at the owner through its back-reference.
func (c *cascade) saveDependents(ctx context.Context, p *metadata.Prototype, owner entity.Entity) error {
	for _, f := range p.Dependents() {
		tp, err := c.svc.reg.Target(p, f)
		if err != nil {
			return err
		}
		switch f.Kind {
		case metadata.KindDependence:
			slot := entity.PeekDependence(owner, f.Name)
			if slot == nil {
				continue
			}
			child := slot.Value()
			switch slot.State() {
			case entity.Created, entity.Modified:
				c.stamp(child, f.BackRef, owner)
				if err := c.persist(ctx, tp, child); err != nil {
					return fmt.Errorf("%s.%s: %w", p.Name, f.Name, err)
				}
			case entity.Deleted:
				if child != nil && child.Record().ID() != nil {
					if err := c.deleteChild(ctx, tp, child); err != nil {
						return fmt.Errorf("%s.%s: %w", p.Name, f.Name, err)
					}
				}
			}
			slot.Commit()

		case metadata.KindDependences:
			slot := entity.PeekDependences(owner, f.Name)
			if slot == nil {
				continue
			}
			inserts, updates, deletes := slot.Pending()
			for _, child := range inserts {
				c.stamp(child, f.BackRef, owner)
				if err := c.persist(ctx, tp, child); err != nil {
					return fmt.Errorf("%s.%s: %w", p.Name, f.Name, err)
				}
			}
			for _, child := range updates {
				c.stamp(child, f.BackRef, owner)
				if !c.enter(tp, child) {
					continue
				}
				if err := c.update(ctx, tp, child); err != nil {
					return fmt.Errorf("%s.%s: %w", p.Name, f.Name, err)
				}
			}
			for _, child := range deletes {
				if err := c.deleteChild(ctx, tp, child); err != nil {
					return fmt.Errorf("%s.%s: %w", p.Name, f.Name, err)
				}
			}
			slot.Commit()
		}
	}
	return nil
}

// stamp points child's back-reference at owner.
func (c *cascade) stamp(child entity.Entity, backRef string, owner entity.Entity) {
	if slot := entity.PeekRef(child, backRef); slot != nil && slot.Target() == owner {
		return
	}
	c.track(child)
	entity.SetRef(child, backRef, owner)
}

func (c *cascade) deleteChild(ctx context.Context, p *metadata.Prototype, e entity.Entity) error {
	if !c.enter(p, e) {
		return nil
	}
	return c.delete(ctx, p, e)
}

// delete removes the dependents e has in memory, then e itself.
func (c *cascade) delete(ctx context.Context, p *metadata.Prototype, e entity.Entity) error {
	rec := e.Record()
	if rec.ID() == nil {
		return MissingIdentifierError(p.Name, nil)
	}
	c.track(e)

	for _, f := range p.Dependents() {
		tp, err := c.svc.reg.Target(p, f)
		if err != nil {
			return err
		}
		switch f.Kind {
		case metadata.KindDependence:
			slot := entity.PeekDependence(e, f.Name)
			if slot == nil || slot.Value() == nil {
				continue
			}
			if child := slot.Value(); child.Record().ID() != nil {
				if err := c.deleteChild(ctx, tp, child); err != nil {
					return fmt.Errorf("%s.%s: %w", p.Name, f.Name, err)
				}
			}
			if err := slot.Delete(ctx); err != nil {
				return err
			}

		case metadata.KindDependences:
			slot := entity.PeekDependences(e, f.Name)
			if slot == nil {
				continue
			}
			_, _, deletes := slot.Pending()
			for _, child := range append(slot.Live(), deletes...) {
				if child.Record().ID() == nil {
					continue
				}
				if err := c.deleteChild(ctx, tp, child); err != nil {
					return fmt.Errorf("%s.%s: %w", p.Name, f.Name, err)
				}
			}
			slot.Commit()
		}
	}

	st, err := c.svc.builder.BuildDelete(e)
	if err != nil {
		return MissingIdentifierError(p.Name, err)
	}
	text, args := c.svc.builder.Render(st)
	c.statements++
	if _, err := c.exec.ExecuteNonQuery(ctx, text, args...); err != nil {
		return fmt.Errorf("delete %s %v: %w", p.Name, rec.ID(), err)
	}

	if p.SoftDelete {
		rec.SetActive(false)
	} else {
		rec.MarkPersisted(false)
	}
	rec.MarkClean()
	return nil
}
