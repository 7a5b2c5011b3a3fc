package persistence

import (
	"fmt"
	"strings"

	"rowgraph/internal/entity"
	"rowgraph/internal/metadata"
	"rowgraph/internal/store"
)

// materializer turns result rows into entity graphs. Column names are field
// paths: "Number" sets a field of the root, "Customer.Name" a field of the
// entity its Customer reference points to.
type materializer struct {
	svc    *Service
	root   *metadata.Prototype
	active bool
	// fields selected under each reference path; a path with a single
	// field was selected by key only
	selected map[string]int
}

type node struct {
	proto    *metadata.Prototype
	e        entity.Entity
	path     string
	children map[string]*node
}

func (m *materializer) row(cur store.Cursor) (entity.Entity, error) {
	e, err := newInstance(m.root)
	if err != nil {
		return nil, err
	}
	e.Record().SetActive(m.active)
	root := &node{proto: m.root, e: e}
	if m.selected == nil {
		m.selected = make(map[string]int)
		for i := range cur.FieldCount() {
			parts := strings.Split(cur.Name(i), ".")
			for k := 1; k < len(parts); k++ {
				m.selected[strings.Join(parts[:k], ".")]++
			}
		}
	}

	for i := range cur.FieldCount() {
		if err := m.assign(root, strings.Split(cur.Name(i), "."), cur.Value(i)); err != nil {
			return nil, fmt.Errorf("column %s: %w", cur.Name(i), err)
		}
	}
	m.finish(root)
	return e, nil
}

func (m *materializer) assign(n *node, path []string, v any) error {
	if len(path) > 1 {
		child, err := m.child(n, path[0])
		if err != nil {
			return err
		}
		return m.assign(child, path[1:], v)
	}

	name := path[0]
	if name == n.proto.Key.Name {
		if v == nil {
			return nil
		}
		id, err := coerce(v, n.proto.Key.Type)
		if err != nil {
			return err
		}
		n.e.Record().SetID(id)
		return nil
	}

	f := n.proto.Field(name)
	if f == nil || f.Kind != metadata.KindColumn {
		// unknown columns are left for tabular reads
		return nil
	}
	if v == nil {
		return nil
	}
	val, err := coerce(v, f.Type)
	if err != nil {
		return err
	}
	n.e.Record().Set(f.Name, val)
	return nil
}

// child returns the node of a reference field, instantiating its target.
func (m *materializer) child(n *node, field string) (*node, error) {
	if c, ok := n.children[field]; ok {
		return c, nil
	}
	f := n.proto.Field(field)
	if f == nil || f.Kind != metadata.KindReference {
		return nil, fmt.Errorf("%s has no reference %s", n.proto.Name, field)
	}
	tp, err := m.svc.reg.Target(n.proto, f)
	if err != nil {
		return nil, err
	}
	e, err := newInstance(tp)
	if err != nil {
		return nil, err
	}
	path := field
	if n.path != "" {
		path = n.path + "." + field
	}
	c := &node{proto: tp, e: e, path: path}
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	n.children[field] = c
	return c, nil
}

// finish links resolved references and marks the graph clean. A joined
// entity without key came from an outer join that matched nothing; a
// reference selected only by key loads as an identifier.
func (m *materializer) finish(n *node) {
	for field, c := range n.children {
		id := c.e.Record().ID()
		switch {
		case id == nil:
			entity.RefSlotOf(n.e, field)
		case m.selected[c.path] == 1:
			entity.SetRefID(n.e, field, id)
		default:
			m.finish(c)
			entity.SetRef(n.e, field, c.e)
		}
	}
	rec := n.e.Record()
	rec.MarkPersisted(true)
	rec.MarkClean()
	rec.Bind(m.svc)
}
