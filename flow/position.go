package flow

import (
	"fmt"
	"sort"
)

// FrameDoc is the serialized run state of one frame. Child is the static
// child index the next frame was pushed from, -1 for the top frame.
type FrameDoc struct {
	Child  int `json:"child"`
	Index  int `json:"index"`
	Iter   int `json:"iter,omitempty"`
	Branch int `json:"branch"`
}

// Position is the fully serializable flow location: the frame path down
// the static tree, per-frame counters, the bound actor, the completion set
// of a simultaneous step, and the flow-scoped variables.
type Position struct {
	Status    string         `json:"status"`
	Frames    []FrameDoc     `json:"frames,omitempty"`
	Actor     int            `json:"actor,omitempty"`
	Completed []int          `json:"completed,omitempty"`
	Vars      map[string]any `json:"vars,omitempty"`
}

// Position captures the current location. The engine only suspends at step
// boundaries, so this is called while awaiting input or after completion.
func (m *Machine) Position() *Position {
	p := &Position{Status: m.status.String()}
	if len(m.Vars) > 0 {
		p.Vars = make(map[string]any, len(m.Vars))
		for k, v := range m.Vars {
			p.Vars[k] = v
		}
	}
	for i, f := range m.stack {
		fd := FrameDoc{Child: -1, Index: f.index, Iter: f.iter, Branch: f.branch}
		if i < len(m.stack)-1 {
			fd.Child = f.child
		}
		p.Frames = append(p.Frames, fd)
	}
	if f := m.awaitFrame(); f != nil {
		if !f.await.multi {
			p.Actor = f.await.actor
		} else {
			for s, done := range f.await.completed {
				if done {
					p.Completed = append(p.Completed, s)
				}
			}
			sort.Ints(p.Completed)
		}
	}
	return p
}

// Restore re-walks the static flow tree along the serialized path. A path
// that no longer fits the tree's shape fails with the valid prefix named,
// so a flow-definition change between save and load is diagnosable.
func (m *Machine) Restore(p *Position) error {
	m.stack = nil
	m.status = StatusIdle
	m.Vars = make(map[string]any, 8)
	if p == nil {
		return nil
	}
	for k, v := range p.Vars {
		m.Vars[k] = v
	}
	if p.Status == StatusComplete.String() {
		m.status = StatusComplete
		return nil
	}
	if len(p.Frames) == 0 {
		return nil
	}

	cur := m.root
	var prefix []int
	for i, fd := range p.Frames {
		f := &frame{
			node: cur, child: fd.Child, index: fd.Index,
			iter: fd.Iter, branch: fd.Branch, entered: true,
		}
		if cur.Kind == KPerPlayer || cur.Kind == KForEach {
			f.items = m.materialize(cur)
			if fd.Index > len(f.items) {
				return fmt.Errorf("flow: restore: node %q (path %v) iterates %d items, position wants index %d",
					cur.Name, prefix, len(f.items), fd.Index)
			}
		}
		m.stack = append(m.stack, f)
		if i == len(p.Frames)-1 {
			break
		}
		if fd.Child < 0 || fd.Child >= len(cur.Children) {
			return fmt.Errorf("flow: restore: node %q (valid path prefix %v) has %d children, position wants child %d",
				cur.Name, prefix, len(cur.Children), fd.Child)
		}
		prefix = append(prefix, fd.Child)
		cur = cur.Children[fd.Child]
	}

	if p.Status != StatusAwaiting.String() {
		// Saved between steps; run forward to the next boundary.
		return m.run()
	}

	top := m.stack[len(m.stack)-1]
	switch top.node.Kind {
	case KAction:
		actor := p.Actor
		if actor == 0 && top.node.Actor != nil {
			actor = top.node.Actor(m)
		}
		top.await = &awaitState{
			actor: actor,
			legal: map[int][]string{actor: m.ctx.LegalActions(actor, top.node.Actions)},
		}
	case KSimultaneous:
		seats := m.ctx.Seats()
		if top.node.Eligible != nil {
			seats = top.node.Eligible(m)
		}
		aw := &awaitState{
			multi:     true,
			seats:     append([]int(nil), seats...),
			legal:     map[int][]string{},
			completed: map[int]bool{},
		}
		for _, s := range p.Completed {
			aw.completed[s] = true
		}
		for _, s := range aw.seats {
			if aw.completed[s] {
				continue
			}
			l := m.ctx.LegalActions(s, top.node.Actions)
			if len(l) == 0 {
				aw.completed[s] = true
				continue
			}
			aw.legal[s] = l
		}
		top.await = aw
	default:
		return fmt.Errorf("flow: restore: position awaits input at non-action node %q", top.node.Name)
	}
	m.status = StatusAwaiting
	return nil
}
