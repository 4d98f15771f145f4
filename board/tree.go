package board

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

// Reserved type tags for the two structural nodes every tree owns.
const (
	TagRoot = "game"
	TagPile = "pile"
)

// MutationObserver receives one callback per primitive tree mutation. The
// theatre recorder attaches one while an animate scope is open; outside a
// scope the tree has no observer and mutation is unobserved.
type MutationObserver interface {
	NodeCreated(id, parent NodeID)
	NodeMoved(id, oldParent, newParent NodeID, index int)
	AttrChanged(id NodeID, key string, old, new AttrValue)
	PropChanged(id NodeID, prop, old, new string)
}

// Tree is the in-memory ownership arena of all game objects. Nodes are
// addressed by integer id; parent/children are id references. Single
// goroutine access only (the game loop), no locks.
type Tree struct {
	nodes    map[NodeID]*Node
	nextID   NodeID
	root     NodeID
	pile     NodeID
	registry *Registry
	observer MutationObserver
}

// NewTree creates a tree holding only the root node and the off-board pile.
// The pile is where "removed" nodes live: identity and attributes survive
// for inspection and undo.
func NewTree(reg *Registry) *Tree {
	t := &Tree{
		nodes:    make(map[NodeID]*Node, 64),
		nextID:   1,
		registry: reg,
	}
	t.root = t.rawCreate(TagRoot, "", Nil)
	t.pile = t.rawCreate(TagPile, "", Nil)
	return t
}

func (t *Tree) rawCreate(tag, name string, parent NodeID) NodeID {
	id := t.nextID
	t.nextID++
	t.nodes[id] = &Node{
		ID:     id,
		Type:   tag,
		Name:   name,
		Parent: parent,
		Attrs:  make(map[string]AttrValue),
	}
	return id
}

func (t *Tree) Root() NodeID          { return t.root }
func (t *Tree) Pile() NodeID          { return t.pile }
func (t *Tree) Registry() *Registry   { return t.registry }
func (t *Tree) Len() int              { return len(t.nodes) }

// SetObserver installs (or with nil, removes) the mutation observer.
func (t *Tree) SetObserver(o MutationObserver) { t.observer = o }

// Get returns the node for an id, or nil when absent. Absence is an
// ordinary answer here, never an error.
func (t *Tree) Get(id NodeID) *Node {
	return t.nodes[id]
}

// Create makes a new child node of the registered type under parent and
// inserts it per the parent's ordering discipline. Creating a placeable
// node inside a piece-like node is a structural violation.
func (t *Tree) Create(tag, name string, parent NodeID, attrs map[string]AttrValue) (NodeID, error) {
	spec, err := t.registry.MustLookup(tag)
	if err != nil {
		return Nil, err
	}
	p := t.Get(parent)
	if p == nil {
		return Nil, fmt.Errorf("board: create %q: parent %d not found", tag, parent)
	}
	if pspec := t.registry.Lookup(p.Type); pspec != nil && pspec.Piece {
		return Nil, fmt.Errorf("board: create %q: parent %d is piece-like and cannot contain children", tag, parent)
	}

	id := t.rawCreate(tag, name, parent)
	n := t.nodes[id]
	if spec.Init != nil {
		spec.Init(n)
	}
	for k, v := range attrs {
		n.Attrs[k] = v
	}
	t.insertChild(p, id, -1)

	if t.observer != nil {
		t.observer.NodeCreated(id, parent)
	}
	t.fireEnter(parent, id)
	return id, nil
}

// Move detaches a node from its current parent and reparents it under dest,
// inserting at index (clamped), or per dest's ordering discipline when
// index is negative. Exit fires on the old parent, enter on the new.
func (t *Tree) Move(id, dest NodeID, index int) error {
	n := t.Get(id)
	if n == nil {
		return fmt.Errorf("board: move: node %d not found", id)
	}
	d := t.Get(dest)
	if d == nil {
		return fmt.Errorf("board: move: destination %d not found", dest)
	}
	if id == t.root || id == t.pile {
		return fmt.Errorf("board: move: node %d is structural and cannot be reparented", id)
	}
	// Reparenting a node under its own descendant would detach the subtree
	// from the root entirely.
	for cur := dest; cur != Nil; {
		if cur == id {
			return fmt.Errorf("board: move: destination %d is inside the moved subtree", dest)
		}
		cur = t.nodes[cur].Parent
	}

	oldParent := n.Parent
	if op := t.Get(oldParent); op != nil {
		i := op.childIndex(id)
		if i >= 0 {
			op.Children = append(op.Children[:i], op.Children[i+1:]...)
		}
		t.fireExit(oldParent, id)
	}
	n.Parent = dest
	at := t.insertChild(d, id, index)

	if t.observer != nil {
		t.observer.NodeMoved(id, oldParent, dest, at)
	}
	t.fireEnter(dest, id)
	return nil
}

// Remove moves a node to the off-board pile. Nodes are never destroyed.
func (t *Tree) Remove(id NodeID) error {
	return t.Move(id, t.pile, -1)
}

// insertChild places id into p.Children honoring index / discipline and
// returns the actual insertion index.
func (t *Tree) insertChild(p *Node, id NodeID, index int) int {
	if index < 0 {
		if p.Order == OrderStack {
			index = 0
		} else {
			index = len(p.Children)
		}
	}
	if index > len(p.Children) {
		index = len(p.Children)
	}
	p.Children = append(p.Children, Nil)
	copy(p.Children[index+1:], p.Children[index:])
	p.Children[index] = id
	return index
}

func (t *Tree) fireEnter(container, child NodeID) {
	c := t.Get(container)
	if c == nil {
		return
	}
	if spec := t.registry.Lookup(c.Type); spec != nil && spec.Hooks.Enter != nil {
		spec.Hooks.Enter(t, container, child)
	}
}

func (t *Tree) fireExit(container, child NodeID) {
	c := t.Get(container)
	if c == nil {
		return
	}
	if spec := t.registry.Lookup(c.Type); spec != nil && spec.Hooks.Exit != nil {
		spec.Hooks.Exit(t, container, child)
	}
}

// Shuffle permutes a container's direct children with Fisher–Yates using
// the supplied generator (the game's seeded RNG, for replay determinism).
// Reordering is not reported to the MutationObserver; a shuffle inside an
// animate scope is invisible to the lagging snapshot until it is discarded
// on full acknowledgment. The same holds for SetChildOrder.
func (t *Tree) Shuffle(id NodeID, rng *rand.Rand) error {
	n := t.Get(id)
	if n == nil {
		return fmt.Errorf("board: shuffle: node %d not found", id)
	}
	for i := len(n.Children) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		n.Children[i], n.Children[j] = n.Children[j], n.Children[i]
	}
	return nil
}

// SetChildOrder replaces a container's child sequence. The new order must
// be a permutation of the current children; used to invert shuffles.
func (t *Tree) SetChildOrder(id NodeID, order []NodeID) error {
	n := t.Get(id)
	if n == nil {
		return fmt.Errorf("board: reorder: node %d not found", id)
	}
	if len(order) != len(n.Children) {
		return fmt.Errorf("board: reorder: got %d ids, node has %d children", len(order), len(n.Children))
	}
	seen := make(map[NodeID]bool, len(order))
	for _, c := range order {
		if !n.HasChild(c) || seen[c] {
			return fmt.Errorf("board: reorder: id %d is not a child exactly once", c)
		}
		seen[c] = true
	}
	n.Children = append(n.Children[:0:0], order...)
	return nil
}

// SetAttr writes an attribute and reports the previous value. Out-of-schema
// attribute names are accepted (permissive mode).
func (t *Tree) SetAttr(id NodeID, key string, v AttrValue) (AttrValue, error) {
	n := t.Get(id)
	if n == nil {
		return AttrValue{}, fmt.Errorf("board: set attr: node %d not found", id)
	}
	old := n.Attrs[key]
	if v.IsNil() {
		delete(n.Attrs, key)
	} else {
		n.Attrs[key] = v
	}
	if t.observer != nil {
		t.observer.AttrChanged(id, key, old, v)
	}
	return old, nil
}

// SetName sets the display name.
func (t *Tree) SetName(id NodeID, name string) error {
	n := t.Get(id)
	if n == nil {
		return fmt.Errorf("board: set name: node %d not found", id)
	}
	old := n.Name
	n.Name = name
	if t.observer != nil {
		t.observer.PropChanged(id, "name", old, name)
	}
	return nil
}

// SetOwner sets the owning seat (0 clears ownership).
func (t *Tree) SetOwner(id NodeID, seat int) error {
	n := t.Get(id)
	if n == nil {
		return fmt.Errorf("board: set owner: node %d not found", id)
	}
	old := n.Owner
	n.Owner = seat
	if t.observer != nil {
		t.observer.PropChanged(id, "owner", fmt.Sprint(old), fmt.Sprint(seat))
	}
	return nil
}

// SetOrderDiscipline changes how future insertions land in a container.
func (t *Tree) SetOrderDiscipline(id NodeID, o Order) error {
	n := t.Get(id)
	if n == nil {
		return fmt.Errorf("board: set order: node %d not found", id)
	}
	old := n.Order
	n.Order = o
	if t.observer != nil {
		t.observer.PropChanged(id, "order", old.String(), o.String())
	}
	return nil
}

// SetVisibility sets (or with nil, clears) a node's explicit visibility.
func (t *Tree) SetVisibility(id NodeID, v *Visibility) error {
	n := t.Get(id)
	if n == nil {
		return fmt.Errorf("board: set visibility: node %d not found", id)
	}
	old := visString(n.Vis)
	n.Vis = v.Clone()
	if t.observer != nil {
		t.observer.PropChanged(id, "visibility", old, visString(v))
	}
	return nil
}

// SetZoneVisibility declares (or clears) a zone visibility on a container.
func (t *Tree) SetZoneVisibility(id NodeID, v *Visibility) error {
	n := t.Get(id)
	if n == nil {
		return fmt.Errorf("board: set zone visibility: node %d not found", id)
	}
	old := visString(n.ZoneVis)
	n.ZoneVis = v.Clone()
	if t.observer != nil {
		t.observer.PropChanged(id, "zone-visibility", old, visString(v))
	}
	return nil
}

// visString is the property-change wire form of a visibility setting:
// empty for "no setting", else the JSON of its doc. VisFromString decodes.
func visString(v *Visibility) string {
	if v == nil {
		return ""
	}
	b, _ := json.Marshal(encodeVis(v))
	return string(b)
}

// VisFromString decodes a visibility property string back into a setting.
func VisFromString(s string) (*Visibility, error) {
	if s == "" {
		return nil, nil
	}
	var d VisDoc
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, fmt.Errorf("board: bad visibility string %q: %w", s, err)
	}
	return decodeVis(&d), nil
}

// CheckIntegrity returns one diagnostic per parent/children bookkeeping
// disagreement. A non-empty result is a corruption state: some command
// implementation wrote to the arena without keeping both sides in sync.
func (t *Tree) CheckIntegrity() []string {
	var out []string
	for id, n := range t.nodes {
		if n.Parent != Nil {
			p := t.Get(n.Parent)
			switch {
			case p == nil:
				out = append(out, fmt.Sprintf("node %d: parent %d does not exist", id, n.Parent))
			case !p.HasChild(id):
				out = append(out, fmt.Sprintf("node %d: missing from parent %d child list", id, n.Parent))
			}
		}
		seen := make(map[NodeID]bool, len(n.Children))
		for _, c := range n.Children {
			if seen[c] {
				out = append(out, fmt.Sprintf("node %d: child %d listed twice", id, c))
			}
			seen[c] = true
			cn := t.Get(c)
			switch {
			case cn == nil:
				out = append(out, fmt.Sprintf("node %d: child %d does not exist", id, c))
			case cn.Parent != id:
				out = append(out, fmt.Sprintf("node %d: child %d parent pointer is %d", id, c, cn.Parent))
			}
		}
	}
	return out
}
