package board

// Filter narrows a structural search. Zero-value fields are ignored, so a
// Filter{} matches every node in the searched subtree.
type Filter struct {
	Type  string
	Name  string
	Attrs map[string]AttrValue
	Where func(*Node) bool
}

func (f Filter) matches(n *Node) bool {
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Name != "" && n.Name != f.Name {
		return false
	}
	for k, want := range f.Attrs {
		if !n.Attr(k).Equal(want) {
			return false
		}
	}
	if f.Where != nil && !f.Where(n) {
		return false
	}
	return true
}

// collect walks the subtree under from depth-first (children in order),
// appending matches until limit is reached (limit < 0 means unbounded).
// The searched root itself is not a candidate.
func (t *Tree) collect(from NodeID, f Filter, limit int) []NodeID {
	n := t.Get(from)
	if n == nil {
		return nil
	}
	var out []NodeID
	stack := make([]NodeID, 0, len(n.Children))
	for i := len(n.Children) - 1; i >= 0; i-- {
		stack = append(stack, n.Children[i])
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cur := t.Get(id)
		if cur == nil {
			continue
		}
		if f.matches(cur) {
			out = append(out, id)
			if limit >= 0 && len(out) >= limit {
				return out
			}
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}
	return out
}

// First returns the first matching node in the subtree under from, or Nil
// when nothing matches.
func (t *Tree) First(from NodeID, f Filter) NodeID {
	got := t.collect(from, f, 1)
	if len(got) == 0 {
		return Nil
	}
	return got[0]
}

// All returns every matching node in depth-first order.
func (t *Tree) All(from NodeID, f Filter) []NodeID {
	return t.collect(from, f, -1)
}

// FirstN returns up to n matches in depth-first order, short-circuiting the
// walk once n are found.
func (t *Tree) FirstN(from NodeID, f Filter, n int) []NodeID {
	if n <= 0 {
		return nil
	}
	return t.collect(from, f, n)
}

// LastN returns up to n matches taken from the end of the depth-first
// order.
func (t *Tree) LastN(from NodeID, f Filter, n int) []NodeID {
	if n <= 0 {
		return nil
	}
	all := t.collect(from, f, -1)
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// Count returns the number of matches in the subtree under from.
func (t *Tree) Count(from NodeID, f Filter) int {
	return len(t.collect(from, f, -1))
}

// Path returns the structural path from the root to id as child indices,
// used to encode cross-references in serialized documents. Returns nil for
// the root itself and ok=false when id is not reachable from the root.
func (t *Tree) Path(id NodeID) ([]int, bool) {
	if id == t.root {
		return nil, true
	}
	var rev []int
	for cur := id; cur != t.root; {
		n := t.Get(cur)
		if n == nil || n.Parent == Nil {
			return nil, false
		}
		p := t.Get(n.Parent)
		i := p.childIndex(cur)
		if i < 0 {
			return nil, false
		}
		rev = append(rev, i)
		cur = n.Parent
	}
	path := make([]int, len(rev))
	for i, v := range rev {
		path[len(rev)-1-i] = v
	}
	return path, true
}

// AtPath resolves a structural path from the root back to a node id, or
// Nil when the path walks off the tree.
func (t *Tree) AtPath(path []int) NodeID {
	cur := t.root
	for _, i := range path {
		n := t.Get(cur)
		if n == nil || i < 0 || i >= len(n.Children) {
			return Nil
		}
		cur = n.Children[i]
	}
	return cur
}
