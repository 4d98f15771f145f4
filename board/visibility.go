package board

// VisMode is the base visibility rule for a node or zone.
type VisMode int

const (
	VisAll       VisMode = iota // everyone sees identity and content
	VisOwner                    // only the owning player sees content
	VisHidden                   // nobody sees content
	VisCountOnly                // peers see a cardinality, no identity
	VisUnordered                // peers see membership but not sequence
)

func (m VisMode) String() string {
	switch m {
	case VisAll:
		return "all"
	case VisOwner:
		return "owner"
	case VisHidden:
		return "hidden"
	case VisCountOnly:
		return "count"
	case VisUnordered:
		return "unordered"
	}
	return "all"
}

// VisModeFromString parses a serialized mode name. Unknown names fall back
// to "all", matching the resolver's conservative default.
func VisModeFromString(s string) VisMode {
	switch s {
	case "owner":
		return VisOwner
	case "hidden":
		return VisHidden
	case "count":
		return VisCountOnly
	case "unordered":
		return VisUnordered
	}
	return VisAll
}

// Visibility is a base mode plus explicit allow/deny lists of observer
// seats layered on top. Deny wins over allow; allow wins over the mode.
type Visibility struct {
	Mode  VisMode
	Allow []int
	Deny  []int
}

// Clone returns a deep copy.
func (v *Visibility) Clone() *Visibility {
	if v == nil {
		return nil
	}
	c := &Visibility{Mode: v.Mode}
	c.Allow = append(c.Allow, v.Allow...)
	c.Deny = append(c.Deny, v.Deny...)
	return c
}

func seatIn(list []int, seat int) bool {
	for _, s := range list {
		if s == seat {
			return true
		}
	}
	return false
}

// EffectiveVisibility resolves the visibility governing a node: the node's
// own explicit setting if present, else the nearest-ancestor zone setting,
// else the default all-visible rule. The second return is the node whose
// owner applies for owner-mode checks (the node itself when it has an
// owner, otherwise the zone declarer). Inheritance is computed by walking
// ancestors on every call, never cached, so it tracks reparenting for free.
func (t *Tree) EffectiveVisibility(id NodeID) (*Visibility, NodeID) {
	n := t.Get(id)
	if n == nil {
		return &Visibility{Mode: VisAll}, Nil
	}
	if n.Vis != nil {
		return n.Vis, id
	}
	for cur := n.Parent; cur != Nil; {
		anc := t.Get(cur)
		if anc == nil {
			break
		}
		if anc.ZoneVis != nil {
			src := id
			if n.Owner == 0 {
				src = anc.ID
			}
			return anc.ZoneVis, src
		}
		cur = anc.Parent
	}
	return &Visibility{Mode: VisAll}, id
}

// Visible reports whether the observer seat may see the node's identity and
// content. Observer 0 denotes a spectator with no special access. This is a
// pure query: no mutation, no failure mode.
func (t *Tree) Visible(id NodeID, observer int) bool {
	vis, src := t.EffectiveVisibility(id)
	if seatIn(vis.Deny, observer) {
		return false
	}
	if seatIn(vis.Allow, observer) {
		return true
	}
	switch vis.Mode {
	case VisAll:
		return true
	case VisOwner:
		owner := 0
		if n := t.Get(id); n != nil && n.Owner != 0 {
			owner = n.Owner
		} else if s := t.Get(src); s != nil {
			owner = s.Owner
		}
		return observer != 0 && observer == owner
	case VisHidden, VisCountOnly, VisUnordered:
		return false
	}
	// Unrecognized mode: fail open rather than hide state from everyone.
	return true
}
