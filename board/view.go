package board

import "sort"

// ReservedAttrPrefix marks system-reserved attribute keys. Placeholder
// children in count-only zones keep only reserved keys, so a renderer can
// draw the right number and shape of unknown items without identity leaks.
const ReservedAttrPrefix = "_"

// ViewDoc is the observer-filtered serialized form of a node. Invisible
// nodes collapse to {type, id, attrs:{hidden}}; count-only containers
// carry ChildCount and anonymized placeholders instead of real children.
type ViewDoc struct {
	Type       string         `json:"type"`
	ID         NodeID         `json:"id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Attrs      map[string]any `json:"attributes,omitempty"`
	Children   []*ViewDoc     `json:"children,omitempty"`
	ChildCount int            `json:"childCount,omitempty"`
}

// PostFilter may redact attributes after zone filtering; it receives the
// live node and the already-projected attribute map and edits it in place.
type PostFilter func(n *Node, attrs map[string]any)

// ViewFor projects the subtree under id as seen by the observer seat.
// Observer 0 is a spectator with no special access. The optional post
// filter runs on every emitted node with attributes.
func (t *Tree) ViewFor(id NodeID, observer int, post PostFilter) *ViewDoc {
	n := t.Get(id)
	if n == nil {
		return nil
	}

	if !t.Visible(id, observer) {
		return hiddenDoc(n)
	}

	d := &ViewDoc{Type: n.Type, ID: n.ID, Name: n.Name}
	if len(n.Attrs) > 0 {
		d.Attrs = make(map[string]any, len(n.Attrs))
		for k, v := range n.Attrs {
			d.Attrs[k] = v.Plain()
		}
	}
	if post != nil {
		if d.Attrs == nil {
			d.Attrs = map[string]any{}
		}
		post(n, d.Attrs)
	}

	t.projectChildren(n, observer, post, d)
	return d
}

// projectChildren fills d.Children for a visible container. Children whose
// governing zone is count-only or hidden are anonymized into a count plus
// placeholders; unordered-zone children keep identity but lose sequence.
func (t *Tree) projectChildren(n *Node, observer int, post PostFilter, d *ViewDoc) {
	var unordered []*ViewDoc
	for _, c := range n.Children {
		child := t.Get(c)
		if child == nil {
			continue
		}
		if t.Visible(c, observer) {
			d.Children = append(d.Children, t.ViewFor(c, observer, post))
			continue
		}
		vis, _ := t.EffectiveVisibility(c)
		if seatIn(vis.Deny, observer) {
			// An explicit deny hides content but not existence.
			d.Children = append(d.Children, hiddenDoc(child))
			continue
		}
		switch vis.Mode {
		case VisCountOnly, VisHidden:
			d.ChildCount++
			d.Children = append(d.Children, placeholderDoc(child))
		case VisUnordered:
			unordered = append(unordered, hiddenDoc(child))
		default:
			d.Children = append(d.Children, hiddenDoc(child))
		}
	}
	// Membership without sequence: canonical id order, not child order.
	if len(unordered) > 0 {
		sort.Slice(unordered, func(i, j int) bool { return unordered[i].ID < unordered[j].ID })
		d.Children = append(d.Children, unordered...)
	}
}

// hiddenDoc is the collapse for a node the observer knows exists but may
// not inspect.
func hiddenDoc(n *Node) *ViewDoc {
	return &ViewDoc{
		Type:  n.Type,
		ID:    n.ID,
		Attrs: map[string]any{"hidden": true},
	}
}

// PlaceholderType is the generic tag emitted for anonymized children, so
// real type tags never leak out of a count-only zone.
const PlaceholderType = "item"

// placeholderDoc is the anonymized stand-in inside a count-only zone: no
// identity, no type, no name; only system-reserved attribute keys survive.
func placeholderDoc(n *Node) *ViewDoc {
	d := &ViewDoc{Type: PlaceholderType}
	for k, v := range n.Attrs {
		if len(k) > 0 && k[:1] == ReservedAttrPrefix {
			if d.Attrs == nil {
				d.Attrs = map[string]any{}
			}
			d.Attrs[k] = v.Plain()
		}
	}
	return d
}
