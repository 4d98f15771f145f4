package board

import "fmt"

// AttrDoc is the serialized form of one attribute, keeping the variant tag
// so values round-trip without guessing (an int seat reference and a plain
// int are different things).
type AttrDoc struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

// VisDoc is the serialized form of a visibility setting.
type VisDoc struct {
	Mode  string `json:"mode"`
	Allow []int  `json:"allow,omitempty"`
	Deny  []int  `json:"deny,omitempty"`
}

// NodeDoc is the full (unfiltered) serialized form of one node and its
// subtree. This is the authoritative document shape: restoration and the
// theatre snapshot both operate on it.
type NodeDoc struct {
	Type     string             `json:"type"`
	ID       NodeID             `json:"id"`
	Name     string             `json:"name,omitempty"`
	Owner    int                `json:"owner,omitempty"`
	Order    string             `json:"order,omitempty"`
	Vis      *VisDoc            `json:"vis,omitempty"`
	ZoneVis  *VisDoc            `json:"zoneVis,omitempty"`
	Attrs    map[string]AttrDoc `json:"attrs,omitempty"`
	Children []*NodeDoc         `json:"children,omitempty"`
}

func attrKindName(k AttrKind) string {
	switch k {
	case AttrInt:
		return "int"
	case AttrFloat:
		return "float"
	case AttrBool:
		return "bool"
	case AttrString:
		return "string"
	case AttrSeat:
		return "seat"
	}
	return "nil"
}

func encodeAttr(v AttrValue) AttrDoc {
	return AttrDoc{Kind: attrKindName(v.Kind), Value: v.Plain()}
}

func decodeAttr(d AttrDoc) (AttrValue, error) {
	num := func() (int64, error) {
		switch n := d.Value.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case float64: // JSON numbers decode as float64
			return int64(n), nil
		}
		return 0, fmt.Errorf("board: attr kind %s holds %T", d.Kind, d.Value)
	}
	switch d.Kind {
	case "int":
		n, err := num()
		return AttrValue{Kind: AttrInt, I: n}, err
	case "seat":
		n, err := num()
		return AttrValue{Kind: AttrSeat, I: n}, err
	case "float":
		switch f := d.Value.(type) {
		case float64:
			return Float(f), nil
		case int64:
			return Float(float64(f)), nil
		}
		return AttrValue{}, fmt.Errorf("board: attr kind float holds %T", d.Value)
	case "bool":
		b, ok := d.Value.(bool)
		if !ok {
			return AttrValue{}, fmt.Errorf("board: attr kind bool holds %T", d.Value)
		}
		return Bool(b), nil
	case "string":
		s, ok := d.Value.(string)
		if !ok {
			return AttrValue{}, fmt.Errorf("board: attr kind string holds %T", d.Value)
		}
		return String(s), nil
	}
	return AttrValue{}, nil
}

// Doc returns the serialized form of the value. Attr decodes it back.
func (v AttrValue) Doc() AttrDoc             { return encodeAttr(v) }
func (d AttrDoc) Attr() (AttrValue, error)   { return decodeAttr(d) }
func (v *Visibility) Doc() *VisDoc           { return encodeVis(v) }
func (d *VisDoc) Visibility() *Visibility    { return decodeVis(d) }

func encodeVis(v *Visibility) *VisDoc {
	if v == nil {
		return nil
	}
	return &VisDoc{Mode: v.Mode.String(), Allow: append([]int(nil), v.Allow...), Deny: append([]int(nil), v.Deny...)}
}

func decodeVis(d *VisDoc) *Visibility {
	if d == nil {
		return nil
	}
	return &Visibility{Mode: VisModeFromString(d.Mode), Allow: append([]int(nil), d.Allow...), Deny: append([]int(nil), d.Deny...)}
}

// Doc serializes the subtree rooted at id, unfiltered.
func (t *Tree) Doc(id NodeID) *NodeDoc {
	n := t.Get(id)
	if n == nil {
		return nil
	}
	d := &NodeDoc{
		Type:    n.Type,
		ID:      n.ID,
		Name:    n.Name,
		Owner:   n.Owner,
		Vis:     encodeVis(n.Vis),
		ZoneVis: encodeVis(n.ZoneVis),
	}
	if n.Order == OrderStack {
		d.Order = n.Order.String()
	}
	if len(n.Attrs) > 0 {
		d.Attrs = make(map[string]AttrDoc, len(n.Attrs))
		for k, v := range n.Attrs {
			d.Attrs[k] = encodeAttr(v)
		}
	}
	for _, c := range n.Children {
		if cd := t.Doc(c); cd != nil {
			d.Children = append(d.Children, cd)
		}
	}
	return d
}

// Clone returns a deep copy of the document.
func (d *NodeDoc) Clone() *NodeDoc {
	if d == nil {
		return nil
	}
	c := *d
	if d.Attrs != nil {
		c.Attrs = make(map[string]AttrDoc, len(d.Attrs))
		for k, v := range d.Attrs {
			c.Attrs[k] = v
		}
	}
	c.Vis = cloneVisDoc(d.Vis)
	c.ZoneVis = cloneVisDoc(d.ZoneVis)
	c.Children = nil
	for _, ch := range d.Children {
		c.Children = append(c.Children, ch.Clone())
	}
	return &c
}

func cloneVisDoc(v *VisDoc) *VisDoc {
	if v == nil {
		return nil
	}
	c := &VisDoc{Mode: v.Mode}
	c.Allow = append(c.Allow, v.Allow...)
	c.Deny = append(c.Deny, v.Deny...)
	return c
}

// Index builds an id lookup over the document tree.
func (d *NodeDoc) Index() map[NodeID]*NodeDoc {
	idx := make(map[NodeID]*NodeDoc, 64)
	var walk func(*NodeDoc)
	walk = func(n *NodeDoc) {
		idx[n.ID] = n
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(d)
	return idx
}

// Find locates the parent of id in the document tree, returning the parent
// doc and the child's index, or (nil, -1).
func (d *NodeDoc) Find(id NodeID) (*NodeDoc, int) {
	for i, c := range d.Children {
		if c.ID == id {
			return d, i
		}
	}
	for _, c := range d.Children {
		if p, i := c.Find(id); p != nil {
			return p, i
		}
	}
	return nil, -1
}

// LoadDoc reconstructs a tree from a root document plus the pile's
// document. Every type tag must be registered; an unknown tag fails fast.
// Node ids are restored exactly and the id counter resumes past the
// largest seen, so restored and original trees allocate identically.
func LoadDoc(reg *Registry, root, pile *NodeDoc) (*Tree, error) {
	if root == nil {
		return nil, fmt.Errorf("board: load: nil root document")
	}
	t := &Tree{
		nodes:    make(map[NodeID]*Node, 64),
		registry: reg,
	}
	var load func(d *NodeDoc, parent NodeID, structural bool) error
	load = func(d *NodeDoc, parent NodeID, structural bool) error {
		if !structural {
			if _, err := reg.MustLookup(d.Type); err != nil {
				return err
			}
		}
		if _, dup := t.nodes[d.ID]; dup {
			return fmt.Errorf("board: load: duplicate node id %d", d.ID)
		}
		n := &Node{
			ID:      d.ID,
			Type:    d.Type,
			Name:    d.Name,
			Owner:   d.Owner,
			Parent:  parent,
			Attrs:   make(map[string]AttrValue, len(d.Attrs)),
			Vis:     decodeVis(d.Vis),
			ZoneVis: decodeVis(d.ZoneVis),
		}
		if d.Order == OrderStack.String() {
			n.Order = OrderStack
		}
		for k, ad := range d.Attrs {
			v, err := decodeAttr(ad)
			if err != nil {
				return fmt.Errorf("node %d attr %q: %w", d.ID, k, err)
			}
			n.Attrs[k] = v
		}
		t.nodes[d.ID] = n
		if d.ID >= t.nextID {
			t.nextID = d.ID + 1
		}
		for _, c := range d.Children {
			n.Children = append(n.Children, c.ID)
			if err := load(c, d.ID, false); err != nil {
				return err
			}
		}
		return nil
	}

	if err := load(root, Nil, true); err != nil {
		return nil, err
	}
	t.root = root.ID
	if pile != nil {
		if err := load(pile, Nil, true); err != nil {
			return nil, err
		}
		t.pile = pile.ID
	} else {
		t.pile = t.rawCreate(TagPile, "", Nil)
	}
	return t, nil
}
