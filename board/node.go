package board

// NodeID is a process-unique integer identity for a tree node. IDs are
// assigned from a monotonically increasing per-tree counter and are stable
// for the node's lifetime. A node is never destroyed, only moved to the
// off-board pile, so IDs are never reused.
type NodeID int

// Nil is the zero NodeID, used for "no node" (absent parent, failed lookup).
const Nil NodeID = 0

// Order is the insertion discipline for a container's child list.
type Order int

const (
	OrderAppend Order = iota // new children go to the end
	OrderStack               // new children push to the front
)

func (o Order) String() string {
	if o == OrderStack {
		return "stack"
	}
	return "append"
}

// AttrKind tags the variant held by an AttrValue.
type AttrKind int

const (
	AttrNil AttrKind = iota
	AttrInt
	AttrFloat
	AttrBool
	AttrString
	AttrSeat // reference to a player seat number
)

// AttrValue is a small tagged union for node attributes. Modelling
// attributes as a closed variant set (instead of an open interface{} bag)
// keeps access checked and serialization unambiguous.
type AttrValue struct {
	Kind AttrKind
	I    int64
	F    float64
	B    bool
	S    string
}

func Int(v int64) AttrValue      { return AttrValue{Kind: AttrInt, I: v} }
func Float(v float64) AttrValue  { return AttrValue{Kind: AttrFloat, F: v} }
func Bool(v bool) AttrValue      { return AttrValue{Kind: AttrBool, B: v} }
func String(v string) AttrValue  { return AttrValue{Kind: AttrString, S: v} }
func Seat(seat int) AttrValue    { return AttrValue{Kind: AttrSeat, I: int64(seat)} }

// IsNil reports whether the value is the absent attribute.
func (v AttrValue) IsNil() bool { return v.Kind == AttrNil }

// Plain returns the value as a plain Go scalar for serialization.
func (v AttrValue) Plain() any {
	switch v.Kind {
	case AttrInt:
		return v.I
	case AttrFloat:
		return v.F
	case AttrBool:
		return v.B
	case AttrString:
		return v.S
	case AttrSeat:
		return v.I
	}
	return nil
}

// Equal reports value equality across the variant.
func (v AttrValue) Equal(o AttrValue) bool { return v == o }

// Node is one game object in the owning tree. Parent/children are stored as
// id references into the tree's arena, never as Go pointers, so the graph
// cannot form language-level cycles and bookkeeping stays checkable.
type Node struct {
	ID       NodeID
	Type     string // registered type tag, keyed in the Registry
	Name     string // optional display name, not required unique
	Owner    int    // owning player seat, 0 = unowned
	Parent   NodeID // Nil only for the root and the pile
	Children []NodeID
	Order    Order
	Attrs    map[string]AttrValue

	// Vis is this node's explicit visibility; nil means inherit from the
	// nearest ancestor zone. ZoneVis, when set, declares a zone visibility
	// that descendants without an explicit setting inherit.
	Vis     *Visibility
	ZoneVis *Visibility
}

// Attr returns the named attribute, or the nil value when absent.
func (n *Node) Attr(key string) AttrValue {
	if n.Attrs == nil {
		return AttrValue{}
	}
	return n.Attrs[key]
}

// HasChild reports whether id appears in this node's child list.
func (n *Node) HasChild(id NodeID) bool {
	for _, c := range n.Children {
		if c == id {
			return true
		}
	}
	return false
}

func (n *Node) childIndex(id NodeID) int {
	for i, c := range n.Children {
		if c == id {
			return i
		}
	}
	return -1
}
