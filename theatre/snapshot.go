package theatre

import (
	"fmt"
	"strconv"

	"github.com/playtable/engine/board"
)

// snapshot is the lagging serialized tree a consumer advances by
// acknowledging events. It covers both the board and the off-board pile,
// so moves in and out of the pile replay cleanly.
type snapshot struct {
	root *board.NodeDoc
	pile *board.NodeDoc
}

func newSnapshot(t *board.Tree) *snapshot {
	return &snapshot{root: t.Doc(t.Root()), pile: t.Doc(t.Pile())}
}

// node resolves an id to its document in either subtree.
func (s *snapshot) node(id board.NodeID) *board.NodeDoc {
	if s.root.ID == id {
		return s.root
	}
	if s.pile.ID == id {
		return s.pile
	}
	if p, i := s.root.Find(id); p != nil {
		return p.Children[i]
	}
	if p, i := s.pile.Find(id); p != nil {
		return p.Children[i]
	}
	return nil
}

// locate finds the parent doc and child index of id.
func (s *snapshot) locate(id board.NodeID) (*board.NodeDoc, int) {
	if p, i := s.root.Find(id); p != nil {
		return p, i
	}
	return s.pile.Find(id)
}

// apply replays one captured mutation onto the snapshot.
func (s *snapshot) apply(m *Mutation) error {
	switch m.Kind {
	case MutCreate:
		parent := s.node(m.Parent)
		if parent == nil {
			return fmt.Errorf("theatre: create parent %d not in snapshot", m.Parent)
		}
		insertDoc(parent, m.Doc.Clone(), m.Index)
		return nil

	case MutMove:
		from, idx := s.locate(m.Node)
		if from == nil {
			return fmt.Errorf("theatre: moved node %d not in snapshot", m.Node)
		}
		d := from.Children[idx]
		from.Children = append(from.Children[:idx], from.Children[idx+1:]...)
		dest := s.node(m.Parent)
		if dest == nil {
			return fmt.Errorf("theatre: move destination %d not in snapshot", m.Parent)
		}
		insertDoc(dest, d, m.Index)
		return nil

	case MutSetAttr:
		n := s.node(m.Node)
		if n == nil {
			return fmt.Errorf("theatre: node %d not in snapshot", m.Node)
		}
		if m.Attr == nil {
			delete(n.Attrs, m.Key)
			if len(n.Attrs) == 0 {
				// Keep the doc shape identical to a fresh serialization.
				n.Attrs = nil
			}
			return nil
		}
		if n.Attrs == nil {
			n.Attrs = make(map[string]board.AttrDoc, 4)
		}
		n.Attrs[m.Key] = *m.Attr
		return nil

	case MutSetProp:
		n := s.node(m.Node)
		if n == nil {
			return fmt.Errorf("theatre: node %d not in snapshot", m.Node)
		}
		return applyProp(n, m.Prop, m.Value)
	}
	return fmt.Errorf("theatre: unknown mutation kind %d", int(m.Kind))
}

func insertDoc(parent, d *board.NodeDoc, index int) {
	if index < 0 || index > len(parent.Children) {
		index = len(parent.Children)
	}
	parent.Children = append(parent.Children, nil)
	copy(parent.Children[index+1:], parent.Children[index:])
	parent.Children[index] = d
}

func applyProp(n *board.NodeDoc, prop, value string) error {
	switch prop {
	case "name":
		n.Name = value
	case "owner":
		seat, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("theatre: bad owner value %q: %w", value, err)
		}
		n.Owner = seat
	case "order":
		if value == board.OrderStack.String() {
			n.Order = value
		} else {
			n.Order = ""
		}
	case "visibility":
		v, err := board.VisFromString(value)
		if err != nil {
			return err
		}
		n.Vis = v.Doc()
	case "zone-visibility":
		v, err := board.VisFromString(value)
		if err != nil {
			return err
		}
		n.ZoneVis = v.Doc()
	default:
		return fmt.Errorf("theatre: unknown property %q", prop)
	}
	return nil
}
