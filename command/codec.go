package command

import (
	"encoding/json"
	"fmt"

	"github.com/playtable/engine/board"
)

// wireCommand is the JSON shape of a command as stored in the journal.
// Attribute values keep their variant tags so replayed commands rebuild
// the exact same typed values.
type wireCommand struct {
	Kind     string                    `json:"kind"`
	Node     board.NodeID              `json:"node,omitempty"`
	Dest     board.NodeID              `json:"dest,omitempty"`
	Index    int                       `json:"index"`
	TypeTag  string                    `json:"typeTag,omitempty"`
	Name     string                    `json:"name,omitempty"`
	Count    int                       `json:"count,omitempty"`
	Attrs    map[string]board.AttrDoc  `json:"attrs,omitempty"`
	Key      string                    `json:"key,omitempty"`
	Value    *board.AttrDoc            `json:"value,omitempty"`
	Vis      *board.VisDoc             `json:"vis,omitempty"`
	Zone     bool                      `json:"zone,omitempty"`
	Extend   bool                      `json:"extend,omitempty"`
	Seat     int                       `json:"seat,omitempty"`
	Text     string                    `json:"text,omitempty"`
	Phase    string                    `json:"phase,omitempty"`
	Order    string                    `json:"order,omitempty"`
	OrderIDs []board.NodeID            `json:"orderIds,omitempty"`
}

func kindFromString(s string) (Kind, error) {
	for k := KindCreate; k <= KindSetOrder; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown command kind %q", s)
}

func (c Command) MarshalJSON() ([]byte, error) {
	w := wireCommand{
		Kind:     c.Kind.String(),
		Node:     c.Node,
		Dest:     c.Dest,
		Index:    c.Index,
		TypeTag:  c.TypeTag,
		Name:     c.Name,
		Count:    c.Count,
		Key:      c.Key,
		Vis:      c.Vis.Doc(),
		Zone:     c.Zone,
		Extend:   c.Extend,
		Seat:     c.Seat,
		Text:     c.Text,
		Phase:    c.Phase,
		OrderIDs: c.OrderIDs,
	}
	if len(c.Attrs) > 0 {
		w.Attrs = make(map[string]board.AttrDoc, len(c.Attrs))
		for k, v := range c.Attrs {
			w.Attrs[k] = v.Doc()
		}
	}
	if c.Value.Kind != board.AttrNil {
		d := c.Value.Doc()
		w.Value = &d
	}
	if c.Kind == KindSetOrder {
		w.Order = c.Order.String()
	}
	return json.Marshal(w)
}

func (c *Command) UnmarshalJSON(b []byte) error {
	var w wireCommand
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	kind, err := kindFromString(w.Kind)
	if err != nil {
		return err
	}
	out := Command{
		Kind:     kind,
		Node:     w.Node,
		Dest:     w.Dest,
		Index:    w.Index,
		TypeTag:  w.TypeTag,
		Name:     w.Name,
		Count:    w.Count,
		Key:      w.Key,
		Vis:      w.Vis.Visibility(),
		Zone:     w.Zone,
		Extend:   w.Extend,
		Seat:     w.Seat,
		Text:     w.Text,
		Phase:    w.Phase,
		OrderIDs: w.OrderIDs,
	}
	if len(w.Attrs) > 0 {
		out.Attrs = make(map[string]board.AttrValue, len(w.Attrs))
		for k, d := range w.Attrs {
			v, err := d.Attr()
			if err != nil {
				return fmt.Errorf("command attr %q: %w", k, err)
			}
			out.Attrs[k] = v
		}
	}
	if w.Value != nil {
		v, err := w.Value.Attr()
		if err != nil {
			return fmt.Errorf("command value: %w", err)
		}
		out.Value = v
	}
	if w.Order == board.OrderStack.String() {
		out.Order = board.OrderStack
	}
	*c = out
	return nil
}
