// Package command implements the event-sourced mutation log of a game: an
// immutable, named, fully-parameterized description of one atomic tree
// mutation, executed with a precomputed inverse so the history supports
// rollback and deterministic replay.
package command

import "github.com/playtable/engine/board"

// Kind discriminates the command variant.
type Kind int

const (
	KindInvalid Kind = iota
	KindCreate
	KindCreateMany
	KindMove
	KindRemove
	KindShuffle
	KindReorder // restore an explicit child sequence; the shuffle inverse
	KindSetAttr
	KindSetVisibility
	KindSetCurrent
	KindMessage
	KindSetPhase
	KindSetOrder
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindCreateMany:
		return "createMany"
	case KindMove:
		return "move"
	case KindRemove:
		return "remove"
	case KindShuffle:
		return "shuffle"
	case KindReorder:
		return "reorder"
	case KindSetAttr:
		return "setAttr"
	case KindSetVisibility:
		return "setVisibility"
	case KindSetCurrent:
		return "setCurrent"
	case KindMessage:
		return "message"
	case KindSetPhase:
		return "setPhase"
	case KindSetOrder:
		return "setOrder"
	}
	return "invalid"
}

// Game phases set through KindSetPhase.
const (
	PhasePending  = "pending"
	PhaseStarted  = "started"
	PhaseFinished = "finished"
)

// Command is one atomic tree mutation. Fields are variant-specific; unused
// fields stay zero. Commands are values and never mutated after build.
type Command struct {
	Kind Kind

	Node  board.NodeID // subject node
	Dest  board.NodeID // move destination
	Index int          // insertion index, -1 = per ordering discipline

	TypeTag string
	Name    string
	Count   int
	Attrs   map[string]board.AttrValue

	Key   string
	Value board.AttrValue

	Vis    *board.Visibility
	Zone   bool // apply Vis as a zone declaration
	Extend bool // merge allow/deny into the existing setting

	Seat  int
	Text  string
	Phase string

	Order    board.Order
	OrderIDs []board.NodeID
}

func Create(tag, name string, parent board.NodeID, attrs map[string]board.AttrValue) Command {
	return Command{Kind: KindCreate, TypeTag: tag, Name: name, Dest: parent, Attrs: attrs, Index: -1}
}

func CreateMany(n int, tag, name string, parent board.NodeID, attrs map[string]board.AttrValue) Command {
	return Command{Kind: KindCreateMany, Count: n, TypeTag: tag, Name: name, Dest: parent, Attrs: attrs, Index: -1}
}

func Move(node, dest board.NodeID, index int) Command {
	return Command{Kind: KindMove, Node: node, Dest: dest, Index: index}
}

func Remove(node board.NodeID) Command {
	return Command{Kind: KindRemove, Node: node, Index: -1}
}

func Shuffle(node board.NodeID) Command {
	return Command{Kind: KindShuffle, Node: node}
}

func Reorder(node board.NodeID, order []board.NodeID) Command {
	return Command{Kind: KindReorder, Node: node, OrderIDs: order}
}

func SetAttr(node board.NodeID, key string, v board.AttrValue) Command {
	return Command{Kind: KindSetAttr, Node: node, Key: key, Value: v}
}

func SetVisibility(node board.NodeID, v *board.Visibility) Command {
	return Command{Kind: KindSetVisibility, Node: node, Vis: v.Clone()}
}

func SetZoneVisibility(node board.NodeID, v *board.Visibility) Command {
	return Command{Kind: KindSetVisibility, Node: node, Vis: v.Clone(), Zone: true}
}

// ExtendVisibility merges additional allow/deny seats into the node's
// current explicit setting instead of replacing it.
func ExtendVisibility(node board.NodeID, allow, deny []int) Command {
	return Command{Kind: KindSetVisibility, Node: node, Extend: true,
		Vis: &board.Visibility{Allow: allow, Deny: deny}}
}

func SetCurrent(seat int) Command {
	return Command{Kind: KindSetCurrent, Seat: seat}
}

func Message(seat int, text string) Command {
	return Command{Kind: KindMessage, Seat: seat, Text: text}
}

func Start() Command {
	return Command{Kind: KindSetPhase, Phase: PhaseStarted}
}

func Finish() Command {
	return Command{Kind: KindSetPhase, Phase: PhaseFinished}
}

func SetOrder(node board.NodeID, o board.Order) Command {
	return Command{Kind: KindSetOrder, Node: node, Order: o}
}
