package command

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/playtable/engine/board"
)

// State is the slice of game state commands operate on. The whole engine
// runs on the single game-loop goroutine, so no locking happens here.
type State interface {
	Tree() *board.Tree
	Rand() *rand.Rand
	CurrentSeat() int
	SetCurrentSeat(seat int)
	Phase() string
	SetPhase(phase string)
	AppendMessage(seat int, text string)
}

// Result is the outcome of one Execute call. Execute never lets a panic
// escape; failures arrive here as Err.
type Result struct {
	OK      bool
	Err     error
	Created []board.NodeID
}

// Entry pairs an executed command with its precomputed inverse sequence.
// An empty inverse marks a non-invertible command such as a log message.
type Entry struct {
	Cmd     Command
	Inverse []Command
}

// Executor applies commands to the game state and keeps the authoritative
// history with inverses.
type Executor struct {
	state   State
	log     *zap.Logger
	history []Entry
}

func NewExecutor(state State, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{state: state, log: log}
}

// History returns the executed commands, oldest first.
func (e *Executor) History() []Command {
	out := make([]Command, len(e.history))
	for i, ent := range e.history {
		out[i] = ent.Cmd
	}
	return out
}

func (e *Executor) HistoryLen() int { return len(e.history) }

// Execute applies one command atomically. On success the command joins the
// history together with its inverse, computed from the state before the
// mutation. Internal panics become failure results.
func (e *Executor) Execute(cmd Command) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("command panicked",
				zap.Stringer("kind", cmd.Kind), zap.Any("panic", r))
			res = Result{Err: fmt.Errorf("command %s: internal error: %v", cmd.Kind, r)}
		}
	}()

	inv, created, err := e.apply(cmd)
	if err != nil {
		e.log.Debug("command rejected",
			zap.Stringer("kind", cmd.Kind), zap.Error(err))
		return Result{Err: fmt.Errorf("command %s: %w", cmd.Kind, err)}
	}
	e.history = append(e.history, Entry{Cmd: cmd, Inverse: inv})
	return Result{OK: true, Created: created}
}

// UndoLast reverts the most recent command and pops it from the history.
// It reports false when the history is empty or the top command has no
// inverse.
func (e *Executor) UndoLast() bool {
	if len(e.history) == 0 {
		return false
	}
	top := e.history[len(e.history)-1]
	if len(top.Inverse) == 0 {
		return false
	}
	for _, inv := range top.Inverse {
		if _, _, err := e.apply(inv); err != nil {
			// Inverses are computed against the exact state being
			// reverted; a failure means the tree was mutated behind
			// the history's back.
			e.log.Error("undo failed",
				zap.Stringer("kind", top.Cmd.Kind), zap.Error(err))
			return false
		}
	}
	e.history = e.history[:len(e.history)-1]
	return true
}

// Replay re-executes a command list against the current (fresh) state for
// restoration. Replayed entries carry no inverses, and any failure aborts
// immediately: a partially replayed tree is worse than none.
func (e *Executor) Replay(cmds []Command) error {
	for i, cmd := range cmds {
		if _, _, err := e.apply(cmd); err != nil {
			return fmt.Errorf("replay: command %d (%s): %w", i, cmd.Kind, err)
		}
		e.history = append(e.history, Entry{Cmd: cmd})
	}
	return nil
}

// LoadHistory reinstates a recorded history without re-executing it, for
// restoration from a document whose tree already reflects these commands.
// Loaded entries carry no inverses, the same as replayed ones.
func (e *Executor) LoadHistory(cmds []Command) {
	for _, cmd := range cmds {
		e.history = append(e.history, Entry{Cmd: cmd})
	}
}

func (e *Executor) apply(c Command) (inv []Command, created []board.NodeID, err error) {
	t := e.state.Tree()
	switch c.Kind {
	case KindCreate:
		id, err := t.Create(c.TypeTag, c.Name, c.Dest, c.Attrs)
		if err != nil {
			return nil, nil, err
		}
		return []Command{Remove(id)}, []board.NodeID{id}, nil

	case KindCreateMany:
		if c.Count <= 0 {
			return nil, nil, fmt.Errorf("count %d out of range", c.Count)
		}
		for i := 0; i < c.Count; i++ {
			id, err := t.Create(c.TypeTag, c.Name, c.Dest, c.Attrs)
			if err != nil {
				// Roll back the partial batch so the command stays atomic.
				for _, done := range created {
					t.Remove(done)
				}
				return nil, nil, err
			}
			created = append(created, id)
			inv = append(inv, Remove(id))
		}
		return inv, created, nil

	case KindMove:
		from, idx, err := locate(t, c.Node)
		if err != nil {
			return nil, nil, err
		}
		if err := t.Move(c.Node, c.Dest, c.Index); err != nil {
			return nil, nil, err
		}
		return []Command{Move(c.Node, from, idx)}, nil, nil

	case KindRemove:
		from, idx, err := locate(t, c.Node)
		if err != nil {
			return nil, nil, err
		}
		if err := t.Remove(c.Node); err != nil {
			return nil, nil, err
		}
		return []Command{Move(c.Node, from, idx)}, nil, nil

	case KindShuffle:
		n := t.Get(c.Node)
		if n == nil {
			return nil, nil, notFound(c.Node)
		}
		before := append([]board.NodeID(nil), n.Children...)
		if err := t.Shuffle(c.Node, e.state.Rand()); err != nil {
			return nil, nil, err
		}
		return []Command{Reorder(c.Node, before)}, nil, nil

	case KindReorder:
		n := t.Get(c.Node)
		if n == nil {
			return nil, nil, notFound(c.Node)
		}
		before := append([]board.NodeID(nil), n.Children...)
		if err := t.SetChildOrder(c.Node, c.OrderIDs); err != nil {
			return nil, nil, err
		}
		return []Command{Reorder(c.Node, before)}, nil, nil

	case KindSetAttr:
		old, err := t.SetAttr(c.Node, c.Key, c.Value)
		if err != nil {
			return nil, nil, err
		}
		return []Command{SetAttr(c.Node, c.Key, old)}, nil, nil

	case KindSetVisibility:
		return e.applyVisibility(t, c)

	case KindSetCurrent:
		old := e.state.CurrentSeat()
		e.state.SetCurrentSeat(c.Seat)
		return []Command{SetCurrent(old)}, nil, nil

	case KindMessage:
		e.state.AppendMessage(c.Seat, c.Text)
		return nil, nil, nil

	case KindSetPhase:
		old := e.state.Phase()
		if old == c.Phase {
			return nil, nil, fmt.Errorf("game already %s", c.Phase)
		}
		e.state.SetPhase(c.Phase)
		return []Command{{Kind: KindSetPhase, Phase: old}}, nil, nil

	case KindSetOrder:
		n := t.Get(c.Node)
		if n == nil {
			return nil, nil, notFound(c.Node)
		}
		old := n.Order
		if err := t.SetOrderDiscipline(c.Node, c.Order); err != nil {
			return nil, nil, err
		}
		return []Command{SetOrder(c.Node, old)}, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown command kind %d", int(c.Kind))
}

func (e *Executor) applyVisibility(t *board.Tree, c Command) ([]Command, []board.NodeID, error) {
	n := t.Get(c.Node)
	if n == nil {
		return nil, nil, notFound(c.Node)
	}
	prev := n.Vis
	if c.Zone {
		prev = n.ZoneVis
	}
	inv := Command{Kind: KindSetVisibility, Node: c.Node, Zone: c.Zone, Vis: prev.Clone()}

	next := c.Vis.Clone()
	if c.Extend {
		// Extending starts from the current explicit setting, or from the
		// inherited effective one so the merge doesn't lose the mode.
		base := prev.Clone()
		if base == nil {
			eff, _ := t.EffectiveVisibility(c.Node)
			base = eff.Clone()
		}
		base.Allow = mergeSeats(base.Allow, c.Vis.Allow)
		base.Deny = mergeSeats(base.Deny, c.Vis.Deny)
		next = base
	}

	var err error
	if c.Zone {
		err = t.SetZoneVisibility(c.Node, next)
	} else {
		err = t.SetVisibility(c.Node, next)
	}
	if err != nil {
		return nil, nil, err
	}
	return []Command{inv}, nil, nil
}

// locate finds the parent and sibling index of a node so a move can be
// undone back to the exact slot.
func locate(t *board.Tree, id board.NodeID) (board.NodeID, int, error) {
	n := t.Get(id)
	if n == nil {
		return board.Nil, -1, notFound(id)
	}
	p := t.Get(n.Parent)
	if p == nil {
		return board.Nil, -1, fmt.Errorf("node %d has no parent", id)
	}
	for i, ch := range p.Children {
		if ch == id {
			return p.ID, i, nil
		}
	}
	return board.Nil, -1, fmt.Errorf("node %d missing from parent %d", id, n.Parent)
}

func mergeSeats(base, add []int) []int {
	for _, s := range add {
		found := false
		for _, b := range base {
			if b == s {
				found = true
				break
			}
		}
		if !found {
			base = append(base, s)
		}
	}
	return base
}

func notFound(id board.NodeID) error {
	return fmt.Errorf("node %d not found", id)
}
