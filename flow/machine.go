package flow

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"
)

// DefaultIterationCap bounds both the run loop and any single loop frame.
// Exceeding it is a programming mistake in the flow definition (an
// unbounded loop), so it raises instead of spinning.
const DefaultIterationCap = 10000

var ErrIterationCap = errors.New("flow: iteration safety cap exceeded")

// Ctx is what the flow engine needs from the surrounding game: the seat
// list, per-actor action legality, and action dispatch.
type Ctx interface {
	Seats() []int
	LegalActions(actor int, allowed []string) []string
	Perform(name string, actor int, args map[string]any) error
}

// Status reports where the machine is between calls.
type Status int

const (
	StatusIdle     Status = iota // not started
	StatusAwaiting               // suspended at an action step
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusAwaiting:
		return "awaiting"
	case StatusComplete:
		return "complete"
	}
	return "idle"
}

// Await describes a suspension: which step, who may act, and what they may
// do. For a single-actor step Seats holds exactly the designated actor.
type Await struct {
	Step   string
	Prompt string
	Actor  int
	Seats  []int
	Legal  map[int][]string
}

// frame is the run state of one visited flow node. Everything here except
// the materialized item list round-trips through Position.
type frame struct {
	node    *Node
	child   int // index of the child the frame above was pushed from
	index   int // next sequence child / next iteration item
	iter    int // loop repetition counter
	branch  int // switch/if arm already pushed, -1 before evaluation
	entered bool
	done    bool
	items   []any
	await   *awaitState
}

type awaitState struct {
	multi     bool
	actor     int
	seats     []int // eligible, in eligibility order
	legal     map[int][]string
	completed map[int]bool
}

// Machine interprets a static flow tree. Single goroutine access only.
type Machine struct {
	ctx    Ctx
	log    *zap.Logger
	root   *Node
	cap    int
	stack  []*frame
	status Status

	// Vars are the flow-scoped variables effects and predicates share.
	Vars map[string]any
}

func NewMachine(ctx Ctx, root *Node, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		ctx:  ctx,
		log:  log,
		root: root,
		cap:  DefaultIterationCap,
		Vars: make(map[string]any, 8),
	}
}

// SetIterationCap overrides the safety cap. Zero or negative restores the
// default.
func (m *Machine) SetIterationCap(n int) {
	if n <= 0 {
		n = DefaultIterationCap
	}
	m.cap = n
}

func (m *Machine) Ctx() Ctx        { return m.ctx }
func (m *Machine) Status() Status  { return m.status }

func (m *Machine) Var(name string) any        { return m.Vars[name] }
func (m *Machine) SetVar(name string, v any)  { m.Vars[name] = v }

// Seat reads a flow variable bound by PerPlayer as a seat number. Numbers
// that crossed a JSON round trip arrive as float64.
func (m *Machine) Seat(name string) int {
	switch s := m.Vars[name].(type) {
	case int:
		return s
	case float64:
		return int(s)
	}
	return 0
}

// Start seeds the stack with the root frame and runs until the flow
// suspends awaiting input or completes.
func (m *Machine) Start() error {
	m.stack = nil
	m.status = StatusIdle
	if m.root.Setup != nil {
		m.root.Setup(m)
	}
	m.stack = []*frame{{node: m.root, branch: -1, child: -1}}
	return m.run()
}

// Awaiting returns the current suspension, or nil when not suspended.
func (m *Machine) Awaiting() *Await {
	f := m.awaitFrame()
	if f == nil {
		return nil
	}
	aw := f.await
	out := &Await{Step: f.node.Name, Prompt: f.node.Prompt, Legal: map[int][]string{}}
	if !aw.multi {
		out.Actor = aw.actor
		out.Seats = []int{aw.actor}
		out.Legal[aw.actor] = append([]string(nil), aw.legal[aw.actor]...)
		return out
	}
	for _, seat := range aw.seats {
		if aw.completed[seat] {
			continue
		}
		out.Seats = append(out.Seats, seat)
		out.Legal[seat] = append([]string(nil), aw.legal[seat]...)
	}
	sort.Ints(out.Seats)
	return out
}

func (m *Machine) awaitFrame() *frame {
	if m.status != StatusAwaiting || len(m.stack) == 0 {
		return nil
	}
	f := m.stack[len(m.stack)-1]
	if f.await == nil {
		return nil
	}
	return f
}

// Resume feeds one submitted action into the awaited step. For a
// single-actor step the designated actor performs it; for a simultaneous
// step the named (or first awaiting) actor does. A failed action leaves
// the step suspended so the player can correct and resubmit.
func (m *Machine) Resume(actionName string, args map[string]any, actor int) error {
	f := m.awaitFrame()
	if f == nil {
		return fmt.Errorf("flow: resume: not awaiting input")
	}
	aw := f.await

	if !aw.multi {
		if actor != 0 && actor != aw.actor {
			return fmt.Errorf("flow: step %s awaits seat %d, not %d", f.node.Name, aw.actor, actor)
		}
		if !contains(aw.legal[aw.actor], actionName) {
			return fmt.Errorf("flow: action %s is not legal for seat %d at step %s", actionName, aw.actor, f.node.Name)
		}
		if err := m.ctx.Perform(actionName, aw.actor, args); err != nil {
			return err
		}
		f.await = nil
		f.done = true
		m.status = StatusIdle
		return m.run()
	}

	seat, err := m.resolveSimActor(f, actor, actionName)
	if err != nil {
		return err
	}
	if err := m.ctx.Perform(actionName, seat, args); err != nil {
		return err
	}
	// Legality may have shifted for everyone; actors left with nothing to
	// do are completed.
	for _, s := range aw.seats {
		if aw.completed[s] {
			continue
		}
		aw.legal[s] = m.ctx.LegalActions(s, f.node.Actions)
		if len(aw.legal[s]) == 0 {
			aw.completed[s] = true
		}
	}
	if m.simDone(f) {
		f.await = nil
		f.done = true
		m.status = StatusIdle
		return m.run()
	}
	return nil
}

func (m *Machine) resolveSimActor(f *frame, actor int, actionName string) (int, error) {
	aw := f.await
	if actor == 0 {
		for _, s := range aw.seats {
			if !aw.completed[s] && contains(aw.legal[s], actionName) {
				return s, nil
			}
		}
		return 0, fmt.Errorf("flow: no awaiting actor may perform %s at step %s", actionName, f.node.Name)
	}
	if aw.completed[actor] {
		return 0, fmt.Errorf("flow: seat %d already completed step %s", actor, f.node.Name)
	}
	if !contains(aw.legal[actor], actionName) {
		return 0, fmt.Errorf("flow: action %s is not legal for seat %d at step %s", actionName, actor, f.node.Name)
	}
	return actor, nil
}

func (m *Machine) simDone(f *frame) bool {
	if f.node.DoneWhen != nil {
		return f.node.DoneWhen(m)
	}
	for _, s := range f.await.seats {
		if !f.await.completed[s] {
			return false
		}
	}
	return true
}

// run is the interpreter loop: pop completed frames, otherwise dispatch on
// the top frame's node variant.
func (m *Machine) run() error {
	steps := 0
	for {
		steps++
		if steps > m.cap {
			return fmt.Errorf("%w: %d steps", ErrIterationCap, m.cap)
		}
		if len(m.stack) == 0 {
			m.status = StatusComplete
			return nil
		}
		f := m.stack[len(m.stack)-1]
		if f.done {
			m.stack = m.stack[:len(m.stack)-1]
			continue
		}
		if !f.entered {
			f.entered = true
			if f.node.SkipIf != nil && f.node.SkipIf(m) {
				f.done = true
				continue
			}
		}

		switch f.node.Kind {
		case KSequence:
			if f.index >= len(f.node.Children) {
				f.done = true
				continue
			}
			i := f.index
			f.index++
			m.push(f, i)

		case KLoop:
			if f.iter >= m.cap {
				return fmt.Errorf("%w: loop %s ran %d times", ErrIterationCap, f.node.Name, f.iter)
			}
			if f.node.If != nil && !f.node.If(m) {
				f.done = true
				continue
			}
			f.iter++
			m.push(f, 0)

		case KPerPlayer, KForEach:
			if f.items == nil {
				f.items = m.materialize(f.node)
			}
			if f.index >= len(f.items) {
				f.done = true
				continue
			}
			item := f.items[f.index]
			f.index++
			if f.node.Var != "" {
				m.Vars[f.node.Var] = item
			}
			m.push(f, 0)

		case KAction:
			if f.await == nil {
				actor := f.node.Actor(m)
				legal := m.ctx.LegalActions(actor, f.node.Actions)
				if len(legal) == 0 {
					// Nothing the actor could do; don't deadlock the game.
					m.log.Debug("action step auto-completed",
						zap.String("step", f.node.Name), zap.Int("actor", actor))
					f.done = true
					continue
				}
				f.await = &awaitState{
					actor: actor,
					legal: map[int][]string{actor: legal},
				}
			}
			m.status = StatusAwaiting
			return nil

		case KSimultaneous:
			if f.await == nil {
				seats := m.ctx.Seats()
				if f.node.Eligible != nil {
					seats = f.node.Eligible(m)
				}
				aw := &awaitState{
					multi:     true,
					seats:     append([]int(nil), seats...),
					legal:     map[int][]string{},
					completed: map[int]bool{},
				}
				for _, s := range aw.seats {
					l := m.ctx.LegalActions(s, f.node.Actions)
					if len(l) == 0 {
						aw.completed[s] = true
						continue
					}
					aw.legal[s] = l
				}
				f.await = aw
				if m.simDone(f) {
					f.await = nil
					f.done = true
					continue
				}
			}
			m.status = StatusAwaiting
			return nil

		case KSwitch:
			if f.branch >= 0 {
				f.done = true
				continue
			}
			// Evaluated once per visit; never again after the branch runs.
			v := f.node.Value(m)
			pick, def := -1, -1
			for i, c := range f.node.Cases {
				if c.Default {
					def = i
					continue
				}
				if reflect.DeepEqual(c.When, v) {
					pick = i
					break
				}
			}
			if pick < 0 {
				pick = def
			}
			if pick < 0 {
				f.done = true
				continue
			}
			f.branch = pick
			m.push(f, pick)

		case KIf:
			if f.branch >= 0 {
				f.done = true
				continue
			}
			arm := 0
			if !f.node.If(m) {
				if len(f.node.Children) < 2 {
					f.done = true
					continue
				}
				arm = 1
			}
			f.branch = arm
			m.push(f, arm)

		case KEffect:
			if f.node.Do != nil {
				f.node.Do(m)
			}
			f.done = true

		default:
			return fmt.Errorf("flow: unknown node kind %d at %s", int(f.node.Kind), f.node.Name)
		}
	}
}

func (m *Machine) push(parent *frame, childIdx int) {
	parent.child = childIdx
	m.stack = append(m.stack, &frame{node: parent.node.Children[childIdx], branch: -1, child: -1})
}

// materialize builds the iteration list for a per-player or for-each frame.
// It always returns non-nil so an empty list isn't recomputed.
func (m *Machine) materialize(n *Node) []any {
	var items []any
	switch n.Kind {
	case KPerPlayer:
		seats := m.ctx.Seats()
		if n.Seats != nil {
			seats = n.Seats(m)
		}
		for _, s := range seats {
			items = append(items, s)
		}
	case KForEach:
		if n.Over != nil {
			items = n.Over(m)
		}
	}
	if n.Filter != nil {
		kept := items[:0:0]
		for _, it := range items {
			if n.Filter(m, it) {
				kept = append(kept, it)
			}
		}
		items = kept
	}
	if n.Reverse {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	if items == nil {
		items = []any{}
	}
	return items
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
