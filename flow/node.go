// Package flow runs a game's turn structure: a static tree of flow nodes
// interpreted by an explicit frame stack. The stack, not native recursion,
// is what makes the current position serializable and restorable.
package flow

// NodeKind discriminates the flow node variant.
type NodeKind int

const (
	KSequence NodeKind = iota
	KLoop
	KPerPlayer
	KForEach
	KAction       // one designated actor takes one action
	KSimultaneous // several actors each act before the step completes
	KSwitch
	KIf
	KEffect
)

func (k NodeKind) String() string {
	switch k {
	case KSequence:
		return "sequence"
	case KLoop:
		return "loop"
	case KPerPlayer:
		return "perPlayer"
	case KForEach:
		return "forEach"
	case KAction:
		return "actionStep"
	case KSimultaneous:
		return "simultaneousStep"
	case KSwitch:
		return "switch"
	case KIf:
		return "if"
	case KEffect:
		return "effect"
	}
	return "invalid"
}

// Case is one switch branch. A Default case matches when nothing else does.
type Case struct {
	When    any
	Default bool
	Body    *Node
}

// Node is one static flow tree node. The tree is built once at game
// definition time and never mutated afterwards; all run state lives in
// machine frames.
type Node struct {
	Kind NodeKind
	Name string

	// Children holds sequence steps, the single body of loop and
	// iteration nodes, the then/else arms of an if, and switch case
	// bodies in case order.
	Children []*Node

	// Setup runs once when the machine starts with this node as root.
	Setup func(m *Machine)

	// SkipIf skips the whole node when true at frame entry.
	SkipIf func(m *Machine) bool

	// If is the loop continuation condition or the if-node condition.
	If func(m *Machine) bool

	// Switch configuration.
	Value func(m *Machine) any
	Cases []Case

	// Iteration configuration. Var names the flow variable bound to the
	// current item; PerPlayer iterates seats, ForEach an arbitrary list.
	Var     string
	Over    func(m *Machine) []any
	Seats   func(m *Machine) []int
	Filter  func(m *Machine, item any) bool
	Reverse bool

	// Action step configuration. Actor designates the single actor;
	// Eligible the simultaneous set (default: every seat). Actions is the
	// allowed subset ("" means all registered). DoneWhen overrides the
	// default "every eligible actor completed" predicate.
	Actor    func(m *Machine) int
	Eligible func(m *Machine) []int
	Actions  []string
	Prompt   string
	DoneWhen func(m *Machine) bool

	// Do is the raw effect body.
	Do func(m *Machine)
}

func Sequence(name string, children ...*Node) *Node {
	return &Node{Kind: KSequence, Name: name, Children: children}
}

// Loop repeats body while cond holds, subject to the iteration safety cap.
func Loop(name string, cond func(m *Machine) bool, body *Node) *Node {
	return &Node{Kind: KLoop, Name: name, If: cond, Children: []*Node{body}}
}

// PerPlayer runs body once per seat, binding the seat to varName.
func PerPlayer(name, varName string, body *Node) *Node {
	return &Node{Kind: KPerPlayer, Name: name, Var: varName, Children: []*Node{body}}
}

// ForEach runs body once per item of over, binding the item to varName.
func ForEach(name, varName string, over func(m *Machine) []any, body *Node) *Node {
	return &Node{Kind: KForEach, Name: name, Var: varName, Over: over, Children: []*Node{body}}
}

// ActionStep suspends until the designated actor performs one of the named
// actions. With no legal action available the step auto-completes.
func ActionStep(name string, actor func(m *Machine) int, prompt string, actions ...string) *Node {
	return &Node{Kind: KAction, Name: name, Actor: actor, Prompt: prompt, Actions: actions}
}

// SimultaneousStep suspends until every eligible actor has no legal action
// left (or DoneWhen reports done). Submitted actions are processed serially
// on arrival; the concurrency is logical only.
func SimultaneousStep(name string, eligible func(m *Machine) []int, prompt string, actions ...string) *Node {
	return &Node{Kind: KSimultaneous, Name: name, Eligible: eligible, Prompt: prompt, Actions: actions}
}

// Switch evaluates value once per visit and runs the matching case body.
func Switch(name string, value func(m *Machine) any, cases ...Case) *Node {
	n := &Node{Kind: KSwitch, Name: name, Value: value, Cases: cases}
	for _, c := range cases {
		n.Children = append(n.Children, c.Body)
	}
	return n
}

// If runs then when cond holds, else els (which may be nil).
func If(name string, cond func(m *Machine) bool, then, els *Node) *Node {
	n := &Node{Kind: KIf, Name: name, If: cond, Children: []*Node{then}}
	if els != nil {
		n.Children = append(n.Children, els)
	}
	return n
}

// Effect runs a side-effecting callback inline and completes immediately.
func Effect(name string, do func(m *Machine)) *Node {
	return &Node{Kind: KEffect, Name: name, Do: do}
}
