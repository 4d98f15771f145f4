package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGame struct {
	seats     []int
	legal     map[int][]string
	performed []string
	performErr error
	onPerform func(name string, actor int)
}

func (g *fakeGame) Seats() []int { return g.seats }

func (g *fakeGame) LegalActions(actor int, allowed []string) []string {
	have := g.legal[actor]
	if len(allowed) == 0 {
		return append([]string(nil), have...)
	}
	var out []string
	for _, a := range allowed {
		if contains(have, a) {
			out = append(out, a)
		}
	}
	return out
}

func (g *fakeGame) Perform(name string, actor int, _ map[string]any) error {
	if g.performErr != nil {
		return g.performErr
	}
	g.performed = append(g.performed, fmt.Sprintf("%d:%s", actor, name))
	if g.onPerform != nil {
		g.onPerform(name, actor)
	}
	return nil
}

func twoSeats() *fakeGame {
	return &fakeGame{seats: []int{1, 2}, legal: map[int][]string{}}
}

func TestSequenceRunsChildrenInOrder(t *testing.T) {
	g := twoSeats()
	var got []string
	step := func(name string) *Node {
		return Effect(name, func(m *Machine) { got = append(got, name) })
	}
	m := NewMachine(g, Sequence("root", step("a"), Sequence("inner", step("b"), step("c")), step("d")), nil)
	require.NoError(t, m.Start())
	assert.Equal(t, StatusComplete, m.Status())
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestLoopRunsWhileConditionHolds(t *testing.T) {
	g := twoSeats()
	root := Sequence("root",
		Effect("init", func(m *Machine) { m.SetVar("n", 0) }),
		Loop("count", func(m *Machine) bool { return m.Var("n").(int) < 3 },
			Effect("inc", func(m *Machine) { m.SetVar("n", m.Var("n").(int)+1) })),
	)
	m := NewMachine(g, root, nil)
	require.NoError(t, m.Start())
	assert.Equal(t, 3, m.Var("n"))
}

func TestUnboundedLoopHitsSafetyCap(t *testing.T) {
	g := twoSeats()
	m := NewMachine(g, Loop("forever", func(*Machine) bool { return true }, Effect("noop", nil)), nil)
	m.SetIterationCap(50)
	err := m.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIterationCap)
}

func TestPerPlayerIteratesFilteredAndReversed(t *testing.T) {
	g := &fakeGame{seats: []int{1, 2, 3, 4}}
	var visited []int
	body := Effect("visit", func(m *Machine) { visited = append(visited, m.Seat("p")) })
	n := PerPlayer("everyone", "p", body)
	n.Filter = func(_ *Machine, item any) bool { return item.(int)%2 == 1 }
	n.Reverse = true

	m := NewMachine(g, n, nil)
	require.NoError(t, m.Start())
	assert.Equal(t, []int{3, 1}, visited)
}

func TestForEachBindsItems(t *testing.T) {
	g := twoSeats()
	var got []any
	n := ForEach("suits", "s",
		func(*Machine) []any { return []any{"hearts", "spades"} },
		Effect("visit", func(m *Machine) { got = append(got, m.Var("s")) }))
	m := NewMachine(g, n, nil)
	require.NoError(t, m.Start())
	assert.Equal(t, []any{"hearts", "spades"}, got)
}

func TestSwitchEvaluatesDiscriminantOnce(t *testing.T) {
	g := twoSeats()
	evals := 0
	var ran []string
	arm := func(name string) *Node {
		return Effect(name, func(m *Machine) {
			ran = append(ran, name)
			// Mutating the discriminant after the branch is chosen must
			// not re-route the switch.
			m.SetVar("mode", "late")
		})
	}
	root := Sequence("root",
		Effect("init", func(m *Machine) { m.SetVar("mode", "fight") }),
		Switch("pick", func(m *Machine) any { evals++; return m.Var("mode") },
			Case{When: "fight", Body: arm("fight")},
			Case{When: "late", Body: arm("late")},
			Case{Default: true, Body: arm("fallback")},
		),
	)
	m := NewMachine(g, root, nil)
	require.NoError(t, m.Start())
	assert.Equal(t, 1, evals)
	assert.Equal(t, []string{"fight"}, ran)
}

func TestSwitchFallsBackToDefault(t *testing.T) {
	g := twoSeats()
	var ran []string
	root := Switch("pick", func(*Machine) any { return "unknown" },
		Case{When: "a", Body: Effect("a", func(*Machine) { ran = append(ran, "a") })},
		Case{Default: true, Body: Effect("d", func(*Machine) { ran = append(ran, "d") })},
	)
	m := NewMachine(g, root, nil)
	require.NoError(t, m.Start())
	assert.Equal(t, []string{"d"}, ran)
}

func TestIfElseAndSkipIf(t *testing.T) {
	g := twoSeats()
	var ran []string
	mark := func(name string) *Node {
		return Effect(name, func(*Machine) { ran = append(ran, name) })
	}
	skipped := mark("skipped")
	skipped.SkipIf = func(*Machine) bool { return true }
	root := Sequence("root",
		If("cond", func(*Machine) bool { return false }, mark("then"), mark("else")),
		If("bare", func(*Machine) bool { return false }, mark("never"), nil),
		skipped,
		mark("end"),
	)
	m := NewMachine(g, root, nil)
	require.NoError(t, m.Start())
	assert.Equal(t, []string{"else", "end"}, ran)
}

func TestActionStepSuspendsAndResumes(t *testing.T) {
	g := twoSeats()
	g.legal[1] = []string{"draw", "pass"}
	root := Sequence("root",
		ActionStep("turn", func(*Machine) int { return 1 }, "Take your turn", "draw", "pass"),
		Effect("after", func(m *Machine) { m.SetVar("done", true) }),
	)
	m := NewMachine(g, root, nil)
	require.NoError(t, m.Start())
	require.Equal(t, StatusAwaiting, m.Status())

	aw := m.Awaiting()
	require.NotNil(t, aw)
	assert.Equal(t, "turn", aw.Step)
	assert.Equal(t, "Take your turn", aw.Prompt)
	assert.Equal(t, 1, aw.Actor)
	assert.Equal(t, []string{"draw", "pass"}, aw.Legal[1])

	// Illegal submissions leave the step suspended.
	assert.Error(t, m.Resume("cheat", nil, 1))
	assert.Error(t, m.Resume("draw", nil, 2))
	assert.Equal(t, StatusAwaiting, m.Status())

	require.NoError(t, m.Resume("draw", nil, 1))
	assert.Equal(t, StatusComplete, m.Status())
	assert.Equal(t, []string{"1:draw"}, g.performed)
	assert.Equal(t, true, m.Var("done"))
}

func TestActionStepFailedPerformStaysSuspended(t *testing.T) {
	g := twoSeats()
	g.legal[1] = []string{"draw"}
	m := NewMachine(g, ActionStep("turn", func(*Machine) int { return 1 }, "", "draw"), nil)
	require.NoError(t, m.Start())

	g.performErr = errors.New("invalid submission")
	assert.Error(t, m.Resume("draw", nil, 1))
	assert.Equal(t, StatusAwaiting, m.Status())

	g.performErr = nil
	require.NoError(t, m.Resume("draw", nil, 1))
	assert.Equal(t, StatusComplete, m.Status())
}

func TestActionStepAutoCompletesWithNoLegalActions(t *testing.T) {
	g := twoSeats()
	m := NewMachine(g, Sequence("root",
		ActionStep("turn", func(*Machine) int { return 1 }, "", "draw"),
	), nil)
	require.NoError(t, m.Start())
	assert.Equal(t, StatusComplete, m.Status())
}

func TestSimultaneousStepAwaitsOnlyIncompleteActors(t *testing.T) {
	g := twoSeats()
	g.legal[1] = []string{"reveal"}
	g.legal[2] = []string{"reveal"}
	// Performing consumes the actor's only legal action.
	g.onPerform = func(_ string, actor int) { delete(g.legal, actor) }

	m := NewMachine(g, SimultaneousStep("reveal", nil, "Reveal your card", "reveal"), nil)
	require.NoError(t, m.Start())
	require.Equal(t, StatusAwaiting, m.Status())
	assert.Equal(t, []int{1, 2}, m.Awaiting().Seats)
	assert.Equal(t, "Reveal your card", m.Awaiting().Prompt)

	// Seat 1 acts and completes; the step stays suspended awaiting seat 2.
	require.NoError(t, m.Resume("reveal", nil, 1))
	require.Equal(t, StatusAwaiting, m.Status())
	assert.Equal(t, []int{2}, m.Awaiting().Seats)

	// A completed actor may not act again.
	assert.Error(t, m.Resume("reveal", nil, 1))

	require.NoError(t, m.Resume("reveal", nil, 2))
	assert.Equal(t, StatusComplete, m.Status())
	assert.Equal(t, []string{"1:reveal", "2:reveal"}, g.performed)
}

func TestSimultaneousStepSkipsActorsWithNothingToDo(t *testing.T) {
	g := twoSeats()
	// Seat 1 completed before the step even starts.
	g.legal[2] = []string{"reveal"}
	g.onPerform = func(_ string, actor int) { delete(g.legal, actor) }

	m := NewMachine(g, SimultaneousStep("reveal", nil, "", "reveal"), nil)
	require.NoError(t, m.Start())
	require.Equal(t, StatusAwaiting, m.Status())
	assert.Equal(t, []int{2}, m.Awaiting().Seats)

	// An unnamed submission routes to the first awaiting actor.
	require.NoError(t, m.Resume("reveal", nil, 0))
	assert.Equal(t, StatusComplete, m.Status())
	assert.Equal(t, []string{"2:reveal"}, g.performed)
}

func perPlayerTurnFlow() *Node {
	return Sequence("round",
		Effect("setup", func(m *Machine) { m.SetVar("round", 1) }),
		PerPlayer("turns", "p",
			ActionStep("turn", func(m *Machine) int { return m.Seat("p") }, "Your turn", "draw")),
		Effect("wrap", func(m *Machine) { m.SetVar("wrapped", true) }),
	)
}

func TestPositionRoundTripMidFlow(t *testing.T) {
	g := twoSeats()
	g.legal[1] = []string{"draw"}
	g.legal[2] = []string{"draw"}

	m := NewMachine(g, perPlayerTurnFlow(), nil)
	require.NoError(t, m.Start())
	require.NoError(t, m.Resume("draw", nil, 1))
	// Suspended at seat 2's turn.
	require.Equal(t, StatusAwaiting, m.Status())
	require.Equal(t, 2, m.Awaiting().Actor)

	raw, err := json.Marshal(m.Position())
	require.NoError(t, err)
	var pos Position
	require.NoError(t, json.Unmarshal(raw, &pos))

	// A fresh machine over the same static tree lands in the same spot.
	m2 := NewMachine(g, perPlayerTurnFlow(), nil)
	require.NoError(t, m2.Restore(&pos))
	require.Equal(t, StatusAwaiting, m2.Status())
	aw := m2.Awaiting()
	assert.Equal(t, "turn", aw.Step)
	assert.Equal(t, 2, aw.Actor)

	require.NoError(t, m2.Resume("draw", nil, 2))
	assert.Equal(t, StatusComplete, m2.Status())
	assert.Equal(t, true, m2.Var("wrapped"))
}

func TestRestoreRejectsChangedFlowShape(t *testing.T) {
	g := twoSeats()
	g.legal[1] = []string{"draw"}
	g.legal[2] = []string{"draw"}

	m := NewMachine(g, perPlayerTurnFlow(), nil)
	require.NoError(t, m.Start())
	pos := m.Position()

	// The saved path descends into children the new shape doesn't have.
	smaller := Sequence("round", Effect("only", nil))
	m2 := NewMachine(g, smaller, nil)
	err := m2.Restore(pos)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid path prefix")
}

func TestCompletePositionRestores(t *testing.T) {
	g := twoSeats()
	m := NewMachine(g, Effect("noop", nil), nil)
	require.NoError(t, m.Start())
	require.Equal(t, StatusComplete, m.Status())

	m2 := NewMachine(g, Effect("noop", nil), nil)
	require.NoError(t, m2.Restore(m.Position()))
	assert.Equal(t, StatusComplete, m2.Status())
}
