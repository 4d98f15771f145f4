// Package game composes the engine: the entity tree, the command history,
// the action set, the flow machine, the theatre recorder, the player
// roster and the seeded random generator, all owned by one game instance
// on one goroutine.
package game

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/playtable/engine/action"
	"github.com/playtable/engine/board"
	"github.com/playtable/engine/command"
	"github.com/playtable/engine/flow"
	"github.com/playtable/engine/theatre"
)

// Player is one seat at the table. Seats are 1-indexed; at most one player
// carries the current flag.
type Player struct {
	Seat    int    `json:"seat"`
	Name    string `json:"name"`
	Current bool   `json:"current,omitempty"`
}

// Message is one line of the game log. Seat 0 addresses everyone.
type Message struct {
	Seat int       `json:"seat,omitempty"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Definition is a concrete game wired into the engine: its node types, its
// actions, its turn structure, its initial setup and an optional attribute
// redaction hook applied after zone filtering.
type Definition struct {
	Name       string
	Types      func(reg *board.Registry)
	Actions    func(g *Game)
	Flow       func(g *Game) *flow.Node
	Setup      func(g *Game) error
	PostFilter board.PostFilter
	Settings   map[string]any
}

// Game is one running match.
type Game struct {
	log     *zap.Logger
	def     *Definition
	reg     *board.Registry
	tree    *board.Tree
	rec     *theatre.Recorder
	exec    *command.Executor
	actions *action.Set
	machine *flow.Machine
	rng     *rand.Rand

	seed     string
	players  []*Player
	messages []Message
	settings map[string]any
	phase    string
}

// New builds a match from a definition, a seed string and the player
// roster. The same seed and the same inputs always produce the same game.
func New(def *Definition, seed string, playerNames []string, log *zap.Logger) (*Game, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(playerNames) == 0 {
		return nil, fmt.Errorf("game: at least one player required")
	}

	g := &Game{
		log:      log.Named(def.Name),
		def:      def,
		seed:     seed,
		rng:      rand.New(rand.NewSource(seedSource(seed))),
		phase:    command.PhasePending,
		settings: map[string]any{},
	}
	for k, v := range def.Settings {
		g.settings[k] = v
	}
	for i, name := range playerNames {
		g.players = append(g.players, &Player{Seat: i + 1, Name: name})
	}

	g.reg = board.NewRegistry()
	if def.Types != nil {
		def.Types(g.reg)
	}
	g.tree = board.NewTree(g.reg)
	g.rec = theatre.NewRecorder(g.tree, g.log)
	g.exec = command.NewExecutor(g, g.log)
	g.actions = action.NewSet()
	if def.Actions != nil {
		def.Actions(g)
	}
	if def.Flow != nil {
		g.machine = flow.NewMachine(g, def.Flow(g), g.log)
	}
	return g, nil
}

// seedSource hashes a human-readable seed string into a generator source.
func seedSource(seed string) int64 {
	h := fnv.New64a()
	h.Write([]byte(seed))
	return int64(h.Sum64())
}

// Start marks the game started, runs the definition's setup and starts the
// flow, running until the first awaited input.
func (g *Game) Start() error {
	if res := g.exec.Execute(command.Start()); !res.OK {
		return res.Err
	}
	if g.def.Setup != nil {
		if err := g.def.Setup(g); err != nil {
			return fmt.Errorf("game: setup: %w", err)
		}
	}
	g.log.Info("game started",
		zap.String("seed", g.seed), zap.Int("players", len(g.players)))
	if g.machine == nil {
		return nil
	}
	return g.machine.Start()
}

// End force-finishes the game regardless of flow position.
func (g *Game) End() error {
	if res := g.exec.Execute(command.Finish()); !res.OK {
		return res.Err
	}
	g.log.Info("game ended")
	return nil
}

func (g *Game) Tree() *board.Tree          { return g.tree }
func (g *Game) Rand() *rand.Rand           { return g.rng }
func (g *Game) Registry() *board.Registry  { return g.reg }
func (g *Game) Execute(c command.Command) command.Result { return g.exec.Execute(c) }
func (g *Game) Undo() bool                 { return g.exec.UndoLast() }
func (g *Game) History() []command.Command { return g.exec.History() }
func (g *Game) Actions() *action.Set       { return g.actions }
func (g *Game) Flow() *flow.Machine        { return g.machine }
func (g *Game) Theatre() *theatre.Recorder { return g.rec }
func (g *Game) Seed() string               { return g.seed }
func (g *Game) Phase() string              { return g.phase }
func (g *Game) SetPhase(p string)          { g.phase = p }
func (g *Game) Setting(key string) any     { return g.settings[key] }

// Players returns the roster in seat order.
func (g *Game) Players() []*Player { return append([]*Player(nil), g.players...) }

func (g *Game) Player(seat int) *Player {
	if seat < 1 || seat > len(g.players) {
		return nil
	}
	return g.players[seat-1]
}

// Seats implements action.Ctx and flow.Ctx.
func (g *Game) Seats() []int {
	out := make([]int, len(g.players))
	for i := range g.players {
		out[i] = i + 1
	}
	return out
}

// CurrentSeat returns the seat holding the current flag, 0 if none.
func (g *Game) CurrentSeat() int {
	for _, p := range g.players {
		if p.Current {
			return p.Seat
		}
	}
	return 0
}

// SetCurrentSeat moves the exclusive current flag. Seat 0 clears it.
func (g *Game) SetCurrentSeat(seat int) {
	for _, p := range g.players {
		p.Current = p.Seat == seat
	}
}

// AppendMessage adds a game log line. Issued through the message command
// so it lands in the history.
func (g *Game) AppendMessage(seat int, text string) {
	g.messages = append(g.messages, Message{Seat: seat, Text: text, At: time.Now()})
}

func (g *Game) Messages() []Message { return append([]Message(nil), g.messages...) }

// LegalActions implements flow.Ctx: the actor's currently available subset.
func (g *Game) LegalActions(actor int, allowed []string) []string {
	return g.actions.AvailableFor(g, actor, allowed)
}

// Perform implements flow.Ctx: resolve, validate and run one action. This
// is the only bridge between wire-safe scalars and live references.
func (g *Game) Perform(name string, actor int, args map[string]any) error {
	d := g.actions.Get(name)
	if d == nil {
		return fmt.Errorf("game: unknown action %q", name)
	}
	resolved, err := d.ResolveArgs(g, args)
	if err != nil {
		return err
	}
	return d.Perform(g, actor, resolved)
}

// PerformAction is the top-level action entry point. It clears the theatre
// queue, so a consumer only ever sees the events of the most recent
// action, then feeds the submission into the awaited flow step.
func (g *Game) PerformAction(name string, seat int, args map[string]any) error {
	if g.phase != command.PhaseStarted {
		return fmt.Errorf("game: not in progress (phase %s)", g.phase)
	}
	if g.machine == nil || g.machine.Status() != flow.StatusAwaiting {
		return fmt.Errorf("game: no action awaited")
	}
	g.rec.Clear()
	if err := g.machine.Resume(name, args, seat); err != nil {
		return err
	}
	if g.machine.Status() == flow.StatusComplete && g.phase == command.PhaseStarted {
		return g.End()
	}
	return nil
}

// SerializedAction is the wire form of a submission: plain scalars only.
type SerializedAction struct {
	Name string         `json:"name"`
	Seat int            `json:"seat"`
	Args map[string]any `json:"args,omitempty"`
}

func (g *Game) PerformSerialized(sub SerializedAction) error {
	return g.PerformAction(sub.Name, sub.Seat, sub.Args)
}

// Awaiting surfaces the current flow suspension, nil when none.
func (g *Game) Awaiting() *flow.Await {
	if g.machine == nil {
		return nil
	}
	return g.machine.Awaiting()
}

// ViewFor projects the board for one observer seat; 0 is a spectator.
func (g *Game) ViewFor(observer int) *board.ViewDoc {
	return g.tree.ViewFor(g.tree.Root(), observer, g.def.PostFilter)
}
