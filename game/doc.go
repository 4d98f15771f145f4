package game

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/playtable/engine/action"
	"github.com/playtable/engine/board"
	"github.com/playtable/engine/command"
	"github.com/playtable/engine/flow"
	"github.com/playtable/engine/theatre"
)

// Document is the full-state serialization of a match: everything needed
// to reconstruct an equivalent game, including a mid-animation theatre
// state for a reconnecting client. The snapshot fields are present iff
// unacknowledged animation events exist.
type Document struct {
	Game         string            `json:"game"`
	Phase        string            `json:"phase"`
	Seed         string            `json:"seed"`
	Players      []Player          `json:"players"`
	Messages     []Message         `json:"messages,omitempty"`
	Settings     map[string]any    `json:"settings,omitempty"`
	Root         *board.NodeDoc    `json:"root"`
	Pile         *board.NodeDoc    `json:"pile"`
	Position     *flow.Position    `json:"position,omitempty"`
	Pending      []*theatre.Event  `json:"pendingEvents,omitempty"`
	Snapshot     *board.NodeDoc    `json:"theatreSnapshot,omitempty"`
	SnapshotPile *board.NodeDoc    `json:"theatreSnapshotPile,omitempty"`
	History      []command.Command `json:"history,omitempty"`
}

// Document serializes the full match state.
func (g *Game) Document() *Document {
	doc := &Document{
		Game:     g.def.Name,
		Phase:    g.phase,
		Seed:     g.seed,
		Messages: g.Messages(),
		Root:     g.tree.Doc(g.tree.Root()),
		Pile:     g.tree.Doc(g.tree.Pile()),
		Pending:  g.rec.Pending(),
		History:  g.exec.History(),
	}
	for _, p := range g.players {
		doc.Players = append(doc.Players, *p)
	}
	if len(g.settings) > 0 {
		doc.Settings = make(map[string]any, len(g.settings))
		for k, v := range g.settings {
			doc.Settings[k] = v
		}
	}
	if g.machine != nil {
		doc.Position = g.machine.Position()
	}
	if snap, pile := g.rec.Snapshot(); snap != nil {
		doc.Snapshot = snap.Clone()
		doc.SnapshotPile = pile.Clone()
	}
	return doc
}

// Restore reconstructs a match from a full-state document and the same
// definition it was serialized from. Node ids, visibility, the flow
// position, the command history (without inverses, so restored commands
// cannot be undone) and any mid-animation theatre state all come back; the
// random generator restarts from the seed (its consumed stream is not part
// of the document).
func Restore(def *Definition, doc *Document, log *zap.Logger) (*Game, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(doc.Players) == 0 {
		return nil, fmt.Errorf("game: restore: document has no players")
	}

	g := &Game{
		log:      log.Named(def.Name),
		def:      def,
		seed:     doc.Seed,
		rng:      rand.New(rand.NewSource(seedSource(doc.Seed))),
		phase:    doc.Phase,
		messages: append([]Message(nil), doc.Messages...),
		settings: map[string]any{},
	}
	for k, v := range def.Settings {
		g.settings[k] = v
	}
	for k, v := range doc.Settings {
		g.settings[k] = v
	}
	for i := range doc.Players {
		p := doc.Players[i]
		g.players = append(g.players, &p)
	}

	g.reg = board.NewRegistry()
	if def.Types != nil {
		def.Types(g.reg)
	}
	tree, err := board.LoadDoc(g.reg, doc.Root, doc.Pile)
	if err != nil {
		return nil, fmt.Errorf("game: restore: %w", err)
	}
	g.tree = tree

	g.rec = theatre.NewRecorder(g.tree, g.log)
	if doc.Snapshot != nil || len(doc.Pending) > 0 {
		var snapRoot, snapPile *board.NodeDoc
		if doc.Snapshot != nil {
			snapRoot = doc.Snapshot.Clone()
			snapPile = doc.SnapshotPile.Clone()
		}
		g.rec.Restore(snapRoot, snapPile, doc.Pending)
	}

	g.exec = command.NewExecutor(g, g.log)
	g.exec.LoadHistory(doc.History)
	g.actions = action.NewSet()
	if def.Actions != nil {
		def.Actions(g)
	}
	if def.Flow != nil {
		g.machine = flow.NewMachine(g, def.Flow(g), g.log)
		if err := g.machine.Restore(doc.Position); err != nil {
			return nil, fmt.Errorf("game: restore: %w", err)
		}
	}
	g.log.Info("game restored",
		zap.String("phase", g.phase), zap.Int("pendingEvents", len(doc.Pending)))
	return g, nil
}

// ReplayHistory re-executes a recorded command history against this game's
// fresh state. Combined with the original seed this reproduces the exact
// serialized tree.
func (g *Game) ReplayHistory(cmds []command.Command) error {
	return g.exec.Replay(cmds)
}

// Replay builds a fresh same-seed game and re-executes a recorded history
// against it, without running the definition's setup (the history already
// contains setup's commands).
func Replay(def *Definition, seed string, playerNames []string, hist []command.Command, log *zap.Logger) (*Game, error) {
	g, err := New(def, seed, playerNames, log)
	if err != nil {
		return nil, err
	}
	if err := g.ReplayHistory(hist); err != nil {
		return nil, err
	}
	return g, nil
}
