package game

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playtable/engine/action"
	"github.com/playtable/engine/board"
	"github.com/playtable/engine/command"
	"github.com/playtable/engine/flow"
)

// miniDef is a two-player game: four cards in a pool, each player takes
// one on their turn.
func miniDef() *Definition {
	return &Definition{
		Name: "mini",
		Types: func(reg *board.Registry) {
			reg.Register(&board.TypeSpec{Tag: "zone"})
			reg.Register(&board.TypeSpec{Tag: "card", Piece: true})
		},
		Actions: func(g *Game) {
			g.Actions().Register(&action.Definition{
				Name:   "take",
				Prompt: "Take a card",
				Selections: []action.Selection{{
					Name: "card", Kind: action.SelElement, ElementType: "card",
					SearchRoot: func(action.Ctx, int) board.NodeID {
						return g.Tree().First(g.Tree().Root(), board.Filter{Name: "pool"})
					},
				}},
				Effect: func(_ action.Ctx, actor int, args action.Args) error {
					hand := g.Tree().First(g.Tree().Root(), board.Filter{Name: fmt.Sprintf("hand%d", actor)})
					return g.Execute(command.Move(args["card"].(board.NodeID), hand, -1)).Err
				},
			})
		},
		Flow: func(g *Game) *flow.Node {
			return flow.PerPlayer("turns", "p",
				flow.ActionStep("turn", func(m *flow.Machine) int { return m.Seat("p") }, "Take a card", "take"))
		},
		Setup: func(g *Game) error {
			pool := g.Execute(command.Create("zone", "pool", g.Tree().Root(), nil))
			if !pool.OK {
				return pool.Err
			}
			for seat := 1; seat <= 2; seat++ {
				if res := g.Execute(command.Create("zone", fmt.Sprintf("hand%d", seat), g.Tree().Root(), nil)); !res.OK {
					return res.Err
				}
			}
			return g.Execute(command.CreateMany(4, "card", "card", pool.Created[0], nil)).Err
		},
		Settings: map[string]any{"handLimit": 1},
	}
}

func startedMini(t *testing.T) *Game {
	t.Helper()
	g, err := New(miniDef(), "s1", []string{"ada", "ben"}, nil)
	require.NoError(t, err)
	require.NoError(t, g.Start())
	return g
}

func poolCard(g *Game) board.NodeID {
	pool := g.Tree().First(g.Tree().Root(), board.Filter{Name: "pool"})
	return g.Tree().First(pool, board.Filter{Type: "card"})
}

func TestLifecycleRunsToCompletion(t *testing.T) {
	g := startedMini(t)
	assert.Equal(t, command.PhaseStarted, g.Phase())

	aw := g.Awaiting()
	require.NotNil(t, aw)
	assert.Equal(t, 1, aw.Actor)
	assert.Equal(t, []string{"take"}, aw.Legal[1])

	// Wire submission: the card id arrives as a JSON number.
	require.NoError(t, g.PerformSerialized(SerializedAction{
		Name: "take", Seat: 1, Args: map[string]any{"card": float64(poolCard(g))},
	}))
	require.NotNil(t, g.Awaiting())
	assert.Equal(t, 2, g.Awaiting().Actor)

	require.NoError(t, g.PerformAction("take", 2, map[string]any{"card": poolCard(g)}))

	// Flow is done, so the game finished itself.
	assert.Equal(t, command.PhaseFinished, g.Phase())
	assert.Nil(t, g.Awaiting())
	hand := g.Tree().First(g.Tree().Root(), board.Filter{Name: "hand1"})
	assert.Equal(t, 1, g.Tree().Count(hand, board.Filter{Type: "card"}))

	// No further submissions are accepted.
	assert.Error(t, g.PerformAction("take", 1, nil))
}

func TestSeatsAreOneIndexedAndCurrentIsExclusive(t *testing.T) {
	g := startedMini(t)
	assert.Equal(t, []int{1, 2}, g.Seats())
	assert.Equal(t, "ada", g.Player(1).Name)
	assert.Nil(t, g.Player(0))
	assert.Nil(t, g.Player(3))

	require.True(t, g.Execute(command.SetCurrent(1)).OK)
	require.True(t, g.Execute(command.SetCurrent(2)).OK)
	assert.Equal(t, 2, g.CurrentSeat())
	assert.False(t, g.Player(1).Current)

	// Undo restores the previous holder.
	require.True(t, g.Undo())
	assert.Equal(t, 1, g.CurrentSeat())
}

func TestMessagesFlowThroughCommands(t *testing.T) {
	g := startedMini(t)
	require.True(t, g.Execute(command.Message(0, "round one")).OK)
	msgs := g.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "round one", msgs[0].Text)
}

func TestPerformActionClearsTheatreQueue(t *testing.T) {
	g := startedMini(t)
	g.Theatre().EmitEvent("stale", nil)
	require.Len(t, g.Theatre().Pending(), 1)

	require.NoError(t, g.PerformAction("take", 1, map[string]any{"card": poolCard(g)}))
	assert.Empty(t, g.Theatre().Pending())
}

func TestSettingsMergeDefinitionDefaults(t *testing.T) {
	g := startedMini(t)
	assert.Equal(t, 1, g.Setting("handLimit"))
	assert.Nil(t, g.Setting("missing"))
}

func TestDocumentRoundTripMidGame(t *testing.T) {
	g := startedMini(t)
	require.NoError(t, g.PerformAction("take", 1, map[string]any{"card": poolCard(g)}))
	g.Theatre().EmitEvent("flourish", map[string]any{"style": "arc"})

	raw, err := json.Marshal(g.Document())
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(raw, &doc))

	g2, err := Restore(miniDef(), &doc, nil)
	require.NoError(t, err)

	assert.Equal(t, g.Tree().Doc(g.Tree().Root()), g2.Tree().Doc(g2.Tree().Root()))
	assert.Equal(t, g.Phase(), g2.Phase())
	assert.Equal(t, "ben", g2.Player(2).Name)
	require.Len(t, g2.Theatre().Pending(), 1)
	assert.Equal(t, "flourish", g2.Theatre().Pending()[0].Type)

	// The command journal survives the round trip, so the restored match's
	// own documents keep carrying it. Restored entries have no inverses, so
	// nothing can be undone past the restore point.
	assert.Equal(t, g.History(), g2.History())
	assert.False(t, g2.Undo())

	// The restored game resumes at the same awaited step.
	aw := g2.Awaiting()
	require.NotNil(t, aw)
	assert.Equal(t, 2, aw.Actor)
	require.NoError(t, g2.PerformAction("take", 2, map[string]any{"card": poolCard(g2)}))
	assert.Equal(t, command.PhaseFinished, g2.Phase())
}

func TestRestoreFailsOnUnregisteredTypes(t *testing.T) {
	g := startedMini(t)
	doc := g.Document()

	bare := miniDef()
	bare.Types = nil
	_, err := Restore(bare, doc, nil)
	assert.Error(t, err)
}

func TestReplayReproducesIdenticalTree(t *testing.T) {
	g := startedMini(t)
	require.NoError(t, g.PerformAction("take", 1, map[string]any{"card": poolCard(g)}))
	require.NoError(t, g.PerformAction("take", 2, map[string]any{"card": poolCard(g)}))

	g2, err := Replay(miniDef(), g.Seed(), []string{"ada", "ben"}, g.History(), nil)
	require.NoError(t, err)
	assert.Equal(t, g.Tree().Doc(g.Tree().Root()), g2.Tree().Doc(g2.Tree().Root()))
	assert.Equal(t, g.Phase(), g2.Phase())
}

func TestViewForRedactsPerObserver(t *testing.T) {
	def := miniDef()
	def.PostFilter = func(n *board.Node, attrs map[string]any) {
		delete(attrs, "secret")
	}
	g, err := New(def, "s1", []string{"ada", "ben"}, nil)
	require.NoError(t, err)
	require.NoError(t, g.Start())

	hand := g.Tree().First(g.Tree().Root(), board.Filter{Name: "hand1"})
	require.NoError(t, g.Tree().SetOwner(hand, 1))
	require.NoError(t, g.Tree().SetZoneVisibility(hand, &board.Visibility{Mode: board.VisOwner}))
	card := poolCard(g)
	require.True(t, g.Execute(command.Move(card, hand, -1)).OK)
	require.True(t, g.Execute(command.SetAttr(card, "secret", board.String("x"))).OK)
	require.True(t, g.Execute(command.SetAttr(card, "rank", board.Int(4))).OK)

	find := func(v *board.ViewDoc, id board.NodeID) *board.ViewDoc {
		var walk func(*board.ViewDoc) *board.ViewDoc
		walk = func(d *board.ViewDoc) *board.ViewDoc {
			if d.ID == id {
				return d
			}
			for _, c := range d.Children {
				if got := walk(c); got != nil {
					return got
				}
			}
			return nil
		}
		return walk(v)
	}

	// Owner sees the card but the post filter still redacts.
	own := find(g.ViewFor(1), card)
	require.NotNil(t, own)
	assert.Equal(t, int64(4), own.Attrs["rank"])
	assert.NotContains(t, own.Attrs, "secret")

	// A spectator sees only the hidden collapse.
	spec := find(g.ViewFor(0), card)
	require.NotNil(t, spec)
	assert.Equal(t, map[string]any{"hidden": true}, spec.Attrs)
}
