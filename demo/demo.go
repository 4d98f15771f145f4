// Package demo wires a complete small card game into the engine: a
// shuffled 52-card source dealt into per-player hidden hands, a discard
// turn for each player and a simultaneous reveal to finish. It exists to
// exercise every engine subsystem end to end and doubles as the match
// the server binary runs.
package demo

import (
	"fmt"

	"github.com/playtable/engine/action"
	"github.com/playtable/engine/board"
	"github.com/playtable/engine/command"
	"github.com/playtable/engine/flow"
	"github.com/playtable/engine/game"
	"github.com/playtable/engine/internal/data"
)

// DefaultHandSize is dealt when the definition is built with no override.
const DefaultHandSize = 6

// Definition builds the draw-and-discard demo game. handSize <= 0 falls
// back to the default.
func Definition(handSize int) *game.Definition {
	if handSize <= 0 {
		handSize = DefaultHandSize
	}
	return &game.Definition{
		Name: "draw-and-discard",
		Types: func(reg *board.Registry) {
			reg.Register(&board.TypeSpec{Tag: "zone"})
			reg.Register(&board.TypeSpec{Tag: "card", Piece: true})
		},
		Settings: map[string]any{"handSize": handSize},
		Actions:  registerActions,
		Flow:     buildFlow,
		Setup:    setup,
	}
}

// Deck returns the shared draw pile.
func Deck(g *game.Game) board.NodeID {
	return g.Tree().First(g.Tree().Root(), board.Filter{Name: "deck"})
}

// DiscardPile returns the open discard zone.
func DiscardPile(g *game.Game) board.NodeID {
	return g.Tree().First(g.Tree().Root(), board.Filter{Name: "discard"})
}

// Hand returns the seat's hand zone.
func Hand(g *game.Game, seat int) board.NodeID {
	return g.Tree().First(g.Tree().Root(), board.Filter{Name: handName(seat)})
}

func handName(seat int) string { return fmt.Sprintf("hand-%d", seat) }

// setup builds the board and deals the opening hands. Every mutation goes
// through the command log so a replay from the seed rebuilds the exact
// same board, shuffle included.
func setup(g *game.Game) error {
	root := g.Tree().Root()

	deckRes := g.Execute(command.Create("zone", "deck", root, nil))
	if !deckRes.OK {
		return deckRes.Err
	}
	deck := deckRes.Created[0]
	// Spectators and opponents may know how many cards remain, nothing else.
	if res := g.Execute(command.SetZoneVisibility(deck, &board.Visibility{Mode: board.VisCountOnly})); !res.OK {
		return res.Err
	}

	if res := g.Execute(command.Create("zone", "discard", root, nil)); !res.OK {
		return res.Err
	}

	for _, seat := range g.Seats() {
		res := g.Execute(command.Create("zone", handName(seat), root, nil))
		if !res.OK {
			return res.Err
		}
		vis := &board.Visibility{Mode: board.VisHidden, Allow: []int{seat}}
		if res := g.Execute(command.SetZoneVisibility(res.Created[0], vis)); !res.OK {
			return res.Err
		}
	}

	for _, c := range data.StandardDeck().Cards {
		attrs := map[string]board.AttrValue{
			"suit": board.String(c.Suit),
			"rank": board.Int(int64(c.Rank)),
		}
		if res := g.Execute(command.Create("card", c.Name, deck, attrs)); !res.OK {
			return res.Err
		}
	}
	if res := g.Execute(command.Shuffle(deck)); !res.OK {
		return res.Err
	}

	handSize := intSetting(g, "handSize", DefaultHandSize)
	_, err := g.Theatre().Animate("deal", map[string]any{"hand-size": handSize}, func() error {
		for i := 0; i < handSize; i++ {
			for _, seat := range g.Seats() {
				top := g.Tree().Get(deck).Children[0]
				if res := g.Execute(command.Move(top, Hand(g, seat), -1)); !res.OK {
					return res.Err
				}
			}
		}
		return nil
	})
	return err
}

func registerActions(g *game.Game) {
	handRoot := func(_ action.Ctx, actor int) board.NodeID {
		return Hand(g, actor)
	}

	g.Actions().Register(&action.Definition{
		Name:   "discard",
		Prompt: "Discard two cards",
		Condition: func(_ action.Ctx, actor int) bool {
			return g.Tree().Count(Hand(g, actor), board.Filter{Type: "card"}) >= 2
		},
		Selections: []action.Selection{
			{Name: "first", Kind: action.SelElement, ElementType: "card",
				Prompt: "First card to discard", SearchRoot: handRoot},
			{Name: "second", Kind: action.SelElement, ElementType: "card",
				Prompt: "Second card to discard", SearchRoot: handRoot},
		},
		Effect: func(_ action.Ctx, actor int, args action.Args) error {
			first := args["first"].(board.NodeID)
			second := args["second"].(board.NodeID)
			_, err := g.Theatre().Animate("discard", map[string]any{"seat": actor}, func() error {
				for _, id := range []board.NodeID{first, second} {
					if res := g.Execute(command.Move(id, DiscardPile(g), -1)); !res.OK {
						return res.Err
					}
				}
				return g.Execute(command.Message(actor, "discarded two cards")).Err
			})
			return err
		},
	})

	g.Actions().Register(&action.Definition{
		Name:   "reveal",
		Prompt: "Reveal your top card",
		Condition: func(_ action.Ctx, actor int) bool {
			hand := g.Tree().Get(Hand(g, actor))
			return hand != nil && len(hand.Children) > 0 && hand.Attr("revealed").IsNil()
		},
		Effect: func(_ action.Ctx, actor int, _ action.Args) error {
			hand := Hand(g, actor)
			top := g.Tree().Get(hand).Children[0]
			_, err := g.Theatre().Animate("reveal", map[string]any{"seat": actor}, func() error {
				if res := g.Execute(command.Move(top, DiscardPile(g), -1)); !res.OK {
					return res.Err
				}
				return g.Execute(command.SetAttr(hand, "revealed", board.Bool(true))).Err
			})
			return err
		},
	})
}

// buildFlow runs one discard turn per seat, then a simultaneous reveal
// that stays suspended until every seat has revealed.
func buildFlow(g *game.Game) *flow.Node {
	return flow.Sequence("round",
		flow.PerPlayer("discard-turns", "p",
			flow.ActionStep("discard-turn",
				func(m *flow.Machine) int { return m.Seat("p") },
				"Discard two cards", "discard")),
		flow.SimultaneousStep("reveal-step", nil, "Reveal your top card", "reveal"),
	)
}

// intSetting reads a numeric setting; restored documents deliver numbers
// as float64.
func intSetting(g *game.Game, key string, fallback int) int {
	switch v := g.Setting(key).(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}
