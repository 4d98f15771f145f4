package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playtable/engine/board"
)

type fakeCtx struct {
	tree  *board.Tree
	seats []int
}

func (c *fakeCtx) Tree() *board.Tree { return c.tree }
func (c *fakeCtx) Seats() []int      { return c.seats }

func newFakeCtx() (*fakeCtx, board.NodeID) {
	reg := board.NewRegistry()
	reg.Register(&board.TypeSpec{Tag: "zone"})
	reg.Register(&board.TypeSpec{Tag: "card", Piece: true})
	tr := board.NewTree(reg)
	hand, _ := tr.Create("zone", "hand", tr.Root(), nil)
	return &fakeCtx{tree: tr, seats: []int{1, 2}}, hand
}

func handCards(ctx *fakeCtx, hand board.NodeID, n int) []board.NodeID {
	var out []board.NodeID
	for i := 0; i < n; i++ {
		c, _ := ctx.tree.Create("card", "c", hand, map[string]board.AttrValue{"n": board.Int(int64(i))})
		out = append(out, c)
	}
	return out
}

func discardAction(hand board.NodeID) *Definition {
	sel := func(name string) Selection {
		return Selection{
			Name: name, Kind: SelElement, ElementType: "card",
			SearchRoot: func(Ctx, int) board.NodeID { return hand },
		}
	}
	return &Definition{
		Name:       "discard",
		Prompt:     "Discard two cards",
		Selections: []Selection{sel("first"), sel("second")},
	}
}

func TestAvailabilityRequiresChoices(t *testing.T) {
	ctx, hand := newFakeCtx()
	d := discardAction(hand)

	// Empty hand: the element selections have no legal choices.
	assert.False(t, d.Available(ctx, 1))

	handCards(ctx, hand, 2)
	assert.True(t, d.Available(ctx, 1))

	// A failing precondition blocks regardless of choices.
	d.Condition = func(Ctx, int) bool { return false }
	assert.False(t, d.Available(ctx, 1))

	// Optional and open-domain selections never block.
	open := &Definition{Name: "chat", Selections: []Selection{
		{Name: "msg", Kind: SelText, MaxLen: 100},
		{Name: "target", Kind: SelElement, ElementType: "ghost", Optional: true},
	}}
	assert.True(t, open.Available(ctx, 1))
}

func TestDiscardSameCardTwiceFailsValidation(t *testing.T) {
	ctx, hand := newFakeCtx()
	cards := handCards(ctx, hand, 6)
	d := discardAction(hand)

	// Two distinct cards validate cleanly.
	assert.Empty(t, d.Validate(ctx, 1, Args{"first": cards[0], "second": cards[1]}))

	// The same card submitted for both slots: the first selection consumes
	// it, so the second fails domain membership.
	errs := d.Validate(ctx, 1, Args{"first": cards[0], "second": cards[0]})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "second")
	assert.Contains(t, errs[0], "does not match available choices")
}

func TestValidateAggregatesAllErrors(t *testing.T) {
	ctx, _ := newFakeCtx()
	d := &Definition{Name: "bid", Selections: []Selection{
		{Name: "amount", Kind: SelNumber, Min: 1, Max: 10, Integer: true},
		{Name: "note", Kind: SelText, MaxLen: 3},
		{Name: "target", Kind: SelPlayer},
	}}

	errs := d.Validate(ctx, 1, Args{"amount": 2.5, "note": "too long"})
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "whole number")
	assert.Contains(t, errs[1], "longer than")
	assert.Contains(t, errs[2], "required")

	assert.Empty(t, d.Validate(ctx, 1, Args{"amount": 3, "note": "ok", "target": 2}))
	// Seat 5 is not in the player collection.
	errs = d.Validate(ctx, 1, Args{"amount": 3, "note": "ok", "target": 5})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "does not match")
}

func TestChoicesMayDependOnEarlierSelections(t *testing.T) {
	ctx, _ := newFakeCtx()
	d := &Definition{Name: "pick", Selections: []Selection{
		{Name: "suit", Kind: SelChoice, Choices: []any{"hearts", "spades"}},
		{Name: "rank", Kind: SelChoice, ChoicesFn: func(_ Ctx, _ int, bound Args) []any {
			if bound["suit"] == "hearts" {
				return []any{1, 2}
			}
			return []any{3}
		}},
	}}

	assert.Empty(t, d.Validate(ctx, 1, Args{"suit": "hearts", "rank": 2}))
	errs := d.Validate(ctx, 1, Args{"suit": "spades", "rank": 2})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "rank")
}

func TestStructuralEqualityForChoiceValues(t *testing.T) {
	ctx, _ := newFakeCtx()
	d := &Definition{Name: "trade", Selections: []Selection{
		{Name: "offer", Kind: SelChoice, Choices: []any{
			map[string]any{"give": "wood", "get": "ore"},
		}},
	}}
	// A structurally equal map submitted by the caller is a member even
	// though it is a different object.
	assert.Empty(t, d.Validate(ctx, 1, Args{"offer": map[string]any{"give": "wood", "get": "ore"}}))
	errs := d.Validate(ctx, 1, Args{"offer": map[string]any{"give": "wood", "get": "wheat"}})
	assert.Len(t, errs, 1)
}

func TestPerformRunsEffectOnlyWhenValid(t *testing.T) {
	ctx, hand := newFakeCtx()
	cards := handCards(ctx, hand, 2)
	d := discardAction(hand)
	ran := false
	d.Effect = func(_ Ctx, actor int, args Args) error {
		ran = true
		return nil
	}

	err := d.Perform(ctx, 1, Args{"first": cards[0], "second": cards[0]})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, ran)

	require.NoError(t, d.Perform(ctx, 1, Args{"first": cards[0], "second": cards[1]}))
	assert.True(t, ran)
}

func TestSingleChoiceSelectionAutoBinds(t *testing.T) {
	ctx, hand := newFakeCtx()
	cards := handCards(ctx, hand, 1)
	d := &Definition{Name: "play", Selections: []Selection{{
		Name: "card", Kind: SelElement, ElementType: "card",
		SearchRoot: func(Ctx, int) board.NodeID { return hand },
	}}}
	var got any
	d.Effect = func(_ Ctx, _ int, args Args) error {
		got = args["card"]
		return nil
	}

	// The only card in hand is the only answer; the omission binds it.
	assert.Empty(t, d.Validate(ctx, 1, Args{}))
	require.NoError(t, d.Perform(ctx, 1, nil))
	assert.Equal(t, cards[0], got)

	// With two candidates the player must choose.
	handCards(ctx, hand, 1)
	errs := d.Validate(ctx, 1, Args{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "required")
}

func TestAutoBindConsumesChoicesInOrder(t *testing.T) {
	ctx, hand := newFakeCtx()
	cards := handCards(ctx, hand, 2)
	d := discardAction(hand)
	var first, second any
	d.Effect = func(_ Ctx, _ int, args Args) error {
		first, second = args["first"], args["second"]
		return nil
	}

	// Binding the first slot leaves exactly one card for the second, which
	// then fills itself.
	require.NoError(t, d.Perform(ctx, 1, Args{"first": cards[0]}))
	assert.Equal(t, cards[0], first)
	assert.Equal(t, cards[1], second)
}

func TestOptionalSelectionIsNeverAutoBound(t *testing.T) {
	ctx, hand := newFakeCtx()
	handCards(ctx, hand, 1)
	d := &Definition{Name: "peek", Selections: []Selection{{
		Name: "card", Kind: SelElement, ElementType: "card", Optional: true,
		SearchRoot: func(Ctx, int) board.NodeID { return hand },
	}}}
	var got any
	d.Effect = func(_ Ctx, _ int, args Args) error {
		got = args["card"]
		return nil
	}

	require.NoError(t, d.Perform(ctx, 1, nil))
	assert.Nil(t, got)
}

func TestPerformRecoversEffectPanics(t *testing.T) {
	ctx, _ := newFakeCtx()
	d := &Definition{Name: "boom", Effect: func(Ctx, int, Args) error {
		panic("rule bug")
	}}
	err := d.Perform(ctx, 1, Args{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule bug")
}

func TestResolveArgsBridgesWireScalars(t *testing.T) {
	ctx, hand := newFakeCtx()
	cards := handCards(ctx, hand, 1)
	d := &Definition{Name: "give", Selections: []Selection{
		{Name: "card", Kind: SelElement, ElementType: "card"},
		{Name: "to", Kind: SelPlayer},
		{Name: "count", Kind: SelNumber, Integer: true},
	}}

	// JSON submissions arrive as float64.
	args, err := d.ResolveArgs(ctx, map[string]any{
		"card": float64(cards[0]), "to": float64(2), "count": float64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, cards[0], args["card"])
	assert.Equal(t, 2, args["to"])
	assert.Equal(t, 3, args["count"])

	_, err = d.ResolveArgs(ctx, map[string]any{"card": float64(9999)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSetAvailableForHonorsAllowedSubset(t *testing.T) {
	ctx, hand := newFakeCtx()
	handCards(ctx, hand, 2)
	set := NewSet()
	set.Register(discardAction(hand))
	set.Register(&Definition{Name: "pass"})
	set.Register(&Definition{Name: "blocked", Condition: func(Ctx, int) bool { return false }})

	assert.Equal(t, []string{"discard", "pass"}, set.AvailableFor(ctx, 1, nil))
	assert.Equal(t, []string{"pass"}, set.AvailableFor(ctx, 1, []string{"pass", "blocked"}))
	assert.Nil(t, set.Get("missing"))
}
