package theatre

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playtable/engine/board"
)

func testTree() *board.Tree {
	reg := board.NewRegistry()
	reg.Register(&board.TypeSpec{Tag: "zone"})
	reg.Register(&board.TypeSpec{Tag: "card", Piece: true})
	return board.NewTree(reg)
}

func TestAnimateCapturesMutations(t *testing.T) {
	tr := testTree()
	rec := NewRecorder(tr, nil)
	deck, _ := tr.Create("zone", "deck", tr.Root(), nil)
	hand, _ := tr.Create("zone", "hand", tr.Root(), nil)
	rec.Clear() // setup is not part of any animation

	var card board.NodeID
	ev, err := rec.Animate("deal", map[string]any{"to": 1}, func() error {
		var err error
		card, err = tr.Create("card", "ace", deck, map[string]board.AttrValue{"rank": board.Int(1)})
		if err != nil {
			return err
		}
		if err := tr.Move(card, hand, -1); err != nil {
			return err
		}
		_, err = tr.SetAttr(card, "faceUp", board.Bool(true))
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "deal", ev.Type)
	assert.Equal(t, map[string]any{"to": 1}, ev.Data)
	// One create (plus its attr write), one move, one attr write.
	require.Len(t, ev.Mutations, 3)
	assert.Equal(t, MutCreate, ev.Mutations[0].Kind)
	assert.Equal(t, MutMove, ev.Mutations[1].Kind)
	assert.Equal(t, MutSetAttr, ev.Mutations[2].Kind)

	assert.Len(t, rec.Pending(), 1)
}

func TestAnimateRejectsReentrancy(t *testing.T) {
	tr := testTree()
	rec := NewRecorder(tr, nil)

	_, err := rec.Animate("outer", nil, func() error {
		_, inner := rec.Animate("inner", nil, func() error { return nil })
		return inner
	})
	assert.ErrorIs(t, err, ErrReentrant)
	// The scope is cleaned up: a fresh animate works.
	_, err = rec.Animate("again", nil, func() error { return nil })
	assert.NoError(t, err)
}

func TestFailedCallbackQueuesNothingButMutationsStand(t *testing.T) {
	tr := testTree()
	rec := NewRecorder(tr, nil)
	deck, _ := tr.Create("zone", "deck", tr.Root(), nil)
	rec.Clear()

	boom := errors.New("boom")
	var card board.NodeID
	_, err := rec.Animate("deal", nil, func() error {
		card, _ = tr.Create("card", "c", deck, nil)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, rec.Pending())
	// The authoritative tree keeps the partial work.
	assert.Equal(t, deck, tr.Get(card).Parent)
	// No stale snapshot lingers; reads are authoritative.
	assert.Equal(t, tr.Doc(tr.Root()), rec.State())
}

func TestAcknowledgeAdvancesOneEventAtATime(t *testing.T) {
	tr := testTree()
	rec := NewRecorder(tr, nil)
	deck, _ := tr.Create("zone", "deck", tr.Root(), nil)
	hand, _ := tr.Create("zone", "hand", tr.Root(), nil)
	rec.Clear()

	var card board.NodeID
	ev1, err := rec.Animate("draw", nil, func() error {
		var err error
		card, err = tr.Create("card", "ace", deck, nil)
		return err
	})
	require.NoError(t, err)
	ev2, err := rec.Animate("play", nil, func() error {
		return tr.Move(card, hand, -1)
	})
	require.NoError(t, err)

	// The snapshot lags both events: the card does not exist in it yet.
	snap := rec.State()
	assert.Nil(t, findDoc(snap, card))

	// Acknowledging a non-existent earlier id is a no-op.
	rec.Acknowledge(ev1.ID - 1)
	assert.Len(t, rec.Pending(), 2)
	assert.Nil(t, findDoc(rec.State(), card))

	// First event: card appears, still in the deck.
	rec.Acknowledge(ev1.ID)
	assert.Len(t, rec.Pending(), 1)
	snap = rec.State()
	cardDoc := findDoc(snap, card)
	require.NotNil(t, cardDoc)
	parent, _ := snap.Find(card)
	assert.Equal(t, deck, parent.ID)

	// Acknowledging the same id again changes nothing.
	rec.Acknowledge(ev1.ID)
	assert.Len(t, rec.Pending(), 1)

	// Final event: converged, snapshot discarded.
	rec.Acknowledge(ev2.ID)
	assert.Empty(t, rec.Pending())
	assert.Equal(t, tr.Doc(tr.Root()), rec.State())
}

func TestConvergenceAfterComplexEvent(t *testing.T) {
	tr := testTree()
	rec := NewRecorder(tr, nil)
	deck, _ := tr.Create("zone", "deck", tr.Root(), nil)
	rec.Clear()

	ev, err := rec.Animate("setup", nil, func() error {
		for i := 0; i < 5; i++ {
			c, err := tr.Create("card", "c", deck, map[string]board.AttrValue{"n": board.Int(int64(i))})
			if err != nil {
				return err
			}
			if i == 2 {
				if _, err := tr.SetAttr(c, "n", board.AttrValue{}); err != nil {
					return err
				}
				if err := tr.SetOwner(c, 1); err != nil {
					return err
				}
			}
		}
		if err := tr.SetZoneVisibility(deck, &board.Visibility{Mode: board.VisCountOnly, Allow: []int{1}}); err != nil {
			return err
		}
		return tr.SetOrderDiscipline(deck, board.OrderStack)
	})
	require.NoError(t, err)

	rec.Acknowledge(ev.ID)
	assert.Equal(t, tr.Doc(tr.Root()), rec.State())
}

func TestClearDropsPendingAtActionStart(t *testing.T) {
	tr := testTree()
	rec := NewRecorder(tr, nil)
	deck, _ := tr.Create("zone", "deck", tr.Root(), nil)
	rec.Clear()

	_, err := rec.Animate("old", nil, func() error {
		_, err := tr.Create("card", "c", deck, nil)
		return err
	})
	require.NoError(t, err)
	first := rec.EmitEvent("note", nil)

	rec.Clear()
	assert.Empty(t, rec.Pending())
	assert.Equal(t, tr.Doc(tr.Root()), rec.State())

	// The id counter is shared and never resets.
	next := rec.EmitEvent("after", map[string]any{"k": "v"})
	assert.Greater(t, next.ID, first.ID)
}

func TestRestoreResumesMidAnimation(t *testing.T) {
	tr := testTree()
	rec := NewRecorder(tr, nil)
	deck, _ := tr.Create("zone", "deck", tr.Root(), nil)
	rec.Clear()

	ev, err := rec.Animate("draw", nil, func() error {
		_, err := tr.Create("card", "c", deck, nil)
		return err
	})
	require.NoError(t, err)

	snapRoot, snapPile := rec.Snapshot()
	require.NotNil(t, snapRoot)

	// A second recorder over the same tree picks up where the first left off.
	rec2 := NewRecorder(tr, nil)
	rec2.Restore(snapRoot.Clone(), snapPile.Clone(), rec.Pending())
	require.Len(t, rec2.Pending(), 1)
	assert.NotEqual(t, tr.Doc(tr.Root()), rec2.State())

	rec2.Acknowledge(ev.ID)
	assert.Equal(t, tr.Doc(tr.Root()), rec2.State())

	// Fresh events allocate past the restored ids.
	assert.Greater(t, rec2.EmitEvent("x", nil).ID, ev.ID)
}

// findDoc walks a document for the node with the given id.
func findDoc(d *board.NodeDoc, id board.NodeID) *board.NodeDoc {
	if d == nil {
		return nil
	}
	if d.ID == id {
		return d
	}
	for _, c := range d.Children {
		if got := findDoc(c, id); got != nil {
			return got
		}
	}
	return nil
}
