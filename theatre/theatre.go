// Package theatre captures tree mutations into semantic animation events
// and maintains the lagging presentation snapshot a client advances one
// event at a time. The authoritative tree is always mutated immediately;
// capture is observational, never transactional.
package theatre

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/playtable/engine/board"
)

// ErrReentrant reports an Animate call made from inside an open Animate
// scope. This is a programming mistake in the calling game code, not a
// runtime condition.
var ErrReentrant = errors.New("theatre: animate called inside an open animate scope")

// MutKind discriminates the captured mutation variant.
type MutKind int

const (
	MutCreate MutKind = iota
	MutMove
	MutSetAttr
	MutSetProp
)

func (k MutKind) String() string {
	switch k {
	case MutCreate:
		return "create"
	case MutMove:
		return "move"
	case MutSetAttr:
		return "setAttr"
	case MutSetProp:
		return "setProp"
	}
	return "invalid"
}

func (k MutKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *MutKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for c := MutCreate; c <= MutSetProp; c++ {
		if c.String() == s {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("theatre: unknown mutation kind %q", s)
}

// Mutation is one primitive tree write captured inside an animate scope,
// carrying enough context to re-apply it to a lagging snapshot.
type Mutation struct {
	Kind      MutKind        `json:"kind"`
	Node      board.NodeID   `json:"node"`
	Parent    board.NodeID   `json:"parent,omitempty"`    // create parent or move destination
	OldParent board.NodeID   `json:"oldParent,omitempty"` // move source
	Index     int            `json:"index"`               // insertion slot
	Doc       *board.NodeDoc `json:"doc,omitempty"`       // created node at creation time
	Key       string         `json:"key,omitempty"`       // attribute key
	Attr      *board.AttrDoc `json:"attr,omitempty"`      // new value, nil = deleted
	Prop      string         `json:"prop,omitempty"`      // property name
	Value     string         `json:"value,omitempty"`     // new property value
}

// Event is one semantic animation step: a type, caller data, and the
// primitive mutations performed while its animate scope was open. Ids come
// from one monotonic counter shared with data-only events.
type Event struct {
	ID        int64          `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
	Mutations []Mutation     `json:"mutations,omitempty"`
}

// Recorder owns the capture flag, the pending event queue and the lagging
// snapshot. It attaches to the tree as its mutation observer. Single
// goroutine access only, like everything else on the game loop.
type Recorder struct {
	tree *board.Tree
	log  *zap.Logger

	capturing bool
	captured  []Mutation

	nextID  int64
	pending []*Event
	snap    *snapshot
}

func NewRecorder(tree *board.Tree, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{tree: tree, log: log, nextID: 1}
	tree.SetObserver(r)
	return r
}

// Animate opens a capture scope, runs fn synchronously and, on success,
// queues one event holding every tree write fn performed. Nested calls are
// rejected with ErrReentrant. If fn fails, the mutations it already made
// stand on the authoritative tree but no event is queued, and the scope is
// cleaned up either way.
func (r *Recorder) Animate(eventType string, data map[string]any, fn func() error) (*Event, error) {
	if r.capturing {
		return nil, ErrReentrant
	}

	// The baseline must lag the event being captured, so clone before fn
	// touches the tree. Committed only if fn succeeds.
	var base *snapshot
	if r.snap == nil {
		base = newSnapshot(r.tree)
	}

	r.capturing = true
	r.captured = nil
	defer func() {
		r.capturing = false
		r.captured = nil
	}()

	if err := fn(); err != nil {
		return nil, err
	}

	if base != nil {
		r.snap = base
	}
	ev := &Event{
		ID:        r.nextID,
		Type:      eventType,
		Data:      copyData(data),
		At:        time.Now(),
		Mutations: r.captured,
	}
	r.nextID++
	r.pending = append(r.pending, ev)
	r.log.Debug("event captured",
		zap.Int64("id", ev.ID), zap.String("type", eventType),
		zap.Int("mutations", len(ev.Mutations)))
	return ev, nil
}

// EmitEvent queues a data-only event carrying no mutations. It shares the
// id counter with Animate.
func (r *Recorder) EmitEvent(eventType string, data map[string]any) *Event {
	ev := &Event{ID: r.nextID, Type: eventType, Data: copyData(data), At: time.Now()}
	r.nextID++
	r.pending = append(r.pending, ev)
	return ev
}

// Pending returns the unacknowledged events, oldest first.
func (r *Recorder) Pending() []*Event {
	return append([]*Event(nil), r.pending...)
}

// Clear drops all pending events and the snapshot. The game calls this at
// the start of each top-level action so a consumer only ever sees the
// events produced by the most recent action.
func (r *Recorder) Clear() {
	r.pending = nil
	r.snap = nil
}

// Acknowledge advances the snapshot through every pending event with
// id <= through, in ascending order, and drops them from the queue.
// Acknowledging an id twice, or an id that never existed, is a no-op for
// the already-consumed range. Once the queue drains the snapshot is
// discarded and reads fall back to the authoritative tree.
func (r *Recorder) Acknowledge(through int64) {
	for len(r.pending) > 0 && r.pending[0].ID <= through {
		ev := r.pending[0]
		if r.snap != nil {
			for i := range ev.Mutations {
				if err := r.snap.apply(&ev.Mutations[i]); err != nil {
					r.log.Warn("snapshot apply failed",
						zap.Int64("event", ev.ID), zap.Error(err))
				}
			}
		}
		r.pending = r.pending[1:]
	}
	if len(r.pending) == 0 {
		r.snap = nil
	}
}

// State returns the presentation view of the tree: the lagging snapshot
// while one exists, else the authoritative tree serialized fresh.
func (r *Recorder) State() *board.NodeDoc {
	if r.snap != nil {
		return r.snap.root.Clone()
	}
	return r.tree.Doc(r.tree.Root())
}

// Snapshot returns the lagging snapshot documents, or nils when the view
// has converged. Used by full-state serialization.
func (r *Recorder) Snapshot() (root, pile *board.NodeDoc) {
	if r.snap == nil {
		return nil, nil
	}
	return r.snap.root, r.snap.pile
}

// Restore reinstates a mid-animation state from a full-state document:
// the pending queue, the id counter past the largest restored id, and the
// snapshot the client was lagging at.
func (r *Recorder) Restore(snapRoot, snapPile *board.NodeDoc, pending []*Event) {
	r.pending = append([]*Event(nil), pending...)
	for _, ev := range r.pending {
		if ev.ID >= r.nextID {
			r.nextID = ev.ID + 1
		}
	}
	if snapRoot != nil {
		r.snap = &snapshot{root: snapRoot, pile: snapPile}
		if r.snap.pile == nil {
			r.snap.pile = &board.NodeDoc{Type: board.TagPile}
		}
	}
}

// NodeCreated, NodeMoved, AttrChanged and PropChanged implement
// board.MutationObserver. Outside a capture scope they record nothing.

func (r *Recorder) NodeCreated(id, parent board.NodeID) {
	if !r.capturing {
		return
	}
	idx := -1
	if p := r.tree.Get(parent); p != nil {
		for i, c := range p.Children {
			if c == id {
				idx = i
			}
		}
	}
	r.captured = append(r.captured, Mutation{
		Kind: MutCreate, Node: id, Parent: parent, Index: idx, Doc: r.tree.Doc(id),
	})
}

func (r *Recorder) NodeMoved(id, oldParent, newParent board.NodeID, index int) {
	if !r.capturing {
		return
	}
	r.captured = append(r.captured, Mutation{
		Kind: MutMove, Node: id, OldParent: oldParent, Parent: newParent, Index: index,
	})
}

func (r *Recorder) AttrChanged(id board.NodeID, key string, _, new board.AttrValue) {
	if !r.capturing {
		return
	}
	m := Mutation{Kind: MutSetAttr, Node: id, Key: key}
	if !new.IsNil() {
		d := new.Doc()
		m.Attr = &d
	}
	r.captured = append(r.captured, m)
}

func (r *Recorder) PropChanged(id board.NodeID, prop, _, new string) {
	if !r.capturing {
		return
	}
	r.captured = append(r.captured, Mutation{Kind: MutSetProp, Node: id, Prop: prop, Value: new})
}

// copyData deep-copies caller event data so later caller mutation can't
// alter a queued event.
func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyData(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	}
	return v
}
