package action

import (
	"fmt"
	"math"
	"reflect"
	"regexp"

	"github.com/playtable/engine/board"
)

// SelKind discriminates what a selection asks the player for.
type SelKind int

const (
	SelChoice SelKind = iota // one value from an enumerated list
	SelPlayer                // a seat from the player collection
	SelElement               // a node found in the tree
	SelText                  // free text
	SelNumber                // a number in a range
)

func (k SelKind) String() string {
	switch k {
	case SelChoice:
		return "choice"
	case SelPlayer:
		return "player"
	case SelElement:
		return "element"
	case SelText:
		return "text"
	case SelNumber:
		return "number"
	}
	return "invalid"
}

// Selection is one input slot of an action. Which fields apply depends on
// Kind; the rest stay zero.
type Selection struct {
	Name     string
	Kind     SelKind
	Prompt   string
	Optional bool

	// Choice: a static list, or a function of the actor and the values
	// bound so far.
	Choices   []any
	ChoicesFn func(ctx Ctx, actor int, bound Args) []any

	// Player: optional seat filter.
	PlayerFilter func(ctx Ctx, actor, seat int) bool

	// Element: search configuration. SearchRoot defaults to the tree root;
	// the filter may depend on earlier selection values.
	SearchRoot    func(ctx Ctx, actor int) board.NodeID
	ElementType   string
	ElementFilter func(ctx Ctx, actor int, bound Args, n *board.Node) bool

	// Text bounds.
	MinLen  int
	MaxLen  int
	Pattern *regexp.Regexp

	// Number bounds. Integer rejects fractional submissions.
	Min     float64
	Max     float64
	Integer bool

	// Validate runs after the domain check, with earlier values bound.
	Validate func(ctx Ctx, actor int, bound Args, value any) error
}

// ChoicesFor enumerates the current legal values. For element selections,
// nodes already bound to an earlier element selection are consumed and not
// offered again. Text and number selections have open domains and return
// nothing.
func (s *Selection) ChoicesFor(ctx Ctx, actor int, bound Args) []any {
	switch s.Kind {
	case SelChoice:
		if s.ChoicesFn != nil {
			return s.ChoicesFn(ctx, actor, bound)
		}
		return append([]any(nil), s.Choices...)

	case SelPlayer:
		var out []any
		for _, seat := range ctx.Seats() {
			if s.PlayerFilter != nil && !s.PlayerFilter(ctx, actor, seat) {
				continue
			}
			out = append(out, seat)
		}
		return out

	case SelElement:
		t := ctx.Tree()
		root := t.Root()
		if s.SearchRoot != nil {
			root = s.SearchRoot(ctx, actor)
		}
		ids := t.All(root, board.Filter{Type: s.ElementType, Where: func(n *board.Node) bool {
			if consumed(bound, n.ID) {
				return false
			}
			return s.ElementFilter == nil || s.ElementFilter(ctx, actor, bound, n)
		}})
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = id
		}
		return out
	}
	return nil
}

// soleChoice reports the selection's single legal value when its domain
// enumerates exactly one. Open-domain selections (text, number) never
// qualify.
func (s *Selection) soleChoice(ctx Ctx, actor int, bound Args) (any, bool) {
	switch s.Kind {
	case SelChoice, SelPlayer, SelElement:
		if cs := s.ChoicesFor(ctx, actor, bound); len(cs) == 1 {
			return cs[0], true
		}
	}
	return nil, false
}

// consumed reports whether a node is already bound to another selection.
func consumed(bound Args, id board.NodeID) bool {
	for _, v := range bound {
		if got, ok := v.(board.NodeID); ok && got == id {
			return true
		}
	}
	return false
}

// check validates one submitted value against the selection's domain and
// returns a human-readable violation, or "" when legal.
func (s *Selection) check(ctx Ctx, actor int, bound Args, v any) string {
	switch s.Kind {
	case SelChoice, SelPlayer, SelElement:
		for _, legal := range s.ChoicesFor(ctx, actor, bound) {
			// Non-primitive choice values compare structurally.
			if reflect.DeepEqual(legal, v) {
				return ""
			}
		}
		return "value does not match available choices"

	case SelText:
		text, ok := v.(string)
		if !ok {
			return fmt.Sprintf("expected text, got %T", v)
		}
		if len(text) < s.MinLen {
			return fmt.Sprintf("shorter than %d characters", s.MinLen)
		}
		if s.MaxLen > 0 && len(text) > s.MaxLen {
			return fmt.Sprintf("longer than %d characters", s.MaxLen)
		}
		if s.Pattern != nil && !s.Pattern.MatchString(text) {
			return fmt.Sprintf("does not match %s", s.Pattern)
		}
		return ""

	case SelNumber:
		f, ok := asFloat(v)
		if !ok {
			return fmt.Sprintf("expected a number, got %T", v)
		}
		if s.Integer && f != math.Trunc(f) {
			return "expected a whole number"
		}
		if f < s.Min {
			return fmt.Sprintf("below minimum %v", s.Min)
		}
		if s.Max != 0 && f > s.Max {
			return fmt.Sprintf("above maximum %v", s.Max)
		}
		return ""
	}
	return fmt.Sprintf("unknown selection kind %d", int(s.Kind))
}

// resolve converts one wire scalar into the live value the domain check
// expects: node ids for elements, seats for players, normalized numbers.
func (s *Selection) resolve(ctx Ctx, v any) (any, string) {
	switch s.Kind {
	case SelElement:
		n, ok := asFloat(v)
		if !ok {
			// A live reference passes through untouched.
			if id, isID := v.(board.NodeID); isID {
				n, ok = float64(id), true
			}
		}
		if !ok {
			return nil, fmt.Sprintf("expected an element id, got %T", v)
		}
		id := board.NodeID(n)
		if ctx.Tree().Get(id) == nil {
			return nil, fmt.Sprintf("element %d not found", id)
		}
		return id, ""

	case SelPlayer:
		n, ok := asFloat(v)
		if !ok {
			return nil, fmt.Sprintf("expected a seat number, got %T", v)
		}
		return int(n), ""

	case SelNumber:
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Sprintf("expected a number, got %T", v)
		}
		if s.Integer {
			return int(f), ""
		}
		return f, ""
	}
	return v, ""
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
