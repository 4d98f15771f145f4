// Package action implements player-invokable moves: a named definition
// with a precondition, an ordered list of selections the player fills in,
// and an effect that runs only after every submitted value validates
// against its selection's domain.
package action

import (
	"fmt"
	"strings"

	"github.com/playtable/engine/board"
)

// Ctx is the slice of game state the action system reads during choice
// enumeration and validation. Effects capture richer state themselves.
type Ctx interface {
	Tree() *board.Tree
	Seats() []int
}

// Args maps selection names to submitted values: live references (node
// ids, seat numbers) or plain scalars for text/number selections.
type Args map[string]any

// Definition describes one action. Selections are filled in order; a later
// selection's domain may depend on earlier values.
type Definition struct {
	Name       string
	Prompt     string
	Condition  func(ctx Ctx, actor int) bool
	Selections []Selection
	Effect     func(ctx Ctx, actor int, args Args) error
}

// ValidationError aggregates every domain violation found in one submission.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "action invalid: " + strings.Join(e.Errors, "; ")
}

// Available reports whether the actor can take this action right now: the
// precondition passes and every required selection that enumerates a
// domain has at least one legal choice. Free-text and number selections
// never block, and optional selections never block.
func (d *Definition) Available(ctx Ctx, actor int) bool {
	if d.Condition != nil && !d.Condition(ctx, actor) {
		return false
	}
	for i := range d.Selections {
		s := &d.Selections[i]
		if s.Optional || s.Kind == SelText || s.Kind == SelNumber {
			continue
		}
		if len(s.ChoicesFor(ctx, actor, Args{})) == 0 {
			return false
		}
	}
	return true
}

// Validate checks a full submission and returns every violation found,
// not just the first. An empty result means the submission is legal.
// Selections are checked in order with earlier validated values bound, so
// a choice consumed by one selection is no longer legal for the next.
// Omitted required selections with a single legal value are auto-bound
// rather than rejected.
func (d *Definition) Validate(ctx Ctx, actor int, args Args) []string {
	var errs []string
	if d.Condition != nil && !d.Condition(ctx, actor) {
		errs = append(errs, fmt.Sprintf("action %s is not allowed", d.Name))
	}

	args = d.autoFill(ctx, actor, args)
	bound := Args{}
	for i := range d.Selections {
		s := &d.Selections[i]
		v, present := args[s.Name]
		if !present || v == nil {
			if !s.Optional {
				errs = append(errs, fmt.Sprintf("selection %s is required", s.Name))
			}
			continue
		}
		if msg := s.check(ctx, actor, bound, v); msg != "" {
			errs = append(errs, fmt.Sprintf("selection %s: %s", s.Name, msg))
			continue
		}
		if s.Validate != nil {
			if err := s.Validate(ctx, actor, bound, v); err != nil {
				errs = append(errs, fmt.Sprintf("selection %s: %v", s.Name, err))
				continue
			}
		}
		bound[s.Name] = v
	}
	return errs
}

// autoFill binds every omitted required selection whose domain enumerates
// exactly one legal value, in selection order with earlier values bound. The
// player is never asked a question that has only one answer. The submitted
// args are left untouched; the filled copy is returned.
func (d *Definition) autoFill(ctx Ctx, actor int, args Args) Args {
	out := make(Args, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	bound := Args{}
	for i := range d.Selections {
		s := &d.Selections[i]
		if v, present := out[s.Name]; present && v != nil {
			bound[s.Name] = v
			continue
		}
		if s.Optional {
			continue
		}
		if only, ok := s.soleChoice(ctx, actor, bound); ok {
			out[s.Name] = only
			bound[s.Name] = only
		}
	}
	return out
}

// Perform validates and, only if the submission is legal, runs the effect.
// Effect panics are recovered and surfaced as errors so a buggy game rule
// cannot take down the loop.
func (d *Definition) Perform(ctx Ctx, actor int, args Args) (err error) {
	args = d.autoFill(ctx, actor, args)
	if errs := d.Validate(ctx, actor, args); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	if d.Effect == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s: effect panicked: %v", d.Name, r)
		}
	}()
	return d.Effect(ctx, actor, args)
}

// ResolveArgs converts a wire submission (plain scalar identifiers) into
// live argument values: element ids become node ids checked for existence,
// player values become seat numbers, and JSON numbers are normalized.
// Unresolvable references are reported per selection.
func (d *Definition) ResolveArgs(ctx Ctx, raw map[string]any) (Args, error) {
	out := Args{}
	var errs []string
	for i := range d.Selections {
		s := &d.Selections[i]
		v, present := raw[s.Name]
		if !present || v == nil {
			continue
		}
		got, msg := s.resolve(ctx, v)
		if msg != "" {
			errs = append(errs, fmt.Sprintf("selection %s: %s", s.Name, msg))
			continue
		}
		out[s.Name] = got
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return out, nil
}

// Set is a name-keyed action collection preserving registration order.
type Set struct {
	defs  map[string]*Definition
	order []string
}

func NewSet() *Set {
	return &Set{defs: make(map[string]*Definition, 8)}
}

func (s *Set) Register(d *Definition) {
	if _, dup := s.defs[d.Name]; !dup {
		s.order = append(s.order, d.Name)
	}
	s.defs[d.Name] = d
}

// Get returns nil for an unknown name; absence is not an error here.
func (s *Set) Get(name string) *Definition { return s.defs[name] }

func (s *Set) Names() []string { return append([]string(nil), s.order...) }

// AvailableFor returns the legal subset for an actor, in registration
// order. An empty allowed list means "consider every registered action".
func (s *Set) AvailableFor(ctx Ctx, actor int, allowed []string) []string {
	names := s.order
	if len(allowed) > 0 {
		names = allowed
	}
	var out []string
	for _, name := range names {
		if d := s.defs[name]; d != nil && d.Available(ctx, actor) {
			out = append(out, name)
		}
	}
	return out
}
