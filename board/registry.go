package board

import "fmt"

// Hooks are optional enter/exit observers for a container type, invoked
// synchronously on every reparent: Exit fires on the old parent when a
// child detaches, Enter on the new parent after insertion.
type Hooks struct {
	Enter func(t *Tree, container, child NodeID)
	Exit  func(t *Tree, container, child NodeID)
}

// TypeSpec describes one placeable node type: how to initialize a fresh
// node of the type and its container hooks, if any.
type TypeSpec struct {
	Tag   string
	Piece bool // piece-like: may not contain placeable children
	Init  func(n *Node)
	Hooks Hooks
}

// Registry maps stable type tags to their specs. Every placeable type must
// be registered before deserialization; restore fails fast on an unknown
// tag instead of guessing.
type Registry struct {
	specs map[string]*TypeSpec
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*TypeSpec, 16)}
}

// Register adds a type spec. Re-registering a tag overwrites the previous
// spec, which lets tests shadow a production type.
func (r *Registry) Register(spec *TypeSpec) {
	if spec.Tag == "" {
		panic("board: registering type with empty tag")
	}
	r.specs[spec.Tag] = spec
}

// Lookup returns the spec for a tag, or nil when unregistered.
func (r *Registry) Lookup(tag string) *TypeSpec {
	return r.specs[tag]
}

// MustLookup returns the spec for a tag or an error naming the tag. Used by
// restore paths where an unknown tag is a programming mistake.
func (r *Registry) MustLookup(tag string) (*TypeSpec, error) {
	spec := r.specs[tag]
	if spec == nil {
		return nil, fmt.Errorf("board: type tag %q not registered", tag)
	}
	return spec, nil
}

// Tags returns all registered tags (order unspecified).
func (r *Registry) Tags() []string {
	out := make([]string, 0, len(r.specs))
	for tag := range r.specs {
		out = append(out, tag)
	}
	return out
}
