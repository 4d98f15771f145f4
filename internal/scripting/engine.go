// Package scripting hosts a gopher-lua VM so game rules can be written
// as scripts instead of compiled Go. Scripts call define_action to
// register actions; their effect functions mutate the match through a
// small command API (move, create, set_attr, shuffle, say).
package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/playtable/engine/action"
	"github.com/playtable/engine/board"
	"github.com/playtable/engine/command"
)

// Host is the mutable match surface Lua effects run against. Bound once
// per match before any effect executes.
type Host interface {
	Tree() *board.Tree
	Execute(c command.Command) command.Result
}

// Engine wraps a single gopher-lua VM for rule script execution.
// Single-goroutine access only (match loop).
type Engine struct {
	vm   *lua.LState
	log  *zap.Logger
	host Host
	defs []*action.Definition
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory. Scripts in lib/ load first so shared helpers are defined
// before the action scripts that use them.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	e.registerAPI()

	libPath := filepath.Join(scriptsDir, "lib")
	if err := e.loadDir(libPath); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load lib scripts: %w", err)
	}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// Bind points the command API at a live match. Must be called before any
// scripted effect runs; definitions registered earlier are unaffected.
func (e *Engine) Bind(h Host) {
	e.host = h
}

// Definitions returns every action registered by loaded scripts, in load
// order. The returned definitions are shared with the engine, not copies.
func (e *Engine) Definitions() []*action.Definition {
	return e.defs
}

// registerAPI installs the globals scripts use: define_action plus the
// mutation primitives. Mutation calls raise a Lua error when the command
// fails so a scripted effect aborts cleanly.
func (e *Engine) registerAPI() {
	e.vm.SetGlobal("define_action", e.vm.NewFunction(e.defineAction))
	e.vm.SetGlobal("move", e.vm.NewFunction(e.luaMove))
	e.vm.SetGlobal("create", e.vm.NewFunction(e.luaCreate))
	e.vm.SetGlobal("set_attr", e.vm.NewFunction(e.luaSetAttr))
	e.vm.SetGlobal("shuffle", e.vm.NewFunction(e.luaShuffle))
	e.vm.SetGlobal("say", e.vm.NewFunction(e.luaSay))
	e.vm.SetGlobal("get_attr", e.vm.NewFunction(e.luaGetAttr))
	e.vm.SetGlobal("children", e.vm.NewFunction(e.luaChildren))
}

var selKinds = map[string]action.SelKind{
	"choice":  action.SelChoice,
	"player":  action.SelPlayer,
	"element": action.SelElement,
	"text":    action.SelText,
	"number":  action.SelNumber,
}

// defineAction implements the Lua global:
//
//	define_action{
//	    name = "discard",
//	    prompt = "Discard a card",
//	    selections = {
//	        {name = "card", kind = "element", element_type = "card"},
//	    },
//	    condition = function(actor) ... end,
//	    effect = function(ctx) ... end,
//	}
func (e *Engine) defineAction(L *lua.LState) int {
	spec := L.CheckTable(1)

	name := lStr(spec, "name")
	if name == "" {
		L.RaiseError("define_action: missing name")
		return 0
	}
	d := &action.Definition{
		Name:   name,
		Prompt: lStr(spec, "prompt"),
	}

	if cond, ok := spec.RawGetString("condition").(*lua.LFunction); ok {
		d.Condition = func(_ action.Ctx, actor int) bool {
			return e.callCondition(cond, name, actor)
		}
	}

	if sels, ok := spec.RawGetString("selections").(*lua.LTable); ok {
		var parseErr error
		sels.ForEach(func(_, v lua.LValue) {
			row, ok := v.(*lua.LTable)
			if !ok || parseErr != nil {
				return
			}
			sel, err := e.parseSelection(row)
			if err != nil {
				parseErr = err
				return
			}
			d.Selections = append(d.Selections, sel)
		})
		if parseErr != nil {
			L.RaiseError("define_action %s: %v", name, parseErr)
			return 0
		}
	}

	if eff, ok := spec.RawGetString("effect").(*lua.LFunction); ok {
		d.Effect = func(_ action.Ctx, actor int, args action.Args) error {
			return e.callEffect(eff, name, actor, args)
		}
	}

	e.defs = append(e.defs, d)
	e.log.Debug("registered scripted action", zap.String("action", name))
	return 0
}

func (e *Engine) parseSelection(row *lua.LTable) (action.Selection, error) {
	kindName := lStr(row, "kind")
	kind, ok := selKinds[kindName]
	if !ok {
		return action.Selection{}, fmt.Errorf("selection %s: unknown kind %q", lStr(row, "name"), kindName)
	}
	sel := action.Selection{
		Name:        lStr(row, "name"),
		Kind:        kind,
		Prompt:      lStr(row, "prompt"),
		Optional:    row.RawGetString("optional") == lua.LTrue,
		ElementType: lStr(row, "element_type"),
		MinLen:      lInt(row, "min_len"),
		MaxLen:      lInt(row, "max_len"),
		Min:         float64(lua.LVAsNumber(row.RawGetString("min"))),
		Max:         float64(lua.LVAsNumber(row.RawGetString("max"))),
		Integer:     row.RawGetString("integer") == lua.LTrue,
	}
	if sel.Name == "" {
		return action.Selection{}, fmt.Errorf("selection of kind %s has no name", kindName)
	}

	if choices, ok := row.RawGetString("choices").(*lua.LTable); ok {
		choices.ForEach(func(_, v lua.LValue) {
			sel.Choices = append(sel.Choices, goValue(v))
		})
	}
	if filter, ok := row.RawGetString("filter").(*lua.LFunction); ok {
		name := sel.Name
		sel.ElementFilter = func(_ action.Ctx, actor int, _ action.Args, n *board.Node) bool {
			return e.callFilter(filter, name, actor, n)
		}
	}
	return sel, nil
}

// callCondition invokes a Lua condition. A script error counts as
// "not allowed" rather than taking down the match.
func (e *Engine) callCondition(fn *lua.LFunction, name string, actor int) bool {
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(actor)); err != nil {
		e.log.Error("lua condition error", zap.String("action", name), zap.Error(err))
		return false
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return lua.LVAsBool(result)
}

func (e *Engine) callFilter(fn *lua.LFunction, sel string, actor int, n *board.Node) bool {
	nt := e.vm.NewTable()
	nt.RawSetString("id", lua.LNumber(n.ID))
	nt.RawSetString("type", lua.LString(n.Type))
	nt.RawSetString("name", lua.LString(n.Name))
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(actor), nt); err != nil {
		e.log.Error("lua filter error", zap.String("selection", sel), zap.Error(err))
		return false
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return lua.LVAsBool(result)
}

// callEffect invokes a Lua effect with a context table holding the actor
// and the validated arguments. Effects signal failure by raising an error
// or returning a string.
func (e *Engine) callEffect(fn *lua.LFunction, name string, actor int, args action.Args) error {
	t := e.vm.NewTable()
	t.RawSetString("actor", lua.LNumber(actor))

	at := e.vm.NewTable()
	for k, v := range args {
		at.RawSetString(k, luaValue(v))
	}
	t.RawSetString("args", at)

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		return fmt.Errorf("scripted action %s: %w", name, err)
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	if msg, ok := result.(lua.LString); ok {
		return fmt.Errorf("scripted action %s: %s", name, string(msg))
	}
	return nil
}

// --- Command API exposed to Lua ---

func (e *Engine) checkHost(L *lua.LState, op string) Host {
	if e.host == nil {
		L.RaiseError("%s: no match bound", op)
	}
	return e.host
}

func (e *Engine) exec(L *lua.LState, op string, c command.Command) command.Result {
	r := e.checkHost(L, op).Execute(c)
	if !r.OK {
		L.RaiseError("%s: %v", op, r.Err)
	}
	return r
}

// move(node, dest [, index]) moves a node; index defaults to append.
func (e *Engine) luaMove(L *lua.LState) int {
	node := board.NodeID(L.CheckInt64(1))
	dest := board.NodeID(L.CheckInt64(2))
	index := -1
	if L.GetTop() >= 3 {
		index = L.CheckInt(3)
	}
	e.exec(L, "move", command.Move(node, dest, index))
	return 0
}

// create(type, name, parent) creates a node and returns its id.
func (e *Engine) luaCreate(L *lua.LState) int {
	tag := L.CheckString(1)
	name := L.CheckString(2)
	parent := board.NodeID(L.CheckInt64(3))
	r := e.exec(L, "create", command.Create(tag, name, parent, nil))
	if len(r.Created) == 0 {
		L.RaiseError("create: no node created")
		return 0
	}
	L.Push(lua.LNumber(r.Created[0]))
	return 1
}

// set_attr(node, key, value) writes one attribute. Booleans, strings and
// numbers map onto the matching attribute kinds; whole numbers store as
// integers.
func (e *Engine) luaSetAttr(L *lua.LState) int {
	node := board.NodeID(L.CheckInt64(1))
	key := L.CheckString(2)
	var val board.AttrValue
	switch v := L.Get(3).(type) {
	case lua.LBool:
		val = board.Bool(bool(v))
	case lua.LString:
		val = board.String(string(v))
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) {
			val = board.Int(int64(f))
		} else {
			val = board.Float(f)
		}
	default:
		L.RaiseError("set_attr: unsupported value type %s", v.Type())
		return 0
	}
	e.exec(L, "set_attr", command.SetAttr(node, key, val))
	return 0
}

func (e *Engine) luaShuffle(L *lua.LState) int {
	node := board.NodeID(L.CheckInt64(1))
	e.exec(L, "shuffle", command.Shuffle(node))
	return 0
}

// say(seat, text) posts a message; seat 0 broadcasts.
func (e *Engine) luaSay(L *lua.LState) int {
	seat := L.CheckInt(1)
	text := L.CheckString(2)
	e.exec(L, "say", command.Message(seat, text))
	return 0
}

// get_attr(node, key) reads one attribute, nil when absent.
func (e *Engine) luaGetAttr(L *lua.LState) int {
	h := e.checkHost(L, "get_attr")
	node := h.Tree().Get(board.NodeID(L.CheckInt64(1)))
	if node == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(luaAttr(node.Attrs[L.CheckString(2)]))
	return 1
}

// children(node) returns the ordered child id list.
func (e *Engine) luaChildren(L *lua.LState) int {
	h := e.checkHost(L, "children")
	node := h.Tree().Get(board.NodeID(L.CheckInt64(1)))
	t := e.vm.NewTable()
	if node != nil {
		for i, id := range node.Children {
			t.RawSetInt(i+1, lua.LNumber(id))
		}
	}
	L.Push(t)
	return 1
}

// --- Value conversion ---

func luaValue(v any) lua.LValue {
	switch x := v.(type) {
	case board.NodeID:
		return lua.LNumber(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	}
	return lua.LString(fmt.Sprintf("%v", v))
}

func goValue(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) {
			return int(f)
		}
		return f
	case lua.LBool:
		return bool(x)
	case lua.LString:
		return string(x)
	}
	return v.String()
}

func luaAttr(v board.AttrValue) lua.LValue {
	switch v.Kind {
	case board.AttrInt, board.AttrSeat:
		return lua.LNumber(v.I)
	case board.AttrFloat:
		return lua.LNumber(v.F)
	case board.AttrBool:
		return lua.LBool(v.B)
	case board.AttrString:
		return lua.LString(v.S)
	}
	return lua.LNil
}

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string) int {
	return int(lua.LVAsNumber(t.RawGetString(key)))
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
