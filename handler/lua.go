package handler

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/projconf/pipeline"
)

// ErrLuaClosed is returned when a Lua artifact runs after Close.
var ErrLuaClosed = errors.New("lua runner is closed")

// LuaRunner executes .lua artifacts in a single sandboxed interpreter.
//
// gopher-lua's LState is not goroutine-safe, so all execution is
// serialized through a mutex. Scripts see a global `config` table:
//
//	config.get(path)    -- read a dot-separated path from the document
//	config.set(path, v) -- write a value (tables become maps/arrays)
//	config.del(path)    -- delete a path
//	config.root()       -- detected project root, or nil
//	config.name()       -- project name, or nil
type LuaRunner struct {
	mu     sync.Mutex
	state  *lua.LState
	ctx    *pipeline.Context
	closed bool
}

// NewLuaRunner creates a runner. The interpreter is created lazily on the
// first artifact.
func NewLuaRunner() *LuaRunner {
	return &LuaRunner{}
}

// Handler returns the pipeline handler for .lua artifacts.
func (r *LuaRunner) Handler() pipeline.Handler {
	return func(ctx *pipeline.Context, path string) error {
		rec, err := ctx.Files.Read(path)
		if err != nil {
			return err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return ErrLuaClosed
		}
		if r.state == nil {
			r.state = r.newState()
		}

		// The config API resolves the context at call time; scripts run
		// only while it is bound.
		r.ctx = ctx
		defer func() { r.ctx = nil }()

		return r.run(path, rec.Content)
	}
}

// Close releases the interpreter. Subsequent artifacts fail.
func (r *LuaRunner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.state != nil {
		r.state.Close()
		r.state = nil
	}
}

// run executes one chunk with panic recovery; a misbehaving script is an
// artifact error, never a crash.
func (r *LuaRunner) run(path string, content []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic in %s: %v", path, rec)
		}
	}()

	fn, err := r.state.Load(bytes.NewReader(content), path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	r.state.Push(fn)
	return r.state.PCall(0, lua.MultRet, nil)
}

// newState creates the sandboxed interpreter and installs the config API.
func (r *LuaRunner) newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	// Only safe libraries: no io, os, debug, or package.
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Chunk loading from inside scripts would bypass the sandbox.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	api := L.NewTable()
	L.SetFuncs(api, map[string]lua.LGFunction{
		"get":  r.luaGet,
		"set":  r.luaSet,
		"del":  r.luaDel,
		"root": r.luaRoot,
		"name": r.luaName,
	})
	L.SetGlobal("config", api)
	return L
}

func (r *LuaRunner) luaGet(L *lua.LState) int {
	path := L.CheckString(1)
	val, ok := r.ctx.Document().Get(path)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, val))
	return 1
}

func (r *LuaRunner) luaSet(L *lua.LState) int {
	path := L.CheckString(1)
	val := luaToGo(L.CheckAny(2))
	r.ctx.Document().Set(path, val)
	return 0
}

func (r *LuaRunner) luaDel(L *lua.LState) int {
	path := L.CheckString(1)
	L.Push(lua.LBool(r.ctx.Document().Delete(path)))
	return 1
}

func (r *LuaRunner) luaRoot(L *lua.LState) int {
	if root := r.ctx.Root(); root != "" {
		L.Push(lua.LString(root))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

func (r *LuaRunner) luaName(L *lua.LState) int {
	if name := r.ctx.ProjectName(); name != "" {
		L.Push(lua.LString(name))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

// luaToGo converts a Lua value to the document's value domain. Numbers
// become float64 so Lua writes merge cleanly with decoded JSON. Tables
// with contiguous 1-based integer keys become arrays, everything else a
// string-keyed map.
func luaToGo(lv lua.LValue) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		return tableToGo(v)
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable) any {
	maxN := t.MaxN()
	if maxN > 0 {
		count := 0
		t.ForEach(func(lua.LValue, lua.LValue) { count++ })
		if count == maxN {
			arr := make([]any, maxN)
			for i := 1; i <= maxN; i++ {
				arr[i-1] = luaToGo(t.RawGetInt(i))
			}
			return arr
		}
	}

	m := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = luaToGo(v)
	})
	return m
}

// goToLua converts a document value to a Lua value.
func goToLua(L *lua.LState, val any) lua.LValue {
	switch v := val.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case float64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []any:
		t := L.NewTable()
		for i, e := range v {
			t.RawSetInt(i+1, goToLua(L, e))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range v {
			t.RawSetString(k, goToLua(L, e))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}
