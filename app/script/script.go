// Package script executes user-authored Lua scripts against posts inside an
// isolated interpreter. Every run gets a fresh interpreter with a minimal
// library set and exactly one host binding, the CurrentPost proxy.
package script

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/feedloom/feedloom/app/database"
)

// EngineVersion is injected into every interpreter as the AppVersion global
// so scripts can gate on host capabilities.
const EngineVersion = "1.0"

// ScriptError is a load or runtime failure caught at the sandbox boundary.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string {
	return "script error: " + e.Message
}

// ShouldRun evaluates the enable flag, the event subscription and the feed
// filter of a script. It runs before any interpreter is constructed; a
// non-matching script never costs an interpreter.
func ShouldRun(s database.Script, event database.ScriptEvents, feedID int64) bool {
	if !s.IsEnabled || s.Type != "lua" {
		return false
	}
	if !s.RunOnEvents.Contains(event) {
		return false
	}
	if len(s.RunOnFeedIDs) == 0 {
		return true
	}
	for _, id := range s.RunOnFeedIDs {
		if id == feedID {
			return true
		}
	}
	return false
}

// RunPostScript runs body against the post in rc. printFn, when non-nil,
// captures the print builtin's output instead of letting it reach stdout;
// the interactive test-run UI uses this. Errors from loading or running the
// script come back as *ScriptError, never as a panic.
func RunPostScript(ctx context.Context, body string, rc *RunContext, printFn func(string)) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	L.SetContext(ctx)

	openSafeLibraries(L)

	if printFn != nil {
		L.SetGlobal("print", L.NewFunction(capturePrint(printFn)))
	}

	L.SetGlobal("AppVersion", lua.LString(EngineVersion))
	L.SetGlobal("CurrentPost", newPostProxy(L, rc))

	if err := L.DoString(body); err != nil {
		return &ScriptError{Message: err.Error()}
	}
	return nil
}

// openSafeLibraries loads base, table, string and math. The io, os, debug,
// channel and package libraries stay closed; dofile and loadfile are
// stripped from base since they reach the filesystem.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
}

func capturePrint(printFn func(string)) lua.LGFunction {
	return func(L *lua.LState) int {
		top := L.GetTop()
		line := ""
		for i := 1; i <= top; i++ {
			if i > 1 {
				line += "\t"
			}
			line += fmt.Sprint(L.ToStringMeta(L.Get(i)).String())
		}
		printFn(line)
		return 0
	}
}
