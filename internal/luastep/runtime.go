// Package luastep executes Lua step scripts in-process. A script defines a
// step(ctx) function; ctx is a table of execution-context values. Scripts run
// in a sandboxed state with no file, process, or network access, which makes
// them the safe option for logic-only steps.
package luastep

import (
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	gocontext "context"
)

// Run loads scriptPath and calls its step function with vars. The returned
// string is the step's captured output: every log() call plus an optional
// return value. Cancellation of ctx aborts the script.
func Run(ctx gocontext.Context, scriptPath string, vars map[string]string) (string, error) {
	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return "", fmt.Errorf("failed to read step script: %w", err)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	L.SetContext(ctx)

	var logs []string
	openSafeLibs(L)
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		logs = append(logs, L.CheckString(1))
		return 0
	}))
	L.SetGlobal("fail", L.NewFunction(func(L *lua.LState) int {
		reason := L.OptString(1, "step failed")
		L.RaiseError("%s", reason)
		return 0
	}))

	if err := L.DoString(string(script)); err != nil {
		return strings.Join(logs, "\n"), fmt.Errorf("failed to load step script: %w", err)
	}

	stepFn := L.GetGlobal("step")
	if stepFn == lua.LNil {
		return "", fmt.Errorf("step script must define a 'step' function")
	}

	ctxTable := L.NewTable()
	for k, v := range vars {
		L.SetField(ctxTable, k, lua.LString(v))
	}

	L.Push(stepFn)
	L.Push(ctxTable)
	if err := L.PCall(1, 1, nil); err != nil {
		return strings.Join(logs, "\n"), err
	}

	ret := L.Get(-1)
	L.Pop(1)
	if s, ok := ret.(lua.LString); ok {
		logs = append(logs, string(s))
	}

	return strings.Join(logs, "\n"), nil
}

// openSafeLibs loads only deterministic, side-effect-free libraries.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

// IsLuaStep reports whether path names a Lua step script.
func IsLuaStep(path string) bool {
	return strings.HasSuffix(path, ".lua")
}
