package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"

	"github.com/slowlime/feedgen/internal/models"
)

// ScriptExtractor delegates extraction to a user-supplied Lua script that
// defines a global "extract(buf) -> table[]" function. A fresh VM is
// created per feed at load time and reused across ticks; gopher-lua's
// *lua.LState is not safe for concurrent use, which matches the per-feed
// exclusive-lock contract every Extractor is called under.
type ScriptExtractor struct {
	state    *lua.LState
	extractFn *lua.LFunction
}

// NewScriptExtractor loads and runs the script at path, then resolves its
// global "extract" function. Loading only the safe standard libraries
// (base, coroutine, table, string, math, plus a minimal hand-rolled
// "unicode" table) keeps scripts from touching the filesystem, environment,
// or process, per the VM setup contract.
func NewScriptExtractor(feedName, path string) (*ScriptExtractor, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %q: %w", path, err)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, openLib := range []func(*lua.LState) int{
		lua.OpenBase,
		lua.OpenCoroutine,
		lua.OpenTable,
		lua.OpenString,
		lua.OpenMath,
	} {
		if err := callOpenLib(L, openLib); err != nil {
			L.Close()
			return nil, fmt.Errorf("initializing script vm: %w", err)
		}
	}
	// The base library's file loaders would let a script read local files.
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	registerUnicodeLib(L)
	registerFeedgenAPI(L, feedName)

	if err := L.DoString(string(src)); err != nil {
		L.Close()
		return nil, fmt.Errorf("running script %q: %w", path, err)
	}

	fnVal := L.GetGlobal("extract")
	fn, ok := fnVal.(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("script %q does not define a global \"extract\" function", path)
	}

	return &ScriptExtractor{state: L, extractFn: fn}, nil
}

// callOpenLib invokes a gopher-lua stdlib opener and reports a panic (the
// opener functions push onto the stack and never themselves return errors,
// but guard anyway since this runs once at startup and a bad open should be
// an ExtractorCompile failure, not a crash).
func callOpenLib(L *lua.LState, openLib func(*lua.LState) int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("opening library: %v", r)
		}
	}()
	openLib(L)
	return nil
}

// registerUnicodeLib exposes a minimal "unicode" global table backed by
// Go's unicode/utf8 package. gopher-lua targets Lua 5.1 semantics and ships
// no unicode/utf8 standard library (that was added to reference Lua in
// 5.3), so this is a hand-rolled substitute covering the two operations
// scripts are most likely to need.
func registerUnicodeLib(L *lua.LState) {
	tbl := L.NewTable()
	L.SetField(tbl, "len", L.NewFunction(func(L *lua.LState) int {
		s := L.CheckString(1)
		L.Push(lua.LNumber(utf8.RuneCountInString(s)))
		return 1
	}))
	L.SetField(tbl, "sub", L.NewFunction(func(L *lua.LState) int {
		s := L.CheckString(1)
		i := L.CheckInt(2)
		j := L.OptInt(3, -1)
		runes := []rune(s)
		start, end := normalizeRuneRange(i, j, len(runes))
		if start > end {
			L.Push(lua.LString(""))
			return 1
		}
		L.Push(lua.LString(string(runes[start:end])))
		return 1
	}))
	L.SetGlobal("unicode", tbl)
}

func normalizeRuneRange(i, j, length int) (int, int) {
	if i < 0 {
		i = length + i + 1
	}
	if j < 0 {
		j = length + j + 1
	}
	if i < 1 {
		i = 1
	}
	if j > length {
		j = length
	}
	return i - 1, j
}

// Extract implements Extractor.
func (s *ScriptExtractor) Extract(_ context.Context, ectx Context, html string) ([]models.Entry, error) {
	L := s.state

	L.Push(s.extractFn)
	L.Push(newBufferValue(L, html))
	if err := L.PCall(1, 1, nil); err != nil {
		return nil, fmt.Errorf("running extract: %w", err)
	}

	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("extract returned %s, want a table", ret.Type().String())
	}

	var entries []models.Entry
	n := tbl.Len()
	for i := 1; i <= n; i++ {
		row := tbl.RawGetInt(i)
		rowTbl, ok := row.(*lua.LTable)
		if !ok {
			slog.Warn("skipping script entry", "index", i, "error", "entry is not a table")
			continue
		}

		entry, err := coerceEntry(L, rowTbl, ectx)
		if err != nil {
			slog.Warn("skipping script entry", "index", i, "error", err)
			continue
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

// Close releases the VM. Called once the feed is torn down.
func (s *ScriptExtractor) Close() {
	s.state.Close()
}
