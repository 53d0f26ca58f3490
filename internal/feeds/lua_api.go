package feeds

import (
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// registerFeedgenAPI installs the global "feedgen" table (parseSelector,
// parseHtml, log.*) and rebinds print to feedgen.log.info, matching the
// host API surface exposed to user scripts.
func registerFeedgenAPI(L *lua.LState, feedName string) {
	registerDOMTypes(L)

	feedgen := L.NewTable()

	L.SetField(feedgen, "parseSelector", L.NewFunction(func(L *lua.LState) int {
		ud, err := toSelector(L, L.CheckAny(1))
		if err != nil {
			L.RaiseError("%s", err)
			return 0
		}
		v, err := newSelectorValue(L, ud.text)
		if err != nil {
			L.RaiseError("%s", err)
			return 0
		}
		L.Push(v)
		return 1
	}))

	L.SetField(feedgen, "parseHtml", L.NewFunction(func(L *lua.LState) int {
		text, err := toBufferString(L, L.CheckAny(1))
		if err != nil {
			L.ArgError(1, err.Error())
			return 0
		}
		L.Push(newHTMLValue(L, text))
		return 1
	}))

	logTbl := L.NewTable()
	for level, fn := range map[string]func(string, ...any){
		"trace": func(msg string, args ...any) { slog.Debug(msg, args...) },
		"debug": slog.Debug,
		"info":  slog.Info,
		"warn":  slog.Warn,
		"error": slog.Error,
	} {
		fn := fn
		L.SetField(logTbl, level, L.NewFunction(makeLogFunc(feedName, fn)))
	}
	L.SetField(feedgen, "log", logTbl)

	L.SetGlobal("feedgen", feedgen)

	// print is rebound to feedgen.log.info, per the host API contract.
	L.SetGlobal("print", L.NewFunction(makeLogFunc(feedName, slog.Info)))

	installWarningHandler(L, feedName)
}

// makeLogFunc builds a variadic log function: each Lua argument is
// stringified (via tostring semantics so userdata/tables honor their
// __tostring metamethod) and joined with single spaces, with the calling
// script's source location attached.
func makeLogFunc(feedName string, logFn func(string, ...any)) lua.LGFunction {
	return func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			v := L.ToStringMeta(L.Get(i))
			parts = append(parts, v.String())
		}

		loc := callerLocation(L)
		logFn(strings.Join(parts, " "), "feed", feedName, "at", loc)
		return 0
	}
}

// callerLocation mirrors the original host API's "shortsrc:line" caller tag
// by inspecting the calling Lua frame.
func callerLocation(L *lua.LState) string {
	where := strings.TrimSpace(L.Where(1))
	where = strings.TrimSuffix(where, ":")
	if where == "" {
		return "?"
	}
	return where
}

// installWarningHandler approximates the reference host's lua_setwarnf-based
// structured warning channel. gopher-lua has no native warning hook (that is
// a Lua 5.4 VM feature; gopher-lua targets 5.1 semantics), so scripts that
// want a warning use feedgen.log.warn directly; this function exists only
// to document that gap and is a no-op today.
func installWarningHandler(_ *lua.LState, _ string) {}
