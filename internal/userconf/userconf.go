// Package userconf loads the optional Lua configuration file
// (~/.config/fstarup/config.lua by default).
//
// The file is declarative: it runs in a sandboxed VM with no os, io, or
// module-loading access, and returns a table of settings. Environment
// variables always override what the file provides.
package userconf

import (
	"context"
	"fmt"
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// evalTimeout bounds config evaluation so a runaway script cannot hang
// the installer.
const evalTimeout = 2 * time.Second

// Settings are the user-tunable defaults a config file may provide.
type Settings struct {
	// MirrorBaseURL replaces the https://github.com prefix of download
	// URLs, for hosts behind an artifact mirror.
	MirrorBaseURL string
	// GitHubToken raises the rate limit on release-metadata queries.
	GitHubToken string
	// SkipKaramel skips the secondary-toolchain build.
	SkipKaramel bool
	// SkipUnquarantine skips the macOS quarantine-attribute removal.
	SkipUnquarantine bool
}

// Load evaluates a config file. A missing file yields zero settings and
// no error; a file that fails to evaluate or returns something other
// than a table is an error.
func Load(path string) (Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Settings{}, nil
	}

	L := newSandboxedVM()
	defer L.Close()

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()
	L.SetContext(ctx)

	if err := L.DoFile(path); err != nil {
		return Settings{}, fmt.Errorf("evaluate config %s: %w", path, err)
	}

	ret := L.Get(-1)
	table, ok := ret.(*lua.LTable)
	if !ok {
		return Settings{}, fmt.Errorf("config %s must return a table, got %s", path, ret.Type())
	}

	return Settings{
		MirrorBaseURL:    stringField(table, "mirror_base_url"),
		GitHubToken:      stringField(table, "github_token"),
		SkipKaramel:      boolField(table, "skip_karamel"),
		SkipUnquarantine: boolField(table, "skip_unquarantine"),
	}, nil
}

func stringField(table *lua.LTable, name string) string {
	if v, ok := table.RawGetString(name).(lua.LString); ok {
		return string(v)
	}
	return ""
}

func boolField(table *lua.LTable, name string) bool {
	if v, ok := table.RawGetString(name).(lua.LBool); ok {
		return bool(v)
	}
	return false
}

// newSandboxedVM creates a Lua VM with the dangerous surface removed:
// no process execution, no filesystem access, no module loading.
func newSandboxedVM() *lua.LState {
	L := lua.NewState()
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)
	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("debug", lua.LNil)
	return L
}
