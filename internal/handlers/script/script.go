// Package script loads query handlers written in Lua.
//
// A script returns a table describing the handler:
//
//	return {
//	  name = "Weather",
//	  specialization = "Weather lookups",
//	  can_handle = function(query) return query:find("weather") ~= nil end,
//	  process = function(query) return "It is sunny." end,
//	  scoring_bonus = function(query) return 0.5 end,           -- optional
//	  confidence_bonus = function(query, response) return 0 end, -- optional
//	}
//
// process may return nil and an error message to report a failure.
// scoring_bonus and confidence_bonus may also be plain numbers.
//
// can_handle and the bonus functions run on every dispatch and are cut off
// after PredicateTimeout; a predicate that times out counts as false.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/normanking/switchboard/internal/dispatch"
)

const handlerGlobal = "__handler"

// PredicateTimeout bounds can_handle, scoring_bonus and confidence_bonus.
const PredicateTimeout = 100 * time.Millisecond

// Handler is a dispatch.Handler backed by a Lua script. Lua states are not
// safe for concurrent use, so each call borrows one from a pool.
type Handler struct {
	path           string
	name           string
	specialization string
	proto          *lua.FunctionProto
	pool           sync.Pool

	predicateTimeout time.Duration
}

var _ dispatch.Handler = (*Handler)(nil)

// Load compiles the script at path and validates its handler table.
func Load(path string) (*Handler, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return compile(path, string(src))
}

// LoadString compiles a script held in memory; name is used in error messages.
func LoadString(name, src string) (*Handler, error) {
	return compile(name, src)
}

func compile(name, src string) (*Handler, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	h := &Handler{path: name, proto: proto, predicateTimeout: PredicateTimeout}

	L, tbl, err := h.newState()
	if err != nil {
		return nil, err
	}
	defer L.Close()

	h.name = lua.LVAsString(L.GetField(tbl, "name"))
	h.specialization = lua.LVAsString(L.GetField(tbl, "specialization"))
	if h.name == "" {
		return nil, fmt.Errorf("%s: handler table has no name", name)
	}
	if h.specialization == "" {
		h.specialization = "Script"
	}
	for _, field := range []string{"can_handle", "process"} {
		if L.GetField(tbl, field).Type() != lua.LTFunction {
			return nil, fmt.Errorf("%s: %s must be a function", name, field)
		}
	}

	h.pool.New = func() any {
		L, tbl, err := h.newState()
		if err != nil {
			// The script already ran once during compile.
			log.Error().Err(err).Str("script", h.path).Msg("script state failed")
			return nil
		}
		return &state{L: L, tbl: tbl}
	}
	return h, nil
}

type state struct {
	L   *lua.LState
	tbl *lua.LTable
}

// newState creates a sandboxed Lua state and runs the script in it.
func (h *Handler) newState() (*lua.LState, *lua.LTable, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("load", lua.LNil)

	L.Push(L.NewFunctionFromProto(h.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		L.Close()
		return nil, nil, fmt.Errorf("run %s: %w", h.path, err)
	}
	tbl, ok := L.Get(-1).(*lua.LTable)
	L.Pop(1)
	if !ok {
		L.Close()
		return nil, nil, fmt.Errorf("%s must return a table", h.path)
	}
	L.SetGlobal(handlerGlobal, tbl)
	return L, tbl, nil
}

func (h *Handler) acquire() (*state, error) {
	s, ok := h.pool.Get().(*state)
	if !ok || s == nil {
		return nil, fmt.Errorf("%s: no lua state available", h.path)
	}
	return s, nil
}

func (h *Handler) release(s *state) {
	s.L.SetTop(0)
	h.pool.Put(s)
}

// call invokes field with args and returns its results. A non-function
// field is returned as is.
func (h *Handler) call(ctx context.Context, field string, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	s, err := h.acquire()
	if err != nil {
		return nil, err
	}
	defer h.release(s)

	fn := s.L.GetField(s.tbl, field)
	if fn.Type() != lua.LTFunction {
		return []lua.LValue{fn}, nil
	}

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	s.L.Push(fn)
	for _, a := range args {
		s.L.Push(a)
	}
	if err := s.L.PCall(len(args), nret, nil); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", h.name, field, err)
	}

	out := make([]lua.LValue, nret)
	for i := 0; i < nret; i++ {
		out[i] = s.L.Get(i - nret)
	}
	s.L.Pop(nret)
	return out, nil
}

func (h *Handler) Name() string           { return h.name }
func (h *Handler) Specialization() string { return h.specialization }

// Path returns the script location.
func (h *Handler) Path() string { return h.path }

// predicate calls a side-effect free script function under the predicate
// deadline.
func (h *Handler) predicate(field string, args ...lua.LValue) ([]lua.LValue, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.predicateTimeout)
	defer cancel()
	return h.call(ctx, field, 1, args...)
}

func (h *Handler) CanHandle(query string) bool {
	out, err := h.predicate("can_handle", lua.LString(query))
	if err != nil {
		log.Warn().Err(err).Str("handler", h.name).Msg("can_handle failed")
		return false
	}
	return lua.LVAsBool(out[0])
}

func (h *Handler) Process(ctx context.Context, query string) (string, error) {
	out, err := h.call(ctx, "process", 2, lua.LString(query))
	if err != nil {
		return "", err
	}
	if out[0] == lua.LNil {
		msg := lua.LVAsString(out[1])
		if msg == "" {
			msg = "no response"
		}
		return "", errors.New(msg)
	}
	return lua.LVAsString(out[0]), nil
}

func (h *Handler) ScoringBonus(query string) float64 {
	return h.number("scoring_bonus", lua.LString(query))
}

func (h *Handler) ConfidenceBonus(query, response string) float64 {
	return h.number("confidence_bonus", lua.LString(query), lua.LString(response))
}

func (h *Handler) number(field string, args ...lua.LValue) float64 {
	out, err := h.predicate(field, args...)
	if err != nil {
		log.Warn().Err(err).Str("handler", h.name).Msg("bonus failed")
		return 0
	}
	if n, ok := out[0].(lua.LNumber); ok {
		return float64(n)
	}
	return 0
}

// LoadDir loads every *.lua file in dir, sorted by file name. A missing
// directory yields no handlers. Scripts that fail to load are skipped and
// reported in the returned error.
func LoadDir(dir string) ([]*Handler, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read script directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lua") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		handlers []*Handler
		errs     []error
	)
	for _, name := range names {
		h, err := Load(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		log.Debug().Str("script", name).Str("handler", h.Name()).Msg("script handler loaded")
		handlers = append(handlers, h)
	}
	return handlers, errors.Join(errs...)
}
