// Package eval implements the softcode interpreter: inline [func(args)]
// calls, % placeholders, and {stmt; stmt} blocks over attribute text.
package eval

import (
	"strings"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// Nesting and invocation limits. Exceeding either renders an inline marker
// instead of aborting the surrounding text.
const (
	FuncNestLim = 50
	FuncInvkLim = 2500
)

// Function flags.
const (
	FnVarArgs = 1 << iota // arity check uses MinArgs only
	FnNoEval              // handler receives raw argument text
)

// FnHandler is the signature for built-in softcode functions. Results are
// written to buf; errors are written as inline #-1 markers.
type FnHandler func(ctx *EvalContext, args []string, buf *strings.Builder)

// Function describes one built-in function.
type Function struct {
	Name    string
	Handler FnHandler
	MinArgs int
	MaxArgs int
	Flags   int
}

// EvalContext carries the state for one softcode evaluation: who the code
// runs as, who caused it, captured wildcard text, and resource limits.
type EvalContext struct {
	DB       *gamedb.Database
	Executor gamedb.DBRef // the object the code runs on: %!, %#, v()
	Enactor  gamedb.DBRef // whoever caused the action: %n
	Args     []string     // %0..%9 wildcard captures

	Functions map[string]*Function

	depth       int
	invocations int
}

// NewEvalContext creates an evaluation context with the built-in function
// registry empty; callers register functions before evaluating.
func NewEvalContext(db *gamedb.Database) *EvalContext {
	return &EvalContext{
		DB:        db,
		Executor:  gamedb.Nothing,
		Enactor:   gamedb.Nothing,
		Functions: make(map[string]*Function),
	}
}

// RegisterFunction adds a built-in function. Names are matched
// case-insensitively; minArgs/maxArgs bound the accepted arity (maxArgs
// ignored with FnVarArgs).
func (ctx *EvalContext) RegisterFunction(name string, handler FnHandler, minArgs, maxArgs, flags int) {
	name = strings.ToLower(name)
	ctx.Functions[name] = &Function{
		Name:    name,
		Handler: handler,
		MinArgs: minArgs,
		MaxArgs: maxArgs,
		Flags:   flags,
	}
}

// AliasFunction registers an alternate name for an existing function.
func (ctx *EvalContext) AliasFunction(alias, target string) {
	if fn, ok := ctx.Functions[strings.ToLower(target)]; ok {
		ctx.Functions[strings.ToLower(alias)] = fn
	}
}

// Arg returns the nth wildcard capture, or "".
func (ctx *EvalContext) Arg(n int) string {
	if n < 0 || n >= len(ctx.Args) {
		return ""
	}
	return ctx.Args[n]
}

// Self returns the executor object, or nil.
func (ctx *EvalContext) Self() *gamedb.Object {
	return ctx.DB.Get(ctx.Executor)
}

// Sub creates a child context sharing the registry and limits, for
// evaluating attribute bodies fetched mid-expression (u()-style calls).
func (ctx *EvalContext) Sub(executor gamedb.DBRef, args []string) *EvalContext {
	return &EvalContext{
		DB:          ctx.DB,
		Executor:    executor,
		Enactor:     ctx.Enactor,
		Args:        args,
		Functions:   ctx.Functions,
		depth:       ctx.depth,
		invocations: ctx.invocations,
	}
}
