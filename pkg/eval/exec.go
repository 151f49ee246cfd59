package eval

import (
	"fmt"
	"strconv"
	"strings"
)

// Eval interprets attribute text: literal characters pass through,
// [expr] segments evaluate as function expressions, % sequences substitute
// from the trigger context, and backslash escapes the next character.
func (ctx *EvalContext) Eval(input string) string {
	var buf strings.Builder
	i := 0
	for i < len(input) {
		c := input[i]
		switch c {
		case '\\':
			if i+1 < len(input) {
				buf.WriteByte(input[i+1])
				i += 2
			} else {
				i++
			}
		case '[':
			end := matchingBracket(input, i)
			if end < 0 {
				buf.WriteByte(c)
				i++
				break
			}
			buf.WriteString(ctx.evalExpression(input[i+1 : end]))
			i = end + 1
		case '%':
			n := ctx.substPercent(input, i, &buf)
			i += n
		default:
			buf.WriteByte(c)
			i++
		}
	}
	return buf.String()
}

// evalExpression evaluates the inside of a bracketed segment or one
// function argument. A bare name(args) form is a function call; anything
// else is re-evaluated as text.
func (ctx *EvalContext) evalExpression(s string) string {
	trimmed := strings.TrimSpace(s)
	name, argstr, ok := splitCall(trimmed)
	if !ok {
		return ctx.Eval(s)
	}
	return ctx.call(name, argstr)
}

// call dispatches one function invocation, enforcing nesting and
// invocation limits and arity, rendering failures as inline markers.
func (ctx *EvalContext) call(name, argstr string) string {
	if ctx.depth >= FuncNestLim {
		return "#-1 FUNCTION RECURSION LIMIT EXCEEDED"
	}
	ctx.invocations++
	if ctx.invocations > FuncInvkLim {
		return "#-1 FUNCTION INVOCATION LIMIT EXCEEDED"
	}

	fn, okFn := ctx.Functions[strings.ToLower(name)]
	if !okFn {
		return fmt.Sprintf("#-1 FUNCTION (%s) NOT FOUND", strings.ToUpper(name))
	}

	args := SplitArgs(argstr)
	if fn.Flags&FnNoEval == 0 {
		ctx.depth++
		for i, a := range args {
			args[i] = ctx.evalArg(a)
		}
		ctx.depth--
	}

	if len(args) < fn.MinArgs || (fn.Flags&FnVarArgs == 0 && len(args) > fn.MaxArgs) {
		want := fn.MinArgs
		if fn.MaxArgs != fn.MinArgs && fn.Flags&FnVarArgs == 0 {
			return fmt.Sprintf("#-1 FUNCTION (%s) EXPECTS BETWEEN %d AND %d ARGUMENTS BUT GOT %d",
				strings.ToUpper(name), fn.MinArgs, fn.MaxArgs, len(args))
		}
		return fmt.Sprintf("#-1 FUNCTION (%s) EXPECTS %d ARGUMENTS BUT GOT %d",
			strings.ToUpper(name), want, len(args))
	}

	var buf strings.Builder
	ctx.depth++
	fn.Handler(ctx, args, &buf)
	ctx.depth--
	return buf.String()
}

// evalArg evaluates one argument: a bare call form evaluates
// innermost-first; plain text goes through Eval for brackets and percents.
func (ctx *EvalContext) evalArg(s string) string {
	trimmed := strings.TrimSpace(s)
	if name, argstr, ok := splitCall(trimmed); ok {
		return ctx.call(name, argstr)
	}
	return ctx.Eval(s)
}

// EvalRaw evaluates text the handler received unevaluated (FnNoEval).
func (ctx *EvalContext) EvalRaw(s string) string {
	return ctx.evalArg(s)
}

// substPercent writes the substitution for the % sequence starting at
// input[i] and returns how many input bytes were consumed.
func (ctx *EvalContext) substPercent(input string, i int, buf *strings.Builder) int {
	if i+1 >= len(input) {
		buf.WriteByte('%')
		return 1
	}
	c := input[i+1]
	switch {
	case c >= '0' && c <= '9':
		buf.WriteString(ctx.Arg(int(c - '0')))
	case c == '!':
		if o := ctx.Self(); o != nil {
			buf.WriteString(o.Name)
		}
	case c == '#':
		buf.WriteString("#" + strconv.Itoa(int(ctx.Executor)))
	case c == 'n' || c == 'N':
		if o := ctx.DB.Get(ctx.Enactor); o != nil {
			buf.WriteString(o.Name)
		}
	case c == 'l' || c == 'L':
		if o := ctx.DB.Get(ctx.Enactor); o != nil {
			if loc := ctx.DB.Get(o.Location); loc != nil {
				buf.WriteString(loc.Name)
			}
		}
	case c == 'r' || c == 'R':
		buf.WriteByte('\n')
	case c == 't' || c == 'T':
		buf.WriteByte('\t')
	case c == 'b' || c == 'B':
		buf.WriteByte(' ')
	case c == '%':
		buf.WriteByte('%')
	default:
		// Unknown sequence passes through untouched.
		buf.WriteByte('%')
		buf.WriteByte(c)
	}
	return 2
}
