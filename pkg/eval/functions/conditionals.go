package functions

import (
	"strings"

	"github.com/veilmush/goveilmush/pkg/eval"
)

// if(cond, then[, else]) — only the taken branch is evaluated.
func fnIf(ctx *eval.EvalContext, args []string, buf *strings.Builder) {
	cond := ctx.EvalRaw(args[0])
	if isTrue(cond) {
		buf.WriteString(ctx.EvalRaw(args[1]))
	} else if len(args) > 2 {
		buf.WriteString(ctx.EvalRaw(args[2]))
	}
}

// switch(expr, case1, result1[, case2, result2, ...][, default]) — first
// matching case wins; a case may hold a single * wildcard.
func fnSwitch(ctx *eval.EvalContext, args []string, buf *strings.Builder) {
	expr := ctx.EvalRaw(args[0])
	i := 1
	for i+1 < len(args) {
		pat := ctx.EvalRaw(args[i])
		if switchMatch(pat, expr) {
			buf.WriteString(ctx.EvalRaw(args[i+1]))
			return
		}
		i += 2
	}
	if i < len(args) {
		buf.WriteString(ctx.EvalRaw(args[i]))
	}
}

func switchMatch(pattern, s string) bool {
	pattern = strings.ToLower(pattern)
	s = strings.ToLower(s)
	if star := strings.IndexByte(pattern, '*'); star >= 0 {
		return strings.HasPrefix(s, pattern[:star]) && strings.HasSuffix(s, pattern[star+1:]) &&
			len(s) >= len(pattern)-1
	}
	return pattern == s
}
