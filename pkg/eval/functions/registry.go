// Package functions provides the built-in softcode function library.
package functions

import (
	"strconv"
	"strings"

	"github.com/veilmush/goveilmush/pkg/eval"
)

// RegisterAll installs every built-in function into an EvalContext.
func RegisterAll(ctx *eval.EvalContext) {
	// Arithmetic
	ctx.RegisterFunction("add", fnAdd, 2, 0, eval.FnVarArgs)
	ctx.RegisterFunction("sub", fnSub, 2, 2, 0)
	ctx.RegisterFunction("mul", fnMul, 2, 0, eval.FnVarArgs)
	ctx.RegisterFunction("div", fnDiv, 2, 2, 0)
	ctx.RegisterFunction("mod", fnMod, 2, 2, 0)
	ctx.RegisterFunction("abs", fnAbs, 1, 1, 0)
	ctx.RegisterFunction("rand", fnRand, 1, 1, 0)

	// Comparison / logic
	ctx.RegisterFunction("eq", fnEq, 2, 2, 0)
	ctx.RegisterFunction("gt", fnGt, 2, 2, 0)
	ctx.RegisterFunction("lt", fnLt, 2, 2, 0)
	ctx.RegisterFunction("not", fnNot, 1, 1, 0)
	ctx.RegisterFunction("and", fnAnd, 2, 0, eval.FnVarArgs)
	ctx.RegisterFunction("or", fnOr, 2, 0, eval.FnVarArgs)

	// Conditionals (lazy)
	ctx.RegisterFunction("if", fnIf, 2, 3, eval.FnNoEval)
	ctx.RegisterFunction("switch", fnSwitch, 3, 0, eval.FnVarArgs|eval.FnNoEval)
	ctx.AliasFunction("ifelse", "if")

	// Strings and lists
	ctx.RegisterFunction("pick", fnPick, 1, 2, 0)
	ctx.RegisterFunction("strlen", fnStrlen, 1, 1, 0)
	ctx.RegisterFunction("words", fnWords, 1, 2, 0)
	ctx.RegisterFunction("cat", fnCat, 1, 0, eval.FnVarArgs)
	ctx.RegisterFunction("ucstr", fnUcstr, 1, 1, 0)
	ctx.RegisterFunction("lcstr", fnLcstr, 1, 1, 0)
	ctx.RegisterFunction("trim", fnTrim, 1, 1, 0)

	// Database
	ctx.RegisterFunction("v", fnV, 1, 1, 0)
	ctx.RegisterFunction("get", fnGet, 1, 1, 0)
	ctx.RegisterFunction("name", fnName, 1, 1, 0)
	ctx.RegisterFunction("num", fnNum, 1, 1, 0)
	ctx.RegisterFunction("loc", fnLoc, 1, 1, 0)
}

func isTrue(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != "0"
}

func boolToStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func writeInt(buf *strings.Builder, i int) {
	buf.WriteString(strconv.Itoa(i))
}
