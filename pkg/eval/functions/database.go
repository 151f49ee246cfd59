package functions

import (
	"strconv"
	"strings"

	"github.com/veilmush/goveilmush/pkg/eval"
	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// v(attr) — an attribute on the object the trigger runs on.
func fnV(ctx *eval.EvalContext, args []string, buf *strings.Builder) {
	o := ctx.Self()
	if o == nil {
		return
	}
	buf.WriteString(o.AttrValue(args[0]))
}

// get(target/attr) — an attribute on another object, honoring the same
// visibility rules as a direct examine.
func fnGet(ctx *eval.EvalContext, args []string, buf *strings.Builder) {
	parts := strings.SplitN(args[0], "/", 2)
	if len(parts) != 2 {
		buf.WriteString("#-1 BAD ARGUMENT FORMAT")
		return
	}
	ref := ctx.DB.MatchObject(ctx.Executor, parts[0])
	target := ctx.DB.Get(ref)
	if target == nil {
		buf.WriteString("#-1 NOT FOUND")
		return
	}
	a, ok := target.GetAttr(parts[1])
	if !ok {
		return
	}
	if !gamedb.CanReadAttr(ctx.Self(), target, a) {
		buf.WriteString("#-1 PERMISSION DENIED")
		return
	}
	buf.WriteString(a.Value)
}

// name(ref) — an object's name.
func fnName(ctx *eval.EvalContext, args []string, buf *strings.Builder) {
	ref := ctx.DB.MatchObject(ctx.Executor, args[0])
	if o := ctx.DB.Get(ref); o != nil {
		buf.WriteString(o.Name)
	} else {
		buf.WriteString("#-1 NOT FOUND")
	}
}

// num(name) — the dbref of a resolvable object, as "#<n>".
func fnNum(ctx *eval.EvalContext, args []string, buf *strings.Builder) {
	ref := ctx.DB.MatchObject(ctx.Executor, args[0])
	if ref == gamedb.Nothing {
		buf.WriteString("#-1")
		return
	}
	buf.WriteString("#" + strconv.Itoa(int(ref)))
}

// loc(ref) — the dbref of an object's location.
func fnLoc(ctx *eval.EvalContext, args []string, buf *strings.Builder) {
	ref := ctx.DB.MatchObject(ctx.Executor, args[0])
	o := ctx.DB.Get(ref)
	if o == nil {
		buf.WriteString("#-1")
		return
	}
	buf.WriteString("#" + strconv.Itoa(int(o.Location)))
}
