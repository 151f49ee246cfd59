package functions

import (
	"math/rand"
	"strings"

	"github.com/veilmush/goveilmush/pkg/eval"
)

// pick(list[, sep]) — one element of the list with uniform probability.
// The separator defaults to "|".
func fnPick(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	sep := "|"
	if len(args) > 1 && args[1] != "" {
		sep = args[1]
	}
	items := strings.Split(args[0], sep)
	if len(items) == 0 {
		return
	}
	buf.WriteString(items[rand.Intn(len(items))])
}

func fnStrlen(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	writeInt(buf, len(args[0]))
}

// words(list[, sep]) — count of space-separated (or sep-separated) words.
func fnWords(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	if len(args) > 1 && args[1] != "" {
		writeInt(buf, len(strings.Split(args[0], args[1])))
		return
	}
	writeInt(buf, len(strings.Fields(args[0])))
}

// cat(a, b, ...) — arguments joined with single spaces.
func fnCat(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	buf.WriteString(strings.Join(args, " "))
}

func fnUcstr(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	buf.WriteString(strings.ToUpper(args[0]))
}

func fnLcstr(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	buf.WriteString(strings.ToLower(args[0]))
}

func fnTrim(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	buf.WriteString(strings.TrimSpace(args[0]))
}
