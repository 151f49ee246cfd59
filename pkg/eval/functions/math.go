package functions

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/veilmush/goveilmush/pkg/eval"
)

func toFloat(s string) float64 {
	s = strings.TrimSpace(s)
	// atof-style parsing: take the leading numeric characters, ignore
	// trailing text, so values like "12 tokens" coerce to 12.
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	sawDot := false
	for end < len(s) {
		if s[end] == '.' && !sawDot {
			sawDot = true
			end++
		} else if s[end] >= '0' && s[end] <= '9' {
			end++
		} else {
			break
		}
	}
	f, _ := strconv.ParseFloat(s[:end], 64)
	return f
}

func toInt(s string) int {
	return int(toFloat(s))
}

// add(a, b, ...) — integer sum; floats compute then truncate.
func fnAdd(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	sum := 0.0
	for _, a := range args {
		sum += toFloat(a)
	}
	writeInt(buf, int(sum))
}

// sub(a, b)
func fnSub(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	writeInt(buf, int(toFloat(args[0])-toFloat(args[1])))
}

// mul(a, b, ...)
func fnMul(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	prod := 1.0
	for _, a := range args {
		prod *= toFloat(a)
	}
	writeInt(buf, int(prod))
}

// div(a, b) — integer division. Division by zero renders an inline marker;
// the surrounding text keeps evaluating.
func fnDiv(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	b := toInt(args[1])
	if b == 0 {
		buf.WriteString("#-1 DIVIDE BY ZERO")
		return
	}
	writeInt(buf, toInt(args[0])/b)
}

// mod(a, b)
func fnMod(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	b := toInt(args[1])
	if b == 0 {
		buf.WriteString("#-1 DIVIDE BY ZERO")
		return
	}
	writeInt(buf, toInt(args[0])%b)
}

// abs(a)
func fnAbs(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	n := toInt(args[0])
	if n < 0 {
		n = -n
	}
	writeInt(buf, n)
}

// rand(n) — uniform integer in [0, n).
func fnRand(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	n := toInt(args[0])
	if n <= 0 {
		buf.WriteString("#-1 ARGUMENT OUT OF RANGE")
		return
	}
	writeInt(buf, rand.Intn(n))
}

func fnEq(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	buf.WriteString(boolToStr(toFloat(args[0]) == toFloat(args[1])))
}

func fnGt(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	buf.WriteString(boolToStr(toFloat(args[0]) > toFloat(args[1])))
}

func fnLt(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	buf.WriteString(boolToStr(toFloat(args[0]) < toFloat(args[1])))
}

func fnNot(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	buf.WriteString(boolToStr(!isTrue(args[0])))
}

func fnAnd(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	for _, a := range args {
		if !isTrue(a) {
			buf.WriteString("0")
			return
		}
	}
	buf.WriteString("1")
}

func fnOr(_ *eval.EvalContext, args []string, buf *strings.Builder) {
	for _, a := range args {
		if isTrue(a) {
			buf.WriteString("1")
			return
		}
	}
	buf.WriteString("0")
}
