package eval

import "strings"

// matchingBracket returns the index of the ']' matching the '[' at
// input[open], or -1.
func matchingBracket(input string, open int) int {
	depth := 0
	for i := open; i < len(input); i++ {
		switch input[i] {
		case '\\':
			i++
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitCall recognizes the name(args) call form: an identifier immediately
// followed by a parenthesized argument list that closes at the end of the
// string.
func splitCall(s string) (name, args string, ok bool) {
	paren := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '(' {
			paren = i
			break
		}
		if !isFuncChar(c) {
			return "", "", false
		}
	}
	if paren <= 0 || s[len(s)-1] != ')' {
		return "", "", false
	}
	// The opening paren must match the final close.
	depth := 0
	for i := paren; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				if i != len(s)-1 {
					return "", "", false
				}
				return s[:paren], s[paren+1 : len(s)-1], true
			}
		}
	}
	return "", "", false
}

func isFuncChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// SplitArgs splits a function argument list on top-level commas, honoring
// (), [] and {} nesting and backslash escapes. An empty list yields nil.
func SplitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	args = append(args, strings.TrimSpace(s[start:]))
	return args
}

// SplitStatements splits a {…} block body into its statements: outer
// braces are stripped, then the text splits on semicolons and newlines at
// the top nesting level. Blank statements are dropped.
func SplitStatements(body string) []string {
	body = StripBraces(body)
	var stmts []string
	depth := 0
	start := 0
	flush := func(end int) {
		if s := strings.TrimSpace(body[start:end]); s != "" {
			stmts = append(stmts, s)
		}
		start = end + 1
	}
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		case ';', '\n':
			if depth == 0 {
				flush(i)
			}
		}
	}
	flush(len(body))
	return stmts
}

// StripBraces removes one level of surrounding braces, if the closing
// brace matches the opening one.
func StripBraces(s string) string {
	t := strings.TrimSpace(s)
	if len(t) < 2 || t[0] != '{' || t[len(t)-1] != '}' {
		return t
	}
	depth := 0
	for i := 0; i < len(t); i++ {
		switch t[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 && i != len(t)-1 {
				return t
			}
		}
	}
	return strings.TrimSpace(t[1 : len(t)-1])
}
