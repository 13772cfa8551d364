package expr

import "strings"

// wordOperators maps the word form of each operator to its symbol.
var wordOperators = map[string]string{
	"AND": "&",
	"OR":  "|",
	"XOR": "^",
	"NOT": "!",
}

// Normalize rewrites the whole-word operators AND, OR, XOR and NOT (any case)
// to &, |, ^ and !. The input is split at word boundaries, so operators
// embedded in identifiers ("ORANGE", "not_yet") are left alone. Everything
// else, whitespace included, is copied unchanged.
func Normalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	for start := 0; start < len(s); {
		end := start + 1
		word := isIdentByte(s[start])
		for end < len(s) && isIdentByte(s[end]) == word {
			end++
		}
		token := s[start:end]
		if sym, ok := wordOperators[strings.ToUpper(token)]; word && ok {
			out.WriteString(sym)
		} else {
			out.WriteString(token)
		}
		start = end
	}
	return out.String()
}

func isIdentByte(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}
