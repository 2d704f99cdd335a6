package router

import (
	"strings"

	"github.com/google/uuid"
)

// tokenize splits a command line into tokens with double-quote support:
//
//	/remind "buy milk" in 2h  ->  [/remind, buy milk, in, 2h]
func tokenize(s string) []string {
	var out []string
	var b strings.Builder
	inQuote := false
	flush := func() {
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' || r == '\t' || r == '\n':
			if inQuote {
				b.WriteRune(r)
			} else {
				flush()
			}
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

// parseFlags separates positional args from flags.
//
//	--key=value / --key value  -> Flags["key"]
//	--flag (no value follows)  -> BoolFlags["flag"]
//	-w                         -> BoolFlags["w"]
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case strings.HasPrefix(a, "--"):
			body := strings.TrimPrefix(a, "--")
			if body == "" {
				continue
			}
			if k, v, ok := strings.Cut(body, "="); ok {
				flags[k] = v
				continue
			}
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				flags[body] = args[i+1]
				i++
			} else {
				bools[body] = true
			}
		case strings.HasPrefix(a, "-") && len(a) > 1 && !isNumericToken(a):
			bools[strings.TrimPrefix(a, "-")] = true
		default:
			pos = append(pos, a)
		}
	}
	return pos, flags, bools
}

// isNumericToken keeps negative numbers out of flag parsing ("/rpn 3 -4 +").
func isNumericToken(s string) bool {
	if len(s) < 2 || s[0] != '-' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func newReqID() string {
	id := uuid.NewString()
	// short form is plenty for log correlation
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
