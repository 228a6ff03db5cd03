package bsonfilter

import (
	"strings"
)

const (
	// LiftedIdent is the identifier under which lifted string literals are
	// referenced, eg. `x.A == "foo"` becomes `x.A == _vars.a`.
	LiftedIdent = "_vars"
	// VarPrefix prefixes every lifted literal in a rewritten expression.
	VarPrefix = LiftedIdent + "."
)

// liftNames are the member names given to lifted literals, in order.  Literals
// beyond the last name are left in place.
var liftNames = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}

// LiftedArgs holds string literals lifted out of an expression.
type LiftedArgs interface {
	Get(name string) (any, bool)
	Map() map[string]any
}

type liftedArgs map[string]any

func (l liftedArgs) Get(name string) (any, bool) {
	v, ok := l[name]
	return v, ok
}

func (l liftedArgs) Map() map[string]any { return l }

// liftLiterals replaces quoted string literals with references to lifted
// variables so that expressions which differ only in their literals normalize
// to the same text, and therefore share one cached parse.
//
// Expressions containing escapes, raw strings, byte strings or triple quoted
// strings are returned untouched:  the literal text would need unescaping,
// which is the CEL parser's job.
func liftLiterals(expr string) (string, LiftedArgs) {
	if strings.ContainsRune(expr, '\\') || strings.Contains(expr, `"""`) || strings.Contains(expr, `'''`) {
		return expr, nil
	}

	var (
		out   strings.Builder
		args  = liftedArgs{}
		count int
	)
	out.Grow(len(expr))

	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		if ch != '"' && ch != '\'' {
			out.WriteByte(ch)
			continue
		}

		// A quote directly after an identifier character is a prefixed
		// literal (r"..", b".."), which we do not lift.
		if i > 0 && isIdentByte(expr[i-1]) {
			return expr, nil
		}

		end := strings.IndexByte(expr[i+1:], ch)
		if end < 0 {
			// Unterminated;  leave it for the parser to report.
			return expr, nil
		}
		literal := expr[i+1 : i+1+end]
		i += end + 1

		if count >= len(liftNames) {
			out.WriteByte(ch)
			out.WriteString(literal)
			out.WriteByte(ch)
			continue
		}
		name := liftNames[count]
		count++
		args[name] = literal
		out.WriteString(VarPrefix + name)
	}

	if count == 0 {
		return expr, nil
	}
	return out.String(), args
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
