package bsonfilter

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// inlineFlags matches a leading flag group such as `(?i)`.
var inlineFlags = regexp.MustCompile(`^\(\?([a-zA-Z]+)\)`)

// pattern translates substring, prefix and suffix tests into anchored regular
// expressions.  The text is escaped, and generated patterns always set the `s`
// flag so that scans span multi-line values.
func (s scope) pattern(n Call) (clause, error) {
	path, err := s.stringPath(n)
	if err != nil {
		return clause{}, err
	}
	if len(n.Args) < 1 || len(n.Args) > 2 {
		return clause{}, unsupported(n, fmt.Sprintf("%s takes a string and optional flags", n.Method))
	}
	text, ok := constantString(n.Args[0])
	if !ok {
		return clause{}, unsupported(n, "the pattern must be a string constant")
	}
	ignoreCase, err := patternOptions(n, n.Args[1:])
	if err != nil {
		return clause{}, err
	}

	expr := regexp.QuoteMeta(text)
	switch n.Method {
	case MethodStartsWith:
		expr = "^" + expr
	case MethodEndsWith:
		expr = expr + "$"
	}

	options := "s"
	if ignoreCase {
		options = "is"
	}
	return clause{
		path:  path.wire(),
		kind:  clauseRegex,
		value: primitive.Regex{Pattern: expr, Options: options},
	}, nil
}

// matches translates a direct regular expression match.  The pattern is passed
// through unescaped;  case-insensitivity is the only option carried over, either
// from an explicit flags argument or from a leading `(?i)` group.
func (s scope) matches(n Call) (clause, error) {
	path, err := s.stringPath(n)
	if err != nil {
		return clause{}, err
	}
	if len(n.Args) < 1 || len(n.Args) > 2 {
		return clause{}, unsupported(n, "matches takes a pattern and optional flags")
	}

	var expr string
	switch v, _ := constantValue(n.Args[0]); p := v.(type) {
	case string:
		expr = p
	case *regexp.Regexp:
		expr = p.String()
	default:
		return clause{}, unsupported(n, "the pattern must be a string or *regexp.Regexp constant")
	}

	expr, inlineCase, err := liftInlineFlags(expr)
	if err != nil {
		return clause{}, err
	}
	ignoreCase, err := patternOptions(n, n.Args[1:])
	if err != nil {
		return clause{}, err
	}

	options := ""
	if ignoreCase || inlineCase {
		options = "i"
	}
	return clause{
		path:  path.wire(),
		kind:  clauseRegex,
		value: primitive.Regex{Pattern: expr, Options: options},
	}, nil
}

func (s scope) stringPath(n Call) (fieldPath, error) {
	path, err := s.resolvePath(n.Target)
	if err != nil {
		return fieldPath{}, err
	}
	if k := path.serializer.Kind(); k != KindString && k != KindAny {
		return fieldPath{}, unsupported(n, fmt.Sprintf("pattern match on a %s field", k))
	}
	return path, nil
}

// patternOptions parses an optional flags argument, returning whether matching
// is case-insensitive.
func patternOptions(n Call, args []Expr) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}
	flags, ok := constantString(args[0])
	if !ok {
		return false, unsupported(n, "pattern flags must be a string constant")
	}
	return parseFlags(flags)
}

func parseFlags(flags string) (bool, error) {
	ignoreCase := false
	for _, f := range flags {
		if f != 'i' {
			return false, UnsupportedPatternOptionError{Option: string(f)}
		}
		ignoreCase = true
	}
	return ignoreCase, nil
}

// liftInlineFlags strips a leading `(?flags)` group from a Go pattern.
func liftInlineFlags(expr string) (string, bool, error) {
	m := inlineFlags.FindStringSubmatch(expr)
	if m == nil {
		return expr, false, nil
	}
	ignoreCase, err := parseFlags(m[1])
	if err != nil {
		return "", false, err
	}
	return strings.TrimPrefix(expr, m[0]), ignoreCase, nil
}

func constantString(e Expr) (string, bool) {
	v, ok := constantValue(e)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}
