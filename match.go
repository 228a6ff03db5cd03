package bsonfilter

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Match reports whether doc satisfies a filter document, evaluating the filter
// the way the server does:  dotted paths traverse arrays implicitly, equality
// against an array matches any element, and a missing field equals null.
//
// Match supports the operators produced by Compile, plus $and, $or, $nor and
// $exists.  It exists so filters can be evaluated without a server, eg. in
// tests or against local collections.
func Match(filter bson.D, doc any) (bool, error) {
	d, err := Normalize(doc)
	if err != nil {
		return false, err
	}
	return matchDocument(filter, d)
}

// Normalize converts a document (a struct, map, or bson.D) into a tree of
// map[string]any and []any holding wire-typed values, by round tripping it
// through BSON.
func Normalize(doc any) (map[string]any, error) {
	if m, ok := doc.(map[string]any); ok && isPlain(m) {
		return m, nil
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return plain(d).(map[string]any), nil
}

func isPlain(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, item := range t {
			if !isPlain(item) {
				return false
			}
		}
		return true
	case []any:
		for _, item := range t {
			if !isPlain(item) {
				return false
			}
		}
		return true
	case nil, bool, int32, int64, float64, string, primitive.ObjectID, primitive.DateTime, primitive.Regex:
		return true
	}
	return false
}

// plain converts BSON container types into plain maps and slices.
func plain(v any) any {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]any, len(t))
		for k, item := range t {
			m[k] = plain(item)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, item := range t {
			m[k] = plain(item)
		}
		return m
	case primitive.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	}
	return v
}

func matchDocument(filter bson.D, doc map[string]any) (bool, error) {
	for _, e := range filter {
		var (
			ok  bool
			err error
		)
		switch e.Key {
		case "$and", "$or", "$nor":
			ok, err = matchLogical(e.Key, e.Value, doc)
		default:
			ok, err = matchField(doc, e.Key, e.Value)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(op string, value any, doc map[string]any) (bool, error) {
	list, ok := value.(primitive.A)
	if !ok {
		return false, fmt.Errorf("%s requires an array", op)
	}
	matched := 0
	for _, item := range list {
		sub, ok := operatorDoc(item)
		if !ok {
			sub, ok = item.(bson.D)
		}
		if !ok {
			return false, fmt.Errorf("%s requires an array of documents", op)
		}
		res, err := matchDocument(sub, doc)
		if err != nil {
			return false, err
		}
		if res {
			matched++
		}
	}
	switch op {
	case "$and":
		return matched == len(list), nil
	case "$or":
		return matched > 0, nil
	}
	return matched == 0, nil
}

// values holds what a path resolves to within a document.
type values struct {
	// raw holds the values at the end of the path, without expanding
	// terminal arrays.
	raw []any
}

// candidates returns raw values along with the elements of raw arrays, which
// is what equality and comparisons are evaluated against.
func (v values) candidates() []any {
	out := make([]any, 0, len(v.raw))
	for _, r := range v.raw {
		out = append(out, r)
		if arr, ok := r.([]any); ok {
			out = append(out, arr...)
		}
	}
	return out
}

func resolve(doc map[string]any, path string) values {
	return values{raw: lookup(doc, strings.Split(path, "."))}
}

// lookup walks segments through v.  Numeric segments index arrays;  any other
// segment applied to an array is applied to each document within it.
func lookup(v any, segments []string) []any {
	if len(segments) == 0 {
		return []any{v}
	}
	seg, rest := segments[0], segments[1:]

	var next []any
	switch t := v.(type) {
	case map[string]any:
		// Present fields resolve even when null, so $exists sees them.
		if item, ok := t[seg]; ok {
			next = []any{item}
		}
	case []any:
		if i, err := strconv.Atoi(seg); err == nil && i >= 0 {
			next = jp.N(i).Get(t)
			break
		}
		var out []any
		for _, elem := range jp.W().Get(t) {
			if m, ok := elem.(map[string]any); ok {
				out = append(out, lookup(m, segments)...)
			}
		}
		return out
	default:
		return nil
	}

	var out []any
	for _, n := range next {
		out = append(out, lookup(n, rest)...)
	}
	return out
}

func matchField(doc map[string]any, path string, cond any) (bool, error) {
	vals := resolve(doc, path)
	if ops, ok := operatorDoc(cond); ok {
		return matchOperators(vals, ops)
	}
	if re, ok := cond.(primitive.Regex); ok {
		return matchRegex(vals, re)
	}
	return equalAny(vals, cond), nil
}

// operatorDoc returns v as an operator document, if every key of it is an
// operator.
func operatorDoc(v any) (bson.D, bool) {
	var d bson.D
	switch t := v.(type) {
	case primitive.D:
		d = t
	case primitive.M:
		for k, item := range t {
			d = append(d, bson.E{Key: k, Value: item})
		}
	default:
		return nil, false
	}
	if len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return d, true
}

func matchOperators(vals values, ops bson.D) (bool, error) {
	for _, op := range ops {
		ok, err := matchOperator(vals, op.Key, op.Value, ops)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOperator(vals values, op string, arg any, siblings bson.D) (bool, error) {
	switch op {
	case "$eq":
		return equalAny(vals, arg), nil
	case "$ne":
		return !equalAny(vals, arg), nil
	case "$gt", "$gte", "$lt", "$lte":
		return compareAny(vals, op, arg), nil
	case "$in", "$nin":
		list, ok := arg.(primitive.A)
		if !ok {
			return false, fmt.Errorf("%s requires an array", op)
		}
		found := false
		for _, item := range list {
			if equalAny(vals, item) {
				found = true
				break
			}
		}
		return found == (op == "$in"), nil
	case "$size":
		n, ok := number(arg)
		if !ok {
			return false, fmt.Errorf("$size requires a number")
		}
		for _, r := range vals.raw {
			if arr, ok := r.([]any); ok && float64(len(arr)) == n {
				return true, nil
			}
		}
		return false, nil
	case "$mod":
		return matchMod(vals, arg)
	case "$regex":
		re, err := regexOperand(arg, siblings)
		if err != nil {
			return false, err
		}
		return matchRegex(vals, re)
	case "$options":
		// Consumed by $regex.
		return true, nil
	case "$not":
		var (
			ok  bool
			err error
		)
		if re, isRegex := arg.(primitive.Regex); isRegex {
			ok, err = matchRegex(vals, re)
		} else if inner, isOps := operatorDoc(arg); isOps {
			ok, err = matchOperators(vals, inner)
		} else {
			return false, fmt.Errorf("$not requires an operator document or a regular expression")
		}
		return !ok && err == nil, err
	case "$elemMatch":
		return matchElem(vals, arg)
	case "$exists":
		want, _ := arg.(bool)
		return (len(vals.raw) > 0) == want, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

func matchElem(vals values, arg any) (bool, error) {
	sub, ok := arg.(primitive.D)
	if !ok {
		return false, fmt.Errorf("$elemMatch requires a document")
	}
	ops, scalar := operatorDoc(sub)

	for _, r := range vals.raw {
		arr, ok := r.([]any)
		if !ok {
			continue
		}
		for _, elem := range arr {
			var (
				res bool
				err error
			)
			if scalar {
				res, err = matchOperators(values{raw: []any{elem}}, ops)
			} else if m, isDoc := elem.(map[string]any); isDoc {
				res, err = matchDocument(sub, m)
			}
			if err != nil {
				return false, err
			}
			if res {
				return true, nil
			}
		}
	}
	return false, nil
}

func matchMod(vals values, arg any) (bool, error) {
	operands, ok := arg.(primitive.A)
	if !ok || len(operands) != 2 {
		return false, fmt.Errorf("$mod requires [divisor, remainder]")
	}
	d, dok := number(operands[0])
	r, rok := number(operands[1])
	if !dok || !rok || int64(d) == 0 {
		return false, fmt.Errorf("$mod requires a non-zero divisor and a remainder")
	}
	for _, c := range vals.candidates() {
		if n, ok := number(c); ok && int64(n)%int64(d) == int64(r) {
			return true, nil
		}
	}
	return false, nil
}

func regexOperand(arg any, siblings bson.D) (primitive.Regex, error) {
	switch t := arg.(type) {
	case primitive.Regex:
		return t, nil
	case string:
		re := primitive.Regex{Pattern: t}
		for _, s := range siblings {
			if s.Key == "$options" {
				re.Options, _ = s.Value.(string)
			}
		}
		return re, nil
	}
	return primitive.Regex{}, fmt.Errorf("$regex requires a pattern")
}

func matchRegex(vals values, re primitive.Regex) (bool, error) {
	flags := ""
	for _, o := range re.Options {
		switch o {
		case 'i', 's', 'm':
			flags += string(o)
		default:
			return false, fmt.Errorf("unsupported regular expression option %q", o)
		}
	}
	expr := re.Pattern
	if flags != "" {
		expr = "(?" + flags + ")" + expr
	}
	compiled, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Errorf("invalid regular expression %q: %w", re.Pattern, err)
	}
	for _, c := range vals.candidates() {
		if s, ok := c.(string); ok && compiled.MatchString(s) {
			return true, nil
		}
	}
	return false, nil
}

func equalAny(vals values, want any) bool {
	want = plain(want)
	if want == nil {
		if len(vals.raw) == 0 {
			return true
		}
	}
	for _, c := range vals.candidates() {
		if equal(c, want) {
			return true
		}
	}
	return false
}

// equal compares wire values, treating all numeric types as comparable.
func equal(a, b any) bool {
	if an, ok := number(a); ok {
		bn, ok := number(b)
		return ok && an == bn
	}
	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, ok := bt[k]
			if !ok || !equal(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func compareAny(vals values, op string, arg any) bool {
	for _, c := range vals.candidates() {
		n, ok := compare(c, arg)
		if !ok {
			continue
		}
		switch {
		case op == "$gt" && n > 0,
			op == "$gte" && n >= 0,
			op == "$lt" && n < 0,
			op == "$lte" && n <= 0:
			return true
		}
	}
	return false
}

// compare orders two values of the same type class.
func compare(a, b any) (int, bool) {
	if an, ok := number(a); ok {
		bn, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}
	switch at := a.(type) {
	case string:
		bt, ok := b.(string)
		return strings.Compare(at, bt), ok
	case primitive.DateTime:
		bt, ok := b.(primitive.DateTime)
		return compareInt(int64(at), int64(bt)), ok
	}
	return 0, false
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
