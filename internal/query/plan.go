package query

import (
	"math"
	"strings"
)

// Document is the decoded form of a stored value that clauses are evaluated against.
type Document map[string]interface{}

// Plan is a parsed query ready to be evaluated by a store.
type Plan struct {
	q    *Query
	root node
}

func newPlan(q *Query) *Plan {
	b := &treeBuilder{clauses: q.clauses}
	return &Plan{q: q, root: b.build(0)}
}

// SQLLike renders the plan back to its string form.
func (p *Plan) SQLLike() string {
	return p.q.SQLLike()
}

// DeviceID returns the device hint, if one was set.
func (p *Plan) DeviceID() (string, bool) {
	if p.q.deviceID == nil {
		return "", false
	}
	return *p.q.deviceID, true
}

// KeyPrefix returns the key prefix hint, or "" for all keys.
func (p *Plan) KeyPrefix() string {
	if p.q.keyPrefix == nil {
		return ""
	}
	return *p.q.keyPrefix
}

// SuggestIndex returns the index hint, if one was set.
func (p *Plan) SuggestIndex() (string, bool) {
	if p.q.suggestIndex == nil {
		return "", false
	}
	return *p.q.suggestIndex, true
}

// HasFilter reports whether any predicate clause survives tree building.
func (p *Plan) HasFilter() bool {
	return p.root != nil
}

// HasOrder reports whether results need sorting.
func (p *Plan) HasOrder() bool {
	return len(p.q.orders) > 0
}

// Match reports whether doc satisfies the plan's clauses. A plan without
// predicates matches everything.
func (p *Plan) Match(doc Document) bool {
	if p.root == nil {
		return true
	}
	return p.root.match(doc)
}

// Compare orders two documents by the plan's sort keys, primary key first.
// It returns a negative number when a sorts before b.
func (p *Plan) Compare(a, b Document) int {
	for _, o := range p.q.orders {
		av, _ := lookup(a, o.field)
		bv, _ := lookup(b, o.field)
		c := compareAny(av, bv)
		if o.desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// Window returns the [start, end) slice bounds selected by the limit for n results.
func (p *Plan) Window(n int) (int, int) {
	if p.q.limit == nil {
		return 0, n
	}
	start := p.q.limit.offset
	if start > n {
		start = n
	}
	end := start + p.q.limit.count
	if end > n || end < start {
		end = n
	}
	return start, end
}

type node interface {
	match(doc Document) bool
}

type andNode []node

func (n andNode) match(doc Document) bool {
	for _, child := range n {
		if !child.match(doc) {
			return false
		}
	}
	return true
}

type orNode []node

func (n orNode) match(doc Document) bool {
	for _, child := range n {
		if child.match(doc) {
			return true
		}
	}
	return false
}

type predicate clause

// treeBuilder folds the flat clause list into AND/OR trees. Groups bind
// tightest, then AND (explicit or implied by adjacency), then OR. Stray
// connectives are skipped, an unmatched group close at the top level is
// ignored and an unclosed group ends with the input.
type treeBuilder struct {
	clauses []clause
	pos     int
}

func (b *treeBuilder) build(depth int) node {
	var alts []node
	var terms []node

	flush := func() {
		if len(terms) > 0 {
			alts = append(alts, conjunction(terms))
			terms = nil
		}
	}

	for b.pos < len(b.clauses) {
		c := b.clauses[b.pos]
		b.pos++

		switch c.kind {
		case clauseAnd:
		case clauseOr:
			flush()
		case clauseBeginGroup:
			if g := b.build(depth + 1); g != nil {
				terms = append(terms, g)
			}
		case clauseEndGroup:
			if depth > 0 {
				flush()
				return disjunction(alts)
			}
		default:
			terms = append(terms, predicate(c))
		}
	}

	flush()
	return disjunction(alts)
}

func conjunction(terms []node) node {
	if len(terms) == 1 {
		return terms[0]
	}
	return andNode(terms)
}

func disjunction(alts []node) node {
	switch len(alts) {
	case 0:
		return nil
	case 1:
		return alts[0]
	}
	return orNode(alts)
}

func (p predicate) match(doc Document) bool {
	actual, found := lookup(doc, p.field)

	switch p.kind {
	case clauseIsNull:
		return !found || actual == nil
	case clauseIsNotNull:
		return found && actual != nil
	case clauseEqual:
		return equalValue(actual, p.value)
	case clauseNotEqual:
		return !equalValue(actual, p.value)
	case clauseGreater, clauseLess, clauseGreaterEqual, clauseLessEqual:
		c, ok := compareValue(actual, p.value)
		if !ok {
			return false
		}
		switch p.kind {
		case clauseGreater:
			return c > 0
		case clauseLess:
			return c < 0
		case clauseGreaterEqual:
			return c >= 0
		default:
			return c <= 0
		}
	case clauseLike, clauseNotLike:
		s, ok := actual.(string)
		if !ok {
			return false
		}
		return likeMatch(s, p.pattern) == (p.kind == clauseLike)
	case clauseIn, clauseNotIn:
		member, ok := p.contains(actual)
		if !ok {
			return false
		}
		return member == (p.kind == clauseIn)
	}
	return false
}

// contains reports list membership; ok is false when actual has the wrong type.
func (p predicate) contains(actual interface{}) (member bool, ok bool) {
	if p.typeTag == typeString {
		s, isString := actual.(string)
		if !isString {
			return false, false
		}
		for _, candidate := range p.strings {
			if candidate == s {
				return true, true
			}
		}
		return false, true
	}

	f, isNumber := actual.(float64)
	if !isNumber || math.IsNaN(f) {
		return false, false
	}
	for _, candidate := range p.numbers {
		if candidate == f {
			return true, true
		}
	}
	return false, true
}

// lookup resolves a field path. A leading "$." is dropped and dots descend
// into nested objects; a key that literally contains the dots wins.
func lookup(doc Document, field string) (interface{}, bool) {
	path := strings.TrimPrefix(field, "$.")
	if v, ok := doc[path]; ok {
		return v, true
	}

	var cur interface{} = map[string]interface{}(doc)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			if d, isDoc := cur.(Document); isDoc {
				m = d
			} else {
				return nil, false
			}
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func equalValue(actual interface{}, v Value) bool {
	switch want := v.(type) {
	case NumberValue:
		f, ok := actual.(float64)
		return ok && f == float64(want)
	case StringValue:
		s, ok := actual.(string)
		return ok && s == string(want)
	case BoolValue:
		b, ok := actual.(bool)
		return ok && b == bool(want)
	}
	return false
}

// compareValue orders actual against v; ok is false on a type mismatch or NaN.
func compareValue(actual interface{}, v Value) (int, bool) {
	switch want := v.(type) {
	case NumberValue:
		f, ok := actual.(float64)
		if !ok || math.IsNaN(f) || math.IsNaN(float64(want)) {
			return 0, false
		}
		return compareFloats(f, float64(want)), true
	case StringValue:
		s, ok := actual.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(s, string(want)), true
	case BoolValue:
		b, ok := actual.(bool)
		if !ok {
			return 0, false
		}
		return compareBools(b, bool(want)), true
	}
	return 0, false
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// rank puts values of different types in a fixed order for sorting:
// missing/null, booleans, numbers, strings, everything else.
func rank(v interface{}) int {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		if math.IsNaN(x) {
			return 2
		}
		return 3
	case string:
		return 4
	}
	return 5
}

func compareAny(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case bool:
		return compareBools(x, b.(bool))
	case float64:
		if ra == 3 {
			return compareFloats(x, b.(float64))
		}
	case string:
		return strings.Compare(x, b.(string))
	}
	return 0
}

// likeMatch implements SQL LIKE with '%' and '_' over runes.
func likeMatch(s, pattern string) bool {
	str := []rune(s)
	pat := []rune(pattern)

	si, pi := 0, 0
	starPi, starSi := -1, 0

	for si < len(str) {
		switch {
		case pi < len(pat) && pat[pi] == '%':
			starPi = pi
			starSi = si
			pi++
		case pi < len(pat) && (pat[pi] == '_' || pat[pi] == str[si]):
			si++
			pi++
		case starPi >= 0:
			pi = starPi + 1
			starSi++
			si = starSi
		default:
			return false
		}
	}

	for pi < len(pat) && pat[pi] == '%' {
		pi++
	}
	return pi == len(pat)
}
