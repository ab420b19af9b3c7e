// Package query builds filter/order/limit descriptions for the key-value store
// and renders them into the single string form the store executes.
//
// A Query is not safe for concurrent use.
package query

type clauseKind uint8

const (
	clauseEqual clauseKind = iota
	clauseNotEqual
	clauseGreater
	clauseLess
	clauseGreaterEqual
	clauseLessEqual
	clauseIsNull
	clauseIsNotNull
	clauseLike
	clauseNotLike
	clauseIn
	clauseNotIn
	clauseAnd
	clauseOr
	clauseBeginGroup
	clauseEndGroup
)

// clause is one recorded directive. Which fields are set depends on kind.
type clause struct {
	kind    clauseKind
	field   string
	value   Value
	pattern string
	typeTag string
	numbers []float64
	strings []string
}

type order struct {
	field string
	desc  bool
}

type limitSpec struct {
	count  int
	offset int
}

// Query accumulates clauses, orderings, a limit and hints. Every mutating
// method returns the receiver so calls can be chained. A call with invalid
// arguments changes nothing; the first such failure is kept for Err.
type Query struct {
	clauses      []clause
	groupDepth   int
	suggestIndex *string
	deviceID     *string
	keyPrefix    *string
	orders       []order
	limit        *limitSpec
	err          error
}

// New creates an empty query.
func New() *Query {
	return &Query{}
}

// Err returns the first rejected call since creation or the last Reset.
func (q *Query) Err() error {
	return q.err
}

func (q *Query) record(err error) *Query {
	if err != nil && q.err == nil {
		q.err = err
	}
	return q
}

// Reset clears all accumulated state, including a recorded error.
func (q *Query) Reset() *Query {
	*q = Query{}
	return q
}

// IsEmpty reports whether nothing has been recorded.
func (q *Query) IsEmpty() bool {
	return len(q.clauses) == 0 && len(q.orders) == 0 && q.limit == nil &&
		q.suggestIndex == nil && q.deviceID == nil && q.keyPrefix == nil
}

// GroupDepth returns the number of groups opened and not yet closed.
func (q *Query) GroupDepth() int {
	return q.groupDepth
}

// EqualTo matches entries whose field equals v.
func (q *Query) EqualTo(field string, v Value) *Query {
	return q.record(q.compare("equalTo", clauseEqual, field, v))
}

// NotEqualTo matches entries whose field differs from v.
func (q *Query) NotEqualTo(field string, v Value) *Query {
	return q.record(q.compare("notEqualTo", clauseNotEqual, field, v))
}

// GreaterThan matches entries whose field is greater than v.
func (q *Query) GreaterThan(field string, v Value) *Query {
	return q.record(q.compare("greaterThan", clauseGreater, field, v))
}

// LessThan matches entries whose field is less than v.
func (q *Query) LessThan(field string, v Value) *Query {
	return q.record(q.compare("lessThan", clauseLess, field, v))
}

// GreaterThanOrEqualTo matches entries whose field is at least v.
func (q *Query) GreaterThanOrEqualTo(field string, v Value) *Query {
	return q.record(q.compare("greaterThanOrEqualTo", clauseGreaterEqual, field, v))
}

// LessThanOrEqualTo matches entries whose field is at most v.
func (q *Query) LessThanOrEqualTo(field string, v Value) *Query {
	return q.record(q.compare("lessThanOrEqualTo", clauseLessEqual, field, v))
}

// IsNull matches entries where field is missing or null.
func (q *Query) IsNull(field string) *Query {
	return q.record(q.nullCheck("isNull", clauseIsNull, field))
}

// IsNotNull matches entries where field holds a value.
func (q *Query) IsNotNull(field string) *Query {
	return q.record(q.nullCheck("isNotNull", clauseIsNotNull, field))
}

// Like matches string fields against a pattern where '%' matches any run
// and '_' matches a single character.
func (q *Query) Like(field, pattern string) *Query {
	return q.record(q.like("like", clauseLike, field, pattern))
}

// Unlike is the negation of Like.
func (q *Query) Unlike(field, pattern string) *Query {
	return q.record(q.like("unlike", clauseNotLike, field, pattern))
}

// InNumber matches numeric fields equal to one of values.
func (q *Query) InNumber(field string, values NumberList) *Query {
	return q.record(q.inNumbers("inNumber", clauseIn, field, values))
}

// NotInNumber matches numeric fields equal to none of values.
func (q *Query) NotInNumber(field string, values NumberList) *Query {
	return q.record(q.inNumbers("notInNumber", clauseNotIn, field, values))
}

// InString matches string fields equal to one of values.
func (q *Query) InString(field string, values []string) *Query {
	return q.record(q.inStrings("inString", clauseIn, field, values))
}

// NotInString matches string fields equal to none of values.
func (q *Query) NotInString(field string, values []string) *Query {
	return q.record(q.inStrings("notInString", clauseNotIn, field, values))
}

// And places an explicit AND between the previous clause and the next one.
func (q *Query) And() *Query {
	q.clauses = append(q.clauses, clause{kind: clauseAnd})
	return q
}

// Or places an OR between the previous clause and the next one.
func (q *Query) Or() *Query {
	q.clauses = append(q.clauses, clause{kind: clauseOr})
	return q
}

// BeginGroup opens a parenthesised group.
func (q *Query) BeginGroup() *Query {
	q.groupDepth++
	q.clauses = append(q.clauses, clause{kind: clauseBeginGroup})
	return q
}

// EndGroup closes a group. The marker is recorded even with no group open;
// balancing is left to whoever executes the query.
func (q *Query) EndGroup() *Query {
	if q.groupDepth > 0 {
		q.groupDepth--
	}
	q.clauses = append(q.clauses, clause{kind: clauseEndGroup})
	return q
}

// OrderByAsc adds an ascending sort key after any existing ones.
func (q *Query) OrderByAsc(field string) *Query {
	return q.record(q.orderBy("orderByAsc", field, false))
}

// OrderByDesc adds a descending sort key after any existing ones.
func (q *Query) OrderByDesc(field string) *Query {
	return q.record(q.orderBy("orderByDesc", field, true))
}

// Limit returns at most count results starting at offset.
func (q *Query) Limit(count, offset int) *Query {
	return q.record(q.setLimit("limit", count, offset))
}

// SetSuggestIndex names an index the store should prefer. Last call wins.
func (q *Query) SetSuggestIndex(name string) *Query {
	q.suggestIndex = &name
	return q
}

// PrefixKey restricts matching to keys starting with prefix. Last call wins.
func (q *Query) PrefixKey(prefix string) *Query {
	q.keyPrefix = &prefix
	return q
}

// DeviceID scopes the query to the data of one device. Last call wins.
func (q *Query) DeviceID(id string) *Query {
	q.deviceID = &id
	return q
}

// SQLLike renders the query. An empty query renders as "".
func (q *Query) SQLLike() string {
	return render(q)
}

func (q *Query) String() string {
	return q.SQLLike()
}

func checkField(method, field string) error {
	if field == "" {
		return invalidArg(method, "field must not be empty")
	}
	return nil
}

func (q *Query) compare(method string, kind clauseKind, field string, v Value) error {
	if err := checkField(method, field); err != nil {
		return err
	}
	if v == nil {
		return invalidArg(method, "value must be a number, string or boolean")
	}
	q.clauses = append(q.clauses, clause{kind: kind, field: field, value: v})
	return nil
}

func (q *Query) nullCheck(method string, kind clauseKind, field string) error {
	if err := checkField(method, field); err != nil {
		return err
	}
	q.clauses = append(q.clauses, clause{kind: kind, field: field})
	return nil
}

func (q *Query) like(method string, kind clauseKind, field, pattern string) error {
	if err := checkField(method, field); err != nil {
		return err
	}
	q.clauses = append(q.clauses, clause{kind: kind, field: field, pattern: pattern})
	return nil
}

func (q *Query) inNumbers(method string, kind clauseKind, field string, values NumberList) error {
	if err := checkField(method, field); err != nil {
		return err
	}
	tag, ok := values.Kind.typeTag()
	if !ok {
		return invalidArg(method, "%s elements cannot be represented as double", values.Kind)
	}
	if values.Len() == 0 {
		return invalidArg(method, "value list must not be empty")
	}
	q.clauses = append(q.clauses, clause{kind: kind, field: field, typeTag: tag, numbers: values.Values()})
	return nil
}

func (q *Query) inStrings(method string, kind clauseKind, field string, values []string) error {
	if err := checkField(method, field); err != nil {
		return err
	}
	if len(values) == 0 {
		return invalidArg(method, "value list must not be empty")
	}
	q.clauses = append(q.clauses, clause{
		kind:    kind,
		field:   field,
		typeTag: typeString,
		strings: append([]string(nil), values...),
	})
	return nil
}

func (q *Query) orderBy(method, field string, desc bool) error {
	if err := checkField(method, field); err != nil {
		return err
	}
	q.orders = append(q.orders, order{field: field, desc: desc})
	return nil
}

func (q *Query) setLimit(method string, count, offset int) error {
	if count < 0 {
		return invalidArg(method, "count must not be negative, got %d", count)
	}
	if offset < 0 {
		return invalidArg(method, "offset must not be negative, got %d", offset)
	}
	q.limit = &limitSpec{count: count, offset: offset}
	return nil
}
