package query

import (
	"encoding/json"
	"fmt"
	"math"
)

type binding struct {
	arity int
	apply func(q *Query, method string, args []interface{}) error
}

// bindings maps the loosely typed method names onto the typed builder.
var bindings = map[string]binding{
	"reset": {0, func(q *Query, _ string, _ []interface{}) error {
		q.Reset()
		return nil
	}},
	"equalTo":              comparison(clauseEqual),
	"notEqualTo":           comparison(clauseNotEqual),
	"greaterThan":          comparison(clauseGreater),
	"lessThan":             comparison(clauseLess),
	"greaterThanOrEqualTo": comparison(clauseGreaterEqual),
	"lessThanOrEqualTo":    comparison(clauseLessEqual),
	"isNull":               nullCheck(clauseIsNull),
	"isNotNull":            nullCheck(clauseIsNotNull),
	"like":                 pattern(clauseLike),
	"unlike":               pattern(clauseNotLike),
	"inNumber":             numberMembership(clauseIn),
	"notInNumber":          numberMembership(clauseNotIn),
	"inString":             stringMembership(clauseIn),
	"notInString":          stringMembership(clauseNotIn),
	"and":                  marker((*Query).And),
	"or":                   marker((*Query).Or),
	"beginGroup":           marker((*Query).BeginGroup),
	"endGroup":             marker((*Query).EndGroup),
	"orderByAsc":           ordering(false),
	"orderByDesc":          ordering(true),
	"limit": {2, func(q *Query, method string, args []interface{}) error {
		count, err := intArg(method, args, 0)
		if err != nil {
			return err
		}
		offset, err := intArg(method, args, 1)
		if err != nil {
			return err
		}
		return q.setLimit(method, count, offset)
	}},
	"setSuggestIndex": hint((*Query).SetSuggestIndex),
	"prefixKey":       hint((*Query).PrefixKey),
	"deviceId":        hint((*Query).DeviceID),
	"getSqlLike": {0, func(*Query, string, []interface{}) error {
		return nil
	}},
}

// Call invokes a builder method by name with untyped arguments, the way a
// script binding or a JSON call list does. Arity and argument types are
// checked before anything changes; a failure is returned as an
// *InvalidArgumentError and is not recorded for Err. Call returns the
// rendered string for "getSqlLike" and the query itself otherwise.
func (q *Query) Call(method string, args ...interface{}) (interface{}, error) {
	b, ok := bindings[method]
	if !ok {
		return nil, invalidArg(method, "unknown method")
	}
	if len(args) != b.arity {
		return nil, invalidArg(method, "expected %d argument(s), got %d", b.arity, len(args))
	}
	if err := b.apply(q, method, args); err != nil {
		return nil, err
	}
	if method == "getSqlLike" {
		return q.SQLLike(), nil
	}
	return q, nil
}

func comparison(kind clauseKind) binding {
	return binding{2, func(q *Query, method string, args []interface{}) error {
		field, err := stringArg(method, args, 0)
		if err != nil {
			return err
		}
		v, ok := toValue(args[1])
		if !ok {
			return invalidArg(method, "argument 2 must be a number, string or boolean, got %T", args[1])
		}
		return q.compare(method, kind, field, v)
	}}
}

func nullCheck(kind clauseKind) binding {
	return binding{1, func(q *Query, method string, args []interface{}) error {
		field, err := stringArg(method, args, 0)
		if err != nil {
			return err
		}
		return q.nullCheck(method, kind, field)
	}}
}

func pattern(kind clauseKind) binding {
	return binding{2, func(q *Query, method string, args []interface{}) error {
		field, err := stringArg(method, args, 0)
		if err != nil {
			return err
		}
		p, err := stringArg(method, args, 1)
		if err != nil {
			return err
		}
		return q.like(method, kind, field, p)
	}}
}

func numberMembership(kind clauseKind) binding {
	return binding{2, func(q *Query, method string, args []interface{}) error {
		field, err := stringArg(method, args, 0)
		if err != nil {
			return err
		}
		list, ok := toNumberList(args[1])
		if !ok {
			return invalidArg(method, "argument 2 must be a non-empty array of numbers, got %T", args[1])
		}
		return q.inNumbers(method, kind, field, list)
	}}
}

func stringMembership(kind clauseKind) binding {
	return binding{2, func(q *Query, method string, args []interface{}) error {
		field, err := stringArg(method, args, 0)
		if err != nil {
			return err
		}
		list, ok := toStringList(args[1])
		if !ok {
			return invalidArg(method, "argument 2 must be a non-empty array of strings, got %T", args[1])
		}
		return q.inStrings(method, kind, field, list)
	}}
}

func marker(fn func(*Query) *Query) binding {
	return binding{0, func(q *Query, _ string, _ []interface{}) error {
		fn(q)
		return nil
	}}
}

func ordering(desc bool) binding {
	return binding{1, func(q *Query, method string, args []interface{}) error {
		field, err := stringArg(method, args, 0)
		if err != nil {
			return err
		}
		return q.orderBy(method, field, desc)
	}}
}

func hint(fn func(*Query, string) *Query) binding {
	return binding{1, func(q *Query, method string, args []interface{}) error {
		s, err := stringArg(method, args, 0)
		if err != nil {
			return err
		}
		fn(q, s)
		return nil
	}}
}

func stringArg(method string, args []interface{}, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", invalidArg(method, "argument %d must be a string, got %T", i+1, args[i])
	}
	return s, nil
}

func intArg(method string, args []interface{}, i int) (int, error) {
	f, ok := toFloat(args[i])
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalidArg(method, "argument %d must be a finite number, got %v", i+1, args[i])
	}
	if f != math.Trunc(f) {
		return 0, invalidArg(method, "argument %d must be an integer, got %v", i+1, args[i])
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, invalidArg(method, "argument %d is out of range, got %v", i+1, args[i])
	}
	return int(f), nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toValue(v interface{}) (Value, bool) {
	switch x := v.(type) {
	case Value:
		return x, x != nil
	case string:
		return StringValue(x), true
	case bool:
		return BoolValue(x), true
	}
	if f, ok := toFloat(v); ok {
		return NumberValue(f), true
	}
	return nil, false
}

func toNumberList(v interface{}) (NumberList, bool) {
	switch x := v.(type) {
	case NumberList:
		return x, true
	case []int8:
		return Int8s(x), true
	case []uint8:
		return Uint8s(x), true
	case []int16:
		return Int16s(x), true
	case []uint16:
		return Uint16s(x), true
	case []int32:
		return Int32s(x), true
	case []uint32:
		return Uint32s(x), true
	case []float32:
		return Float32s(x), true
	case []float64:
		return Float64s(x), true
	case []int64:
		return BigInt64s(x), true
	case []uint64:
		return BigUint64s(x), true
	case []int:
		return listOf(KindPlain, x), true
	case []interface{}:
		out := make([]float64, 0, len(x))
		for _, elem := range x {
			f, ok := toFloat(elem)
			if !ok {
				return NumberList{}, false
			}
			out = append(out, f)
		}
		return Numbers(out...), true
	}
	return NumberList{}, false
}

func toStringList(v interface{}) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, elem := range x {
			s, ok := elem.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// CallSpec is one entry of a Program: a method name and its arguments.
type CallSpec struct {
	Method string
	Args   []interface{}
}

// UnmarshalJSON decodes ["method", arg1, arg2, ...].
func (c *CallSpec) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("call must be a JSON array: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("call must start with a method name")
	}
	method, ok := raw[0].(string)
	if !ok {
		return fmt.Errorf("call must start with a method name, got %T", raw[0])
	}
	c.Method = method
	c.Args = raw[1:]
	return nil
}

// MarshalJSON encodes the call in the same array form.
func (c CallSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(append([]interface{}{c.Method}, c.Args...))
}

// Program is an ordered list of builder calls, typically decoded from JSON:
//
//	[["equalTo", "$.age", 30], ["and"], ["like", "$.name", "A%"]]
type Program []CallSpec

// Build applies every call to a fresh query and stops at the first failure.
func (p Program) Build() (*Query, error) {
	q := New()
	for i, c := range p {
		if _, err := q.Call(c.Method, c.Args...); err != nil {
			return nil, fmt.Errorf("call %d: %w", i+1, err)
		}
	}
	return q, nil
}
