package query

import (
	"math"
	"strconv"
)

// Value is a comparison operand. Only NumberValue, StringValue and BoolValue implement it.
type Value interface {
	typeTag() string
	token() string
}

// NumberValue is a numeric operand. NaN is a valid operand.
type NumberValue float64

// StringValue is a string operand.
type StringValue string

// BoolValue is a boolean operand.
type BoolValue bool

// Number wraps a float64 operand.
func Number(v float64) Value { return NumberValue(v) }

// String wraps a string operand.
func String(v string) Value { return StringValue(v) }

// Bool wraps a boolean operand.
func Bool(v bool) Value { return BoolValue(v) }

func (NumberValue) typeTag() string { return typeDouble }
func (StringValue) typeTag() string { return typeString }
func (BoolValue) typeTag() string { return typeBool }

func (v NumberValue) token() string { return formatNumber(float64(v)) }
func (v StringValue) token() string { return escape(string(v)) }
func (v BoolValue) token() string {
	if v {
		return valueTrue
	}
	return valueFalse
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func parseValue(tag, tok string) (Value, bool) {
	switch tag {
	case typeDouble, typeInteger, typeLong:
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, false
		}
		return NumberValue(f), true
	case typeString:
		return StringValue(unescape(tok)), true
	case typeBool:
		switch tok {
		case valueTrue:
			return BoolValue(true), true
		case valueFalse:
			return BoolValue(false), true
		}
	}
	return nil, false
}
