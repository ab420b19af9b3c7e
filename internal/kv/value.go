package kv

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/skshohagmiah/kvquery/internal/query"
)

// ValueType tags the payload of a stored value.
type ValueType uint8

const (
	TypeString ValueType = iota
	TypeInteger
	TypeFloat
	TypeByteArray
	TypeBoolean
	TypeDouble
)

var valueTypeNames = [...]string{"STRING", "INTEGER", "FLOAT", "BYTE_ARRAY", "BOOLEAN", "DOUBLE"}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("ValueType(%d)", uint8(t))
}

// ParseValueType accepts the upper-case names used on the wire.
func ParseValueType(s string) (ValueType, error) {
	for i, name := range valueTypeNames {
		if name == s {
			return ValueType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown value type %q", s)
}

// Value is a typed stored value. The zero Value is the empty string.
type Value struct {
	Type ValueType
	raw  []byte
}

func StringValue(s string) Value { return Value{Type: TypeString, raw: []byte(s)} }

func IntegerValue(n int64) Value {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return Value{Type: TypeInteger, raw: buf}
}

func FloatValue(f float32) Value {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(f))
	return Value{Type: TypeFloat, raw: buf}
}

func DoubleValue(f float64) Value {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(f))
	return Value{Type: TypeDouble, raw: buf}
}

func BytesValue(b []byte) Value {
	return Value{Type: TypeByteArray, raw: append([]byte(nil), b...)}
}

func BoolValue(b bool) Value {
	if b {
		return Value{Type: TypeBoolean, raw: []byte{1}}
	}
	return Value{Type: TypeBoolean, raw: []byte{0}}
}

// Size is the payload length checked against MaxValueLength.
func (v Value) Size() int { return len(v.raw) }

func (v Value) Str() string      { return string(v.raw) }
func (v Value) Bytes() []byte    { return append([]byte(nil), v.raw...) }
func (v Value) Bool() bool       { return len(v.raw) == 1 && v.raw[0] == 1 }
func (v Value) Int() int64       { return int64(binary.BigEndian.Uint64(v.raw)) }
func (v Value) Float32() float32 { return math.Float32frombits(binary.BigEndian.Uint32(v.raw)) }
func (v Value) Float64() float64 { return math.Float64frombits(binary.BigEndian.Uint64(v.raw)) }

// Native returns the value as string, int64, float32, float64, []byte or bool.
func (v Value) Native() interface{} {
	switch v.Type {
	case TypeInteger:
		return v.Int()
	case TypeFloat:
		return v.Float32()
	case TypeDouble:
		return v.Float64()
	case TypeByteArray:
		return v.Bytes()
	case TypeBoolean:
		return v.Bool()
	}
	return v.Str()
}

// Equal reports whether both values have the same type and payload.
func (v Value) Equal(o Value) bool {
	return v.Type == o.Type && string(v.raw) == string(o.raw)
}

func (v Value) encode() []byte {
	buf := make([]byte, 1+len(v.raw))
	buf[0] = byte(v.Type)
	copy(buf[1:], v.raw)
	return buf
}

func decodeValue(b []byte) (Value, error) {
	if len(b) == 0 {
		return Value{}, fmt.Errorf("%w: empty record", ErrCorruptValue)
	}
	v := Value{Type: ValueType(b[0]), raw: b[1:]}
	want := -1
	switch v.Type {
	case TypeString, TypeByteArray:
	case TypeInteger, TypeDouble:
		want = 8
	case TypeFloat:
		want = 4
	case TypeBoolean:
		want = 1
	default:
		return Value{}, fmt.Errorf("%w: type tag %d", ErrCorruptValue, b[0])
	}
	if want >= 0 && len(v.raw) != want {
		return Value{}, fmt.Errorf("%w: %s payload of %d bytes", ErrCorruptValue, v.Type, len(v.raw))
	}
	return v, nil
}

// ValueField names the single field non-document values expose to queries.
const ValueField = "$value"

// document is what query clauses see. A STRING holding a JSON object is
// queried by its fields; everything else is {"$value": v}.
func (v Value) document() query.Document {
	switch v.Type {
	case TypeString:
		raw := v.raw
		if len(raw) > 0 && raw[0] == '{' {
			var doc map[string]interface{}
			if err := json.Unmarshal(raw, &doc); err == nil {
				return doc
			}
		}
		return query.Document{ValueField: v.Str()}
	case TypeInteger:
		return query.Document{ValueField: float64(v.Int())}
	case TypeFloat:
		return query.Document{ValueField: float64(v.Float32())}
	case TypeDouble:
		return query.Document{ValueField: v.Float64()}
	case TypeBoolean:
		return query.Document{ValueField: v.Bool()}
	}
	return query.Document{}
}

type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON renders {"type":"STRING","value":...}. Byte arrays are base64.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload interface{} = v.Native()
	if v.Type == TypeDouble || v.Type == TypeFloat {
		f := v.Float64Any()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			payload = fmt.Sprint(f)
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Type: v.Type.String(), Value: raw})
}

// Float64Any widens INTEGER, FLOAT and DOUBLE payloads to float64.
func (v Value) Float64Any() float64 {
	switch v.Type {
	case TypeInteger:
		return float64(v.Int())
	case TypeFloat:
		return float64(v.Float32())
	case TypeDouble:
		return v.Float64()
	}
	return math.NaN()
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type == "" {
		w.Type = TypeString.String()
	}
	t, err := ParseValueType(w.Type)
	if err != nil {
		return err
	}
	if len(w.Value) == 0 {
		return fmt.Errorf("missing value for %s", t)
	}

	switch t {
	case TypeString:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return fmt.Errorf("STRING value: %w", err)
		}
		*v = StringValue(s)
	case TypeInteger:
		var n int64
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return fmt.Errorf("INTEGER value: %w", err)
		}
		*v = IntegerValue(n)
	case TypeFloat, TypeDouble:
		f, err := unmarshalFloat(w.Value)
		if err != nil {
			return fmt.Errorf("%s value: %w", t, err)
		}
		if t == TypeFloat {
			*v = FloatValue(float32(f))
		} else {
			*v = DoubleValue(f)
		}
	case TypeByteArray:
		var b []byte
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return fmt.Errorf("BYTE_ARRAY value: %w", err)
		}
		*v = BytesValue(b)
	case TypeBoolean:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return fmt.Errorf("BOOLEAN value: %w", err)
		}
		*v = BoolValue(b)
	}
	return nil
}

// unmarshalFloat also accepts "NaN", "+Inf" and "-Inf" as strings.
func unmarshalFloat(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "+Inf", "Inf":
		return math.Inf(1), nil
	case "-Inf":
		return math.Inf(-1), nil
	}
	return 0, fmt.Errorf("not a number: %q", s)
}
