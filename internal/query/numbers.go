package query

// NumberKind is the element representation a numeric membership list was built from.
type NumberKind int

const (
	KindPlain NumberKind = iota // untyped array of numbers
	KindInt8
	KindUint8
	KindUint8Clamped
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindFloat32
	KindFloat64
	KindBigInt64
	KindBigUint64
)

var kindNames = map[NumberKind]string{
	KindPlain:        "Array",
	KindInt8:         "Int8Array",
	KindUint8:        "Uint8Array",
	KindUint8Clamped: "Uint8ClampedArray",
	KindInt16:        "Int16Array",
	KindUint16:       "Uint16Array",
	KindInt32:        "Int32Array",
	KindUint32:       "Uint32Array",
	KindFloat32:      "Float32Array",
	KindFloat64:      "Float64Array",
	KindBigInt64:     "BigInt64Array",
	KindBigUint64:    "BigUint64Array",
}

func (k NumberKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// typeTag returns the rendering tag for the kind. 64-bit integer kinds have none.
func (k NumberKind) typeTag() (string, bool) {
	switch k {
	case KindInt8, KindUint8, KindUint8Clamped, KindInt16, KindUint16, KindInt32:
		return typeInteger, true
	case KindUint32:
		return typeLong, true
	case KindFloat32, KindFloat64, KindPlain:
		return typeDouble, true
	}
	return "", false
}

// NumberList is the operand of InNumber and NotInNumber.
type NumberList struct {
	Kind   NumberKind
	values []float64
}

type numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

func listOf[T numeric](kind NumberKind, in []T) NumberList {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return NumberList{Kind: kind, values: out}
}

// Constructors for each accepted element representation. BigInt64s and
// BigUint64s exist so callers can name those kinds; the builder rejects them.

func Numbers(v ...float64) NumberList { return listOf(KindPlain, v) }
func Int8s(v []int8) NumberList { return listOf(KindInt8, v) }
func Uint8s(v []uint8) NumberList { return listOf(KindUint8, v) }
func Uint8Clamped(v []uint8) NumberList { return listOf(KindUint8Clamped, v) }
func Int16s(v []int16) NumberList { return listOf(KindInt16, v) }
func Uint16s(v []uint16) NumberList { return listOf(KindUint16, v) }
func Int32s(v []int32) NumberList { return listOf(KindInt32, v) }
func Uint32s(v []uint32) NumberList { return listOf(KindUint32, v) }
func Float32s(v []float32) NumberList { return listOf(KindFloat32, v) }
func Float64s(v []float64) NumberList { return listOf(KindFloat64, v) }
func BigInt64s(v []int64) NumberList { return listOf(KindBigInt64, v) }
func BigUint64s(v []uint64) NumberList { return listOf(KindBigUint64, v) }

// Len returns the number of elements.
func (l NumberList) Len() int { return len(l.values) }

// Values returns a copy of the elements coerced to float64.
func (l NumberList) Values() []float64 {
	return append([]float64(nil), l.values...)
}
