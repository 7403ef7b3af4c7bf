package transaction

import (
	"fmt"
	"sort"
)

// ValueKind identifies the variant held by a Value.
type ValueKind int

const (
	// KindInvalid is the zero Value.
	KindInvalid ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// String returns the variant name.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is a side-data value. It holds exactly one of string, number (float64),
// bool, list of Value or map of Value.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

// String creates a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number creates a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool creates a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List creates a list Value.
func List(items ...Value) Value {
	l := make([]Value, len(items))
	copy(l, items)
	return Value{kind: KindList, list: l}
}

// Map creates a map Value.
func Map(m map[string]Value) Value {
	c := make(map[string]Value, len(m))
	for k, v := range m {
		c[k] = v
	}
	return Value{kind: KindMap, m: c}
}

// Strings creates a list Value of strings.
func Strings(items ...string) Value {
	l := make([]Value, len(items))
	for i, s := range items {
		l[i] = String(s)
	}
	return Value{kind: KindList, list: l}
}

// Kind returns the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// Str returns the string held by v.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the number held by v.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the bool held by v.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Items returns the elements of a list Value.
func (v Value) Items() ([]Value, bool) { return v.list, v.kind == KindList }

// Fields returns the entries of a map Value.
func (v Value) Fields() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Interface converts v to plain Go data: string, float64, bool, []any or
// map[string]any. The zero Value converts to nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Interface()
		}
		return out
	default:
		return nil
	}
}

// GoString renders v for debugging.
func (v Value) GoString() string {
	return fmt.Sprintf("transaction.Value(%s:%v)", v.kind, v.Interface())
}

func (v Value) clone() Value {
	switch v.kind {
	case KindList:
		return List(v.list...)
	case KindMap:
		return Map(v.m)
	default:
		return v
	}
}

// FromInterface converts plain Go data into a Value. Supported inputs are
// strings, bools, Go numeric types, []any, []string, map[string]any,
// map[string]string and Value itself.
func FromInterface(x any) (Value, error) {
	switch val := x.(type) {
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case []string:
		return Strings(val...), nil
	case []any:
		items := make([]Value, len(val))
		for i, e := range val {
			item, err := FromInterface(e)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = item
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		m := make(map[string]Value, len(val))
		for k, e := range val {
			item, err := FromInterface(e)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m[k] = item
		}
		return Value{kind: KindMap, m: m}, nil
	case map[string]string:
		m := make(map[string]Value, len(val))
		for k, e := range val {
			m[k] = String(e)
		}
		return Value{kind: KindMap, m: m}, nil
	}
	if n, ok := ToFloat64(x); ok {
		return Number(n), nil
	}
	return Value{}, fmt.Errorf("unsupported side-data value of type %T", x)
}

// SideData is the typed, string-keyed side channel of a Transaction.
type SideData map[string]Value

// Get returns the value stored under key.
func (d SideData) Get(key string) (Value, bool) {
	v, ok := d[key]
	return v, ok
}

// Set stores a value under key.
func (d SideData) Set(key string, v Value) {
	d[key] = v
}

// Append appends v to the list stored under key, creating the list if the
// key is unset. A non-list value under key is replaced by a new list.
func (d SideData) Append(key string, v Value) {
	cur, ok := d[key]
	if !ok || cur.kind != KindList {
		d[key] = List(v)
		return
	}
	items := make([]Value, len(cur.list), len(cur.list)+1)
	copy(items, cur.list)
	d[key] = Value{kind: KindList, list: append(items, v)}
}

// Keys returns the keys in sorted order.
func (d SideData) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Plain normalises x for comparison: Values become plain Go data, every Go
// numeric type becomes float64, and typed string slices and maps become
// []any and map[string]any. Containers are copied.
func Plain(x any) any {
	switch val := x.(type) {
	case nil:
		return nil
	case Value:
		return val.Interface()
	case AbsentValue:
		return val
	case string, bool:
		return val
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Plain(e)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = e
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = Plain(e)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = e
		}
		return out
	}
	if n, ok := ToFloat64(x); ok {
		return n
	}
	return x
}

// ToFloat64 converts any Go numeric type to float64.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}
