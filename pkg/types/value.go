// Package types provides shared types for the authorization engine
package types

// Value is the tagged sum used for principal/resource attribute bags and
// for literal values in ExportConstants definitions. It mirrors the
// JSON-shaped data the source policies carry: null, bool, number, string,
// list, or map. Most of the engine works with the underlying Go
// interface{} (map[string]interface{}) directly; Value exists for callers
// that want a typed walk over a decoded attribute bag.
type Value struct {
	Null bool
	Bool *bool
	Num  *float64
	Str  *string
	List []Value
	Map  map[string]Value
}

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool {
	return v.Null
}

// ToInterface converts a Value back into a plain interface{} of the kind
// CEL and JSON encoding expect.
func (v Value) ToInterface() interface{} {
	switch {
	case v.Null:
		return nil
	case v.Bool != nil:
		return *v.Bool
	case v.Num != nil:
		return *v.Num
	case v.Str != nil:
		return *v.Str
	case v.List != nil:
		out := make([]interface{}, len(v.List))
		for i, e := range v.List {
			out[i] = e.ToInterface()
		}
		return out
	case v.Map != nil:
		out := make(map[string]interface{}, len(v.Map))
		for k, e := range v.Map {
			out[k] = e.ToInterface()
		}
		return out
	default:
		return nil
	}
}

// ValueFromInterface builds a Value from a decoded YAML/JSON scalar,
// list, or map. Unrecognized concrete types (e.g. already-typed structs)
// are treated as null, since only JSON-shaped data is expected here.
func ValueFromInterface(v interface{}) Value {
	switch val := v.(type) {
	case nil:
		return Value{Null: true}
	case bool:
		b := val
		return Value{Bool: &b}
	case float64:
		n := val
		return Value{Num: &n}
	case int:
		n := float64(val)
		return Value{Num: &n}
	case int64:
		n := float64(val)
		return Value{Num: &n}
	case uint64:
		n := float64(val)
		return Value{Num: &n}
	case string:
		s := val
		return Value{Str: &s}
	case []interface{}:
		list := make([]Value, len(val))
		for i, e := range val {
			list[i] = ValueFromInterface(e)
		}
		return Value{List: list}
	case map[string]interface{}:
		m := make(map[string]Value, len(val))
		for k, e := range val {
			m[k] = ValueFromInterface(e)
		}
		return Value{Map: m}
	default:
		return Value{Null: true}
	}
}
