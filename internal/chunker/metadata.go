package chunker

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Coerce returns a copy of md whose values are all scalars. Primitive values
// keep their value and become the predeclared type of their kind; slices, arrays, maps and structs become their JSON
// encoding; anything else is stringified.
func Coerce(md map[string]any) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = CoerceValue(v)
	}
	return out
}

// scalarTypes maps each scalar kind to its predeclared type, so a named
// value such as element.Kind comes back as a plain string.
var scalarTypes = map[reflect.Kind]reflect.Type{
	reflect.String:  reflect.TypeFor[string](),
	reflect.Bool:    reflect.TypeFor[bool](),
	reflect.Int:     reflect.TypeFor[int](),
	reflect.Int8:    reflect.TypeFor[int8](),
	reflect.Int16:   reflect.TypeFor[int16](),
	reflect.Int32:   reflect.TypeFor[int32](),
	reflect.Int64:   reflect.TypeFor[int64](),
	reflect.Uint:    reflect.TypeFor[uint](),
	reflect.Uint8:   reflect.TypeFor[uint8](),
	reflect.Uint16:  reflect.TypeFor[uint16](),
	reflect.Uint32:  reflect.TypeFor[uint32](),
	reflect.Uint64:  reflect.TypeFor[uint64](),
	reflect.Float32: reflect.TypeFor[float32](),
	reflect.Float64: reflect.TypeFor[float64](),
}

// CoerceValue flattens a single metadata value.
func CoerceValue(v any) any {
	if v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	if t, ok := scalarTypes[rv.Kind()]; ok {
		return rv.Convert(t).Interface()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return ""
		}
		return CoerceValue(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

// IsScalar reports whether v may be stored as chunk metadata as-is.
func IsScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
