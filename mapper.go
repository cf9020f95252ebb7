package vecstore

import (
	"bytes"
	"fmt"
	"reflect"
	"sync"
)

// EncodeRecord flattens a record into its key, data field values, and vector
// according to def. The record is a struct (or pointer to one) carrying
// vstore tags, or a map[string]any keyed by definition field names.
//
// A missing or empty key is returned as "" so the collection can generate
// one. A record without a vector yields a nil vector.
func EncodeRecord(def *Definition, record any) (string, map[string]any, []float32, error) {
	if record == nil {
		return "", nil, nil, fmt.Errorf("record must not be nil")
	}

	if m, ok := record.(map[string]any); ok {
		return encodeMap(def, m)
	}

	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", nil, nil, fmt.Errorf("record must not be nil")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", nil, nil, fmt.Errorf("unsupported record type %T", record)
	}

	idx := structIndex(v.Type())

	var (
		key    string
		vector []float32
	)
	fields := make(map[string]any)

	for _, f := range def.Fields {
		path, ok := idx[f.Name]
		if !ok {
			if f.Kind == DataField {
				return "", nil, nil, fmt.Errorf("record type %s has no field %q", v.Type(), f.Name)
			}
			continue
		}
		fv := v.FieldByIndex(path)

		switch f.Kind {
		case KeyField:
			if fv.Kind() != reflect.String {
				return "", nil, nil, fmt.Errorf("key field %q must be a string, got %s", f.Name, fv.Type())
			}
			key = fv.String()
		case VectorField:
			vec, ok := fv.Interface().([]float32)
			if !ok {
				return "", nil, nil, fmt.Errorf("vector field %q must be []float32", f.Name)
			}
			if len(vec) > 0 && f.Dimensions > 0 && len(vec) != f.Dimensions {
				return "", nil, nil, &ErrDimensionMismatch{Expected: f.Dimensions, Actual: len(vec)}
			}
			vector = vec
		case DataField:
			val, err := canonicalValue(f, fv)
			if err != nil {
				return "", nil, nil, err
			}
			fields[f.Name] = val
		}
	}

	return key, fields, vector, nil
}

// DecodeRecord reassembles a stored record into dest, a pointer to a tagged
// struct or a *map[string]any.
func DecodeRecord(def *Definition, key string, fields map[string]any, vector []float32, dest any) error {
	if dest == nil {
		return fmt.Errorf("dest must not be nil")
	}

	if m, ok := dest.(*map[string]any); ok {
		return decodeMap(def, key, fields, vector, m)
	}

	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("dest must be a non-nil pointer, got %T", dest)
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("unsupported dest type %T", dest)
	}

	idx := structIndex(v.Type())

	for _, f := range def.Fields {
		path, ok := idx[f.Name]
		if !ok {
			continue
		}
		fv := v.FieldByIndex(path)

		switch f.Kind {
		case KeyField:
			if fv.Kind() != reflect.String {
				return fmt.Errorf("key field %q must be a string, got %s", f.Name, fv.Type())
			}
			fv.SetString(key)
		case VectorField:
			if fv.Type() != reflect.TypeOf([]float32(nil)) {
				return fmt.Errorf("vector field %q must be []float32, got %s", f.Name, fv.Type())
			}
			fv.Set(reflect.ValueOf(vector))
		case DataField:
			if err := assignValue(fv, fields[f.Name]); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
	}

	return nil
}

func encodeMap(def *Definition, m map[string]any) (string, map[string]any, []float32, error) {
	var (
		key    string
		vector []float32
	)
	fields := make(map[string]any)

	for _, f := range def.Fields {
		val, ok := m[f.Name]
		if !ok || val == nil {
			continue
		}

		switch f.Kind {
		case KeyField:
			s, ok := val.(string)
			if !ok {
				return "", nil, nil, fmt.Errorf("key field %q must be a string, got %T", f.Name, val)
			}
			key = s
		case VectorField:
			vec, ok := val.([]float32)
			if !ok {
				return "", nil, nil, fmt.Errorf("vector field %q must be []float32, got %T", f.Name, val)
			}
			if len(vec) > 0 && f.Dimensions > 0 && len(vec) != f.Dimensions {
				return "", nil, nil, &ErrDimensionMismatch{Expected: f.Dimensions, Actual: len(vec)}
			}
			vector = vec
		case DataField:
			canonical, err := canonicalAny(f, val)
			if err != nil {
				return "", nil, nil, err
			}
			fields[f.Name] = canonical
		}
	}

	return key, fields, vector, nil
}

func decodeMap(def *Definition, key string, fields map[string]any, vector []float32, dest *map[string]any) error {
	if *dest == nil {
		*dest = make(map[string]any)
	}
	for _, f := range def.Fields {
		switch f.Kind {
		case KeyField:
			(*dest)[f.Name] = key
		case VectorField:
			(*dest)[f.Name] = vector
		case DataField:
			if val, ok := fields[f.Name]; ok {
				(*dest)[f.Name] = val
			}
		}
	}
	return nil
}

// structIndexCache maps struct types to their field lookup tables.
var structIndexCache sync.Map // reflect.Type -> map[string][]int

// structIndex returns the definition-name -> struct field index table for t.
// Tagged fields use their tag name, untagged exported fields their Go name,
// so explicit definitions work against plain structs too.
func structIndex(t reflect.Type) map[string][]int {
	if cached, ok := structIndexCache.Load(t); ok {
		return cached.(map[string][]int)
	}

	idx := make(map[string][]int)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		tag := sf.Tag.Get("vstore")
		if tag == "-" {
			continue
		}
		name := sf.Name
		if p, err := parseTag(tag); err == nil && p != nil && p.name != "" {
			name = p.name
		}
		idx[name] = sf.Index
	}

	structIndexCache.Store(t, idx)

	return idx
}

func canonicalValue(f Field, v reflect.Value) (any, error) {
	switch f.Type {
	case TypeString:
		if v.Kind() == reflect.String {
			return v.String(), nil
		}
	case TypeInt:
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return v.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
			return int64(v.Uint()), nil
		}
	case TypeFloat:
		switch v.Kind() {
		case reflect.Float32, reflect.Float64:
			return v.Float(), nil
		}
	case TypeBool:
		if v.Kind() == reflect.Bool {
			return v.Bool(), nil
		}
	case TypeBytes:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("field %q: expected %s, got %s", f.Name, f.Type, v.Type())
}

// CanonicalFieldValue converts val to the canonical storage type of f:
// string, int64, float64, bool or []byte. Backends that filter in Go use it
// to normalize user-supplied filter values before comparing them against
// stored fields.
func CanonicalFieldValue(f Field, val any) (any, error) {
	return canonicalAny(f, val)
}

// FieldValueEqual reports whether a stored field value equals a canonical
// filter value. Numbers compare across int64 and float64 because codecs
// widen stored integers on a round trip.
func FieldValueEqual(stored, want any) bool {
	switch w := want.(type) {
	case []byte:
		s, ok := stored.([]byte)
		return ok && bytes.Equal(s, w)
	case int64:
		n, ok := asFloat(stored)
		return ok && n == float64(w)
	case float64:
		n, ok := asFloat(stored)
		return ok && n == w
	case string:
		s, ok := stored.(string)
		return ok && s == w
	case bool:
		b, ok := stored.(bool)
		return ok && b == w
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func canonicalAny(f Field, val any) (any, error) {
	switch f.Type {
	case TypeString:
		if s, ok := val.(string); ok {
			return s, nil
		}
	case TypeInt:
		switch n := val.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		}
	case TypeFloat:
		switch n := val.(type) {
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		}
	case TypeBool:
		if b, ok := val.(bool); ok {
			return b, nil
		}
	case TypeBytes:
		if b, ok := val.([]byte); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("field %q: expected %s, got %T", f.Name, f.Type, val)
}

// assignValue writes a stored value into a struct field, converting between
// the canonical storage types (string, int64, float64, bool, []byte) and the
// field's declared Go type.
func assignValue(dst reflect.Value, val any) error {
	if val == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	v := reflect.ValueOf(val)
	if v.Type().AssignableTo(dst.Type()) {
		dst.Set(v)
		return nil
	}

	// Integer-to-string via reflect would be a rune conversion, never wanted.
	if dst.Kind() == reflect.String && v.Kind() != reflect.String && v.Kind() != reflect.Slice {
		return fmt.Errorf("cannot assign %T to %s", val, dst.Type())
	}

	if v.Type().ConvertibleTo(dst.Type()) {
		dst.Set(v.Convert(dst.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", val, dst.Type())
}
