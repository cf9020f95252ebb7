package vecstore

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/vecstore/distance"
)

// FieldKind classifies a record field.
type FieldKind int

const (
	// KeyField is the record's unique key within its collection. String typed.
	KeyField FieldKind = iota
	// DataField is a stored payload field.
	DataField
	// VectorField holds the record's embedding.
	VectorField
)

func (k FieldKind) String() string {
	switch k {
	case KeyField:
		return "key"
	case DataField:
		return "data"
	case VectorField:
		return "vector"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// FieldType is the storage type of a data field.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeBytes
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeBytes:
		return "bytes"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Field describes a single record field.
type Field struct {
	Name string
	Kind FieldKind

	// Type is the storage type. Data fields only.
	Type FieldType

	// Dimensions is the vector length. Vector fields only, must be positive.
	Dimensions int

	// Metric is the distance metric used when scoring against this field.
	// Vector fields only.
	Metric distance.Metric

	// Indexed requests an equality-filter index on backends that support
	// one. Data fields only.
	Indexed bool
}

// Definition describes the schema of the records stored in one collection:
// exactly one key field, any number of data fields, and at most one vector
// field.
type Definition struct {
	Fields []Field
}

// KeyField returns the definition's key field.
func (d *Definition) KeyField() (Field, bool) {
	for _, f := range d.Fields {
		if f.Kind == KeyField {
			return f, true
		}
	}
	return Field{}, false
}

// VectorField returns the definition's vector field.
func (d *Definition) VectorField() (Field, bool) {
	for _, f := range d.Fields {
		if f.Kind == VectorField {
			return f, true
		}
	}
	return Field{}, false
}

// DataFields returns the definition's data fields in declaration order.
func (d *Definition) DataFields() []Field {
	var fields []Field
	for _, f := range d.Fields {
		if f.Kind == DataField {
			fields = append(fields, f)
		}
	}
	return fields
}

// Field returns the named field.
func (d *Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks the structural rules of the definition.
func (d *Definition) Validate() error {
	if d == nil || len(d.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidDefinition)
	}

	seen := make(map[string]struct{}, len(d.Fields))
	keys, vectors := 0, 0

	for _, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: field with empty name", ErrInvalidDefinition)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidDefinition, f.Name)
		}
		seen[f.Name] = struct{}{}

		switch f.Kind {
		case KeyField:
			keys++
		case VectorField:
			vectors++
			if f.Dimensions <= 0 {
				return fmt.Errorf("%w: vector field %q needs positive dimensions", ErrInvalidDefinition, f.Name)
			}
		case DataField:
		default:
			return fmt.Errorf("%w: field %q has unknown kind", ErrInvalidDefinition, f.Name)
		}
	}

	if keys != 1 {
		return fmt.Errorf("%w: exactly one key field required, found %d", ErrInvalidDefinition, keys)
	}
	if vectors > 1 {
		return fmt.Errorf("%w: at most one vector field allowed, found %d", ErrInvalidDefinition, vectors)
	}

	return nil
}

// definitionCache memoizes tag inference per struct type.
var definitionCache sync.Map // reflect.Type -> *Definition

// DefinitionFromType infers a Definition from the vstore struct tags of the
// given record prototype (a struct value or pointer to one).
//
// Tag grammar:
//
//	`vstore:"key"`
//	`vstore:"data"`
//	`vstore:"data,indexed"`
//	`vstore:"vector,dim=128"`
//	`vstore:"vector,dim=128,metric=l2"`
//	`vstore:"-"`
//
// Fields may rename themselves with name=, e.g. `vstore:"key,name=id"`.
// Untagged fields are not part of the definition.
func DefinitionFromType(recordType any) (*Definition, error) {
	if recordType == nil {
		return nil, ErrMissingRecordType
	}

	t := reflect.TypeOf(recordType)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidDefinition, t)
	}

	if cached, ok := definitionCache.Load(t); ok {
		return cached.(*Definition), nil
	}

	def, err := inferDefinition(t)
	if err != nil {
		return nil, err
	}

	definitionCache.Store(t, def)

	return def, nil
}

// ResolveDefinition returns the effective definition for a collection: an
// explicit definition wins unchanged, otherwise it is inferred from the
// record type's tags.
func ResolveDefinition(recordType any, def *Definition) (*Definition, error) {
	if def != nil {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		return def, nil
	}
	return DefinitionFromType(recordType)
}

func inferDefinition(t reflect.Type) (*Definition, error) {
	def := &Definition{}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}

		tag, err := parseTag(sf.Tag.Get("vstore"))
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrInvalidDefinition, sf.Name, err)
		}
		if tag == nil {
			continue
		}

		field := Field{
			Name: sf.Name,
			Kind: tag.kind,
		}
		if tag.name != "" {
			field.Name = tag.name
		}

		switch tag.kind {
		case KeyField:
			if sf.Type.Kind() != reflect.String {
				return nil, fmt.Errorf("%w: key field %s must be a string", ErrInvalidDefinition, sf.Name)
			}
		case VectorField:
			if sf.Type != reflect.TypeOf([]float32(nil)) {
				return nil, fmt.Errorf("%w: vector field %s must be []float32", ErrInvalidDefinition, sf.Name)
			}
			field.Dimensions = tag.dim
			field.Metric = tag.metric
		case DataField:
			ft, err := fieldTypeOf(sf.Type)
			if err != nil {
				return nil, fmt.Errorf("%w: field %s: %v", ErrInvalidDefinition, sf.Name, err)
			}
			field.Type = ft
			field.Indexed = tag.indexed
		}

		def.Fields = append(def.Fields, field)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return def, nil
}

func fieldTypeOf(t reflect.Type) (FieldType, error) {
	switch t.Kind() {
	case reflect.String:
		return TypeString, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return TypeInt, nil
	case reflect.Float32, reflect.Float64:
		return TypeFloat, nil
	case reflect.Bool:
		return TypeBool, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return TypeBytes, nil
		}
	}
	return 0, fmt.Errorf("unsupported data field type %s", t)
}

type parsedTag struct {
	kind    FieldKind
	name    string
	dim     int
	metric  distance.Metric
	indexed bool
}

// parseTag parses a vstore tag. Returns nil for untagged or skipped fields.
func parseTag(tag string) (*parsedTag, error) {
	if tag == "" || tag == "-" {
		return nil, nil
	}

	parts := strings.Split(tag, ",")

	p := &parsedTag{metric: distance.MetricCosine}
	switch parts[0] {
	case "key":
		p.kind = KeyField
	case "data":
		p.kind = DataField
	case "vector":
		p.kind = VectorField
	default:
		return nil, fmt.Errorf("unknown field kind %q", parts[0])
	}

	for _, part := range parts[1:] {
		switch {
		case part == "indexed":
			p.indexed = true
		case strings.HasPrefix(part, "name="):
			p.name = strings.TrimPrefix(part, "name=")
		case strings.HasPrefix(part, "dim="):
			dim, err := strconv.Atoi(strings.TrimPrefix(part, "dim="))
			if err != nil {
				return nil, fmt.Errorf("invalid dim %q", part)
			}
			p.dim = dim
		case strings.HasPrefix(part, "metric="):
			m, err := distance.ParseMetric(strings.TrimPrefix(part, "metric="))
			if err != nil {
				return nil, err
			}
			p.metric = m
		default:
			return nil, fmt.Errorf("unknown tag option %q", part)
		}
	}

	return p, nil
}
