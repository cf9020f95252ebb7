package sqlstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"

	"github.com/hupe1980/vecstore"
)

// identifierPattern is deliberately strict: interpolated identifiers never
// need quoting and stay portable across engines.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateIdentifier reports whether name is safe to interpolate into SQL
// as a table or column name. Valid identifiers start with a letter or
// underscore, continue with letters, digits or underscores, and stay
// within 63 characters.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%q is not a valid sql identifier", name)
	}
	return nil
}

// validateFieldIdentifiers checks every field name in def against
// ValidateIdentifier. Field names become column names, so this runs once
// at collection construction.
func validateFieldIdentifiers(def *vecstore.Definition) error {
	for _, f := range def.Fields {
		if err := ValidateIdentifier(f.Name); err != nil {
			return fmt.Errorf("%w: field %v", vecstore.ErrInvalidDefinition, err)
		}
	}
	return nil
}

// columnNames returns def's column names in the row shape convention: key
// first, data fields in definition order, vector last.
func columnNames(def *vecstore.Definition) []string {
	cols := make([]string, 0, len(def.Fields))
	if key, ok := def.KeyField(); ok {
		cols = append(cols, key.Name)
	}
	for _, f := range def.DataFields() {
		cols = append(cols, f.Name)
	}
	if vec, ok := def.VectorField(); ok {
		cols = append(cols, vec.Name)
	}
	return cols
}

// EncodeVectorLE packs a vector into little-endian float32 bytes, the BLOB
// layout used by DefaultQueryProvider.
func EncodeVectorLE(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeVectorLE unpacks a little-endian float32 BLOB produced by
// EncodeVectorLE.
func DecodeVectorLE(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, nil
}
