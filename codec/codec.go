// Package codec provides pluggable serialization for record payloads and
// snapshot metadata. The default codec is GoJSON, a drop-in JSON
// implementation that is significantly faster than encoding/json.
package codec

import "fmt"

// Codec serializes and deserializes values. Implementations must be safe
// for concurrent use.
type Codec interface {
	// Marshal encodes v into a byte slice.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier, e.g. "json". The name is written
	// into snapshot headers so a restore can pick the matching codec.
	Name() string
}

// Default is the codec used when none is configured explicitly.
var Default Codec = GoJSON{}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case JSON{}.Name():
		return JSON{}, nil
	case GoJSON{}.Name():
		return GoJSON{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
