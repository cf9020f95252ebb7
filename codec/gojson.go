package codec

import gojson "github.com/goccy/go-json"

// Compile time check to ensure GoJSON satisfies the Codec interface.
var _ Codec = (*GoJSON)(nil)

// GoJSON is a Codec backed by github.com/goccy/go-json. It produces output
// compatible with encoding/json, so payloads written by either JSON codec
// can be read back by the other.
type GoJSON struct{}

// Marshal implements the Codec interface.
func (GoJSON) Marshal(v any) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal implements the Codec interface.
func (GoJSON) Unmarshal(data []byte, v any) error {
	return gojson.Unmarshal(data, v)
}

// Name implements the Codec interface.
func (GoJSON) Name() string {
	return "gojson"
}
