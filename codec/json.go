package codec

import "encoding/json"

// Compile time check to ensure JSON satisfies the Codec interface.
var _ Codec = (*JSON)(nil)

// JSON is a Codec backed by the standard library encoding/json package.
type JSON struct{}

// Marshal implements the Codec interface.
func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal implements the Codec interface.
func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Name implements the Codec interface.
func (JSON) Name() string {
	return "json"
}
