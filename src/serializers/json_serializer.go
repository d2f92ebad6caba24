package serializers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"rates-ingestor/src/interfaces"
)

// -----------------------------------------------------------------------------

// JSONSerializer implements interfaces.ISerializer for bus envelopes, websocket
// frames, quote bodies and HTTP payloads. In strict mode unknown object fields
// are rejected, which the HTTP layer uses for partial updates.
type JSONSerializer struct {
	strict bool
}

// -----------------------------------------------------------------------------

// NewJSONSerializer returns a lenient serializer: unknown fields are ignored.
func NewJSONSerializer() interfaces.ISerializer {
	return &JSONSerializer{}
}

// NewStrictJSONSerializer returns a serializer that fails on unknown fields.
func NewStrictJSONSerializer() interfaces.ISerializer {
	return &JSONSerializer{strict: true}
}

// -----------------------------------------------------------------------------

// Marshal encodes obj as compact JSON.
func (j *JSONSerializer) Marshal(obj any) ([]byte, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("json marshal error: %w", err)
	}
	return data, nil
}

// -----------------------------------------------------------------------------

// Unmarshal decodes exactly one JSON value from data into obj.
func (j *JSONSerializer) Unmarshal(data []byte, obj any) error {
	if !j.strict {
		if err := json.Unmarshal(data, obj); err != nil {
			return fmt.Errorf("json unmarshal error: %w", err)
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(obj); err != nil {
		return fmt.Errorf("json unmarshal error: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("json unmarshal error: trailing data after value")
	}
	return nil
}
