package libys

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Envelope is the response libys wraps every compile result in: exactly one
// of Data or Error is set.
type Envelope struct {
	Data  json.RawMessage
	Error *EnvelopeError
}

// EnvelopeError is the "error" variant of an Envelope.
type EnvelopeError struct {
	Cause string `json:"cause"`
	Type  string `json:"type,omitempty"`
}

const envelopeSchemaSource = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"oneOf": [
		{
			"required": ["data"],
			"properties": {
				"error": {"type": "null"}
			}
		},
		{
			"required": ["error"],
			"not": {"required": ["data"]},
			"properties": {
				"error": {
					"type": "object",
					"properties": {
						"cause": {"type": "string"},
						"type": {"type": "string"}
					}
				}
			}
		}
	]
}`

var envelopeSchema = jsonschema.MustCompileString("libys-envelope.json", envelopeSchemaSource)

// DecodeEnvelope parses a raw libys response. Anything that is not UTF-8
// JSON carrying exactly one of the data or error tags is reported as
// ErrProtocolViolation. An "error": null next to "data" counts as absent.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: response is not valid UTF-8", ErrProtocolViolation)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProtocolViolation, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after response", ErrProtocolViolation)
	}
	if err := envelopeSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: unexpected response from libys: %v", ErrProtocolViolation, err)
	}

	var wire struct {
		Data  json.RawMessage `json:"data"`
		Error *EnvelopeError  `json:"error"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	env := &Envelope{Error: wire.Error}
	if wire.Error == nil {
		// "data": null is still the data variant.
		env.Data = wire.Data
		if env.Data == nil {
			env.Data = json.RawMessage("null")
		}
	}
	return env, nil
}

// Result returns the canonical JSON of the data variant, or a *CompileError
// for the error variant.
func (e *Envelope) Result() (string, error) {
	if e.Error != nil {
		return "", &CompileError{Cause: e.Error.Cause, Type: e.Error.Type}
	}
	return canonicalJSON(e.Data)
}

// canonicalJSON re-encodes raw with sorted object keys and without HTML
// escaping. Numbers keep their original text.
func canonicalJSON(raw json.RawMessage) (string, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("%w: decode data: %v", ErrProtocolViolation, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("%w: encode data: %v", ErrProtocolViolation, err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
