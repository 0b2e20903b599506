package attributes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxDepth bounds nesting of maps and lists in a parsed document
const MaxDepth = 32

// ErrMalformed is wrapped by every structural validation failure
var ErrMalformed = errors.New("malformed attributes")

// MalformedError describes where a document failed validation. Path never contains values.
type MalformedError struct {
	Path   string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed attributes: %s", e.Reason)
	}
	return fmt.Sprintf("malformed attributes at %s: %s", e.Path, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Parse decodes a JSON document whose root must be an object. Duplicate keys, trailing data
// and nesting deeper than MaxDepth are rejected. Key order is preserved.
// An empty or whitespace-only input yields an empty map and no error.
func Parse(data []byte) (*Map, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewMap(), nil
	}
	v, err := ParseValue(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, &MalformedError{Reason: fmt.Sprintf("document root must be an object, got %s", v.Kind())}
	}
	return m, nil
}

// ParseString is Parse for string input
func ParseString(s string) (*Map, error) {
	return Parse([]byte(s))
}

// ParseValue decodes any JSON value with the same validation as Parse.
// Input that is not valid UTF-8 is rejected rather than repaired.
func ParseValue(data []byte) (Value, error) {
	if !utf8.Valid(data) {
		return Value{}, &MalformedError{Reason: "document is not valid UTF-8"}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec, "$", 0)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, &MalformedError{Reason: "unexpected data after document"}
	}
	return v, nil
}

func decodeValue(dec *json.Decoder, path string, depth int) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, syntaxError(path, err)
	}
	return decodeToken(dec, tok, path, depth)
}

func decodeToken(dec *json.Decoder, tok json.Token, path string, depth int) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Value{kind: KindNumber, num: t}, nil
	case json.Delim:
		if depth >= MaxDepth {
			return Value{}, &MalformedError{Path: path, Reason: fmt.Sprintf("nesting exceeds %d levels", MaxDepth)}
		}
		switch t {
		case '{':
			return decodeObject(dec, path, depth+1)
		case '[':
			return decodeArray(dec, path, depth+1)
		}
	}
	return Value{}, &MalformedError{Path: path, Reason: fmt.Sprintf("unexpected token %v", tok)}
}

func decodeObject(dec *json.Decoder, path string, depth int) (Value, error) {
	m := NewMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, syntaxError(path, err)
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, &MalformedError{Path: path, Reason: "object key is not a string"}
		}
		if key == "" {
			return Value{}, &MalformedError{Path: path, Reason: "empty attribute name"}
		}
		childPath := path + "." + key
		if _, dup := m.Get(key); dup {
			return Value{}, &MalformedError{Path: childPath, Reason: "duplicate attribute name"}
		}
		v, err := decodeValue(dec, childPath, depth)
		if err != nil {
			return Value{}, err
		}
		m.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, syntaxError(path, err)
	}
	return Object(m), nil
}

func decodeArray(dec *json.Decoder, path string, depth int) (Value, error) {
	items := []Value{}
	for i := 0; dec.More(); i++ {
		v, err := decodeValue(dec, fmt.Sprintf("%s[%d]", path, i), depth)
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, syntaxError(path, err)
	}
	return List(items...), nil
}

func syntaxError(path string, err error) error {
	if err == io.EOF {
		return &MalformedError{Path: path, Reason: "unexpected end of document"}
	}
	var me *MalformedError
	if errors.As(err, &me) {
		return err
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return &MalformedError{Path: path, Reason: fmt.Sprintf("invalid JSON at offset %d", se.Offset)}
	}
	return &MalformedError{Path: path, Reason: "invalid JSON"}
}
