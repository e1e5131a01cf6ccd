// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package serialization holds the building blocks of the coordinator's JSON
// wire format. Message types describe their schema explicitly with Object
// and Fields instead of relying on struct tags; property names are written
// in camelCase and accepted in both camelCase and PascalCase.
package serialization

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ErrMissingProperty is returned when a required property is absent.
var ErrMissingProperty = errors.New("missing property")

// pascalCase returns name with its first letter upper cased.
func pascalCase(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}

	return string(unicode.ToUpper(r)) + name[size:]
}

// Object is an ordered JSON object under construction.
type Object struct {
	keys   []string
	values []any
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{}
}

// Set appends a property. Values are encoded with encoding/json.
func (o *Object) Set(name string, value any) *Object {
	o.keys = append(o.keys, name)
	o.values = append(o.values, value)
	return o
}

// MarshalJSON encodes the properties in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// Fields is a decoded JSON object.
type Fields map[string]json.RawMessage

// Decode parses data as a JSON object.
func Decode(data []byte) (Fields, error) {
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.New("expected a JSON object")
	}

	return f, nil
}

// raw looks name up in camelCase first and in PascalCase second.
func (f Fields) raw(name string) (json.RawMessage, bool) {
	if v, ok := f[name]; ok {
		return v, true
	}
	v, ok := f[pascalCase(name)]

	return v, ok
}

// Has reports whether the property is present and not null.
func (f Fields) Has(name string) bool {
	v, ok := f.raw(name)
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// Get decodes the required property name into v.
func (f Fields) Get(name string, v any) error {
	raw, ok := f.raw(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingProperty, name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

// GetOptional decodes name into v if it is present and not null.
func (f Fields) GetOptional(name string, v any) error {
	if !f.Has(name) {
		return nil
	}

	return f.Get(name, v)
}

// Raw returns the undecoded property.
func (f Fields) Raw(name string) (json.RawMessage, error) {
	raw, ok := f.raw(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingProperty, name)
	}

	return raw, nil
}
