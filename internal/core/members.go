package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// member is one key/value pair of a JSON object.
type member struct {
	key   string
	value json.RawMessage
}

// objectMembers returns the members of a JSON object in document order.
// A JSON null yields no members.
func objectMembers(b []byte) ([]member, error) {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("expected JSON object")
	}

	var out []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		out = append(out, member{key: key, value: value})
	}
	return out, nil
}

// unknownMembers keeps the members whose key is not in known. It returns the
// full member list, order included, when at least one key is unknown and
// nil otherwise.
func unknownMembers(b []byte, known ...string) ([]member, error) {
	members, err := objectMembers(b)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		isKnown := false
		for _, k := range known {
			if m.key == k {
				isKnown = true
				break
			}
		}
		if !isKnown {
			return members, nil
		}
	}
	return nil, nil
}

// marshalMerged encodes v and lays its members out in the order of
// original: keys of original take their fresh value from v when v has one
// and keep the original value otherwise; keys only v has come last.
func marshalMerged(v any, original []member) ([]byte, error) {
	fresh, err := marshalPlain(v)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return fresh, nil
	}
	current, err := objectMembers(fresh)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]json.RawMessage, len(current))
	for _, m := range current {
		byKey[m.key] = m.value
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	seen := make(map[string]bool, len(original))
	write := func(key string, value json.RawMessage) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := marshalPlain(key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
		return nil
	}
	for _, m := range original {
		seen[m.key] = true
		value, ok := byKey[m.key]
		if !ok {
			value = m.value
		}
		if err := write(m.key, value); err != nil {
			return nil, err
		}
	}
	for _, m := range current {
		if seen[m.key] {
			continue
		}
		if err := write(m.key, m.value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalPlain encodes v without HTML escaping so readings such as "<LOQ"
// keep their text.
func marshalPlain(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
