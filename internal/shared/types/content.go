package types

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// NullContent is the stored marker for an instance without content
const NullContent = "NULL"

// Bundle is the flat string map carried by launch commands and IPC envelopes
type Bundle map[string]string

// Content is the opaque key-value state a widget reports about what it displays
type Content map[string]string

// Encode serializes the content into its stored form
func (c Content) Encode() (string, error) {
	if len(c) == 0 {
		return NullContent, nil
	}
	out, err := sonic.MarshalString(map[string]string(c))
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return out, nil
}

// DecodeContent parses a stored content blob. The NULL marker and the empty
// string both decode to nil.
func DecodeContent(raw string) (Content, error) {
	if raw == "" || raw == NullContent {
		return nil, nil
	}
	var m map[string]string
	if err := sonic.UnmarshalString(raw, &m); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return Content(m), nil
}

// Clone returns an independent copy
func (c Content) Clone() Content {
	if c == nil {
		return nil
	}
	out := make(Content, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Equal reports whether both contents hold the same pairs
func (c Content) Equal(other Content) bool {
	if len(c) != len(other) {
		return false
	}
	for k, v := range c {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
