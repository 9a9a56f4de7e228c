// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metadata

import (
	"fmt"

	"github.com/gcnkit/gcnasm"
	"gopkg.in/yaml.v3"
)

// MarshalYAML renders a ValueKind as its enum name, the legacy
// ROCm YAML metadata form.
func (v ValueKind) MarshalYAML() (interface{}, error) {
	return gcnasm.ValueKind(v).String(), nil
}

// UnmarshalYAML parses a ValueKind from its enum name.
func (v *ValueKind) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	kind, ok := gcnasm.ParseValueKind(s)
	if !ok {
		return fmt.Errorf("metadata: unknown ValueKind %q", s)
	}
	*v = ValueKind(kind)
	return nil
}

// MarshalYAML renders a ValueType as its enum name.
func (v ValueType) MarshalYAML() (interface{}, error) {
	return gcnasm.ValueType(v).String(), nil
}

// UnmarshalYAML parses a ValueType from its enum name.
func (v *ValueType) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	typ, ok := gcnasm.ParseValueType(s)
	if !ok {
		return fmt.Errorf("metadata: unknown ValueType %q", s)
	}
	*v = ValueType(typ)
	return nil
}

// EncodeYAML renders a document the way pre-MsgPack ROCm runtimes read
// it: a YAML string embedded in the kernel's ".note" payload.
func EncodeYAML(m Metadata) ([]byte, error) {
	return yaml.Marshal(m)
}

// DecodeYAML is EncodeYAML's inverse.
func DecodeYAML(data []byte) (Metadata, error) {
	var m Metadata
	err := yaml.Unmarshal(data, &m)
	return m, err
}
