// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metadata

import (
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeMsgpack renders a ValueKind as a small integer, the
// code-object v3 MsgPack metadata form.
func (v ValueKind) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeInt(int64(v))
}

// DecodeMsgpack is EncodeMsgpack's inverse.
func (v *ValueKind) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeInt64()
	if err != nil {
		return err
	}
	*v = ValueKind(n)
	return nil
}

// EncodeMsgpack renders a ValueType as a small integer.
func (v ValueType) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeInt(int64(v))
}

// DecodeMsgpack is EncodeMsgpack's inverse.
func (v *ValueType) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeInt64()
	if err != nil {
		return err
	}
	*v = ValueType(n)
	return nil
}

// EncodeMsgPack renders a document the way code-object v3 HSACO
// binaries embed it: a MsgPack map under the ELF note with name
// "AMD" and type NT_AMD_AMDGPU_HSA_METADATA.
func EncodeMsgPack(m Metadata) ([]byte, error) {
	return msgpack.Marshal(m)
}

// DecodeMsgPack is EncodeMsgPack's inverse.
func DecodeMsgPack(data []byte) (Metadata, error) {
	var m Metadata
	err := msgpack.Unmarshal(data, &m)
	return m, err
}
