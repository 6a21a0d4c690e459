package ekv

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type Encoding int

const (
	MsgPack Encoding = iota
	JSON

	defaultValueEncoding = MsgPack
)

func (enc Encoding) EncodeValue(buf []byte, obj any) []byte {
	switch enc {
	case MsgPack:
		bb := bytesBuilder{buf}
		e := msgpack.GetEncoder()
		e.Reset(&bb)
		e.SetSortMapKeys(true)
		err := e.Encode(obj)
		msgpack.PutEncoder(e)
		if err != nil {
			panic(fmt.Errorf("failed to encode %T using MsgPack: %w", obj, err))
		}
		return bb.Buf
	case JSON:
		raw, err := json.Marshal(obj)
		if err != nil {
			panic(fmt.Errorf("failed to encode %T to JSON: %w", obj, err))
		}
		return appendRaw(buf, raw)
	default:
		panic("unsupported encoding")
	}
}

func (enc Encoding) DecodeValue(buf []byte, objPtr any) error {
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		d := msgpack.GetDecoder()
		d.Reset(&r)
		err := d.Decode(objPtr)
		msgpack.PutDecoder(d)
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode msgpack into %T", objPtr)
		}
		return nil
	case JSON:
		err := json.Unmarshal(buf, objPtr)
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode JSON into %T", objPtr)
		}
		return nil
	default:
		panic("unsupported encoding")
	}
}

type valueFlags uint64

const (
	vfVer1          = valueFlags(1)
	vfSupportedMask = vfVer1
	vfDefault       = vfVer1

	maxSchemaVersion = 32768 // just a sanity value, can be increased
)

// value is a decoded primary-record value: header plus raw row bytes.
// SchemaVer records which table version last wrote the record and drives
// idempotent migration.
type value struct {
	Flags     valueFlags
	SchemaVer uint64
	Data      []byte
}

func appendValueHeader(buf []byte, flags valueFlags, schemaVer uint64) []byte {
	if (flags &^ vfSupportedMask) != 0 {
		panic(fmt.Errorf("invalid flags %x", flags))
	}
	buf = appendUvarint(buf, uint64(flags))
	buf = appendUvarint(buf, schemaVer)
	return buf
}

func (vle *value) decode(data []byte) error {
	d := makeByteDecoder(data)

	v, err := d.Uvarint()
	if err != nil {
		return dataErrf(data, d.Off(), nil, "invalid value: bad flags")
	}
	if (v & ^uint64(vfSupportedMask)) != 0 {
		return dataErrf(data, d.Off(), nil, "invalid value: unsupported flags %x", v)
	}
	vle.Flags = valueFlags(v)

	v, err = d.Uvarint()
	if err != nil || v > maxSchemaVersion {
		return dataErrf(data, d.Off(), nil, "invalid value: bad schema version")
	}
	vle.SchemaVer = v

	vle.Data = d.Buf
	return nil
}
