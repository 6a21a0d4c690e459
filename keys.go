package ekv

import (
	"encoding"
	"fmt"
	"time"
)

// Key categories. Within one table, all keys of a category are contiguous.
const (
	catData   = "data"
	catIndex  = "idx"
	catMeta   = "meta"
	catUnique = "uidx"
)

// Part tags. Each key part starts with a tag byte so that decoding is
// unambiguous; values of the same type sort correctly after the tag.
const (
	tagBytes  byte = 0x01
	tagString byte = 0x02
	tagInt    byte = 0x03
	tagUint   byte = 0x04
	tagTime   byte = 0x05
)

const signBit = uint64(1) << 63

func appendKeyPrefix(buf []byte, table, category string) []byte {
	buf = appendRaw(buf, []byte(table))
	buf = append(buf, 0)
	buf = appendRaw(buf, []byte(category))
	buf = append(buf, 0)
	return buf
}

// appendKeyPart appends the order-preserving encoding of v. Supported types
// are strings, byte slices, signed and unsigned integers, time.Time and
// anything implementing encoding.BinaryMarshaler. Unsupported types are a
// programmer error and panic.
func appendKeyPart(buf []byte, v any) []byte {
	switch v := v.(type) {
	case string:
		buf = append(buf, tagString)
		return appendEscaped(buf, []byte(v))
	case []byte:
		buf = append(buf, tagBytes)
		return appendEscaped(buf, v)
	case int:
		return appendIntPart(buf, int64(v))
	case int8:
		return appendIntPart(buf, int64(v))
	case int16:
		return appendIntPart(buf, int64(v))
	case int32:
		return appendIntPart(buf, int64(v))
	case int64:
		return appendIntPart(buf, v)
	case uint:
		return appendUintPart(buf, uint64(v))
	case uint8:
		return appendUintPart(buf, uint64(v))
	case uint16:
		return appendUintPart(buf, uint64(v))
	case uint32:
		return appendUintPart(buf, uint64(v))
	case uint64:
		return appendUintPart(buf, v)
	case uintptr:
		return appendUintPart(buf, uint64(v))
	case time.Time:
		buf = append(buf, tagTime)
		return appendFixedUint64(buf, uint64(v.Unix())^signBit)
	case encoding.BinaryMarshaler:
		raw, err := v.MarshalBinary()
		if err != nil {
			panic(fmt.Errorf("ekv: %T.MarshalBinary: %w", v, err))
		}
		buf = append(buf, tagBytes)
		return appendEscaped(buf, raw)
	default:
		panic(fmt.Errorf("ekv: cannot use %T as a key part", v))
	}
}

func appendIntPart(buf []byte, v int64) []byte {
	buf = append(buf, tagInt)
	return appendFixedUint64(buf, uint64(v)^signBit)
}

func appendUintPart(buf []byte, v uint64) []byte {
	buf = append(buf, tagUint)
	return appendFixedUint64(buf, v)
}

// appendEscaped appends b with embedded 0x00 escaped as 0x00 0x01, then a
// 0x00 0x00 terminator. The terminator sorts below any escape, so byte
// ordering is preserved, and because a part can only end in 0x00 0x00 the
// encoding is prefix-free: no encoded part is a byte-prefix of another,
// which prefix scans over index values rely on.
func appendEscaped(buf []byte, b []byte) []byte {
	for _, c := range b {
		if c == 0 {
			buf = append(buf, 0, 1)
		} else {
			buf = append(buf, c)
		}
	}
	return append(buf, 0, 0)
}

// decodeKey splits a raw key into table name, category and decoded parts.
// It is the inverse of appendKeyPrefix + appendKeyPart for well-formed keys;
// malformed bytes produce a CorruptKeyError.
func decodeKey(raw []byte) (table, category string, parts []any, err error) {
	rest := raw
	table, rest, err = splitName(raw, rest)
	if err != nil {
		return "", "", nil, err
	}
	category, rest, err = splitName(raw, rest)
	if err != nil {
		return "", "", nil, err
	}
	for len(rest) > 0 {
		var v any
		v, rest, err = decodeKeyPart(raw, rest)
		if err != nil {
			return "", "", nil, err
		}
		parts = append(parts, v)
	}
	return table, category, parts, nil
}

func splitName(orig, rest []byte) (string, []byte, error) {
	for i, c := range rest {
		if c == 0 {
			return string(rest[:i]), rest[i+1:], nil
		}
	}
	return "", nil, corruptKeyf(orig, "unterminated name")
}

func decodeKeyPart(orig, rest []byte) (any, []byte, error) {
	if len(rest) == 0 {
		return nil, nil, corruptKeyf(orig, "missing part tag")
	}
	tag, rest := rest[0], rest[1:]
	switch tag {
	case tagString:
		b, rest, err := unescape(orig, rest)
		if err != nil {
			return nil, nil, err
		}
		return string(b), rest, nil
	case tagBytes:
		b, rest, err := unescape(orig, rest)
		if err != nil {
			return nil, nil, err
		}
		return b, rest, nil
	case tagInt:
		u, rest, err := fixed64(orig, rest)
		if err != nil {
			return nil, nil, err
		}
		return int64(u ^ signBit), rest, nil
	case tagUint:
		u, rest, err := fixed64(orig, rest)
		if err != nil {
			return nil, nil, err
		}
		return u, rest, nil
	case tagTime:
		u, rest, err := fixed64(orig, rest)
		if err != nil {
			return nil, nil, err
		}
		return time.Unix(int64(u^signBit), 0).UTC(), rest, nil
	default:
		return nil, nil, corruptKeyf(orig, "unknown part tag 0x%02x", tag)
	}
}

func unescape(orig, rest []byte) ([]byte, []byte, error) {
	var out []byte
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c != 0 {
			out = append(out, c)
			continue
		}
		if i+1 >= len(rest) {
			break
		}
		switch rest[i+1] {
		case 0x01:
			out = append(out, 0)
			i++
		case 0x00:
			return out, rest[i+2:], nil
		default:
			return nil, nil, corruptKeyf(orig, "invalid escape 0x00 0x%02x", rest[i+1])
		}
	}
	return nil, nil, corruptKeyf(orig, "unterminated part")
}

func fixed64(orig, rest []byte) (uint64, []byte, error) {
	if len(rest) < 8 {
		return 0, nil, corruptKeyf(orig, "truncated fixed-width part")
	}
	var u uint64
	for _, c := range rest[:8] {
		u = u<<8 | uint64(c)
	}
	return u, rest[8:], nil
}

func (tbl *Table) dataPrefix(buf []byte) []byte {
	return appendKeyPrefix(buf, tbl.name, catData)
}

func (tbl *Table) dataKey(buf []byte, key any) []byte {
	return appendKeyPart(tbl.dataPrefix(buf), key)
}

// dataKeyFromPart rebuilds a primary-record key from the already-encoded
// primary key part of an index entry.
func (tbl *Table) dataKeyFromPart(buf []byte, keyPart []byte) []byte {
	return appendRaw(tbl.dataPrefix(buf), keyPart)
}

func (tbl *Table) metaKey(buf []byte, name string) []byte {
	return appendKeyPart(appendKeyPrefix(buf, tbl.name, catMeta), name)
}

// indexPrefix covers all entries of one index; with value appended it covers
// exactly the entries for that value.
func (idx *Index) indexPrefix(buf []byte) []byte {
	cat := catIndex
	if idx.isUnique {
		cat = catUnique
	}
	return appendKeyPart(appendKeyPrefix(buf, idx.table.name, cat), idx.name)
}

func (idx *Index) valuePrefix(buf []byte, value any) []byte {
	return appendKeyPart(idx.indexPrefix(buf), value)
}
