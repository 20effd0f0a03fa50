package protos

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// errUnknownField is returned by field parsers for fields (or wire types) they don't handle: those are kept
// verbatim in the message's unknown fields.
var errUnknownField = errors.New("unknown field")

// message is implemented by all messages of this package.
type message interface {
	unmarshal(b []byte) error
	marshal(b []byte) []byte
}

// parseFields iterates over the fields encoded in b, calling parseField for each. Fields parseField doesn't know
// are appended, tag included, to unknown.
func parseFields(b []byte, unknown *[]byte,
	parseField func(num protowire.Number, typ protowire.Type, value []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return errors.Wrap(protowire.ParseError(tagLen), "invalid field tag")
		}
		valueLen, err := parseField(num, typ, b[tagLen:])
		if errors.Is(err, errUnknownField) {
			valueLen = protowire.ConsumeFieldValue(num, typ, b[tagLen:])
			if valueLen < 0 {
				return errors.Wrapf(protowire.ParseError(valueLen), "invalid value for field #%d", num)
			}
			*unknown = append(*unknown, b[:tagLen+valueLen]...)
		} else if err != nil {
			return errors.WithMessagef(err, "field #%d", num)
		} else if valueLen < 0 {
			return errors.Wrapf(protowire.ParseError(valueLen), "invalid value for field #%d", num)
		}
		b = b[tagLen+valueLen:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, error) {
	if typ != protowire.BytesType {
		return 0, errUnknownField
	}
	v, n := protowire.ConsumeBytes(b)
	*dst = string(v)
	return n, nil
}

func appendStringToList(typ protowire.Type, b []byte, dst *[]string) (int, error) {
	var s string
	n, err := consumeString(typ, b, &s)
	if err == nil && n >= 0 {
		*dst = append(*dst, s)
	}
	return n, err
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return 0, errUnknownField
	}
	v, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		*dst = append([]byte{}, v...)
	}
	return n, nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *int64) (int, error) {
	if typ != protowire.VarintType {
		return 0, errUnknownField
	}
	v, n := protowire.ConsumeVarint(b)
	*dst = int64(v)
	return n, nil
}

func consumeInt32(typ protowire.Type, b []byte, dst *int32) (int, error) {
	var v int64
	n, err := consumeVarint(typ, b, &v)
	*dst = int32(v)
	return n, err
}

func consumeFloat(typ protowire.Type, b []byte, dst *float32) (int, error) {
	if typ != protowire.Fixed32Type {
		return 0, errUnknownField
	}
	v, n := protowire.ConsumeFixed32(b)
	*dst = math.Float32frombits(v)
	return n, nil
}

// consumeMessage decodes an embedded message into msg.
func consumeMessage(typ protowire.Type, b []byte, msg message) (int, error) {
	if typ != protowire.BytesType {
		return 0, errUnknownField
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	return n, msg.unmarshal(v)
}

// consumeRepeatedMessage decodes an embedded message and appends it to dst.
func consumeRepeatedMessage[M any, PM interface {
	*M
	message
}](typ protowire.Type, b []byte, dst *[]*M) (int, error) {
	msg := PM(new(M))
	n, err := consumeMessage(typ, b, msg)
	if err == nil && n >= 0 {
		*dst = append(*dst, (*M)(msg))
	}
	return n, err
}

// consumeRepeatedScalar decodes one element or a packed list of elements of a repeated scalar field.
// elementType is the wire type of an unpacked element, and consume decodes one element.
func consumeRepeatedScalar[T any](typ protowire.Type, b []byte, dst *[]T, elementType protowire.Type,
	consume func(b []byte) (T, int)) (int, error) {
	switch typ {
	case elementType:
		v, n := consume(b)
		if n >= 0 {
			*dst = append(*dst, v)
		}
		return n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		for len(packed) > 0 {
			v, m := consume(packed)
			if m < 0 {
				return m, nil
			}
			*dst = append(*dst, v)
			packed = packed[m:]
		}
		return n, nil
	default:
		return 0, errUnknownField
	}
}

func consumeInt64s(typ protowire.Type, b []byte, dst *[]int64) (int, error) {
	return consumeRepeatedScalar(typ, b, dst, protowire.VarintType, func(b []byte) (int64, int) {
		v, n := protowire.ConsumeVarint(b)
		return int64(v), n
	})
}

func consumeInt32s(typ protowire.Type, b []byte, dst *[]int32) (int, error) {
	return consumeRepeatedScalar(typ, b, dst, protowire.VarintType, func(b []byte) (int32, int) {
		v, n := protowire.ConsumeVarint(b)
		return int32(v), n
	})
}

func consumeUint64s(typ protowire.Type, b []byte, dst *[]uint64) (int, error) {
	return consumeRepeatedScalar(typ, b, dst, protowire.VarintType, protowire.ConsumeVarint)
}

func consumeFloats(typ protowire.Type, b []byte, dst *[]float32) (int, error) {
	return consumeRepeatedScalar(typ, b, dst, protowire.Fixed32Type, func(b []byte) (float32, int) {
		v, n := protowire.ConsumeFixed32(b)
		return math.Float32frombits(v), n
	})
}

func consumeDoubles(typ protowire.Type, b []byte, dst *[]float64) (int, error) {
	return consumeRepeatedScalar(typ, b, dst, protowire.Fixed64Type, func(b []byte) (float64, int) {
		v, n := protowire.ConsumeFixed64(b)
		return math.Float64frombits(v), n
	})
}

// Encoding helpers: zero scalars and empty strings of singular fields are omitted, elements of repeated fields
// never are.

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendStrings(b []byte, num protowire.Number, list []string) []byte {
	for _, s := range list {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

// appendMessage appends msg as an embedded message, if it is not nil.
func appendMessage[M any, PM interface {
	*M
	message
}](b []byte, num protowire.Number, msg *M) []byte {
	if msg == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, PM(msg).marshal(nil))
}

func appendMessages[M any, PM interface {
	*M
	message
}](b []byte, num protowire.Number, list []*M) []byte {
	for _, msg := range list {
		b = appendMessage[M, PM](b, num, msg)
	}
	return b
}

// appendUnpacked appends one tag+element per value.
func appendUnpacked[T any](b []byte, num protowire.Number, typ protowire.Type, list []T, appendValue func([]byte, T) []byte) []byte {
	for _, v := range list {
		b = protowire.AppendTag(b, num, typ)
		b = appendValue(b, v)
	}
	return b
}

// appendPacked appends the values as a single length-delimited field.
func appendPacked[T any](b []byte, num protowire.Number, list []T, appendValue func([]byte, T) []byte) []byte {
	if len(list) == 0 {
		return b
	}
	var packed []byte
	for _, v := range list {
		packed = appendValue(packed, v)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func varintValue[T int32 | int64 | uint64](b []byte, v T) []byte {
	return protowire.AppendVarint(b, uint64(v))
}

func floatValue(b []byte, v float32) []byte {
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func doubleValue(b []byte, v float64) []byte {
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func bytesValue(b []byte, v []byte) []byte {
	return protowire.AppendBytes(b, v)
}
