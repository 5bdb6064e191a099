package wire

import "math"

// Float64Codec carries a float64 as its IEEE-754 bit pattern. Hosts that
// declare components in a manifest without custom Go types use it as the
// default payload codec.
var Float64Codec = CodecFuncs{
	EncodeFunc: func(w *Writer, value any) error {
		f, ok := value.(float64)
		if !ok {
			return ConfigErrorf("expected float64 payload, got %T", value)
		}
		w.WriteU64(math.Float64bits(f))
		return nil
	},
	DecodeFunc: func(r *Reader) (any, error) {
		return math.Float64frombits(r.ReadU64()), nil
	},
}

// StringCodec carries a string as a u16 length prefix and raw bytes.
var StringCodec = CodecFuncs{
	EncodeFunc: func(w *Writer, value any) error {
		s, ok := value.(string)
		if !ok {
			return ConfigErrorf("expected string payload, got %T", value)
		}
		if len(s) > math.MaxUint16 {
			return ConfigErrorf("string payload too long: %d bytes", len(s))
		}
		w.WriteU16(uint16(len(s)))
		w.WriteBytes([]byte(s))
		return nil
	},
	DecodeFunc: func(r *Reader) (any, error) {
		n := int(r.ReadU16())
		return string(r.ReadBytes(n)), nil
	},
}
