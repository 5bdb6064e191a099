// Package event carries host-defined messages between peers on registered
// channels, independent of world-state diffs. Payloads are open-ended: each
// channel owns a closed set of variants identified by a small discriminant,
// and decoding dispatches on that id: an explicit registry plus tagged
// union instead of runtime reflection over the wire.
package event

import (
	"fmt"
	"reflect"

	"github.com/tidesync/replica/wire"
)

// Discriminant tags which concrete payload shape follows in a channel
// message. Wire shape: [discriminant:u16][variant bytes].
type Discriminant uint16

type variant struct {
	name  string
	codec wire.Codec
}

// VariantCodec encodes and decodes one channel's tagged payload set.
// Variants are registered once at startup; the Go type of the value selects
// the discriminant on encode.
type VariantCodec struct {
	byID   map[Discriminant]variant
	byType map[reflect.Type]Discriminant
}

func NewVariantCodec() *VariantCodec {
	return &VariantCodec{
		byID:   make(map[Discriminant]variant, 8),
		byType: make(map[reflect.Type]Discriminant, 8),
	}
}

// RegisterVariant binds the payload type T to a discriminant and codec.
// Duplicate discriminants or types are a ConfigError.
func RegisterVariant[T any](vc *VariantCodec, id Discriminant, name string, codec wire.Codec) error {
	if prev, ok := vc.byID[id]; ok {
		return wire.ConfigErrorf("discriminant %d already registered as %q", id, prev.name)
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	if _, ok := vc.byType[t]; ok {
		return wire.ConfigErrorf("payload type %s already registered", t)
	}
	vc.byID[id] = variant{name: name, codec: codec}
	vc.byType[t] = id
	return nil
}

// Encode writes [discriminant][variant bytes] for the value.
func (vc *VariantCodec) Encode(w *wire.Writer, value any) error {
	id, ok := vc.byType[reflect.TypeOf(value)]
	if !ok {
		return wire.ConfigErrorf("payload type %T not registered on this channel", value)
	}
	w.WriteU16(uint16(id))
	return vc.byID[id].codec.Encode(w, value)
}

// Decode reads one tagged payload. An unknown discriminant is a
// DecodeError; the caller drops the message and the channel keeps working.
func (vc *VariantCodec) Decode(r *wire.Reader) (any, error) {
	id := Discriminant(r.ReadU16())
	if r.Truncated() {
		return nil, &wire.DecodeError{Reason: "event message shorter than discriminant"}
	}
	v, ok := vc.byID[id]
	if !ok {
		return nil, &wire.DecodeError{Reason: fmt.Sprintf("unknown discriminant %d", id)}
	}
	value, err := v.codec.Decode(r)
	if err != nil {
		return nil, err
	}
	if r.Truncated() {
		return nil, &wire.DecodeError{Reason: "truncated " + v.name + " payload"}
	}
	return value, nil
}
