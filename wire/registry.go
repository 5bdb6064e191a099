package wire

import (
	"sort"

	"github.com/tidesync/replica/world"
)

// Codec serializes one component type's payload. Implementations must be
// deterministic: equal values encode to equal bytes.
type Codec interface {
	Encode(w *Writer, value any) error
	Decode(r *Reader) (any, error)
}

// CodecFuncs adapts a pair of functions to the Codec interface.
type CodecFuncs struct {
	EncodeFunc func(w *Writer, value any) error
	DecodeFunc func(r *Reader) (any, error)
}

func (c CodecFuncs) Encode(w *Writer, value any) error { return c.EncodeFunc(w, value) }
func (c CodecFuncs) Decode(r *Reader) (any, error)     { return c.DecodeFunc(r) }

type registration struct {
	name  string
	codec Codec
}

// Registry maps component type ids to their payload codecs. Registration
// happens once at startup on both sides with agreed ids; lookups after
// that are read-only.
type Registry struct {
	codecs map[world.ComponentType]registration
}

func NewRegistry() *Registry {
	return &Registry{codecs: make(map[world.ComponentType]registration, 16)}
}

// Register binds a codec to a component type id. A duplicate id is a
// ConfigError.
func (r *Registry) Register(t world.ComponentType, name string, codec Codec) error {
	if prev, ok := r.codecs[t]; ok {
		return ConfigErrorf("component type %d already registered as %q", t, prev.name)
	}
	r.codecs[t] = registration{name: name, codec: codec}
	return nil
}

// Lookup returns the codec for a type id.
func (r *Registry) Lookup(t world.ComponentType) (Codec, bool) {
	reg, ok := r.codecs[t]
	return reg.codec, ok
}

// Name returns the registered name of a type id, for diagnostics.
func (r *Registry) Name(t world.ComponentType) string {
	if reg, ok := r.codecs[t]; ok {
		return reg.name
	}
	return "unknown"
}

// Types returns all registered type ids in ascending order.
func (r *Registry) Types() []world.ComponentType {
	out := make([]world.ComponentType, 0, len(r.codecs))
	for t := range r.codecs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
