package wire

import (
	"math"

	"github.com/tidesync/replica/tick"
	"github.com/tidesync/replica/world"
)

// Strictness selects how the decoder treats a malformed or unknown-type
// record inside an otherwise valid message.
type Strictness int

const (
	// RejectMessage drops the whole message and leaves prior state
	// unchanged. Default.
	RejectMessage Strictness = iota
	// DropRecord skips the offending record and keeps applying siblings.
	DropRecord
)

// Encoder serializes a Diff using the component registry. Encoding is
// deterministic: Decode(Encode(x)) == x for all well-formed x.
//
// Layout (all little-endian, explicit counts, no padding):
//
//	[tick:u32]
//	[spawnCount:u16]   spawn   = [entity:u64][compCount:u8] comps...
//	[despawnCount:u16] despawn = [entity:u64]
//	[updateCount:u16]  update  = [entity:u64][type:u16][len:u16][payload]
//	[removalCount:u16] removal = [entity:u64][type:u16]
//
// A component inside a spawn record is [type:u16][len:u16][payload], the
// entity id is not repeated.
type Encoder struct {
	registry *Registry
}

func NewEncoder(registry *Registry) *Encoder {
	return &Encoder{registry: registry}
}

func (e *Encoder) Encode(d *Diff) ([]byte, error) {
	w := NewWriter()
	w.WriteU32(uint32(d.Tick))

	if err := checkCount("spawn", len(d.Spawns)); err != nil {
		return nil, err
	}
	w.WriteU16(uint16(len(d.Spawns)))
	for _, sp := range d.Spawns {
		w.WriteU64(uint64(sp.Entity))
		if len(sp.Components) > math.MaxUint8 {
			return nil, ConfigErrorf("spawn for %v carries %d components, max 255", sp.Entity, len(sp.Components))
		}
		w.WriteU8(byte(len(sp.Components)))
		for _, c := range sp.Components {
			if err := e.encodeComponent(w, c.Type, c.Value); err != nil {
				return nil, err
			}
		}
	}

	if err := checkCount("despawn", len(d.Despawns)); err != nil {
		return nil, err
	}
	w.WriteU16(uint16(len(d.Despawns)))
	for _, en := range d.Despawns {
		w.WriteU64(uint64(en))
	}

	if err := checkCount("update", len(d.Updates)); err != nil {
		return nil, err
	}
	w.WriteU16(uint16(len(d.Updates)))
	for _, up := range d.Updates {
		w.WriteU64(uint64(up.Entity))
		if err := e.encodeComponent(w, up.Type, up.Value); err != nil {
			return nil, err
		}
	}

	if err := checkCount("removal", len(d.Removals)); err != nil {
		return nil, err
	}
	w.WriteU16(uint16(len(d.Removals)))
	for _, rm := range d.Removals {
		w.WriteU64(uint64(rm.Entity))
		w.WriteU16(uint16(rm.Type))
	}

	return w.Bytes(), nil
}

func (e *Encoder) encodeComponent(w *Writer, t world.ComponentType, value any) error {
	codec, ok := e.registry.Lookup(t)
	if !ok {
		return ConfigErrorf("component type %d not registered", t)
	}
	payload := NewWriter()
	if err := codec.Encode(payload, value); err != nil {
		return err
	}
	if payload.Len() > math.MaxUint16 {
		return ConfigErrorf("component %s payload is %d bytes, max %d", e.registry.Name(t), payload.Len(), math.MaxUint16)
	}
	w.WriteU16(uint16(t))
	w.WriteU16(uint16(payload.Len()))
	w.WriteBytes(payload.Bytes())
	return nil
}

func checkCount(kind string, n int) error {
	if n > math.MaxUint16 {
		return ConfigErrorf("%d %s records exceed the per-message maximum %d", n, kind, math.MaxUint16)
	}
	return nil
}

// Decoder deserializes a Diff. Record-level failures (unknown type id,
// malformed payload) follow the configured strictness; structural failures
// (truncated message) always reject the message.
type Decoder struct {
	registry   *Registry
	strictness Strictness
}

func NewDecoder(registry *Registry, strictness Strictness) *Decoder {
	return &Decoder{registry: registry, strictness: strictness}
}

// Decode parses one diff message. Under DropRecord strictness the returned
// RecordErrors describe skipped records while the Diff carries the valid
// siblings; under RejectMessage the first bad record fails the whole call.
func (d *Decoder) Decode(data []byte) (*Diff, []*RecordError, error) {
	r := NewReader(data)
	diff := &Diff{Tick: tick.Tick(r.ReadU32())}
	var dropped []*RecordError

	spawnCount := int(r.ReadU16())
	for i := 0; i < spawnCount; i++ {
		sp, err := d.decodeSpawn(r)
		if r.Truncated() {
			return nil, nil, decodeErrorf("truncated spawn record %d", i)
		}
		if err != nil {
			rerr := &RecordError{Record: "spawn", Index: i, Err: err}
			if d.strictness == RejectMessage {
				return nil, nil, rerr
			}
			dropped = append(dropped, rerr)
			continue
		}
		diff.Spawns = append(diff.Spawns, sp)
	}

	despawnCount := int(r.ReadU16())
	for i := 0; i < despawnCount; i++ {
		en := world.Entity(r.ReadU64())
		if r.Truncated() {
			return nil, nil, decodeErrorf("truncated despawn record %d", i)
		}
		diff.Despawns = append(diff.Despawns, en)
	}

	updateCount := int(r.ReadU16())
	for i := 0; i < updateCount; i++ {
		en := world.Entity(r.ReadU64())
		t, value, err := d.decodeComponent(r)
		if r.Truncated() {
			return nil, nil, decodeErrorf("truncated update record %d", i)
		}
		if err != nil {
			rerr := &RecordError{Record: "update", Index: i, Err: err}
			if d.strictness == RejectMessage {
				return nil, nil, rerr
			}
			dropped = append(dropped, rerr)
			continue
		}
		diff.Updates = append(diff.Updates, world.Change{Entity: en, Type: t, Value: value})
	}

	removalCount := int(r.ReadU16())
	for i := 0; i < removalCount; i++ {
		en := world.Entity(r.ReadU64())
		t := world.ComponentType(r.ReadU16())
		if r.Truncated() {
			return nil, nil, decodeErrorf("truncated removal record %d", i)
		}
		diff.Removals = append(diff.Removals, world.Removal{Entity: en, Type: t})
	}

	if r.Remaining() != 0 {
		return nil, nil, decodeErrorf("%d trailing bytes after diff", r.Remaining())
	}
	return diff, dropped, nil
}

// decodeSpawn reads one spawn record. A bad component payload poisons the
// whole spawn: partial spawns would leave the replica entity half-built.
func (d *Decoder) decodeSpawn(r *Reader) (world.Spawned, error) {
	sp := world.Spawned{Entity: world.Entity(r.ReadU64())}
	compCount := int(r.ReadU8())
	var firstErr error
	for i := 0; i < compCount; i++ {
		t, value, err := d.decodeComponent(r)
		if r.Truncated() {
			return sp, nil // reported as truncation by the caller
		}
		if err != nil && firstErr == nil {
			firstErr = err
			continue
		}
		if err == nil {
			sp.Components = append(sp.Components, world.ComponentValue{Type: t, Value: value})
		}
	}
	if firstErr != nil {
		return world.Spawned{}, firstErr
	}
	return sp, nil
}

// decodeComponent reads [type][len][payload]. An unknown type id skips the
// payload by its declared length so the stream stays in sync, then reports
// the record error.
func (d *Decoder) decodeComponent(r *Reader) (world.ComponentType, any, error) {
	t := world.ComponentType(r.ReadU16())
	length := int(r.ReadU16())
	codec, ok := d.registry.Lookup(t)
	if !ok {
		r.ReadBytes(length)
		return t, nil, decodeErrorf("unknown component type %d", t)
	}
	payload := r.ReadBytes(length)
	if r.Truncated() {
		return t, nil, nil
	}
	pr := NewReader(payload)
	value, err := codec.Decode(pr)
	if err != nil {
		return t, nil, decodeErrorf("component %s payload: %v", d.registry.Name(t), err)
	}
	if pr.Truncated() || pr.Remaining() != 0 {
		return t, nil, decodeErrorf("component %s payload length mismatch", d.registry.Name(t))
	}
	return t, value, nil
}
