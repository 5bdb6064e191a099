package engine

// Stats counts absorbed per-record and per-message conditions. Stale ticks
// are expected under lossy operation and are counted rather than surfaced
// as errors; the host reads these to decide policy (for example, forcibly
// disconnecting a peer that keeps sending garbage).
type Stats struct {
	DecodeErrors   uint64 // malformed or unknown-type messages dropped
	DroppedRecords uint64 // records skipped under drop-and-continue
	MappingErrors  uint64 // updates or removals referencing unmapped entities
	StaleDiffs     uint64 // diffs not newer than the applied cursor
	StaleAcks      uint64 // acks not newer than the recorded cursor
	MisroutedMsgs  uint64 // messages on unregistered or wrong-direction channels
}
