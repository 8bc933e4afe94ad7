package gateway

// PendingFrame records one device result waiting to be flushed to the
// socket. SlotIndex points into the Session Context's pinned staging
// buffer at SlotIndex*WeightCount floats (§3).
type PendingFrame struct {
	FrameIndex uint64
	TsCurrent  int64
	TsNext     int64
	SlotIndex  uint32
}
