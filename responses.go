package dcpx

// DcpEvent identifies the message class of a DcpResponse.
type DcpEvent uint32

const (
	DcpEventMutation       = DcpEvent(0x01)
	DcpEventDeletion       = DcpEvent(0x02)
	DcpEventExpiration     = DcpEvent(0x03)
	DcpEventSetVbucket     = DcpEvent(0x04)
	DcpEventStreamReq      = DcpEvent(0x05)
	DcpEventStreamEnd      = DcpEvent(0x06)
	DcpEventSnapshotMarker = DcpEvent(0x07)
	DcpEventAddStream      = DcpEvent(0x08)
)

// String returns the textual representation of this DcpEvent.
func (e DcpEvent) String() string {
	switch e {
	case DcpEventMutation:
		return "DCP_MUTATION"
	case DcpEventDeletion:
		return "DCP_DELETION"
	case DcpEventExpiration:
		return "DCP_EXPIRATION"
	case DcpEventSetVbucket:
		return "DCP_SET_VBUCKET"
	case DcpEventStreamReq:
		return "DCP_STREAM_REQ"
	case DcpEventStreamEnd:
		return "DCP_STREAM_END"
	case DcpEventSnapshotMarker:
		return "DCP_SNAPSHOT_MARKER"
	case DcpEventAddStream:
		return "DCP_ADD_STREAM"
	}
	return "DCP_UNKNOWN"
}

// Base message byte costs: the fixed 24-byte binary-protocol header plus
// each message class's extras section, excluding the variable-length key,
// value and meta sections.  The flow-control window is accounted in these
// (mutation extras are 31 bytes, deletion 18, snapshot marker 20,
// set-vbucket-state 1, stream end 4, stream request 48).
const (
	MutationBaseMsgBytes       = 55
	DeletionBaseMsgBytes       = 42
	SnapshotMarkerBaseMsgBytes = 44
	SetVbucketBaseMsgBytes     = 25
	StreamEndBaseMsgBytes      = 28
	streamReqBaseMsgBytes      = 72
	addStreamRspBaseMsgBytes   = 28
	setVbucketRspBaseMsgBytes  = 24
	markerRspBaseMsgBytes      = 24
)

// DcpResponse is a message either queued inbound on a stream buffer or
// queued outbound on a stream's ready queue.  Every message knows its own
// byte cost for flow-control accounting.
type DcpResponse interface {
	Event() DcpEvent
	MessageSize() uint32
}

// Item is a single document mutation or deletion as applied to storage.
type Item struct {
	Key       []byte
	Value     []byte
	Flags     uint32
	Expiry    uint32
	LockTime  uint32
	Cas       uint64
	BySeqno   uint64
	RevSeqno  uint64
	VbucketID uint16
	Datatype  DatatypeFlag
	Nru       uint8
	Deleted   bool
}

// MutationResponse carries a mutation, deletion or expiration inbound on a
// stream.  Deletions and expirations share the representation; the event
// code distinguishes them.
type MutationResponse struct {
	Opaque  uint32
	Item    *Item
	ExtMeta []byte

	event DcpEvent
}

func (r *MutationResponse) Event() DcpEvent { return r.event }

func (r *MutationResponse) MessageSize() uint32 {
	if r.event == DcpEventMutation {
		return uint32(MutationBaseMsgBytes + len(r.Item.Key) + len(r.Item.Value) + len(r.ExtMeta))
	}
	return uint32(DeletionBaseMsgBytes + len(r.Item.Key) + len(r.ExtMeta))
}

// SnapshotMarker brackets a [start, end] window of seqnos delivered as one
// atomic unit.
type SnapshotMarker struct {
	Opaque     uint32
	VbucketID  uint16
	StartSeqno uint64
	EndSeqno   uint64
	Flags      DcpSnapshotMarkerFlags
}

func (r *SnapshotMarker) Event() DcpEvent     { return DcpEventSnapshotMarker }
func (r *SnapshotMarker) MessageSize() uint32 { return SnapshotMarkerBaseMsgBytes }

// SetVBucketState asks the consumer to move a vbucket to a new state at the
// end of a takeover.
type SetVBucketState struct {
	Opaque    uint32
	VbucketID uint16
	State     VbucketState
}

func (r *SetVBucketState) Event() DcpEvent     { return DcpEventSetVbucket }
func (r *SetVBucketState) MessageSize() uint32 { return SetVbucketBaseMsgBytes }

// StreamEndResponse signals that the producer finished a stream, carrying
// the reason.
type StreamEndResponse struct {
	Opaque    uint32
	VbucketID uint16
	Flags     EndStreamStatus
}

func (r *StreamEndResponse) Event() DcpEvent     { return DcpEventStreamEnd }
func (r *StreamEndResponse) MessageSize() uint32 { return StreamEndBaseMsgBytes }

// StreamRequest is the outbound request a passive stream issues to start
// (or re-start) replication for its vbucket.
type StreamRequest struct {
	VbucketID      uint16
	Opaque         uint32
	Flags          DcpAddStreamFlags
	StartSeqno     uint64
	EndSeqno       uint64
	VbUuid         uint64
	SnapStartSeqno uint64
	SnapEndSeqno   uint64
}

func (r *StreamRequest) Event() DcpEvent     { return DcpEventStreamReq }
func (r *StreamRequest) MessageSize() uint32 { return streamReqBaseMsgBytes }

// AddStreamResponse acknowledges an add-stream request back to the host,
// tying the caller's opaque to the stream's own opaque.
type AddStreamResponse struct {
	Opaque       uint32
	StreamOpaque uint32
	Status       Status
}

func (r *AddStreamResponse) Event() DcpEvent     { return DcpEventAddStream }
func (r *AddStreamResponse) MessageSize() uint32 { return addStreamRspBaseMsgBytes }

// SetVBucketStateResponse acknowledges a set-vbucket-state message.
type SetVBucketStateResponse struct {
	Opaque uint32
	Status Status
}

func (r *SetVBucketStateResponse) Event() DcpEvent     { return DcpEventSetVbucket }
func (r *SetVBucketStateResponse) MessageSize() uint32 { return setVbucketRspBaseMsgBytes }

// SnapshotMarkerResponse acknowledges a snapshot marker that requested one.
type SnapshotMarkerResponse struct {
	Opaque uint32
	Status Status
}

func (r *SnapshotMarkerResponse) Event() DcpEvent     { return DcpEventSnapshotMarker }
func (r *SnapshotMarkerResponse) MessageSize() uint32 { return markerRspBaseMsgBytes }

// ResponsePacket is a raw response from the producer handed to the consumer
// for correlation by opaque.
type ResponsePacket struct {
	OpCode OpCode
	Status Status
	Opaque uint32
	Body   []byte
}
