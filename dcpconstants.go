package dcpx

// VbucketState describes the replication role of a vbucket.
type VbucketState uint32

const (
	VbucketStateActive  = VbucketState(0x01)
	VbucketStateReplica = VbucketState(0x02)
	VbucketStatePending = VbucketState(0x03)
	VbucketStateDead    = VbucketState(0x04)
)

// String returns the textual representation of this VbucketState.
func (s VbucketState) String() string {
	switch s {
	case VbucketStateActive:
		return "active"
	case VbucketStateReplica:
		return "replica"
	case VbucketStatePending:
		return "pending"
	case VbucketStateDead:
		return "dead"
	}
	return "unknown"
}

// DcpAddStreamFlags are the flags carried on an add-stream request.
type DcpAddStreamFlags uint32

const (
	DcpAddStreamFlagTakeover   = DcpAddStreamFlags(0x01)
	DcpAddStreamFlagDiskOnly   = DcpAddStreamFlags(0x02)
	DcpAddStreamFlagLatest     = DcpAddStreamFlags(0x04)
	DcpAddStreamFlagNoValue    = DcpAddStreamFlags(0x08)
	DcpAddStreamFlagActiveOnly = DcpAddStreamFlags(0x10)
)

// DcpSnapshotMarkerFlags describe the kind of snapshot a marker brackets.
type DcpSnapshotMarkerFlags uint32

const (
	DcpSnapshotMarkerFlagMemory     = DcpSnapshotMarkerFlags(0x01)
	DcpSnapshotMarkerFlagDisk       = DcpSnapshotMarkerFlags(0x02)
	DcpSnapshotMarkerFlagCheckpoint = DcpSnapshotMarkerFlags(0x04)
	DcpSnapshotMarkerFlagAck        = DcpSnapshotMarkerFlags(0x08)
)

// EndStreamStatus is the reason carried on a stream-end message.
type EndStreamStatus uint32

const (
	EndStreamStatusOK           = EndStreamStatus(0x00)
	EndStreamStatusClosed       = EndStreamStatus(0x01)
	EndStreamStatusStateChanged = EndStreamStatus(0x02)
	EndStreamStatusDisconnected = EndStreamStatus(0x03)
	EndStreamStatusSlow         = EndStreamStatus(0x04)
)

// String returns a description of this end-stream reason.
func (s EndStreamStatus) String() string {
	switch s {
	case EndStreamStatusOK:
		return "The stream closed as part of normal operation"
	case EndStreamStatusClosed:
		return "The stream closed due to a close stream message"
	case EndStreamStatusStateChanged:
		return "The stream closed because the vbucket state changed"
	case EndStreamStatusDisconnected:
		return "The stream closed early because the conn was disconnected"
	case EndStreamStatusSlow:
		return "The stream closed early because the consumer was too slow"
	}
	return "Status unknown; this should not have happened"
}

// DatatypeFlag specifies data flags for the value of a document.
type DatatypeFlag uint8

const (
	// DatatypeFlagJSON indicates the server believes the value payload to be JSON.
	DatatypeFlagJSON = DatatypeFlag(0x01)

	// DatatypeFlagCompressed indicates the value payload is compressed.
	DatatypeFlagCompressed = DatatypeFlag(0x02)

	// DatatypeFlagXattrs indicates the inclusion of xattr data in the value payload.
	DatatypeFlagXattrs = DatatypeFlag(0x04)
)

// Control keys the consumer sends during feature negotiation.
const (
	noopCtrlMsg             = "enable_noop"
	noopIntervalCtrlMsg     = "set_noop_interval"
	connBufferCtrlMsg       = "connection_buffer_size"
	priorityCtrlMsg         = "set_priority"
	extMetadataCtrlMsg      = "enable_ext_metadata"
	valueCompressionCtrlMsg = "enable_value_compression"
	cursorDroppingCtrlMsg   = "supports_cursor_dropping"
)
