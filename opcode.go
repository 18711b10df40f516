package dcpx

import "encoding/hex"

// OpCode represents the operation code of a DCP packet.
type OpCode uint8

const (
	OpCodeDcpOpenConnection  = OpCode(0x50)
	OpCodeDcpAddStream       = OpCode(0x51)
	OpCodeDcpCloseStream     = OpCode(0x52)
	OpCodeDcpStreamReq       = OpCode(0x53)
	OpCodeDcpGetFailoverLog  = OpCode(0x54)
	OpCodeDcpStreamEnd       = OpCode(0x55)
	OpCodeDcpSnapshotMarker  = OpCode(0x56)
	OpCodeDcpMutation        = OpCode(0x57)
	OpCodeDcpDeletion        = OpCode(0x58)
	OpCodeDcpExpiration      = OpCode(0x59)
	OpCodeDcpFlush           = OpCode(0x5a)
	OpCodeDcpSetVbucketState = OpCode(0x5b)
	OpCodeDcpNoop            = OpCode(0x5c)
	OpCodeDcpBufferAck       = OpCode(0x5d)
	OpCodeDcpControl         = OpCode(0x5e)
)

// String returns the textual representation of this OpCode.
func (c OpCode) String() string {
	switch c {
	case OpCodeDcpOpenConnection:
		return "DCP_OPEN_CONNECTION"
	case OpCodeDcpAddStream:
		return "DCP_ADD_STREAM"
	case OpCodeDcpCloseStream:
		return "DCP_CLOSE_STREAM"
	case OpCodeDcpStreamReq:
		return "DCP_STREAM_REQ"
	case OpCodeDcpGetFailoverLog:
		return "DCP_GET_FAILOVER_LOG"
	case OpCodeDcpStreamEnd:
		return "DCP_STREAM_END"
	case OpCodeDcpSnapshotMarker:
		return "DCP_SNAPSHOT_MARKER"
	case OpCodeDcpMutation:
		return "DCP_MUTATION"
	case OpCodeDcpDeletion:
		return "DCP_DELETION"
	case OpCodeDcpExpiration:
		return "DCP_EXPIRATION"
	case OpCodeDcpFlush:
		return "DCP_FLUSH"
	case OpCodeDcpSetVbucketState:
		return "DCP_SET_VBUCKET_STATE"
	case OpCodeDcpNoop:
		return "DCP_NOOP"
	case OpCodeDcpBufferAck:
		return "DCP_BUFFER_ACKNOWLEDGEMENT"
	case OpCodeDcpControl:
		return "DCP_CONTROL"
	}

	return "x" + hex.EncodeToString([]byte{byte(c)})
}
