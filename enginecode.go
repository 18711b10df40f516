package dcpx

import "strconv"

// EngineCode is the result of a consumer-side protocol operation.  The
// codes mirror the engine error taxonomy the host understands;
// EngineTempFail and EngineFailed are internal-only signals that are never
// surfaced across the boundary.
type EngineCode uint32

const (
	// EngineSuccess indicates the operation completed.
	EngineSuccess = EngineCode(0x00)

	// EngineKeyNotFound indicates a missing stream or unknown opaque.
	EngineKeyNotFound = EngineCode(0x01)

	// EngineKeyExists indicates a live stream already exists for the vbucket.
	EngineKeyExists = EngineCode(0x02)

	// EngineOutOfMemory indicates an allocation failure while building a message.
	EngineOutOfMemory = EngineCode(0x03)

	// EngineInvalid indicates a malformed inbound call.
	EngineInvalid = EngineCode(0x04)

	// EngineNotSupported is returned for operations the consumer rejects outright.
	EngineNotSupported = EngineCode(0x05)

	// EngineTempFail signals that a message was parked on a stream buffer for
	// the processor task.  Lifted to EngineSuccess at the boundary.
	EngineTempFail = EngineCode(0x06)

	// EngineNotMyVbucket indicates the vbucket is missing or in the wrong state.
	EngineNotMyVbucket = EngineCode(0x07)

	// EngineRange indicates a sequence number outside the expected window.
	EngineRange = EngineCode(0x08)

	// EngineWantMore asks the host to call Step again immediately.
	EngineWantMore = EngineCode(0x09)

	// EngineDisconnect requires the host to tear the connection down.
	EngineDisconnect = EngineCode(0x0a)

	// EngineFailed signals that an outbound source had nothing to emit and the
	// next source should be consulted.  Never surfaced.
	EngineFailed = EngineCode(0x0b)
)

// String returns the textual representation of this EngineCode.
func (c EngineCode) String() string {
	switch c {
	case EngineSuccess:
		return "Success"
	case EngineKeyNotFound:
		return "KeyNotFound"
	case EngineKeyExists:
		return "KeyExists"
	case EngineOutOfMemory:
		return "OutOfMemory"
	case EngineInvalid:
		return "Invalid"
	case EngineNotSupported:
		return "NotSupported"
	case EngineTempFail:
		return "TempFail"
	case EngineNotMyVbucket:
		return "NotMyVbucket"
	case EngineRange:
		return "Range"
	case EngineWantMore:
		return "WantMore"
	case EngineDisconnect:
		return "Disconnect"
	case EngineFailed:
		return "Failed"
	}

	return "x" + strconv.FormatUint(uint64(c), 16)
}
