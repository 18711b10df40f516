package dcpx

import (
	"strconv"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// A buffer acknowledgement is due once more than 1/bufferAckDrainFraction
// of the declared receive buffer has been freed.
const bufferAckDrainFraction = 5

// FlowControl tracks the consumer's declared receive-buffer size and the
// bytes freed since the last acknowledgement, and decides when a buffer
// ack is due.  A zero buffer size disables flow control entirely.
type FlowControl struct {
	logger     *zap.Logger
	bufferSize uint32

	pendingControl atomic.Bool
	freedBytes     atomic.Uint32
	ackedBytes     atomic.Uint64
}

func newFlowControl(logger *zap.Logger, bufferSize uint32) *FlowControl {
	fc := &FlowControl{
		logger:     logger,
		bufferSize: bufferSize,
	}
	fc.pendingControl.Store(bufferSize > 0)
	return fc
}

// IncrFreedBytes credits n bytes back towards the producer's send window.
func (fc *FlowControl) IncrFreedBytes(n uint32) {
	fc.freedBytes.Add(n)
}

// FreedBytes returns the bytes freed since the last acknowledgement.
func (fc *FlowControl) FreedBytes() uint32 {
	return fc.freedBytes.Load()
}

// BufferSize returns the declared receive-buffer size.
func (fc *FlowControl) BufferSize() uint32 {
	return fc.bufferSize
}

// IsBufferSufficientlyDrained reports whether enough bytes have been freed
// since the last acknowledgement to warrant sending one.
func (fc *FlowControl) IsBufferSufficientlyDrained() bool {
	if fc.bufferSize == 0 {
		return false
	}
	return fc.freedBytes.Load() > fc.bufferSize/bufferAckDrainFraction
}

// handleFlowCtl emits the connection_buffer_size control message once at
// connection start, then buffer acknowledgements whenever the freed tally
// crosses the drain threshold.  Returns EngineFailed when there is nothing
// to send.
func (fc *FlowControl) handleFlowCtl(c *Consumer, producers MessageProducers) EngineCode {
	if fc.bufferSize == 0 {
		return EngineFailed
	}

	if fc.pendingControl.CompareAndSwap(true, false) {
		opaque := c.opaques.Mint()
		return c.sendToHost(func() EngineCode {
			return producers.Control(opaque, connBufferCtrlMsg,
				strconv.FormatUint(uint64(fc.bufferSize), 10))
		})
	}

	if fc.IsBufferSufficientlyDrained() {
		opaque := c.opaques.Mint()
		ackBytes := fc.freedBytes.Swap(0)

		ret := c.sendToHost(func() EngineCode {
			return producers.BufferAck(opaque, ackBytes)
		})
		if ret != EngineSuccess {
			fc.freedBytes.Add(ackBytes)
			return ret
		}

		fc.ackedBytes.Add(uint64(ackBytes))
		bufferAcksSent.Add(c.metricsCtx, 1)
		fc.logger.Debug("sent buffer acknowledgement",
			zap.Uint32("ackBytes", ackBytes))
		return EngineSuccess
	}

	return EngineFailed
}
