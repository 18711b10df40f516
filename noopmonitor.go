package dcpx

import (
	"strconv"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// noopMonitor negotiates noop heartbeats with the producer and enforces the
// liveness window: if no noop arrives within twice the negotiated interval
// the connection is torn down.
type noopMonitor struct {
	logger   *zap.Logger
	enabled  bool
	interval time.Duration

	pendingEnable       bool
	pendingSendInterval bool
	lastNoopTime        atomic.Time
}

func newNoopMonitor(logger *zap.Logger, enabled bool, interval time.Duration) *noopMonitor {
	m := &noopMonitor{
		logger:              logger,
		enabled:             enabled,
		interval:            interval,
		pendingEnable:       enabled,
		pendingSendInterval: enabled,
	}
	m.lastNoopTime.Store(time.Now())
	return m
}

// noopReceived records the arrival of a noop from the producer.
func (m *noopMonitor) noopReceived() {
	m.lastNoopTime.Store(time.Now())
}

// handle emits the pending enable_noop and set_noop_interval control
// messages, then polices the liveness window.  Returns EngineFailed when
// there is nothing to do.
func (m *noopMonitor) handle(c *Consumer, producers MessageProducers) EngineCode {
	if m.pendingEnable {
		opaque := c.opaques.Mint()
		ret := c.sendToHost(func() EngineCode {
			return producers.Control(opaque, noopCtrlMsg, "true")
		})
		m.pendingEnable = false
		return ret
	}

	if m.pendingSendInterval {
		opaque := c.opaques.Mint()
		intervalSecs := strconv.FormatUint(uint64(m.interval/time.Second), 10)
		ret := c.sendToHost(func() EngineCode {
			return producers.Control(opaque, noopIntervalCtrlMsg, intervalSecs)
		})
		m.pendingSendInterval = false
		return ret
	}

	if m.enabled && time.Since(m.lastNoopTime.Load()) > 2*m.interval {
		m.logger.Warn("disconnecting because no noop message has been received",
			zap.Duration("window", 2*m.interval))
		return EngineDisconnect
	}

	return EngineFailed
}
