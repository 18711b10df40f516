package dcpx

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("github.com/couchbase/dcpx",
		metric.WithInstrumentationVersion(buildVersion))
)

var (
	// rollbackCount tracks the number of producer-mandated rollbacks the
	// consumer has executed.
	rollbackCount, _ = meter.Int64Counter("dcpx.rollbacks")

	// throttleBackoffs tracks the number of times the processor task backed
	// off because the replication throttle refused admission.
	throttleBackoffs, _ = meter.Int64Counter("dcpx.throttle_backoffs")

	// bufferAcksSent tracks the number of buffer acknowledgements emitted to
	// producers.
	bufferAcksSent, _ = meter.Int64Counter("dcpx.buffer_acks")
)
