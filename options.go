package dcpx

import (
	"time"

	"go.uber.org/zap"
)

const defaultNoopInterval = 180 * time.Second

// ConsumerOptions configures a Consumer for one replication connection.
type ConsumerOptions struct {
	// Name identifies the connection in logs and stats.
	Name string

	// Engine is the storage engine the consumer applies replicated items to.
	Engine EngineBridge

	// ConnManager is notified when a paused connection has work again.
	ConnManager ConnManager

	// MemoryTracker is acquired around every outbound call into the host.
	MemoryTracker MemoryTracker

	// NonIoExecutor runs the processor task.  Defaults to the built-in
	// goroutine executor.
	NonIoExecutor Executor

	// WriterExecutor runs rollback tasks.  Defaults to NonIoExecutor.
	WriterExecutor Executor

	// MaxVbuckets bounds the partition space (config key max_vbuckets).
	MaxVbuckets uint16

	// ConnBufferSize is the flow-control receive-buffer size in bytes.
	// Zero disables flow control.
	ConnBufferSize uint32

	// NoopInterval is the negotiated noop heartbeat interval (config key
	// dcp_noop_interval).
	NoopInterval time.Duration

	// EnableNoop negotiates noop heartbeats (config key dcp_enable_noop).
	EnableNoop bool

	// ValueCompressionEnabled negotiates snappy-compressed values (config
	// key dcp_value_compression_enabled).
	ValueCompressionEnabled bool

	Logger *zap.Logger
}
