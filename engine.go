package dcpx

// FailoverEntry is a single (uuid, seqno) branch in a vbucket's failover
// history.
type FailoverEntry struct {
	VbUuid uint64
	SeqNo  uint64
}

// FailoverTable is the consumer's view of a vbucket's failover log.  The
// table is replaced wholesale when the producer accepts a stream.
type FailoverTable interface {
	LatestEntry() FailoverEntry
	Replace(entries []FailoverEntry)
}

// SnapshotRange is the open snapshot window recorded by the checkpoint
// manager.
type SnapshotRange struct {
	Start uint64
	End   uint64
}

// SnapshotInfo is a vbucket's persisted seqno together with its open
// snapshot range.
type SnapshotInfo struct {
	Start uint64
	Range SnapshotRange
}

// Vbucket is the per-partition handle the consumer manipulates.  It wraps
// the partition's replication state, failover history and checkpointing.
type Vbucket interface {
	State() VbucketState
	HighSeqno() uint64
	SnapshotInfo() SnapshotInfo
	Failovers() FailoverTable

	IsBackfillPhase() bool
	SetBackfillPhase(backfill bool)
	SetBackfillSnapshot(start, end uint64)
	CreateSnapshot(start, end uint64)
	UpdateSnapshotEnd(end uint64)
	OpenCheckpointID() uint64
	AddNewCheckpoint()
}

// KvStore is the storage surface the consumer applies replicated items
// through.
type KvStore interface {
	SetWithMeta(item *Item, extMeta []byte) EngineCode
	AddBackfillItem(item *Item, extMeta []byte) EngineCode
	DeleteWithMeta(item *Item, extMeta []byte) EngineCode
	SetVbucketState(vbID uint16, state VbucketState)
	Rollback(vbID uint16, rollbackSeqno uint64) EngineCode
	ScheduleVBSnapshot(vbID uint16)
}

// ReplicationThrottle gates how fast buffered replication traffic may be
// applied to storage.
type ReplicationThrottle interface {
	ShouldProcess() bool
}

// EngineBridge is the consumer's handle onto the surrounding storage
// engine.
type EngineBridge interface {
	GetVBucket(vbID uint16) Vbucket
	Store() KvStore
	ReplicationThrottle() ReplicationThrottle

	// IsMemUsageHigh reports whether mutation memory usage has crossed the
	// engine's checkpoint-creation threshold.
	IsMemUsageHigh() bool
}

// ConnManager is notified when a paused connection has outbound work again.
type ConnManager interface {
	NotifyPausedConnection(consumer *Consumer, schedule bool)
}

// MemoryTracker retargets process-wide allocation attribution while the
// consumer calls out into the host.  SwitchThread is acquired before every
// producers call and the returned restore func runs on every exit path.
type MemoryTracker interface {
	SwitchThread() (restore func())
}

// MessageProducers is the host-supplied sink for the consumer's outbound
// protocol messages.
type MessageProducers interface {
	StreamReq(opaque uint32, vbID uint16, flags DcpAddStreamFlags,
		startSeqno, endSeqno, vbUuid, snapStartSeqno, snapEndSeqno uint64) EngineCode
	AddStreamRsp(opaque uint32, streamOpaque uint32, status Status) EngineCode
	SetVbucketStateRsp(opaque uint32, status Status) EngineCode
	MarkerRsp(opaque uint32, status Status) EngineCode
	Control(opaque uint32, key string, value string) EngineCode
	BufferAck(opaque uint32, ackBytes uint32) EngineCode
}

type nopConnManager struct{}

func (nopConnManager) NotifyPausedConnection(consumer *Consumer, schedule bool) {}

type nopMemoryTracker struct{}

func (nopMemoryTracker) SwitchThread() func() { return func() {} }
