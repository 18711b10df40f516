package dcpx

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

const extMetaDataVersionOne = 0x01

// Consumer is the replica side of one DCP connection.  The host network
// thread serialises all inbound protocol calls and Step; the processor and
// rollback tasks run on their own executors.
type Consumer struct {
	logger      *zap.Logger
	name        string
	engine      EngineBridge
	connManager ConnManager
	memTracker  MemoryTracker

	writerExecutor Executor
	metricsCtx     context.Context

	opaques *OpaqueRegistry

	// streams slots are atomic pointers so the processor task can read
	// them while the network thread installs and replaces streams.
	streams []stdatomic.Pointer[PassiveStream]

	readyMu sync.Mutex
	ready   []uint16

	flowControl *FlowControl
	noopMonitor *noopMonitor
	negotiator  *controlNegotiator

	itemsToProcess atomic.Bool
	disconnect     atomic.Bool
	paused         atomic.Bool
	closed         atomic.Bool
	lastWalkTime   atomic.Time

	processorHandle TaskHandle
	taskCancelled   atomic.Bool

	backoffs  atomic.Uint64
	rollbacks atomic.Uint64
}

// NewConsumer builds a consumer for one connection and schedules its
// processor task.
func NewConsumer(opts *ConsumerOptions) (*Consumer, error) {
	if opts.Name == "" {
		return nil, ErrNameRequired
	}
	if opts.Engine == nil {
		return nil, ErrEngineRequired
	}
	if opts.MaxVbuckets == 0 {
		return nil, ErrMaxVbucketsRequired
	}

	logger := loggerOrNop(opts.Logger)
	logger = logger.With(
		zap.String("consumerId", uuid.NewString()[:8]),
		zap.String("name", opts.Name))

	connManager := opts.ConnManager
	if connManager == nil {
		connManager = nopConnManager{}
	}
	memTracker := opts.MemoryTracker
	if memTracker == nil {
		memTracker = nopMemoryTracker{}
	}

	nonIoExecutor := opts.NonIoExecutor
	if nonIoExecutor == nil {
		nonIoExecutor = NewExecutor(logger)
	}
	writerExecutor := opts.WriterExecutor
	if writerExecutor == nil {
		writerExecutor = nonIoExecutor
	}

	noopInterval := opts.NoopInterval
	if noopInterval == 0 {
		noopInterval = defaultNoopInterval
	}

	c := &Consumer{
		logger:         logger,
		name:           opts.Name,
		engine:         opts.Engine,
		connManager:    connManager,
		memTracker:     memTracker,
		writerExecutor: writerExecutor,
		metricsCtx:     context.Background(),
		opaques:        NewOpaqueRegistry(),
		streams:        make([]stdatomic.Pointer[PassiveStream], opts.MaxVbuckets),
		flowControl:    newFlowControl(logger, opts.ConnBufferSize),
		noopMonitor:    newNoopMonitor(logger, opts.EnableNoop, noopInterval),
		negotiator:     newControlNegotiator(opts.ValueCompressionEnabled),
	}
	c.lastWalkTime.Store(time.Now())

	c.processorHandle = nonIoExecutor.Schedule(&processorTask{consumer: c}, time.Second)

	logger.Debug("created new DCP consumer")

	return c, nil
}

// Name returns the connection name.
func (c *Consumer) Name() string {
	return c.name
}

// SetDisconnect flags the connection for teardown.  The flag is sticky;
// every subsequent inbound call and Step short-circuits.
func (c *Consumer) SetDisconnect() {
	c.disconnect.Store(true)
}

// IsPaused reports whether the last Step found nothing to emit.
func (c *Consumer) IsPaused() bool {
	return c.paused.Load()
}

// LastWalkTime returns the wall-clock time of the most recent Step call.
func (c *Consumer) LastWalkTime() time.Time {
	return c.lastWalkTime.Load()
}

// Close cancels the processor task and tears down every stream.  Safe to
// call more than once.
func (c *Consumer) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.logger.Info("closing")
	c.disconnect.Store(true)
	c.cancelTask()
	c.closeAllStreams()
}

// AddStream begins replication for a vbucket.  At most one live stream may
// exist per vbucket.
func (c *Consumer) AddStream(opaque uint32, vbID uint16, flags DcpAddStreamFlags) EngineCode {
	if c.doDisconnect() {
		return EngineDisconnect
	}

	if int(vbID) >= len(c.streams) {
		c.logger.Warn("add stream failed because this vbucket doesn't exist",
			zap.Uint16("vbID", vbID))
		return EngineNotMyVbucket
	}

	vb := c.engine.GetVBucket(vbID)
	if vb == nil {
		c.logger.Warn("add stream failed because this vbucket doesn't exist",
			zap.Uint16("vbID", vbID))
		return EngineNotMyVbucket
	}

	if vb.State() == VbucketStateActive {
		c.logger.Warn("add stream failed because this vbucket happens to be in active state",
			zap.Uint16("vbID", vbID))
		return EngineNotMyVbucket
	}

	info := vb.SnapshotInfo()
	if info.Range.End == info.Start {
		info.Range.Start = info.Start
	}

	if stream := c.streams[vbID].Load(); stream != nil && stream.IsActive() {
		c.logger.Warn("cannot add stream because one already exists",
			zap.Uint16("vbID", vbID))
		return EngineKeyExists
	}

	newOpaque := c.opaques.Register(opaque, vbID)

	startSeqno := info.Start
	endSeqno := uint64(math.MaxUint64)
	vbUuid := vb.Failovers().LatestEntry().VbUuid

	stream := newPassiveStream(c.logger, c.engine, c, flags, newOpaque,
		vbID, startSeqno, endSeqno, vbUuid, info.Range.Start, info.Range.End,
		vb.HighSeqno())
	c.streams[vbID].Store(stream)

	c.readyMu.Lock()
	c.pushReadyLocked(vbID)
	c.readyMu.Unlock()

	return EngineSuccess
}

// CloseStream tears down the stream for a vbucket, crediting any bytes its
// buffer still held.
func (c *Consumer) CloseStream(opaque uint32, vbID uint16) EngineCode {
	if c.doDisconnect() {
		return EngineDisconnect
	}

	c.opaques.Remove(opaque)

	if int(vbID) >= len(c.streams) {
		return EngineKeyNotFound
	}

	stream := c.streams[vbID].Load()
	if stream == nil {
		c.logger.Warn("cannot close stream because no stream exists for this vbucket",
			zap.Uint16("vbID", vbID))
		return EngineKeyNotFound
	}

	bytesCleared := stream.SetDead(EndStreamStatusClosed)
	c.flowControl.IncrFreedBytes(bytesCleared)
	return EngineSuccess
}

// StreamEnd processes a stream-end message from the producer.
func (c *Consumer) StreamEnd(opaque uint32, vbID uint16, flags EndStreamStatus) EngineCode {
	if c.doDisconnect() {
		return EngineDisconnect
	}

	err := EngineKeyNotFound
	if stream := c.lookupStream(opaque, vbID); stream != nil {
		c.logger.Info("end stream received",
			zap.Uint16("vbID", vbID),
			zap.Stringer("reason", flags))

		err = c.deliver(stream, &StreamEndResponse{
			Opaque:    opaque,
			VbucketID: vbID,
			Flags:     flags,
		})
	}

	// The message was buffered and will be processed later.
	if err == EngineTempFail {
		return EngineSuccess
	}

	if err != EngineSuccess {
		c.logger.Warn("end stream received but stream does not exist",
			zap.Uint16("vbID", vbID),
			zap.Uint32("opaque", opaque))
	}

	c.flowControl.IncrFreedBytes(StreamEndBaseMsgBytes)
	return err
}

// Mutation processes an inbound mutation.
func (c *Consumer) Mutation(opaque uint32, key, value []byte, cas uint64,
	vbID uint16, flags uint32, datatype DatatypeFlag, locktime uint32,
	bySeqno, revSeqno uint64, exptime uint32, nru uint8, meta []byte) EngineCode {
	if c.doDisconnect() {
		return EngineDisconnect
	}

	if bySeqno == 0 {
		c.logger.Warn("invalid sequence number (0) for mutation",
			zap.Uint16("vbID", vbID))
		return EngineInvalid
	}

	err := EngineKeyNotFound
	if stream := c.lookupStream(opaque, vbID); stream != nil {
		if len(meta) > 0 && meta[0] != extMetaDataVersionOne {
			return EngineInvalid
		}

		item := &Item{
			Key:       key,
			Value:     value,
			Flags:     flags,
			Expiry:    exptime,
			LockTime:  locktime,
			Cas:       cas,
			BySeqno:   bySeqno,
			RevSeqno:  revSeqno,
			VbucketID: vbID,
			Datatype:  datatype,
			Nru:       nru,
		}

		err = c.deliver(stream, &MutationResponse{
			Opaque:  opaque,
			Item:    item,
			ExtMeta: meta,
			event:   DcpEventMutation,
		})
	}

	// The message was buffered and will be processed later.
	if err == EngineTempFail {
		return EngineSuccess
	}

	bytes := uint32(MutationBaseMsgBytes + len(key) + len(meta) + len(value))
	c.flowControl.IncrFreedBytes(bytes)

	return err
}

// Deletion processes an inbound deletion.
func (c *Consumer) Deletion(opaque uint32, key []byte, cas uint64, vbID uint16,
	bySeqno, revSeqno uint64, meta []byte) EngineCode {
	return c.deletion(opaque, key, cas, vbID, bySeqno, revSeqno, meta, DcpEventDeletion)
}

// Expiration processes an inbound expiration; it behaves identically to a
// deletion.
func (c *Consumer) Expiration(opaque uint32, key []byte, cas uint64, vbID uint16,
	bySeqno, revSeqno uint64, meta []byte) EngineCode {
	return c.deletion(opaque, key, cas, vbID, bySeqno, revSeqno, meta, DcpEventExpiration)
}

func (c *Consumer) deletion(opaque uint32, key []byte, cas uint64, vbID uint16,
	bySeqno, revSeqno uint64, meta []byte, event DcpEvent) EngineCode {
	if c.doDisconnect() {
		return EngineDisconnect
	}

	if bySeqno == 0 {
		c.logger.Warn("invalid sequence number (0) for deletion",
			zap.Uint16("vbID", vbID))
		return EngineInvalid
	}

	err := EngineKeyNotFound
	if stream := c.lookupStream(opaque, vbID); stream != nil {
		if len(meta) > 0 && meta[0] != extMetaDataVersionOne {
			return EngineInvalid
		}

		item := &Item{
			Key:       key,
			Cas:       cas,
			BySeqno:   bySeqno,
			RevSeqno:  revSeqno,
			VbucketID: vbID,
			Deleted:   true,
		}

		err = c.deliver(stream, &MutationResponse{
			Opaque:  opaque,
			Item:    item,
			ExtMeta: meta,
			event:   event,
		})
	}

	// The message was buffered and will be processed later.
	if err == EngineTempFail {
		return EngineSuccess
	}

	bytes := uint32(DeletionBaseMsgBytes + len(key) + len(meta))
	c.flowControl.IncrFreedBytes(bytes)

	return err
}

// SnapshotMarker processes an inbound snapshot marker.  Markers with equal
// start and end seqnos are valid.
func (c *Consumer) SnapshotMarker(opaque uint32, vbID uint16,
	startSeqno, endSeqno uint64, flags DcpSnapshotMarkerFlags) EngineCode {
	if c.doDisconnect() {
		return EngineDisconnect
	}

	if startSeqno > endSeqno {
		c.logger.Warn("invalid snapshot marker received, snap_start must not exceed snap_end",
			zap.Uint16("vbID", vbID),
			zap.Uint64("snapStartSeqno", startSeqno),
			zap.Uint64("snapEndSeqno", endSeqno))
		return EngineInvalid
	}

	err := EngineKeyNotFound
	if stream := c.lookupStream(opaque, vbID); stream != nil {
		err = c.deliver(stream, &SnapshotMarker{
			Opaque:     opaque,
			VbucketID:  vbID,
			StartSeqno: startSeqno,
			EndSeqno:   endSeqno,
			Flags:      flags,
		})
	}

	// The message was buffered and will be processed later.
	if err == EngineTempFail {
		return EngineSuccess
	}

	c.flowControl.IncrFreedBytes(SnapshotMarkerBaseMsgBytes)

	return err
}

// SetVBucketState processes an inbound set-vbucket-state message.
func (c *Consumer) SetVBucketState(opaque uint32, vbID uint16, state VbucketState) EngineCode {
	if c.doDisconnect() {
		return EngineDisconnect
	}

	err := EngineKeyNotFound
	if stream := c.lookupStream(opaque, vbID); stream != nil {
		err = c.deliver(stream, &SetVBucketState{
			Opaque:    opaque,
			VbucketID: vbID,
			State:     state,
		})
	}

	// The message was buffered and will be processed later.
	if err == EngineTempFail {
		return EngineSuccess
	}

	c.flowControl.IncrFreedBytes(SetVbucketBaseMsgBytes)

	return err
}

// Noop records an inbound liveness heartbeat.
func (c *Consumer) Noop(opaque uint32) EngineCode {
	c.noopMonitor.noopReceived()
	return EngineSuccess
}

// Flush is not supported on consumer connections.
func (c *Consumer) Flush(opaque uint32, vbID uint16) EngineCode {
	if c.doDisconnect() {
		return EngineDisconnect
	}

	return EngineNotSupported
}

// Step asks the consumer for one outbound message.  EngineWantMore asks the
// host to call again immediately; EngineSuccess with nothing emitted means
// the connection is paused until notified.
func (c *Consumer) Step(producers MessageProducers) EngineCode {
	c.lastWalkTime.Store(time.Now())

	if c.doDisconnect() {
		return EngineDisconnect
	}

	if ret := c.flowControl.handleFlowCtl(c, producers); ret != EngineFailed {
		return c.stepResult(ret)
	}

	if ret := c.noopMonitor.handle(c, producers); ret != EngineFailed {
		return c.stepResult(ret)
	}

	if ret := c.negotiator.handlePriority(c, producers); ret != EngineFailed {
		return c.stepResult(ret)
	}

	if ret := c.negotiator.handleExtMetaData(c, producers); ret != EngineFailed {
		return c.stepResult(ret)
	}

	if ret := c.negotiator.handleValueCompression(c, producers); ret != EngineFailed {
		return c.stepResult(ret)
	}

	if ret := c.negotiator.handleCursorDropping(c, producers); ret != EngineFailed {
		return c.stepResult(ret)
	}

	resp := c.getNextItem()
	if resp == nil {
		return EngineSuccess
	}

	var ret EngineCode
	switch resp := resp.(type) {
	case *AddStreamResponse:
		ret = c.sendToHost(func() EngineCode {
			return producers.AddStreamRsp(resp.Opaque, resp.StreamOpaque, resp.Status)
		})
	case *StreamRequest:
		newOpaque := resp.Opaque
		ret = c.sendToHost(func() EngineCode {
			return producers.StreamReq(newOpaque, resp.VbucketID, resp.Flags,
				resp.StartSeqno, resp.EndSeqno, resp.VbUuid,
				resp.SnapStartSeqno, resp.SnapEndSeqno)
		})
	case *SetVBucketStateResponse:
		ret = c.sendToHost(func() EngineCode {
			return producers.SetVbucketStateRsp(resp.Opaque, resp.Status)
		})
	case *SnapshotMarkerResponse:
		ret = c.sendToHost(func() EngineCode {
			return producers.MarkerRsp(resp.Opaque, resp.Status)
		})
	default:
		c.logger.Warn("unknown consumer event, disconnecting",
			zap.Stringer("event", resp.Event()))
		ret = EngineDisconnect
	}

	return c.stepResult(ret)
}

// HandleResponse acknowledges buffer-ack and control responses silently and
// correlates every other producer response by opaque before dispatching it.
func (c *Consumer) HandleResponse(resp *ResponsePacket) EngineCode {
	if c.doDisconnect() {
		return EngineDisconnect
	}

	// Control and buffer-ack opaques are minted without a registry entry.
	if resp.OpCode == OpCodeDcpBufferAck || resp.OpCode == OpCodeDcpControl {
		return EngineSuccess
	}

	conv, ok := c.opaques.Lookup(resp.Opaque)
	if !ok || !c.isValidOpaque(resp.Opaque, conv.VbID) {
		c.logger.Warn("received response but that stream no longer exists",
			zap.Uint32("opaque", resp.Opaque))
		return EngineKeyNotFound
	}

	if resp.OpCode == OpCodeDcpStreamReq {
		vbID := conv.VbID

		if resp.Status == StatusRollback {
			if len(resp.Body) != 8 {
				c.logger.Warn("received rollback request with incorrect body length, disconnecting",
					zap.Uint16("vbID", vbID),
					zap.Int("bodyLen", len(resp.Body)))
				c.disconnect.Store(true)
				return EngineDisconnect
			}

			rollbackSeqno := binary.BigEndian.Uint64(resp.Body)
			c.logger.Info("received rollback request",
				zap.Uint16("vbID", vbID),
				zap.Uint64("rollbackSeqno", rollbackSeqno))

			c.writerExecutor.Schedule(&rollbackTask{
				consumer:      c,
				opaque:        resp.Opaque,
				vbID:          vbID,
				rollbackSeqno: rollbackSeqno,
			}, 0)
			return EngineSuccess
		}

		if (len(resp.Body)%16 != 0 || len(resp.Body) == 0) && resp.Status == StatusSuccess {
			c.logger.Warn("got a stream response with a bad failover log, disconnecting",
				zap.Uint16("vbID", vbID),
				zap.Int("bodyLen", len(resp.Body)))
			c.disconnect.Store(true)
			return EngineDisconnect
		}

		c.streamAccepted(resp.Opaque, resp.Status, resp.Body)
		return EngineSuccess
	}

	c.logger.Warn("trying to handle an unknown response, disconnecting",
		zap.Stringer("opcode", resp.OpCode))
	c.disconnect.Store(true)
	return EngineDisconnect
}

// streamAccepted installs the response's failover log on the partition and
// moves the stream out of pending.
func (c *Consumer) streamAccepted(opaque uint32, status Status, body []byte) {
	conv, ok := c.opaques.Lookup(opaque)
	if !ok {
		c.logger.Warn("no opaque found for add stream response",
			zap.Uint32("opaque", opaque))
		return
	}

	vbID := conv.VbID
	stream := c.streams[vbID].Load()
	if stream != nil && stream.Opaque() == opaque && stream.State() == StreamStatePending {
		if status == StatusSuccess {
			vb := c.engine.GetVBucket(vbID)
			if vb != nil {
				vb.Failovers().Replace(parseFailoverLog(body))
				c.engine.Store().ScheduleVBSnapshot(vbID)
			}
		}
		c.logger.Info("add stream response processed",
			zap.Uint16("vbID", vbID),
			zap.Uint32("opaque", opaque),
			zap.Bool("succeeded", status == StatusSuccess),
			zap.Stringer("status", status))
		stream.AcceptStream(status, conv.ExternalOpaque)
	} else {
		c.logger.Warn("trying to add stream, but none exists",
			zap.Uint16("vbID", vbID),
			zap.Uint32("opaque", opaque),
			zap.Uint32("addOpaque", conv.ExternalOpaque))
	}
	c.opaques.Remove(opaque)
}

// doRollback executes one rollback attempt, returning true when the task
// should be rescheduled.
func (c *Consumer) doRollback(opaque uint32, vbID uint16, rollbackSeqno uint64) bool {
	ret := c.engine.Store().Rollback(vbID, rollbackSeqno)

	switch ret {
	case EngineNotMyVbucket:
		c.logger.Warn("rollback failed because the vbucket was not found",
			zap.Uint16("vbID", vbID))
		return false

	case EngineTempFail:
		// Reschedule the rollback.
		return true

	case EngineSuccess:
		// expected

	default:
		panic(fmt.Sprintf("unexpected error code from rollback: %s", ret))
	}

	vb := c.engine.GetVBucket(vbID)
	stream := c.streams[vbID].Load()
	if vb != nil && stream != nil {
		stream.ReconnectStream(vb, opaque, vb.HighSeqno())
	}

	return false
}

// reconnectSlowStream re-issues a stream request when a stream ended with
// reason slow; any other end reason is a normal teardown.
func (c *Consumer) reconnectSlowStream(resp *StreamEndResponse) bool {
	if resp.Flags != EndStreamStatusSlow {
		return false
	}

	vbID := resp.VbucketID
	vb := c.engine.GetVBucket(vbID)
	if vb == nil {
		return false
	}

	stream := c.streams[vbID].Load()
	if stream == nil {
		return false
	}

	c.logger.Info("consumer is attempting to reconnect stream, as it received a stream end with reason slow",
		zap.Uint16("vbID", vbID))
	stream.ReconnectStream(vb, resp.Opaque, vb.HighSeqno())
	return true
}

// processBufferedItems drains every stream's buffer as far as the
// replication throttle allows, crediting freed bytes to flow control.
func (c *Consumer) processBufferedItems() ProcessResult {
	c.itemsToProcess.Store(false)
	processRet := AllProcessed

	for vbID := range c.streams {
		stream := c.streams[vbID].Load()
		if stream == nil {
			continue
		}

		for {
			if !c.engine.ReplicationThrottle().ShouldProcess() {
				c.backoffs.Inc()
				throttleBackoffs.Add(c.metricsCtx, 1)
				return CannotProcess
			}

			bytesProcessed, ret := stream.ProcessBufferedMessages()
			c.flowControl.IncrFreedBytes(bytesProcessed)
			processRet = ret

			if bytesProcessed == 0 || ret == CannotProcess {
				break
			}
		}
	}

	if c.flowControl.IsBufferSufficientlyDrained() {
		// Notify the host now to get the flow-control ack out; waiting for
		// the connection manager's own cadence would delay the ack to the
		// producer.
		c.connManager.NotifyPausedConnection(c, false)
	}

	if processRet == AllProcessed && c.itemsToProcess.Load() {
		return MoreToProcess
	}

	return processRet
}

// getNextItem drains the ready list round-robin, re-queueing a stream that
// produced a response at the tail.
func (c *Consumer) getNextItem() DcpResponse {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()

	c.paused.Store(false)
	for len(c.ready) > 0 {
		vbID := c.ready[0]
		c.ready = c.ready[1:]

		stream := c.streams[vbID].Load()
		if stream == nil {
			continue
		}

		resp := stream.Next()
		if resp == nil {
			continue
		}

		switch resp.(type) {
		case *StreamRequest, *AddStreamResponse, *SetVBucketStateResponse, *SnapshotMarkerResponse:
		default:
			panic(fmt.Sprintf("consumer is attempting to write an unexpected event: %s",
				resp.Event()))
		}

		c.ready = append(c.ready, vbID)
		return resp
	}
	c.paused.Store(true)

	return nil
}

// notifyStreamReady queues a vbucket for the outbound pump, deduplicating
// on insert.
func (c *Consumer) notifyStreamReady(vbID uint16) {
	c.readyMu.Lock()
	if !c.pushReadyLocked(vbID) {
		c.readyMu.Unlock()
		return
	}
	c.readyMu.Unlock()

	c.connManager.NotifyPausedConnection(c, true)
}

// pushReadyLocked appends vbID to the ready list unless already present.
// Callers hold readyMu.
func (c *Consumer) pushReadyLocked(vbID uint16) bool {
	if slices.Contains(c.ready, vbID) {
		return false
	}
	c.ready = append(c.ready, vbID)
	return true
}

// cancelTask cancels the processor task exactly once across the consumer
// teardown and the task's own exit.
func (c *Consumer) cancelTask() {
	if c.taskCancelled.CompareAndSwap(false, true) {
		c.processorHandle.Cancel()
	}
}

// notifyTaskCancelled records that the processor task stopped on its own;
// the executor's cancel is then never invoked.
func (c *Consumer) notifyTaskCancelled() {
	c.taskCancelled.CompareAndSwap(false, true)
}

func (c *Consumer) closeAllStreams() {
	for vbID := range c.streams {
		if stream := c.streams[vbID].Load(); stream != nil {
			stream.SetDead(EndStreamStatusDisconnected)
		}
	}
}

func (c *Consumer) doDisconnect() bool {
	return c.disconnect.Load()
}

// isValidOpaque reports whether a minted opaque still names the live stream
// for its vbucket.
func (c *Consumer) isValidOpaque(opaque uint32, vbID uint16) bool {
	if int(vbID) >= len(c.streams) {
		return false
	}
	stream := c.streams[vbID].Load()
	return stream != nil && stream.Opaque() == opaque
}

// IsStreamPresent reports whether a live stream exists for a vbucket.
func (c *Consumer) IsStreamPresent(vbID uint16) bool {
	if int(vbID) >= len(c.streams) {
		return false
	}
	stream := c.streams[vbID].Load()
	return stream != nil && stream.IsActive()
}

// lookupStream returns the live stream an inbound call addresses, or nil.
func (c *Consumer) lookupStream(opaque uint32, vbID uint16) *PassiveStream {
	if int(vbID) >= len(c.streams) {
		return nil
	}
	stream := c.streams[vbID].Load()
	if stream == nil || stream.Opaque() != opaque || !stream.IsActive() {
		return nil
	}
	return stream
}

// deliver hands a message to a stream, arming the processor task when the
// stream reports back-pressure.
func (c *Consumer) deliver(stream *PassiveStream, resp DcpResponse) EngineCode {
	err := stream.MessageReceived(resp)

	if err == EngineTempFail && c.itemsToProcess.CompareAndSwap(false, true) {
		c.processorHandle.Wake()
	}

	return err
}

// stepResult lifts a source's success to want-more for the host and makes
// a disconnect sticky.
func (c *Consumer) stepResult(ret EngineCode) EngineCode {
	if ret == EngineSuccess {
		return EngineWantMore
	}
	if ret == EngineDisconnect {
		c.disconnect.Store(true)
	}
	return ret
}

// sendToHost runs an outbound producers call under the host's memory
// tracking guard, restoring it on every exit path.
func (c *Consumer) sendToHost(fn func() EngineCode) EngineCode {
	restore := c.memTracker.SwitchThread()
	defer restore()
	return fn()
}

// parseFailoverLog decodes the concatenated 16-byte (uuid, seqno) records
// of a stream-request response body.
func parseFailoverLog(body []byte) []FailoverEntry {
	numEntries := len(body) / 16
	entries := make([]FailoverEntry, numEntries)
	for i := 0; i < numEntries; i++ {
		entries[i] = FailoverEntry{
			VbUuid: binary.BigEndian.Uint64(body[i*16+0:]),
			SeqNo:  binary.BigEndian.Uint64(body[i*16+8:]),
		}
	}
	return entries
}
