package dcpx

import (
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// StreamState is the lifecycle state of a passive stream.
type StreamState int32

const (
	// StreamStatePending means a stream request has been (or will be)
	// emitted and the producer has not answered yet.
	StreamStatePending = StreamState(0)

	// StreamStateReading means the producer accepted the stream and
	// replication traffic is valid.
	StreamStateReading = StreamState(1)

	// StreamStateDead is terminal; the stream accepts no further input and
	// produces no further output.
	StreamStateDead = StreamState(2)
)

// String returns the textual representation of this StreamState.
func (s StreamState) String() string {
	switch s {
	case StreamStatePending:
		return "pending"
	case StreamStateReading:
		return "reading"
	case StreamStateDead:
		return "dead"
	}
	return "unknown"
}

// ProcessResult is the aggregate outcome of one buffered-drain pass.
type ProcessResult int

const (
	// AllProcessed means the buffer was empty once the pass finished.
	AllProcessed = ProcessResult(0)

	// MoreToProcess means work remains but the pass yielded.
	MoreToProcess = ProcessResult(1)

	// CannotProcess means the replication throttle refused admission and no
	// forward progress was made.
	CannotProcess = ProcessResult(2)
)

type snapshotType int32

const (
	snapshotTypeNone   = snapshotType(0)
	snapshotTypeDisk   = snapshotType(1)
	snapshotTypeMemory = snapshotType(2)
)

// processBatchSize bounds how many buffered messages one drain call applies
// before yielding back to the processor task.
const processBatchSize = 10

// PassiveStream is the per-vbucket state machine for inbound replication.
// The network thread feeds it through MessageReceived while the processor
// task drains its buffer through ProcessBufferedMessages; the two paths are
// safe to run concurrently.
type PassiveStream struct {
	logger   *zap.Logger
	engine   EngineBridge
	consumer *Consumer

	flags  DcpAddStreamFlags
	opaque uint32
	vbID   uint16

	state atomic.Int32

	// streamMu guards the requested range, the ready queue and itemsReady.
	streamMu       sync.Mutex
	startSeqno     uint64
	endSeqno       uint64
	vbUuid         uint64
	snapStartSeqno uint64
	snapEndSeqno   uint64
	readyQ         []DcpResponse
	itemsReady     bool

	lastSeqno atomic.Uint64

	curSnapshotStart atomic.Uint64
	curSnapshotEnd   atomic.Uint64
	curSnapshotType  atomic.Int32
	curSnapshotAck   bool

	// bufMu guards the inbound message buffer.  Lock ordering is bufMu
	// before streamMu; SetDead releases streamMu before clearing the buffer
	// for the same reason.
	bufMu       sync.Mutex
	bufMessages []DcpResponse
	bufBytes    uint32
}

func newPassiveStream(logger *zap.Logger, engine EngineBridge, consumer *Consumer,
	flags DcpAddStreamFlags, opaque uint32, vbID uint16,
	startSeqno, endSeqno, vbUuid, snapStartSeqno, snapEndSeqno,
	vbHighSeqno uint64) *PassiveStream {
	s := &PassiveStream{
		logger:         logger,
		engine:         engine,
		consumer:       consumer,
		flags:          flags,
		opaque:         opaque,
		vbID:           vbID,
		startSeqno:     startSeqno,
		endSeqno:       endSeqno,
		vbUuid:         vbUuid,
		snapStartSeqno: snapStartSeqno,
		snapEndSeqno:   snapEndSeqno,
	}
	s.lastSeqno.Store(vbHighSeqno)

	s.streamMu.Lock()
	s.pushToReadyQ(&StreamRequest{
		VbucketID:      vbID,
		Opaque:         opaque,
		Flags:          flags,
		StartSeqno:     startSeqno,
		EndSeqno:       endSeqno,
		VbUuid:         vbUuid,
		SnapStartSeqno: snapStartSeqno,
		SnapEndSeqno:   snapEndSeqno,
	})
	s.itemsReady = true
	s.streamMu.Unlock()

	streamType := ""
	if flags&DcpAddStreamFlagTakeover != 0 {
		streamType = "takeover "
	}
	logger.Info("attempting to add "+streamType+"stream",
		zap.Uint16("vbID", vbID),
		zap.Uint64("startSeqno", startSeqno),
		zap.Uint64("endSeqno", endSeqno),
		zap.Uint64("vbUuid", vbUuid),
		zap.Uint64("snapStartSeqno", snapStartSeqno),
		zap.Uint64("snapEndSeqno", snapEndSeqno),
		zap.Uint64("vbHighSeqno", vbHighSeqno))

	return s
}

// Opaque returns the opaque minted for this stream at creation.
func (s *PassiveStream) Opaque() uint32 {
	return s.opaque
}

// VbID returns the vbucket this stream replicates.
func (s *PassiveStream) VbID() uint16 {
	return s.vbID
}

// State returns the stream's current lifecycle state.
func (s *PassiveStream) State() StreamState {
	return StreamState(s.state.Load())
}

// IsActive reports whether the stream still accepts input.
func (s *PassiveStream) IsActive() bool {
	return s.State() != StreamStateDead
}

// LastSeqno returns the highest seqno received so far.
func (s *PassiveStream) LastSeqno() uint64 {
	return s.lastSeqno.Load()
}

// SetDead moves the stream to its terminal state and clears any buffered
// messages, returning the byte count the producer has not yet been
// credited for.
func (s *PassiveStream) SetDead(status EndStreamStatus) uint32 {
	s.streamMu.Lock()
	s.transitionState(StreamStateDead)
	s.streamMu.Unlock()

	unackedBytes := s.clearBuffer()

	logFn := s.logger.Info
	if status == EndStreamStatusDisconnected {
		logFn = s.logger.Warn
	}
	logFn("setting stream to dead state",
		zap.Uint16("vbID", s.vbID),
		zap.Uint64("lastSeqno", s.lastSeqno.Load()),
		zap.Uint32("unackedBytes", unackedBytes),
		zap.Stringer("status", status))

	return unackedBytes
}

// AcceptStream processes the producer's answer to this stream's request,
// transitioning to reading on success and queueing the add-stream response
// for the host.
func (s *PassiveStream) AcceptStream(status Status, addOpaque uint32) {
	s.streamMu.Lock()
	if s.State() != StreamStatePending {
		s.streamMu.Unlock()
		return
	}

	if status == StatusSuccess {
		s.transitionState(StreamStateReading)
	} else {
		s.transitionState(StreamStateDead)
	}
	s.pushToReadyQ(&AddStreamResponse{
		Opaque:       addOpaque,
		StreamOpaque: s.opaque,
		Status:       status,
	})
	s.notifyIfNotReady()
}

// ReconnectStream re-issues this stream's request from startSeqno,
// refreshing the requested range from the vbucket's current failover entry
// and snapshot info.
func (s *PassiveStream) ReconnectStream(vb Vbucket, newOpaque uint32, startSeqno uint64) {
	vbUuid := vb.Failovers().LatestEntry().VbUuid

	info := vb.SnapshotInfo()
	if info.Range.End == info.Start {
		info.Range.Start = info.Start
	}

	s.streamMu.Lock()
	s.vbUuid = vbUuid
	s.snapStartSeqno = info.Range.Start
	s.startSeqno = info.Start
	s.snapEndSeqno = info.Range.End

	s.logger.Info("attempting to reconnect stream",
		zap.Uint16("vbID", s.vbID),
		zap.Uint32("newOpaque", newOpaque),
		zap.Uint64("startSeqno", startSeqno),
		zap.Uint64("endSeqno", s.endSeqno),
		zap.Uint64("snapStartSeqno", s.snapStartSeqno),
		zap.Uint64("snapEndSeqno", s.snapEndSeqno))

	s.lastSeqno.Store(startSeqno)
	s.pushToReadyQ(&StreamRequest{
		VbucketID:      s.vbID,
		Opaque:         newOpaque,
		Flags:          s.flags,
		StartSeqno:     startSeqno,
		EndSeqno:       s.endSeqno,
		VbUuid:         s.vbUuid,
		SnapStartSeqno: s.snapStartSeqno,
		SnapEndSeqno:   s.snapEndSeqno,
	})
	s.notifyIfNotReady()
}

// MessageReceived hands an inbound message to the stream.  EngineSuccess
// means the message was applied synchronously; EngineTempFail means it was
// parked on the buffer for the processor task.
func (s *PassiveStream) MessageReceived(resp DcpResponse) EngineCode {
	if resp == nil {
		return EngineInvalid
	}

	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	if s.State() == StreamStateDead {
		return EngineKeyNotFound
	}

	switch m := resp.(type) {
	case *MutationResponse:
		bySeqno := m.Item.BySeqno
		if bySeqno <= s.lastSeqno.Load() {
			s.logger.Warn("erroneous (out of sequence) mutation received; dropping",
				zap.Uint16("vbID", s.vbID),
				zap.Uint32("opaque", s.opaque),
				zap.Uint64("bySeqno", bySeqno),
				zap.Uint64("lastSeqno", s.lastSeqno.Load()))
			return EngineRange
		}
		s.lastSeqno.Store(bySeqno)
	case *SnapshotMarker:
		if m.StartSeqno < s.lastSeqno.Load() && m.EndSeqno <= s.lastSeqno.Load() {
			s.logger.Warn("erroneous snapshot marker received; dropping",
				zap.Uint16("vbID", s.vbID),
				zap.Uint32("opaque", s.opaque),
				zap.Uint64("startSeqno", m.StartSeqno),
				zap.Uint64("endSeqno", m.EndSeqno),
				zap.Uint64("lastSeqno", s.lastSeqno.Load()))
			return EngineRange
		}
	case *SetVBucketState, *StreamEndResponse:
		// No validations necessary.
	default:
		s.logger.Warn("unknown DCP message received; disconnecting",
			zap.Uint16("vbID", s.vbID),
			zap.Stringer("event", resp.Event()))
		return EngineDisconnect
	}

	if s.engine.ReplicationThrottle().ShouldProcess() && len(s.bufMessages) == 0 {
		// Apply the message here rather than buffering it.
		ret := s.processMessage(resp)
		if ret != EngineTempFail && ret != EngineOutOfMemory {
			return ret
		}
	}

	s.bufMessages = append(s.bufMessages, resp)
	s.bufBytes += resp.MessageSize()

	return EngineTempFail
}

// ProcessBufferedMessages drains up to one batch of buffered messages,
// returning the cumulative byte cost of the drained messages.
func (s *PassiveStream) ProcessBufferedMessages() (uint32, ProcessResult) {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	if len(s.bufMessages) == 0 {
		return 0, AllProcessed
	}

	var count int
	var totalBytesProcessed uint32
	failed := false

	for count < processBatchSize && len(s.bufMessages) > 0 {
		resp := s.bufMessages[0]
		messageBytes := resp.MessageSize()

		ret := s.processMessage(resp)
		if ret == EngineTempFail || ret == EngineOutOfMemory {
			failed = true
			break
		}

		s.bufMessages = s.bufMessages[1:]
		s.bufBytes -= messageBytes
		count++
		totalBytesProcessed += messageBytes
	}

	if failed {
		return totalBytesProcessed, CannotProcess
	}

	if len(s.bufMessages) > 0 {
		return totalBytesProcessed, MoreToProcess
	}

	return totalBytesProcessed, AllProcessed
}

// processMessage applies one message to storage or stream state.  Called
// with bufMu held from both the inline and the buffered-drain paths.
func (s *PassiveStream) processMessage(resp DcpResponse) EngineCode {
	switch m := resp.(type) {
	case *MutationResponse:
		if m.Event() == DcpEventMutation {
			return s.processMutation(m)
		}
		return s.processDeletion(m)
	case *SnapshotMarker:
		s.processMarker(m)
		return EngineSuccess
	case *SetVBucketState:
		s.processSetVBucketState(m)
		return EngineSuccess
	case *StreamEndResponse:
		// A slow-reader end is a request to reconnect rather than a normal
		// teardown.
		if !s.consumer.reconnectSlowStream(m) {
			s.streamMu.Lock()
			s.transitionState(StreamStateDead)
			s.streamMu.Unlock()
		}
		return EngineSuccess
	default:
		panic(fmt.Sprintf("unexpected event on stream buffer: %s", resp.Event()))
	}
}

func (s *PassiveStream) processMutation(mutation *MutationResponse) EngineCode {
	vb := s.engine.GetVBucket(s.vbID)
	if vb == nil {
		return EngineNotMyVbucket
	}

	bySeqno := mutation.Item.BySeqno
	if bySeqno < s.curSnapshotStart.Load() || bySeqno > s.curSnapshotEnd.Load() {
		s.logger.Warn("erroneous mutation, seqno does not fall in the expected snapshot range; dropping",
			zap.Uint16("vbID", s.vbID),
			zap.Uint64("snapshotStart", s.curSnapshotStart.Load()),
			zap.Uint64("bySeqno", bySeqno),
			zap.Uint64("snapshotEnd", s.curSnapshotEnd.Load()))
		return EngineRange
	}

	if ret := s.maybeDecompressValue(mutation.Item); ret != EngineSuccess {
		return ret
	}

	var ret EngineCode
	if vb.IsBackfillPhase() {
		ret = s.engine.Store().AddBackfillItem(mutation.Item, mutation.ExtMeta)
	} else {
		ret = s.engine.Store().SetWithMeta(mutation.Item, mutation.ExtMeta)
	}

	if ret != EngineSuccess {
		s.logger.Warn("error while trying to process mutation",
			zap.Uint16("vbID", s.vbID),
			zap.Stringer("code", ret))
	} else {
		s.handleSnapshotEnd(vb, bySeqno)
	}

	return ret
}

func (s *PassiveStream) processDeletion(deletion *MutationResponse) EngineCode {
	vb := s.engine.GetVBucket(s.vbID)
	if vb == nil {
		return EngineNotMyVbucket
	}

	bySeqno := deletion.Item.BySeqno
	if bySeqno < s.curSnapshotStart.Load() || bySeqno > s.curSnapshotEnd.Load() {
		s.logger.Warn("erroneous deletion, seqno does not fall in the expected snapshot range; dropping",
			zap.Uint16("vbID", s.vbID),
			zap.Uint64("snapshotStart", s.curSnapshotStart.Load()),
			zap.Uint64("bySeqno", bySeqno),
			zap.Uint64("snapshotEnd", s.curSnapshotEnd.Load()))
		return EngineRange
	}

	ret := s.engine.Store().DeleteWithMeta(deletion.Item, deletion.ExtMeta)
	if ret == EngineKeyNotFound {
		ret = EngineSuccess
	}

	if ret != EngineSuccess {
		s.logger.Warn("error while trying to process deletion",
			zap.Uint16("vbID", s.vbID),
			zap.Stringer("code", ret))
	} else {
		s.handleSnapshotEnd(vb, bySeqno)
	}

	return ret
}

func (s *PassiveStream) processMarker(marker *SnapshotMarker) {
	vb := s.engine.GetVBucket(s.vbID)

	s.curSnapshotStart.Store(marker.StartSeqno)
	s.curSnapshotEnd.Store(marker.EndSeqno)
	if marker.Flags&DcpSnapshotMarkerFlagDisk != 0 {
		s.curSnapshotType.Store(int32(snapshotTypeDisk))
	} else {
		s.curSnapshotType.Store(int32(snapshotTypeMemory))
	}

	if vb != nil {
		if marker.Flags&DcpSnapshotMarkerFlagDisk != 0 && vb.HighSeqno() == 0 {
			vb.SetBackfillPhase(true)
			vb.SetBackfillSnapshot(marker.StartSeqno, marker.EndSeqno)
		} else {
			if marker.Flags&DcpSnapshotMarkerFlagCheckpoint != 0 ||
				vb.OpenCheckpointID() == 0 {
				vb.CreateSnapshot(marker.StartSeqno, marker.EndSeqno)
			} else {
				vb.UpdateSnapshotEnd(marker.EndSeqno)
			}
			vb.SetBackfillPhase(false)
		}

		if marker.Flags&DcpSnapshotMarkerFlagAck != 0 {
			s.curSnapshotAck = true
		}
	}
}

func (s *PassiveStream) processSetVBucketState(state *SetVBucketState) {
	s.engine.Store().SetVbucketState(s.vbID, state.State)

	s.streamMu.Lock()
	s.pushToReadyQ(&SetVBucketStateResponse{
		Opaque: s.opaque,
		Status: StatusSuccess,
	})
	s.notifyIfNotReady()
}

// handleSnapshotEnd closes out the current snapshot once its final seqno
// has been applied, creating a new checkpoint where required and emitting a
// marker response if the producer asked for one.
func (s *PassiveStream) handleSnapshotEnd(vb Vbucket, bySeqno uint64) {
	if bySeqno != s.curSnapshotEnd.Load() {
		return
	}

	if snapshotType(s.curSnapshotType.Load()) == snapshotTypeDisk &&
		vb.IsBackfillPhase() {
		vb.SetBackfillPhase(false)
		vb.AddNewCheckpoint()
	} else if s.engine.IsMemUsageHigh() {
		vb.AddNewCheckpoint()
	}

	if s.curSnapshotAck {
		s.streamMu.Lock()
		s.pushToReadyQ(&SnapshotMarkerResponse{
			Opaque: s.opaque,
			Status: StatusSuccess,
		})
		s.notifyIfNotReady()
		s.curSnapshotAck = false
	}
	s.curSnapshotType.Store(int32(snapshotTypeNone))
}

// maybeDecompressValue inflates a value that carries the compressed
// datatype flag.  The flag alone decides; whether value compression was
// negotiated is not checked.
func (s *PassiveStream) maybeDecompressValue(item *Item) EngineCode {
	if item.Datatype&DatatypeFlagCompressed == 0 {
		return EngineSuccess
	}

	value, err := snappy.Decode(nil, item.Value)
	if err != nil {
		s.logger.Warn("failed to inflate compressed mutation value",
			zap.Uint16("vbID", s.vbID),
			zap.Error(err))
		return EngineInvalid
	}

	item.Value = value
	item.Datatype &^= DatatypeFlagCompressed
	return EngineSuccess
}

// Next returns the stream's next outbound response, or nil when there is
// nothing to send.
func (s *PassiveStream) Next() DcpResponse {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	if len(s.readyQ) == 0 {
		s.itemsReady = false
		return nil
	}

	resp := s.readyQ[0]
	s.readyQ = s.readyQ[1:]
	return resp
}

// clearBuffer drops all buffered messages, returning the byte count they
// held.
func (s *PassiveStream) clearBuffer() uint32 {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	unackedBytes := s.bufBytes
	s.bufMessages = nil
	s.bufBytes = 0
	return unackedBytes
}

// BufferedItems returns the number of messages awaiting the processor.
func (s *PassiveStream) BufferedItems() int {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	return len(s.bufMessages)
}

// BufferedBytes returns the byte cost of messages awaiting the processor.
func (s *PassiveStream) BufferedBytes() uint32 {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	return s.bufBytes
}

// pushToReadyQ appends an outbound response.  Callers hold streamMu.
func (s *PassiveStream) pushToReadyQ(resp DcpResponse) {
	s.readyQ = append(s.readyQ, resp)
}

// notifyIfNotReady marks the stream ready and tells the consumer, releasing
// streamMu before calling out.  Callers hold streamMu; it is unlocked on
// return.
func (s *PassiveStream) notifyIfNotReady() {
	if !s.itemsReady {
		s.itemsReady = true
		s.streamMu.Unlock()
		s.consumer.notifyStreamReady(s.vbID)
		return
	}
	s.streamMu.Unlock()
}

// transitionState moves the stream between lifecycle states.  Callers hold
// streamMu.  Invalid transitions are programming errors.
func (s *PassiveStream) transitionState(newState StreamState) {
	current := s.State()
	s.logger.Debug("transitioning stream state",
		zap.Uint16("vbID", s.vbID),
		zap.Stringer("from", current),
		zap.Stringer("to", newState))

	if current == newState {
		return
	}

	validTransition := false
	switch current {
	case StreamStatePending:
		if newState == StreamStateReading || newState == StreamStateDead {
			validTransition = true
		}
	case StreamStateReading:
		if newState == StreamStatePending || newState == StreamStateDead {
			validTransition = true
		}
	case StreamStateDead:
		// Once dead the stream never transitions away.
	}

	if !validTransition {
		panic(fmt.Sprintf("invalid stream state transition from %s to %s",
			current, newState))
	}

	s.state.Store(int32(newState))
}
