package dcpx

import (
	"sync"
	"testing"
	"time"
)

type fakeThrottle struct {
	lock  sync.Mutex
	allow bool
}

func (t *fakeThrottle) ShouldProcess() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.allow
}

func (t *fakeThrottle) setAllow(allow bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.allow = allow
}

type fakeFailoverTable struct {
	lock    sync.Mutex
	entries []FailoverEntry
}

func (f *fakeFailoverTable) LatestEntry() FailoverEntry {
	f.lock.Lock()
	defer f.lock.Unlock()
	if len(f.entries) == 0 {
		return FailoverEntry{}
	}
	return f.entries[0]
}

func (f *fakeFailoverTable) Replace(entries []FailoverEntry) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.entries = entries
}

func (f *fakeFailoverTable) snapshot() []FailoverEntry {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]FailoverEntry(nil), f.entries...)
}

type fakeVbucket struct {
	state     VbucketState
	highSeqno uint64
	snapInfo  SnapshotInfo
	failovers *fakeFailoverTable

	backfill       bool
	openCkptID     uint64
	newCheckpoints int
	createdSnaps   []SnapshotRange
	updatedEnds    []uint64
}

func newFakeVbucket(state VbucketState) *fakeVbucket {
	return &fakeVbucket{
		state:      state,
		openCkptID: 1,
		failovers:  &fakeFailoverTable{},
	}
}

func (vb *fakeVbucket) State() VbucketState        { return vb.state }
func (vb *fakeVbucket) HighSeqno() uint64          { return vb.highSeqno }
func (vb *fakeVbucket) SnapshotInfo() SnapshotInfo { return vb.snapInfo }
func (vb *fakeVbucket) Failovers() FailoverTable   { return vb.failovers }
func (vb *fakeVbucket) IsBackfillPhase() bool      { return vb.backfill }
func (vb *fakeVbucket) SetBackfillPhase(backfill bool) {
	vb.backfill = backfill
}
func (vb *fakeVbucket) SetBackfillSnapshot(start, end uint64) {
	vb.createdSnaps = append(vb.createdSnaps, SnapshotRange{Start: start, End: end})
}
func (vb *fakeVbucket) CreateSnapshot(start, end uint64) {
	vb.createdSnaps = append(vb.createdSnaps, SnapshotRange{Start: start, End: end})
}
func (vb *fakeVbucket) UpdateSnapshotEnd(end uint64) {
	vb.updatedEnds = append(vb.updatedEnds, end)
}
func (vb *fakeVbucket) OpenCheckpointID() uint64 { return vb.openCkptID }
func (vb *fakeVbucket) AddNewCheckpoint()        { vb.newCheckpoints++ }

type storedItem struct {
	item     *Item
	extMeta  []byte
	backfill bool
}

type fakeStore struct {
	lock sync.Mutex

	setRet    EngineCode
	deleteRet EngineCode

	sets      []storedItem
	deletes   []storedItem
	vbStates  map[uint16]VbucketState
	snapshots []uint16

	rollbackRet   EngineCode
	rollbackCalls []uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vbStates: make(map[uint16]VbucketState),
	}
}

func (s *fakeStore) SetWithMeta(item *Item, extMeta []byte) EngineCode {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sets = append(s.sets, storedItem{item: item, extMeta: extMeta})
	return s.setRet
}

func (s *fakeStore) AddBackfillItem(item *Item, extMeta []byte) EngineCode {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sets = append(s.sets, storedItem{item: item, extMeta: extMeta, backfill: true})
	return s.setRet
}

func (s *fakeStore) DeleteWithMeta(item *Item, extMeta []byte) EngineCode {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.deletes = append(s.deletes, storedItem{item: item, extMeta: extMeta})
	return s.deleteRet
}

func (s *fakeStore) SetVbucketState(vbID uint16, state VbucketState) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.vbStates[vbID] = state
}

func (s *fakeStore) Rollback(vbID uint16, rollbackSeqno uint64) EngineCode {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rollbackCalls = append(s.rollbackCalls, rollbackSeqno)
	return s.rollbackRet
}

func (s *fakeStore) ScheduleVBSnapshot(vbID uint16) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.snapshots = append(s.snapshots, vbID)
}

func (s *fakeStore) numSets() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.sets)
}

type fakeEngine struct {
	vbuckets map[uint16]*fakeVbucket
	store    *fakeStore
	throttle *fakeThrottle
	memHigh  bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		vbuckets: make(map[uint16]*fakeVbucket),
		store:    newFakeStore(),
		throttle: &fakeThrottle{allow: true},
	}
}

func (e *fakeEngine) GetVBucket(vbID uint16) Vbucket {
	vb, ok := e.vbuckets[vbID]
	if !ok {
		return nil
	}
	return vb
}

func (e *fakeEngine) Store() KvStore                           { return e.store }
func (e *fakeEngine) ReplicationThrottle() ReplicationThrottle { return e.throttle }
func (e *fakeEngine) IsMemUsageHigh() bool                     { return e.memHigh }

type producerCall struct {
	kind string

	opaque       uint32
	streamOpaque uint32
	vbID         uint16
	flags        DcpAddStreamFlags
	startSeqno   uint64
	endSeqno     uint64
	vbUuid       uint64
	snapStart    uint64
	snapEnd      uint64
	status       Status
	key          string
	value        string
	ackBytes     uint32
}

type fakeProducers struct {
	lock  sync.Mutex
	calls []producerCall
	ret   EngineCode
}

func (p *fakeProducers) record(call producerCall) EngineCode {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.calls = append(p.calls, call)
	return p.ret
}

func (p *fakeProducers) StreamReq(opaque uint32, vbID uint16, flags DcpAddStreamFlags,
	startSeqno, endSeqno, vbUuid, snapStartSeqno, snapEndSeqno uint64) EngineCode {
	return p.record(producerCall{
		kind:       "stream_req",
		opaque:     opaque,
		vbID:       vbID,
		flags:      flags,
		startSeqno: startSeqno,
		endSeqno:   endSeqno,
		vbUuid:     vbUuid,
		snapStart:  snapStartSeqno,
		snapEnd:    snapEndSeqno,
	})
}

func (p *fakeProducers) AddStreamRsp(opaque uint32, streamOpaque uint32, status Status) EngineCode {
	return p.record(producerCall{
		kind:         "add_stream_rsp",
		opaque:       opaque,
		streamOpaque: streamOpaque,
		status:       status,
	})
}

func (p *fakeProducers) SetVbucketStateRsp(opaque uint32, status Status) EngineCode {
	return p.record(producerCall{kind: "set_vbucket_state_rsp", opaque: opaque, status: status})
}

func (p *fakeProducers) MarkerRsp(opaque uint32, status Status) EngineCode {
	return p.record(producerCall{kind: "marker_rsp", opaque: opaque, status: status})
}

func (p *fakeProducers) Control(opaque uint32, key string, value string) EngineCode {
	return p.record(producerCall{kind: "control", opaque: opaque, key: key, value: value})
}

func (p *fakeProducers) BufferAck(opaque uint32, ackBytes uint32) EngineCode {
	return p.record(producerCall{kind: "buffer_ack", opaque: opaque, ackBytes: ackBytes})
}

func (p *fakeProducers) callsOfKind(kind string) []producerCall {
	p.lock.Lock()
	defer p.lock.Unlock()

	var out []producerCall
	for _, call := range p.calls {
		if call.kind == kind {
			out = append(out, call)
		}
	}
	return out
}

type fakeConnManager struct {
	lock     sync.Mutex
	notifies int
}

func (m *fakeConnManager) NotifyPausedConnection(consumer *Consumer, schedule bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.notifies++
}

type manualTaskHandle struct {
	lock    sync.Mutex
	task    Task
	wakes   int
	cancels int
}

func (h *manualTaskHandle) Wake() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.wakes++
}

func (h *manualTaskHandle) Cancel() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.cancels++
}

func (h *manualTaskHandle) numWakes() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.wakes
}

func (h *manualTaskHandle) numCancels() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.cancels
}

// manualExecutor captures scheduled tasks so tests can drive their Run
// passes synchronously.
type manualExecutor struct {
	lock    sync.Mutex
	handles []*manualTaskHandle
}

func (e *manualExecutor) Schedule(task Task, initialSnooze time.Duration) TaskHandle {
	e.lock.Lock()
	defer e.lock.Unlock()

	h := &manualTaskHandle{task: task}
	e.handles = append(e.handles, h)
	return h
}

func (e *manualExecutor) taskAt(idx int) Task {
	e.lock.Lock()
	defer e.lock.Unlock()

	if idx >= len(e.handles) {
		return nil
	}
	return e.handles[idx].task
}

func (e *manualExecutor) numTasks() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.handles)
}

type testHarness struct {
	consumer  *Consumer
	engine    *fakeEngine
	producers *fakeProducers
	connMgr   *fakeConnManager
	nonIo     *manualExecutor
	writer    *manualExecutor
}

func newTestHarness(t *testing.T, optFns ...func(*ConsumerOptions)) *testHarness {
	engine := newFakeEngine()
	nonIo := &manualExecutor{}
	writer := &manualExecutor{}
	connMgr := &fakeConnManager{}

	opts := &ConsumerOptions{
		Name:           "replication:test",
		Engine:         engine,
		ConnManager:    connMgr,
		NonIoExecutor:  nonIo,
		WriterExecutor: writer,
		MaxVbuckets:    8,
		ConnBufferSize: 1200,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	consumer, err := NewConsumer(opts)
	if err != nil {
		t.Fatalf("failed to create consumer: %s", err)
	}
	t.Cleanup(consumer.Close)

	return &testHarness{
		consumer:  consumer,
		engine:    engine,
		producers: &fakeProducers{},
		connMgr:   connMgr,
		nonIo:     nonIo,
		writer:    writer,
	}
}

// addReplicaVbucket installs a replica-state vbucket with one failover
// entry.
func (h *testHarness) addReplicaVbucket(vbID uint16, vbUuid, highSeqno uint64) *fakeVbucket {
	vb := newFakeVbucket(VbucketStateReplica)
	vb.highSeqno = highSeqno
	vb.snapInfo = SnapshotInfo{
		Start: highSeqno,
		Range: SnapshotRange{Start: highSeqno, End: highSeqno},
	}
	vb.failovers.Replace([]FailoverEntry{{VbUuid: vbUuid, SeqNo: 0}})
	h.engine.vbuckets[vbID] = vb
	return vb
}

// stepUntilIdle pumps Step until the consumer reports it has nothing more
// to emit.
func (h *testHarness) stepUntilIdle(t *testing.T) {
	for i := 0; i < 100; i++ {
		ret := h.consumer.Step(h.producers)
		if ret == EngineSuccess {
			return
		}
		if ret != EngineWantMore {
			t.Fatalf("unexpected step result: %s", ret)
		}
	}
	t.Fatal("step never went idle")
}

// runProcessor drives one pass of the scheduled processor task.
func (h *testHarness) runProcessor(t *testing.T) {
	task := h.nonIo.taskAt(0)
	if task == nil {
		t.Fatal("no processor task scheduled")
	}
	task.Run()
}
