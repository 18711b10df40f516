package dcpx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorTaskSnoozeMapping(t *testing.T) {
	h := newTestHarness(t)
	h.addReplicaVbucket(0, 0xaa, 0)

	require.Equal(t, EngineSuccess, h.consumer.AddStream(1, 0, 0))
	acceptStream(t, h, 1, failoverLogBody(FailoverEntry{VbUuid: 0xaa, SeqNo: 0}))

	task := h.nonIo.taskAt(0)
	require.NotNil(t, task)

	// Nothing buffered: settle down for a second.
	snooze, again := task.Run()
	assert.True(t, again)
	assert.Equal(t, 1*time.Second, snooze)

	// Buffered work behind a refusing throttle: back off for five.
	h.engine.throttle.setAllow(false)
	require.Equal(t, EngineSuccess,
		h.consumer.SnapshotMarker(1, 0, 1, 2, DcpSnapshotMarkerFlagMemory))

	snooze, again = task.Run()
	assert.True(t, again)
	assert.Equal(t, 5*time.Second, snooze)

	// Once disconnected the task stops for good.
	h.consumer.SetDisconnect()
	_, again = task.Run()
	assert.False(t, again)
}

func TestProcessorWakesOnBufferedMessage(t *testing.T) {
	h := newTestHarness(t)
	h.addReplicaVbucket(0, 0xaa, 0)

	require.Equal(t, EngineSuccess, h.consumer.AddStream(1, 0, 0))
	acceptStream(t, h, 1, failoverLogBody(FailoverEntry{VbUuid: 0xaa, SeqNo: 0}))

	h.engine.throttle.setAllow(false)

	handle := h.nonIo.handles[0]
	require.Equal(t, 0, handle.numWakes())

	require.Equal(t, EngineSuccess,
		h.consumer.SnapshotMarker(1, 0, 1, 2, DcpSnapshotMarkerFlagMemory))
	assert.Equal(t, 1, handle.numWakes())

	// Further buffered messages do not re-wake until the processor has run.
	require.Equal(t, EngineSuccess,
		h.consumer.SnapshotMarker(1, 0, 3, 4, DcpSnapshotMarkerFlagMemory))
	assert.Equal(t, 1, handle.numWakes())

	h.engine.throttle.setAllow(true)
	h.runProcessor(t)
	assert.False(t, h.consumer.itemsToProcess.Load())

	// Once the processor has drained, a fresh buffered message rearms the
	// wake.
	h.engine.throttle.setAllow(false)
	require.Equal(t, EngineSuccess,
		h.consumer.SnapshotMarker(1, 0, 5, 6, DcpSnapshotMarkerFlagMemory))
	assert.Equal(t, 2, handle.numWakes())
}

func TestProcessorCancelSingleWinner(t *testing.T) {
	h := newTestHarness(t)

	handle := h.nonIo.handles[0]

	h.consumer.Close()
	h.consumer.Close()
	assert.Equal(t, 1, handle.numCancels())
}

func TestProcessorSelfCancelSkipsExecutorCancel(t *testing.T) {
	h := newTestHarness(t)

	h.consumer.SetDisconnect()
	_, again := h.nonIo.taskAt(0).Run()
	require.False(t, again)

	// The task already recorded its own cancellation; teardown must not
	// cancel it through the executor as well.
	h.consumer.Close()
	assert.Equal(t, 0, h.nonIo.handles[0].numCancels())
}

func TestProcessorBackoffCounted(t *testing.T) {
	h := newTestHarness(t)
	h.addReplicaVbucket(0, 0xaa, 0)

	require.Equal(t, EngineSuccess, h.consumer.AddStream(1, 0, 0))
	acceptStream(t, h, 1, failoverLogBody(FailoverEntry{VbUuid: 0xaa, SeqNo: 0}))

	h.engine.throttle.setAllow(false)
	require.Equal(t, EngineSuccess,
		h.consumer.SnapshotMarker(1, 0, 1, 2, DcpSnapshotMarkerFlagMemory))

	require.Equal(t, CannotProcess, h.consumer.processBufferedItems())
	assert.Equal(t, uint64(1), h.consumer.Stats().Backoffs)
}
