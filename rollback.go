package dcpx

import "time"

// rollbackTask retreats a vbucket to a producer-supplied seqno, then
// reconnects the stream from the vbucket's new high seqno.
type rollbackTask struct {
	consumer      *Consumer
	opaque        uint32
	vbID          uint16
	rollbackSeqno uint64
}

func (t *rollbackTask) Run() (time.Duration, bool) {
	c := t.consumer

	if c.doRollback(t.opaque, t.vbID, t.rollbackSeqno) {
		// Storage was busy; try again shortly.
		return 1 * time.Second, true
	}

	c.rollbacks.Inc()
	rollbackCount.Add(c.metricsCtx, 1)
	return 0, false
}

func (t *rollbackTask) Description() string {
	return "Rolling back vbucket for " + t.consumer.name
}
