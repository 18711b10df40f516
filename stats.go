package dcpx

// FlowControlStats is a point-in-time view of the flow-control window.
type FlowControlStats struct {
	BufferSize uint32
	FreedBytes uint32
	AckedBytes uint64
}

// StreamStats is a point-in-time view of one passive stream.
type StreamStats struct {
	VbID          uint16
	State         StreamState
	LastSeqno     uint64
	BufferedItems int
	BufferedBytes uint32
}

// ConsumerStats is a point-in-time view of a consumer and its streams.
type ConsumerStats struct {
	Name        string
	Backoffs    uint64
	Rollbacks   uint64
	FlowControl FlowControlStats
	Streams     []StreamStats
}

// Stats snapshots the consumer's counters and per-stream state.
func (c *Consumer) Stats() ConsumerStats {
	stats := ConsumerStats{
		Name:      c.name,
		Backoffs:  c.backoffs.Load(),
		Rollbacks: c.rollbacks.Load(),
		FlowControl: FlowControlStats{
			BufferSize: c.flowControl.bufferSize,
			FreedBytes: c.flowControl.freedBytes.Load(),
			AckedBytes: c.flowControl.ackedBytes.Load(),
		},
	}

	for vbID := range c.streams {
		stream := c.streams[vbID].Load()
		if stream == nil {
			continue
		}

		stats.Streams = append(stats.Streams, StreamStats{
			VbID:          stream.VbID(),
			State:         stream.State(),
			LastSeqno:     stream.LastSeqno(),
			BufferedItems: stream.BufferedItems(),
			BufferedBytes: stream.BufferedBytes(),
		})
	}

	return stats
}
