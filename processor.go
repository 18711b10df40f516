package dcpx

import "time"

// processorTask is the cooperative background task that drains buffered
// messages across all of a consumer's streams.
type processorTask struct {
	consumer *Consumer
}

func (t *processorTask) Run() (time.Duration, bool) {
	c := t.consumer

	if c.doDisconnect() {
		c.notifyTaskCancelled()
		return 0, false
	}

	switch c.processBufferedItems() {
	case AllProcessed:
		return 1 * time.Second, true
	case MoreToProcess:
		return 0, true
	case CannotProcess:
		return 5 * time.Second, true
	}

	panic("unexpected result from buffered item processing")
}

func (t *processorTask) Description() string {
	return "Processing buffered items for " + t.consumer.name
}
