package dcpx

import (
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Task is a unit of cooperative background work.  Run executes one pass and
// returns how long the executor should snooze before the next pass, and
// whether the task wants to run again at all.
type Task interface {
	Run() (snooze time.Duration, again bool)
	Description() string
}

// TaskHandle controls a scheduled task.  Wake requests an immediate pass
// regardless of the remaining snooze; Cancel stops the task after any pass
// already in flight.  Both are safe to call repeatedly and concurrently.
type TaskHandle interface {
	Wake()
	Cancel()
}

// Executor schedules cooperative tasks.  The library ships a
// goroutine-backed default; hosts with their own worker pools can supply
// an implementation instead.
type Executor interface {
	Schedule(task Task, initialSnooze time.Duration) TaskHandle
}

type goExecutor struct {
	logger *zap.Logger
}

// NewExecutor returns the default goroutine-backed executor.
func NewExecutor(logger *zap.Logger) Executor {
	return &goExecutor{
		logger: loggerOrNop(logger),
	}
}

func (e *goExecutor) Schedule(task Task, initialSnooze time.Duration) TaskHandle {
	h := &goTaskHandle{
		wake:   make(chan struct{}, 1),
		cancel: make(chan struct{}),
	}

	e.logger.Debug("scheduling task",
		zap.String("description", task.Description()))

	go func() {
		snooze := initialSnooze
		for {
			if !h.sleep(snooze) {
				return
			}

			var again bool
			snooze, again = task.Run()
			if !again {
				return
			}
		}
	}()

	return h
}

type goTaskHandle struct {
	wake      chan struct{}
	cancel    chan struct{}
	cancelled atomic.Bool
}

// sleep waits out the snooze, returning early on a wake.  It returns false
// once the handle is cancelled.
func (h *goTaskHandle) sleep(snooze time.Duration) bool {
	if snooze <= 0 {
		select {
		case <-h.cancel:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(snooze)
	defer timer.Stop()

	select {
	case <-h.cancel:
		return false
	case <-h.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (h *goTaskHandle) Wake() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *goTaskHandle) Cancel() {
	if h.cancelled.CompareAndSwap(false, true) {
		close(h.cancel)
	}
}
