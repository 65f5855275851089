package engine

import "time"

// collectorWaitTimeout mirrors workerWaitTimeout: a bound on wake latency
// for a missed signal, not a watchdog interval.
const collectorWaitTimeout = 2 * time.Second

// Collector periodically reclaims DecoderStates the render path has
// flagged ready-for-collection, running on its own ordinary-priority
// goroutine for the PlayerController's lifetime.
type Collector struct {
	controller *PlayerController
	signal     *Semaphore
	stopChan   chan struct{}
}

// NewCollector creates a collector bound to controller, woken by signal.
func NewCollector(controller *PlayerController, signal *Semaphore) *Collector {
	return &Collector{
		controller: controller,
		signal:     signal,
		stopChan:   make(chan struct{}),
	}
}

// Stop asks the collector goroutine to exit at its next wake.
func (col *Collector) Stop() {
	close(col.stopChan)
	col.signal.Signal()
}

// Run is the collector's goroutine body.
func (col *Collector) Run() {
	for {
		select {
		case <-col.stopChan:
			return
		default:
		}

		col.signal.WaitTimeout(collectorWaitTimeout)

		select {
		case <-col.stopChan:
			return
		default:
		}

		reclaimed := col.controller.active.ReclaimMarked()
		for _, ds := range reclaimed {
			ds.Decoder().Close()
		}
	}
}
