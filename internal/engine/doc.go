// Package engine implements the scan task scheduler.
//
// Tasks enter a bounded FIFO queue and are drained by a single dispatch
// goroutine. Directory tasks enumerate candidate files at dispatch time
// and fan out to a bounded worker pool; per-file failures degrade that
// file's result and never abort the batch. Observers consume a bounded,
// non-blocking event bus, so a slow consumer can drop events but can
// never stall a worker.
package engine
