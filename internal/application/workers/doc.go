// Package workers implements the worker pool for asynchronous missions.
//
// The pool holds a single subscription to the mission request topic and
// feeds a bounded job queue drained by a fixed number of goroutines. Each
// worker executes one mission at a time on the process roadmap; a mission
// that has started always runs to completion, even during shutdown.
//
// The health monitor tracks worker status and records pool metrics.
package workers
