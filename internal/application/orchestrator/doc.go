// Package orchestrator implements mission execution.
//
// The manager drives a mission through its state machine:
//   - Takeoff is dispatched while the path is planned
//   - Survey is dispatched once a path exists, and both are joined
//   - ReturnToHome and Land then run in sequence
//
// Every phase holds the vehicle's actuation channel for its whole action, so
// no two phases actuate at once. A planning failure or a phase fault ends the
// mission in the failed state; phases already dispatched are always awaited.
//
// Reports are persisted through ports.ReportStorage and lifecycle events are
// published on ports.EventBus for the API and the worker pool.
package orchestrator
