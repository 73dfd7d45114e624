// Package domain holds the mission types shared by the orchestrator, the
// adapters and the APIs: requests, reports, phase kinds, events and the coded
// error taxonomy (invalid_argument, unreachable, phase_fault).
package domain
