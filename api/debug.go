// File: api/debug.go
// Package api
//
// Debug exposes named runtime probes for operational inspection (health
// checks, admin endpoints) independent of the Control config/metrics path.

package api

// Debug aggregates named probe functions registered at runtime.
type Debug interface {
	// DumpState invokes every registered probe and returns its result
	// keyed by probe name.
	DumpState() map[string]any
}
