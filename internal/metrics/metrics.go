// Package metrics defines the minimal metrics contract used by the import
// and query paths. Core code depends only on Backend; concrete emitters live
// in subpackages so the binary decides what, if anything, ships telemetry.
package metrics

// Backend receives counters and timings. Implementations must be safe for
// concurrent use.
type Backend interface {
	// IncCounter adds value to a named counter. Tags are "key:value" pairs.
	IncCounter(name string, value float64, tags ...string)
	// ObserveMS records a duration in milliseconds under a named metric.
	ObserveMS(name string, ms float64, tags ...string)
	// Flush submits anything buffered. Close implies a final Flush.
	Flush() error
	// Close stops the backend. Call once at shutdown.
	Close() error
}

// Nop is the default backend: it drops everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, ...string) {}
func (Nop) ObserveMS(string, float64, ...string)  {}
func (Nop) Flush() error                          { return nil }
func (Nop) Close() error                          { return nil }
