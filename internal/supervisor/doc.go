// Package supervisor owns the scan worker goroutine: it starts the worker at
// most once per daemon lifetime, waits for the worker's readiness post, and
// exposes the worker's exit so the control server can wait for quiescence.
package supervisor
