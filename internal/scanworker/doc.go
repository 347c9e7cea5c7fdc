// Package scanworker implements the scan worker loop: a single goroutine that
// receives control frames on the worker endpoint, prepares scan worklists from
// the catalog, and advances them one item per idle tick so cancellation and
// shutdown stay responsive while a long scan is running.
//
// The loop moves through IDLE, RUNNING and back to IDLE for each worklist
// generation, with TERMINATING layered on top once KILL_SERVICE arrives. Each
// generation owns one scoped ledger connection, opened when the worklist is
// prepared and closed when it drains.
package scanworker
