// Package progress carries crawl progress events from the orchestrator to
// pluggable sinks. Events are batched on a background goroutine so emitting
// never blocks the crawl.
package progress
