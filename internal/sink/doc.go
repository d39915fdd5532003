// Package sink groups the Append Sink backends. Append returns only after
// the record is durable.
package sink
