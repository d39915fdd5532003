// Package checkpoint groups the ProcessedSet backends. Every backend persists
// a key before reporting it as processed.
package checkpoint
