// Package crawler holds the types and collaborator interfaces shared by the
// checkpointed catalog crawl: item identity, output records, the processed
// set, the traversal cursor, page navigation, persistence and pacing.
package crawler
