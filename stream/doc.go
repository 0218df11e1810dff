// Package stream implements the partitioned ingestion layer: a total
// stream-key extractor, a per-key bounded FIFO consumer, and the router
// that owns the key → consumer map.
//
// Ordering contract: events routed to the same stream key are handled
// strictly in arrival order by that key's single worker; events on
// different keys proceed concurrently with no ordering between them.
package stream
