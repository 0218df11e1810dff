// Package metrics implements the prometheus collector shared by the stream
// router, consumers and the dispatch scheduler.
//
// A nil *Collector is a valid no-op collector; components never need to
// guard their calls.
package metrics
