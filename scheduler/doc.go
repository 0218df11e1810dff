// Package scheduler implements the adaptive per-conversation dispatch layer:
// one polling loop per active stream decides, tick by tick, when to hand the
// conversation to the expensive Processor, under a global concurrency gate
// shared by all streams.
//
// The tick decision itself lives in TickDecider, a plain state object with no
// goroutine or timer of its own, so the cadence contract can be unit-tested
// deterministically.
package scheduler
