// Package presence fans out online-user snapshots to connected clients.
//
// Every registry mutation produces exactly one Publish carrying the complete
// post-mutation online set — no batching, no deltas. This is a deliberate
// simplicity/consistency tradeoff: clients replace their local set verbatim,
// so a dropped intermediate snapshot self-heals on the next one.
//
// Delivery is non-blocking per subscriber. A connection whose buffer is full
// misses snapshots instead of stalling the mutation path for everyone else;
// transport-level backpressure is the write pump's problem, not the
// broadcaster's.
package presence
