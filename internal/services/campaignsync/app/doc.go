// Package app runs a campaign view: one goroutine that owns the view state
// and serializes REST snapshots, realtime events, and mutation results.
//
// A View fetches its collections once per mount, follows the campaign room
// through a subscription manager, and publishes a Snapshot after every
// change. Snapshots carry derived escrow facts recomputed from the current
// collections. Navigate re-mounts in place; responses belonging to an older
// mount are dropped by generation.
package app
