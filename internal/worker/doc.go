// Package worker runs background jobs on a schedule.
//
// A Worker does one pass of work per RunOnce call. The Registry runs each
// enabled worker in its own goroutine: once at start, then on every tick of
// its interval, whenever the worker's Wake channel fires, and on Trigger.
//
// The repository engine contributes two workers: the reconciler, which
// drains entities marked dirty by schema updates, and the lock cleaner,
// which removes advisory locks whose lease ran out.
package worker
