// Package enrollment implements the PUF enrollment state machine.
//
// A device's enrollment record moves through three states:
//
//	UNINITIALIZED -> ENROLLING(round) -> COMPLETE
//
// Every boot is one call to Controller.Step with the boot's reset cause and
// a sample source. While enrollment is incomplete, only a genuine power-on
// is accepted: the boot's SRAM image is folded into the per-bit counters
// and the record is committed, accumulator before round counter, so that a
// power loss at any point leaves the record on a committed round. Soft
// resets, watchdog resets and brownouts are rejected without touching
// storage, and the operator is prompted to perform a real power cycle.
//
// A stored accumulator that fails its length check is treated as
// corruption: accumulation restarts from round zero on the next genuine
// boot and the current sample is discarded. A persist that writes short
// leaves the round counter unchanged so the round is retried.
//
// Once the configured round count is reached the record is terminal: each
// subsequent boot, on any reset cause, re-derives the same final key from
// the stored accumulator. The only way back is the explicit manual reset,
// which erases the device's storage namespace.
package enrollment
