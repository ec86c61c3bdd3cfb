// Package puf implements the statistical core of SRAM PUF enrollment: the
// per-bit accumulation fold, the stability classifier, and key derivation.
//
// Enrollment accumulates, across a configured number of genuine power
// cycles, how often each bit of the device's uninitialized SRAM region
// powers up as one. Once all rounds are collected, every bit position is
// classified against a frequency threshold as stable-one, stable-zero, or
// unstable. Stable-one positions are set in an N-byte key candidate;
// everything else stays zero. The candidate is hashed with SHA-256 to
// produce the 32-byte device-unique final key.
//
// All functions here are pure: state threading and persistence belong to
// the enrollment package. Threshold comparisons use integer arithmetic
// scaled by the round count so that boundary frequencies classify
// identically everywhere.
package puf
