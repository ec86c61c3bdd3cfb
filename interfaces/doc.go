// Package interfaces defines the shared types and boundary contracts of the
// SRAM PUF enrollment system.
//
// The package contains the domain types exchanged between components
// (DeviceID, Sample, ResetCause, FinalKey) and the persistent storage
// boundary (KVStore, KVBackend) through which enrollment records survive
// power cycles. Keeping these in a leaf package lets the enrollment core,
// the storage backends, and the provisioning surfaces depend on the
// contracts without depending on each other.
//
// # Storage Boundary
//
// Enrollment state is persisted through a namespaced key-value store with
// NVS-style typed primitives:
//
//	Has(key) -> bool
//	GetBool/GetInt/GetBytes(key, default)
//	PutBool/PutInt(key, value)
//	PutBytes(key, value) -> bytes written
//	Clear()
//
// PutBytes reports bytes written so the enrollment layer can detect partial
// persists and refuse to advance the round counter. Backends are addressed
// by URI (mem://, file://, sqlite://, vault://, s3://) and created by the
// storage package's factory.
package interfaces
