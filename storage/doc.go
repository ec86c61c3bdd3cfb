// Package storage provides the durable key-value backends that persist
// enrollment records across power cycles.
//
// All backends implement interfaces.KVBackend: namespaced views with
// NVS-style typed get/put primitives and a namespace-wide clear. One
// namespace holds one device's enrollment record.
//
// # Backends
//
//   - mem:// - process memory, for tests and ephemeral simulator runs
//   - file:// - local filesystem, one directory per namespace with
//     atomic temp-file-and-rename writes
//   - sqlite:// - a single SQLite database, the default durable store
//   - vault:// - HashiCorp Vault KV v2
//   - s3:// - Amazon S3 or compatible object storage
//
// Backends are created by Factory from a location URI. The typed encoding
// (bools as one 0/1 byte, integers as 8 bytes big-endian) is shared across
// backends, so a record written through one backend reads identically
// through another pointed at the same data.
//
// # Write Contract
//
// PutBytes reports the number of bytes written. The enrollment layer treats
// a short write as an uncommitted round; backends must never leave a value
// half-applied (the file backend, for example, replaces values via rename).
package storage
