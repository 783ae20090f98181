// Package mvcc implements the partition version chain, the partition entry
// that owns it, and the partition snapshot that lets a reader walk a stable
// view of it concurrently with writers (spec §2-4: components B, C, D).
//
// A Version holds one layer of a partition's data (schema.PartitionData).
// Versions form a doubly-linked chain, newest (the Entry's head) first.
// Exactly one VersionRef may point at any given Version at a time: either
// the owning Entry's own ref (the common case) or a detached Snapshot's ref
// once a write has pushed the version out from under the entry's head. This
// package never frees memory explicitly (Go's collector does that); what it
// must get right is the *ownership handoff* — which ref, if any, currently
// points at a version, and when a version becomes safe to unlink from the
// chain.
package mvcc
