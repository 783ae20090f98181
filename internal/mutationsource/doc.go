// Package mutationsource defines the on-disk/SSTable collaborator the row
// cache reads through to on a miss, and a simple in-memory implementation
// for tests and the reference fixture used by internal/rowcache.
//
// The real external interface (spec §6 "Mutation source") is a streaming
// call carrying partition range, clustering slice, priority and tracing
// parameters that this module only ever consumes, never implements; here it
// is narrowed to the two operations internal/rowcache actually drives: a
// point lookup by decorated key and an ordered range scan.
package mutationsource
