// Package largedata observes oversized partitions, rows and cells as they
// pass through a write path, without ever letting that observation slow the
// write down by more than a bounded amount of in-flight concurrency (spec §6
// large-data sink, grounded on original_source/db/large_data_handler.hh's
// "_sem{max_concurrency}" plus "with_sem": fire the observation, bound how
// far behind it can get, never block the caller on completion).
package largedata
