// Package config collects the tunables the rest of the module needs:
// region budgets, LRU eviction policy, mutation-cleaner batching, the
// large-data sink's concurrency limit and the page cache's bulk-read
// threshold. Options are applied with the functional-options idiom (grounded
// on the pack's Krishna8167-tempuscache/options.go), so new tunables can be
// added without breaking existing call sites.
package config
