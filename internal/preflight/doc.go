// Package preflight checks that a markstash installation is healthy: the
// data directory is writable, disk space is sufficient, the database opens,
// and the embedding provider is reachable. The doctor command runs these
// before a user blames search quality on something fixable.
package preflight
