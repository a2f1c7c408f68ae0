// Package cache defines the disk-backed blob store that sits in front of image
// fetches. Every entry lives in a single flat directory and is named by the
// SHA-256 digest of its key, so arbitrary URLs map onto filesystem-safe names
// without an index file. Writes use temp file + rename so readers never observe
// a half-written blob, and the whole directory can be emptied on demand or when
// the host signals memory pressure. Fetchers depend on this package to serve
// cached bytes and to write through after a network miss.
package cache
