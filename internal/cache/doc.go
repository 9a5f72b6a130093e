// Package cache defines the flat, disk-backed image directory used by the
// ingest pipeline. Every stored image is a single file named
// <hash-prefix><extension> directly under the configured directory; there is no
// manifest, so a directory listing is the cache index. Writes go through a
// temp file + rename and are write-once: a name that already exists is never
// replaced, which keeps every path handed out to callers byte-stable.
package cache
