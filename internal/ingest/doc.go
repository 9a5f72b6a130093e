// Package ingest resolves remote image URLs referenced by map features into
// stable local references under the site's image directory.
//
// Each URL is fetched at most once: repeated requests in the same run are
// answered from memory, and files left by earlier runs (under the guessed
// extension or its .jpg rewrite) satisfy a request without touching the
// network. Downloaded images are downscaled to fit the configured bounds and
// re-encoded as JPEG; bytes that cannot be decoded are kept verbatim so a
// successful fetch always leaves a file behind.
//
// Per-URL failures (invalid URL, fetch failure, undecodable bytes) never
// escape Resolve/ResolveBatch; only filesystem failures are returned, as a
// *WriteError, because they indicate a broken environment rather than bad data.
package ingest
