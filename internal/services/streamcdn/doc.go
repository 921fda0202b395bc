// Package streamcdn implements the resumable chunked upload against the
// CDN's signed upload sessions: an offset probe to skip bytes already
// received, sequential chunk PUTs, and a stall watchdog.
package streamcdn
