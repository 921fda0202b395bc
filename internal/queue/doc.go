// Package queue persists sponsor-video publish jobs in SQLite and models
// their lifecycle: the five ordered publish steps expressed as a status
// ladder, per-step failure tracking, and forward-only retry resumption.
package queue
