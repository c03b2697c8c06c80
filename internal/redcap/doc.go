// Package redcap uploads annotation records to a REDCap project through its
// record import API.
//
// The client keeps one request in flight and coalesces anything sent while it
// is busy into a single queued payload. Every response is published as a
// SyncResponse event carrying the accepted count and the ID of the upload it
// answers; the caller decides whether to confirm the archive watermark.
package redcap
