// Package archive keeps the committed peak picks of a session, keyed by
// (recording, segment), together with annotation progress and the watermark
// of what has been synced to the remote store.
//
// Uploads happen at recording boundaries: PrepareUpload moves the pending
// watermark to the end of the archive and returns everything past the last
// confirmed boundary plus any earlier cells re-saved since, and ConfirmUpload
// commits the boundary once the remote store accepts the payload.
package archive
