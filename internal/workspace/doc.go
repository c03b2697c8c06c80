// Package workspace persists annotation sessions so a dataset can be closed
// and resumed.
//
// Each dataset gets a workspace directory holding a SQLite database and a lock
// file. The lock keeps two wepp processes from annotating the same dataset at
// once. Save writes the archive snapshot, the next record id and the current
// position in one transaction; Load hands them back for archive.Restore. An
// upload that was in flight when the session was saved is not persisted, so
// its cells are sent again on the next sync.
package workspace
