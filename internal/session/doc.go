// Package session drives an annotation pass over a dataset.
//
// A Session owns the loaded recording, the staging area and the archive, and
// moves a cursor over every (recording, segment) pair. Entering a segment
// restores its saved picks or, for a segment never saved, picks the default
// windows on the selected channels. AcceptAndNext saves the segment, persists
// the workspace and advances; finishing a recording hands the unsynced
// archive to the sync client, and a successful response for the latest upload
// moves the synced watermark.
//
// Every method takes the session lock. Events raised while it is held are
// queued and delivered to the hub after it is released, which lets handlers
// (including the session's own sync handler) call back in.
package session
