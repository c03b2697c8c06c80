// Package main hosts the wepp CLI entrypoint and command graph.
//
// Every command that works on a recording directory opens the same engine:
// the directory listing, the project file next to the recordings, the
// workspace database, the REDCap client and the annotation session. Commands
// drive the session and render its state; the annotation rules live in the
// internal packages.
package main
