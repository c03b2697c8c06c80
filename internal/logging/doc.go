// Package logging builds the slog loggers used across wepp.
//
// Console output uses a compact human-readable layout that lifts the component
// and the current recording/segment into the line header, while log files
// receive JSON lines. Helpers such as WarnWithContext keep warning and error
// lines carrying an event_type and a remediation hint.
package logging
