// Package notifications carries annotation engine events to interested
// listeners.
//
// Hub lets any number of handlers subscribe per event kind; the engine emits
// through the small Emitter interface so tests can capture events directly.
// The ntfy Service forwards session completion and sync failures as push
// notifications and degrades to a no-op when no topic is configured.
package notifications
