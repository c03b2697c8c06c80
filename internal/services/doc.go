// Package services defines shared utilities consumed by the annotation engine
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, recording names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that let callers decide
//     whether a failure is worth retrying (remote/transient) or needs new input
//     (validation/configuration).
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the tool.
package services
