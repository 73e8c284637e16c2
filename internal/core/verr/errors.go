// Package verr holds the error taxonomy shared across the verification
// core. Callers classify failures with errors.Is against these sentinels.
package verr

import "errors"

var (
	// ErrUnreadableDocument means the document bytes could not be parsed
	// at all (corrupt file, unsupported format). Distinct from a readable
	// document with no detectable fields, which is not an error.
	ErrUnreadableDocument = errors.New("document unreadable")

	// ErrExtractionUnavailable means the extraction capability itself
	// failed or timed out.
	ErrExtractionUnavailable = errors.New("extraction capability unavailable")

	// ErrRetrievalDegraded means the vector index (or the embedder ahead
	// of it) was unavailable during a fraud/similarity lookup. The
	// workflow recovers locally; this is recorded, never fatal.
	ErrRetrievalDegraded = errors.New("retrieval degraded")

	// ErrChatGeneration means the generation capability failed during a
	// chat turn. The user's message stays persisted; the caller may retry.
	ErrChatGeneration = errors.New("chat generation failed")

	// ErrWorkflowConflict means a second workflow run was attempted on a
	// verification that is no longer in the created phase.
	ErrWorkflowConflict = errors.New("workflow already started for verification")

	// ErrNotFound is returned by store lookups for unknown ids.
	ErrNotFound = errors.New("not found")
)
