package types

import (
	"time"
)

// Liveness is the answer of the workflow liveness oracle for the external
// job referenced by a lock originator.
type Liveness string

const (
	LivenessRunning    Liveness = "running"
	LivenessNotRunning Liveness = "notRunning"
	LivenessUnknown    Liveness = "unknown"
)

type Classification string

const (
	ClassificationNone   Classification = "none"
	ClassificationActive Classification = "active"
	ClassificationStale  Classification = "stale"
)

// LockState is the observed and classified state of one resource key.
type LockState struct {
	Key string `json:"key"`

	// Record is nil when no lock exists for the key.
	Record *LockRecord `json:"record"`

	// Raw is the stored payload as read from the backing store, kept for
	// display and audit when the record is malformed.
	Raw []byte `json:"raw,omitempty"`

	// Malformed is set when the payload didn't decode strictly and the
	// record only carries what the lenient decode salvaged.
	Malformed bool `json:"malformed,omitempty"`

	Classification Classification `json:"classification"`
	Reason         string         `json:"reason,omitempty"`

	// Age is the record age at classification time. AgeKnown is false when
	// the record carries no usable creation time.
	Age      time.Duration `json:"age,omitempty"`
	AgeKnown bool          `json:"age_known,omitempty"`
}

// DetectionResult is the outcome of one detection pass over the configured
// resource keys. The pipeline adapter serializes it for the invoking CI
// pipeline.
type DetectionResult struct {
	Locks []*LockState `json:"locks"`

	ActiveLocksFound bool `json:"active_locks_found"`
	StaleLocksFound  bool `json:"stale_locks_found"`

	// LockCount is the number of lock records observed in the pass.
	LockCount int `json:"lock_count"`

	// PendingTokens are the tokens awaiting approval. Empty when the
	// approval gate was not entered (no stale locks, or an active lock
	// takes precedence).
	PendingTokens []string `json:"pending_tokens,omitempty"`
}

// ReleaseOutcome is the result of a release attempt for one approved token.
type ReleaseOutcome string

const (
	ReleaseOutcomeReleased ReleaseOutcome = "released"

	// ReleaseOutcomeNotFound means no record exists for the key anymore.
	// Not an error, but the caller must re-run detection.
	ReleaseOutcomeNotFound ReleaseOutcome = "notFound"

	// ReleaseOutcomeMismatch means the key is now held with a different
	// token. The record was left untouched.
	ReleaseOutcomeMismatch ReleaseOutcome = "mismatch"

	// ReleaseOutcomeRefused means the current state no longer classifies
	// stale for the approved token.
	ReleaseOutcomeRefused ReleaseOutcome = "refused"
)

type LockRelease struct {
	Key     string         `json:"key"`
	Token   string         `json:"token"`
	Outcome ReleaseOutcome `json:"outcome"`
	Reason  string         `json:"reason,omitempty"`
}

// ReleaseResult is the outcome of one release pass over an approved token
// set.
type ReleaseResult struct {
	Releases []*LockRelease `json:"releases"`

	// AllReleased is true when every approved token ended released. Any
	// other outcome means the caller must re-run detection.
	AllReleased bool `json:"all_released"`
}
