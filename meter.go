package imagegate

import "time"

// Meter observes admission and generation events for monitoring/logging.
type Meter interface {
	// OnAdmission is called at each admission state change.
	OnAdmission(event AdmissionEvent)

	// OnResult is called when a generator returns a result.
	OnResult(event ResultEvent)
}

// AdmissionOutcome is the state an admission attempt reached.
type AdmissionOutcome string

const (
	OutcomeRefused  AdmissionOutcome = "refused"
	OutcomeWaiting  AdmissionOutcome = "waiting"
	OutcomeAdmitted AdmissionOutcome = "admitted"
	OutcomeReleased AdmissionOutcome = "released"
)

// AdmissionEvent describes one step of an admission attempt.
type AdmissionEvent struct {
	RequestID string
	Outcome   AdmissionOutcome
	Active    int64
	DailyUsed int64
	Waited    time.Duration
	// Error is the guarded operation's error on release.
	Error error
}

// ResultEvent describes the outcome of a generator call.
type ResultEvent struct {
	Generator string
	Model     string
	Attempt   int
	Success   bool
	Duration  time.Duration
	Images    int
	Error     error
}
