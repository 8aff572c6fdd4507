package interceptor

import "time"

// Outcome is the terminal state of one transmit.
type Outcome int

const (
	// OutcomeSkipped: not a candidate, or the gate rejected it.
	OutcomeSkipped Outcome = iota
	// OutcomeAbsent: candidate body without an envelope field.
	OutcomeAbsent
	// OutcomeInvalid: the envelope failed shape validation.
	OutcomeInvalid
	// OutcomeFailed: an unexpected error while rewriting.
	OutcomeFailed
	// OutcomeMutated: the body was rewritten.
	OutcomeMutated

	outcomeCount
)

var outcomeNames = [...]string{
	OutcomeSkipped: "skipped",
	OutcomeAbsent:  "absent",
	OutcomeInvalid: "invalid",
	OutcomeFailed:  "failed",
	OutcomeMutated: "mutated",
}

func (o Outcome) String() string {
	if o < 0 || o >= outcomeCount {
		return "unknown"
	}
	return outcomeNames[o]
}

// FailureEvent is emitted once for every Invalid or Failed transmit.
// Error is either prompts.CodeAPIFormatChanged or the raw error message;
// consumers must sanitize it before showing it to a user.
type FailureEvent struct {
	ID             string    `json:"id"`
	Error          string    `json:"error"`
	Target         string    `json:"target"`
	ConversationID string    `json:"conversationId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// FailureHandler receives failure events.
type FailureHandler func(FailureEvent)

// Stats counts transmit outcomes since the interceptor was created.
type Stats struct {
	Skipped     int64 `json:"skipped"`
	Absent      int64 `json:"absent"`
	Invalid     int64 `json:"invalid"`
	Failed      int64 `json:"failed"`
	Mutated     int64 `json:"mutated"`
	Passthrough int64 `json:"passthrough"`
	LedgerSize  int   `json:"ledgerSize"`
}
