package domain

// Outcome tags how a dispatch ended.
type Outcome string

const (
	OutcomeSent          Outcome = "sent"
	OutcomeFailed        Outcome = "failed"
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
	OutcomeNoEligible    Outcome = "no_eligible_recipients"
	OutcomeDisabled      Outcome = "disabled"
)

func (o Outcome) String() string { return string(o) }

// DispatchResult summarizes one dispatch. Err carries the typed cause for
// every outcome except OutcomeSent and can be matched with errors.Is.
type DispatchResult struct {
	Outcome        Outcome
	Success        bool
	StatusCode     int
	StatusMessage  string
	RecipientCount int
	Err            error
}
