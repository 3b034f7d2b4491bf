package model

type ClaimOutcome int

const (
	ClaimNotClaimed ClaimOutcome = iota
	ClaimNotFound
	ClaimClaimed
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimClaimed:
		return "claimed"
	case ClaimNotFound:
		return "not_found"
	default:
		return "not_claimed"
	}
}

// ClaimResult is the tagged outcome of a claim. Task is set only when
// Outcome is ClaimClaimed. Losing a claim race is not an error.
type ClaimResult struct {
	Outcome ClaimOutcome
	Task    *Task
}

func (r ClaimResult) Claimed() bool { return r.Outcome == ClaimClaimed }
