package domain

type VerdictSource string

const (
	SourceNone  VerdictSource = "none"
	SourceRule  VerdictSource = "rule"
	SourceModel VerdictSource = "model"
)

// ApprovedReason is the reason attached to clean verdicts.
const ApprovedReason = "Transaction approved"

type FraudVerdict struct {
	Flagged bool          `json:"flagged"`
	Reason  string        `json:"reason"`
	Score   *float64      `json:"score,omitempty"`
	Source  VerdictSource `json:"source"`
}

func CleanVerdict() FraudVerdict {
	return FraudVerdict{Reason: ApprovedReason, Source: SourceNone}
}
