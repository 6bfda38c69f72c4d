package fraud

import (
	"fmt"
	"smartbank/internal/config"
	"smartbank/internal/domain"

	"github.com/shopspring/decimal"
)

// Rule inspects a pending transfer and returns a reason when it fires.
type Rule struct {
	Name   string
	Detect func(in Input) (bool, string)
}

// RuleEngine runs fixed rules in order; the first one that fires decides.
// Rules are pure functions of their Input, including Input.Now.
type RuleEngine struct {
	rules []Rule
}

func NewRuleEngine(cfg config.Fraud) *RuleEngine {
	largeAmount := decimal.NewFromFloat(cfg.LargeAmount)
	withdrawalRatio := decimal.NewFromFloat(cfg.WithdrawalRatio)
	withdrawalAmount := decimal.NewFromFloat(cfg.WithdrawalAmount)
	withdrawalReason := fmt.Sprintf("Large withdrawal >%s%% of balance", withdrawalRatio.Shift(2).String())

	return &RuleEngine{
		rules: []Rule{
			{
				Name: "daily_limit",
				Detect: func(in Input) (bool, string) {
					limit := in.Account.DailyLimit
					return in.Amount.GreaterThan(limit), fmt.Sprintf("Exceeds daily limit of ₹%s", limit.StringFixed(2))
				},
			},
			{
				Name: "large_burst",
				Detect: func(in Input) (bool, string) {
					since := in.Now.Add(-cfg.Window)
					count := 0
					for _, tx := range in.History {
						if tx.FromAccountID == in.Account.ID && !tx.Timestamp.Before(since) && tx.Amount.GreaterThan(largeAmount) {
							count++
						}
					}
					return count >= cfg.LargeCount, "Multiple large transactions in last hour"
				},
			},
			{
				Name: "large_withdrawal",
				Detect: func(in Input) (bool, string) {
					share := in.Account.Balance.Mul(withdrawalRatio)
					return in.Amount.GreaterThan(share) && in.Amount.GreaterThan(withdrawalAmount), withdrawalReason
				},
			},
		},
	}
}

// Evaluate returns nil when no rule fires.
func (e *RuleEngine) Evaluate(in Input) *domain.FraudVerdict {
	for _, rule := range e.rules {
		if fired, reason := rule.Detect(in); fired {
			return &domain.FraudVerdict{
				Flagged: true,
				Reason:  reason,
				Source:  domain.SourceRule,
			}
		}
	}
	return nil
}
