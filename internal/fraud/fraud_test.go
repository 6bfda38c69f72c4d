package fraud

import (
	"context"
	"errors"
	"smartbank/internal/config"
	"smartbank/internal/domain"
	"time"

	"github.com/shopspring/decimal"
)

// monday noon, UTC
var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func testFraudConfig() config.Fraud {
	return config.Fraud{
		LargeAmount:      10000,
		LargeCount:       3,
		Window:           time.Hour,
		WithdrawalRatio:  0.8,
		WithdrawalAmount: 50000,
		Trees:            100,
		Contamination:    0.05,
		Seed:             42,
		TrainPerAcct:     100,
		MinSamples:       10,
		SyntheticCount:   100,
	}
}

func testAccount(balance int64) *domain.Account {
	return &domain.Account{
		ID:         "acc-a",
		Number:     "1000000001",
		OwnerID:    "user-a",
		Type:       domain.AccountSavings,
		Balance:    decimal.NewFromInt(balance),
		IsActive:   true,
		DailyLimit: domain.DefaultDailyLimit,
	}
}

func sent(accountID string, amount int64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:            accountID + at.Format(time.RFC3339Nano),
		Type:          domain.TypeTransfer,
		FromAccountID: accountID,
		ToAccountID:   "acc-b",
		Amount:        decimal.NewFromInt(amount),
		Timestamp:     at,
	}
}

type stubScorer struct {
	score Score
	err   error
	panic bool
	calls int
}

func (s *stubScorer) Score(context.Context, Input) (Score, error) {
	s.calls++
	if s.panic {
		panic("model corrupted")
	}
	return s.score, s.err
}

type countingRecorder struct {
	fallbacks int
	scores    []float64
}

func (r *countingRecorder) RecordFraudFallback()              { r.fallbacks++ }
func (r *countingRecorder) ObserveAnomalyScore(score float64) { r.scores = append(r.scores, score) }

var errScorerDown = errors.New("scorer down")
