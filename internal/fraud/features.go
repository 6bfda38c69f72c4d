package fraud

import (
	"errors"
	"fmt"
	"math"
	"smartbank/internal/domain"
	"time"

	"github.com/shopspring/decimal"
)

// FeatureCount is the width of the vector the model is trained on. The order
// of the features is fixed; a trained forest is only valid for that order.
const FeatureCount = 7

const (
	historyWindow   = 30 * 24 * time.Hour
	frequencyWindow = time.Hour
)

var ErrInvalidFeatures = errors.New("invalid feature vector")

type Vector [FeatureCount]float64

// Input is everything the pipeline stages look at for one transfer.
// History holds the source account's outgoing transactions, oldest first.
type Input struct {
	Amount  decimal.Decimal
	Account *domain.Account
	History []*domain.Transaction
	Now     time.Time
}

// Features builds the model vector for a pending transfer.
func Features(in Input) (Vector, error) {
	if in.Account == nil {
		return Vector{}, fmt.Errorf("%w: account is nil", ErrInvalidFeatures)
	}
	return featuresAt(in.Amount, in.Account.Balance, in.Account.DailyLimit, in.History, in.Now)
}

func featuresAt(amount, balance, limit decimal.Decimal, history []*domain.Transaction, now time.Time) (Vector, error) {
	var (
		monthSum   decimal.Decimal
		monthCount int64
		hourCount  int
	)
	monthStart := now.Add(-historyWindow)
	hourStart := now.Add(-frequencyWindow)
	for _, tx := range history {
		if tx.Timestamp.Before(monthStart) || tx.Timestamp.After(now) {
			continue
		}
		monthSum = monthSum.Add(tx.Amount)
		monthCount++
		if !tx.Timestamp.Before(hourStart) {
			hourCount++
		}
	}

	mean := decimal.Zero
	if monthCount > 0 {
		mean = monthSum.Div(decimal.NewFromInt(monthCount))
	}

	v := Vector{
		amount.InexactFloat64(),
		ratio(amount, balance),
		amount.Sub(mean).InexactFloat64(),
		float64(hourCount),
		float64(now.Hour()),
		float64(weekday(now)),
		ratio(amount, limit),
	}

	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Vector{}, fmt.Errorf("%w: feature %d is %v", ErrInvalidFeatures, i, f)
		}
	}
	return v, nil
}

func ratio(num, den decimal.Decimal) float64 {
	if !den.IsPositive() {
		return 0
	}
	return num.Div(den).InexactFloat64()
}

// weekday counts from Monday = 0.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
