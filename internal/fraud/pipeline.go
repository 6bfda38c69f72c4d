package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"smartbank/internal/domain"

	"github.com/shopspring/decimal"
)

// Recorder receives pipeline observations. *metrics.MetricsCollector satisfies it.
type Recorder interface {
	RecordFraudFallback()
	ObserveAnomalyScore(score float64)
}

type noopRecorder struct{}

func (noopRecorder) RecordFraudFallback()        {}
func (noopRecorder) ObserveAnomalyScore(float64) {}

// Stage returns a verdict to stop the pipeline, or nil to defer to the next stage.
type Stage func(ctx context.Context, in Input) *domain.FraudVerdict

// Pipeline classifies a transfer: deterministic rules first, then the model.
// It never fails; a broken scorer degrades to an unflagged verdict.
type Pipeline struct {
	stages          []Stage
	withdrawalRatio decimal.Decimal
	recorder        Recorder
	logger          *slog.Logger
}

func NewPipeline(rules *RuleEngine, scorer Scorer, withdrawalRatio float64, recorder Recorder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	p := &Pipeline{
		withdrawalRatio: decimal.NewFromFloat(withdrawalRatio),
		recorder:        recorder,
		logger:          logger,
	}
	p.stages = []Stage{
		func(_ context.Context, in Input) *domain.FraudVerdict { return rules.Evaluate(in) },
		func(ctx context.Context, in Input) *domain.FraudVerdict { return p.modelStage(ctx, scorer, in) },
	}
	return p
}

func (p *Pipeline) Classify(ctx context.Context, in Input) domain.FraudVerdict {
	for _, stage := range p.stages {
		if verdict := stage(ctx, in); verdict != nil {
			return *verdict
		}
	}
	return domain.CleanVerdict()
}

func (p *Pipeline) modelStage(ctx context.Context, scorer Scorer, in Input) *domain.FraudVerdict {
	if scorer == nil {
		return nil
	}

	score, err := p.safeScore(ctx, scorer, in)
	if err != nil {
		p.recorder.RecordFraudFallback()
		p.logger.WarnContext(ctx, "Anomaly scorer unavailable, transfer left unflagged",
			slog.String("account_id", in.Account.ID),
			slog.String("error", fmt.Errorf("%w: %w", domain.ErrFraudComponentUnavailable, err).Error()))
		return nil
	}

	p.recorder.ObserveAnomalyScore(score.Value)
	if !score.Anomalous {
		return nil
	}

	value := score.Value
	return &domain.FraudVerdict{
		Flagged: true,
		Reason:  fmt.Sprintf("ML detected anomaly: %s (Score: %.2f)", p.anomalyKind(in), value),
		Score:   &value,
		Source:  domain.SourceModel,
	}
}

// safeScore turns a scorer panic into an error.
func (p *Pipeline) safeScore(ctx context.Context, scorer Scorer, in Input) (score Score, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer panicked: %v", r)
		}
	}()
	return scorer.Score(ctx, in)
}

func (p *Pipeline) anomalyKind(in Input) string {
	switch {
	case in.Amount.GreaterThan(in.Account.DailyLimit):
		return "Amount exceeds daily limit"
	case in.Amount.GreaterThan(in.Account.Balance.Mul(p.withdrawalRatio)):
		return "Large withdrawal detected"
	default:
		return "Unusual transaction pattern"
	}
}
