package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"smartbank/internal/config"
	"smartbank/internal/repository"
	"sync"
	"time"
)

type ModelState int

const (
	Untrained ModelState = iota
	Trained
)

func (s ModelState) String() string {
	if s == Trained {
		return "trained"
	}
	return "untrained"
}

type Score struct {
	Anomalous bool
	Value     float64
}

type Scorer interface {
	Score(ctx context.Context, in Input) (Score, error)
}

// AnomalyScorer owns an isolation forest trained on outgoing transfers.
// It starts Untrained; Train moves it to Trained, and Score trains once on
// first use if nobody did so earlier.
type AnomalyScorer struct {
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	cfg          config.Fraud
	logger       *slog.Logger

	trainMu sync.Mutex
	mu      sync.RWMutex
	forest  *isolationForest
}

func NewAnomalyScorer(accounts repository.AccountRepository, transactions repository.TransactionRepository, cfg config.Fraud, logger *slog.Logger) *AnomalyScorer {
	if logger == nil {
		logger = slog.Default()
	}

	return &AnomalyScorer{
		accounts:     accounts,
		transactions: transactions,
		cfg:          cfg,
		logger:       logger,
	}
}

func (s *AnomalyScorer) State() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.forest == nil {
		return Untrained
	}
	return Trained
}

// Train fits a new model from stored history and swaps it in. It may be
// called again later to retrain.
func (s *AnomalyScorer) Train(ctx context.Context) error {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()
	return s.trainLocked(ctx)
}

func (s *AnomalyScorer) trainLocked(ctx context.Context) error {
	start := time.Now()

	data, err := s.historicalSamples(ctx)
	if err != nil {
		return fmt.Errorf("error collecting training data: %w", err)
	}

	synthetic := len(data) < s.cfg.MinSamples
	if synthetic {
		data = syntheticSamples(s.cfg.SyntheticCount, s.cfg.Seed)
	}

	forest, err := fitIsolationForest(ctx, data, s.cfg.Trees, s.cfg.Contamination, s.cfg.Seed)
	if err != nil {
		return fmt.Errorf("error training anomaly model: %w", err)
	}

	s.mu.Lock()
	s.forest = forest
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Anomaly model trained",
		slog.Int("samples", len(data)),
		slog.Bool("synthetic", synthetic),
		slog.Float64("offset", forest.offset),
		slog.Duration("duration", time.Since(start)))

	return nil
}

func (s *AnomalyScorer) Score(ctx context.Context, in Input) (Score, error) {
	forest, err := s.model(ctx)
	if err != nil {
		return Score{}, err
	}

	v, err := Features(in)
	if err != nil {
		return Score{}, err
	}

	value := forest.score(v)
	return Score{Anomalous: forest.anomalous(value), Value: value}, nil
}

func (s *AnomalyScorer) model(ctx context.Context) (*isolationForest, error) {
	s.mu.RLock()
	forest := s.forest
	s.mu.RUnlock()
	if forest != nil {
		return forest, nil
	}

	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	s.mu.RLock()
	forest = s.forest
	s.mu.RUnlock()
	if forest != nil {
		return forest, nil
	}

	s.logger.WarnContext(ctx, "Anomaly model used before training, training now")
	if err := s.trainLocked(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forest, nil
}

// historicalSamples replays each account's most recent outgoing transfers,
// computing every vector as it would have looked when the transfer ran.
func (s *AnomalyScorer) historicalSamples(ctx context.Context) ([]Vector, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}

	var data []Vector
	for _, account := range accounts {
		txs, err := s.transactions.ListBySource(ctx, account.ID, s.cfg.TrainPerAcct)
		if err != nil {
			return nil, err
		}
		slices.Reverse(txs)

		for i, tx := range txs {
			balanceBefore := tx.BalanceAfter.Add(tx.Amount)
			v, err := featuresAt(tx.Amount, balanceBefore, account.DailyLimit, txs[:i], tx.Timestamp)
			if err != nil {
				s.logger.WarnContext(ctx, "Skipping transaction in training set",
					slog.String("transaction_id", tx.ID),
					slog.String("error", err.Error()))
				continue
			}
			data = append(data, v)
		}
	}

	return data, nil
}

// syntheticSamples draws plausible everyday transfers for bootstrapping a
// model on an empty system. Features that depend on the amount are derived
// from it the same way featuresAt computes them for a real transfer.
func syntheticSamples(n int, seed uint64) []Vector {
	r := rand.New(rand.NewPCG(seed, seed+1))
	uniform := func(lo, hi float64) float64 {
		return lo + r.Float64()*(hi-lo)
	}

	data := make([]Vector, n)
	for i := range data {
		amount := uniform(100, 10000)

		// a first transfer has no 30-day mean, so its difference is the amount
		meanDiff := amount
		if r.Float64() >= syntheticFirstTransferShare {
			meanDiff = amount - uniform(100, 10000)
		}

		data[i] = Vector{
			amount,
			uniform(0.01, 0.3),
			meanDiff,
			syntheticFrequency(r),
			float64(r.IntN(24)),
			float64(r.IntN(7)),
			amount / uniform(syntheticMinLimit, syntheticMaxLimit),
		}
	}
	return data
}

const (
	syntheticFirstTransferShare = 0.5
	syntheticMinLimit           = 25000
	syntheticMaxLimit           = 100000
)

// syntheticFrequency favours an empty trailing hour: 0, 1 or 2 transfers
// with weights 6:3:1.
func syntheticFrequency(r *rand.Rand) float64 {
	switch q := r.Float64(); {
	case q < 0.6:
		return 0
	case q < 0.9:
		return 1
	default:
		return 2
	}
}
