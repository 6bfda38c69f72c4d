package main

import (
	"context"
	"fmt"
	"log/slog"
	"smartbank/internal/config"
	"smartbank/internal/domain"
	"smartbank/internal/repository"
	"smartbank/pkg/validator"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// seedAccounts opens every seed account in repo. It stops at the first bad
// entry; accounts saved before it stay.
func seedAccounts(ctx context.Context, repo repository.AccountRepository, seed *config.Seed, logger *slog.Logger) error {
	v := validator.NewTransferValidator()
	now := time.Now().UTC()

	for i, s := range seed.Accounts {
		account, err := seedAccount(v, s, now)
		if err != nil {
			return fmt.Errorf("seed account %d: %w", i, err)
		}
		if err := repo.Save(ctx, account); err != nil {
			return fmt.Errorf("seed account %s: %w", account.Number, err)
		}
		logger.InfoContext(ctx, "Seeded account",
			slog.String("account_number", account.Number),
			slog.String("owner_id", account.OwnerID))
	}

	return nil
}

func seedAccount(v *validator.TransferValidator, s config.SeedAccount, now time.Time) (*domain.Account, error) {
	if err := v.ValidateAccountNumber(s.Number); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if s.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrValidation)
	}

	balance, err := decimal.NewFromString(s.Balance)
	if err != nil || balance.IsNegative() {
		return nil, fmt.Errorf("%w: balance %q", domain.ErrValidation, s.Balance)
	}

	limit := domain.DefaultDailyLimit
	if s.DailyLimit != "" {
		limit, err = decimal.NewFromString(s.DailyLimit)
		if err != nil || !limit.IsPositive() {
			return nil, fmt.Errorf("%w: daily limit %q", domain.ErrValidation, s.DailyLimit)
		}
	}

	accountType := domain.AccountType(s.Type)
	if accountType == "" {
		accountType = domain.AccountSavings
	}

	id := s.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &domain.Account{
		ID:         id,
		Number:     s.Number,
		OwnerID:    s.OwnerID,
		Type:       accountType,
		Balance:    balance,
		IsActive:   true,
		DailyLimit: limit,
		CreatedAt:  now,
	}, nil
}
