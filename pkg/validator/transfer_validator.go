package validator

import (
	"errors"
	"fmt"
	"regexp"
	"smartbank/internal/domain"
	"unicode/utf8"
)

const maxDescriptionLength = 255

var (
	ErrInvalidAmount      = errors.New("invalid transfer amount")
	ErrInvalidAccount     = errors.New("invalid account number")
	ErrSameAccount        = errors.New("cannot transfer to same account")
	ErrDescriptionTooLong = errors.New("description too long")
)

type TransferValidator struct {
	accountRegex *regexp.Regexp
}

func NewTransferValidator() *TransferValidator {
	return &TransferValidator{
		accountRegex: regexp.MustCompile(`^[0-9]{10}$`),
	}
}

// ValidateTransfer reports every problem with req at once. The returned
// error wraps domain.ErrValidation and each individual cause.
func (v *TransferValidator) ValidateTransfer(req domain.TransferRequest) error {
	var errs []error

	if !req.Amount.IsPositive() {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %s", ErrInvalidAmount, req.Amount))
	} else if req.Amount.Exponent() < -2 && !req.Amount.Equal(req.Amount.Round(2)) {
		errs = append(errs, fmt.Errorf("%w: at most 2 decimal places, got %s", ErrInvalidAmount, req.Amount))
	}

	if err := v.ValidateAccountNumber(req.FromAccountNumber); err != nil {
		errs = append(errs, fmt.Errorf("from: %w", err))
	}
	if err := v.ValidateAccountNumber(req.ToAccountNumber); err != nil {
		errs = append(errs, fmt.Errorf("to: %w", err))
	}

	if req.FromAccountNumber != "" && req.FromAccountNumber == req.ToAccountNumber {
		errs = append(errs, ErrSameAccount)
	}

	if utf8.RuneCountInString(req.Description) > maxDescriptionLength {
		errs = append(errs, fmt.Errorf("%w: limit is %d characters", ErrDescriptionTooLong, maxDescriptionLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrValidation, errors.Join(errs...))
	}

	return nil
}

func (v *TransferValidator) ValidateAccountNumber(number string) error {
	if !v.accountRegex.MatchString(number) {
		return fmt.Errorf("%w: %q", ErrInvalidAccount, number)
	}
	return nil
}
