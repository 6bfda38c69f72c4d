package domain

import "errors"

var (
	ErrValidation                = errors.New("validation failed")
	ErrAccountNotFound           = errors.New("account not found")
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrAccountInactive           = errors.New("account inactive")
	ErrNotOwner                  = errors.New("account not owned by caller")
	ErrInsufficientFunds         = errors.New("insufficient funds")
	ErrFraudComponentUnavailable = errors.New("fraud component unavailable")
	ErrTransferTimeout           = errors.New("transfer timed out waiting for account locks")
	ErrPersistence               = errors.New("persistence failure")
	ErrForbidden                 = errors.New("forbidden")
)
