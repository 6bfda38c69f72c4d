package postgres

import (
	"context"
	"database/sql"
	"errors"
	"smartbank/internal/domain"
	"smartbank/internal/repository"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	require.NoError(t, mapError(nil, "anything"))

	assert.ErrorIs(t, mapError(sql.ErrNoRows, "account x"), repository.ErrNotFound)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: uniqueViolation}, "account x"), repository.ErrDuplicate)

	other := errors.New("connection reset")
	err := mapError(other, "account x")
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, nullString("x"))
}

func TestAccountRepository_SaveRejectsUnknownTypeBeforeQuerying(t *testing.T) {
	repo := NewAccountRepository(nil)

	err := repo.Save(context.Background(), &domain.Account{ID: "a", Number: "1000000001", Type: "crypto"})

	assert.ErrorIs(t, err, domain.ErrValidation)
}
