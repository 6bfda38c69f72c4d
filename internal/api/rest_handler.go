package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"smartbank/internal/domain"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// Ledger is what the HTTP layer needs from the transfer ledger.
type Ledger interface {
	Transfer(ctx context.Context, req domain.TransferRequest, actor domain.Identity) (*domain.Transaction, error)
	Transaction(ctx context.Context, id string, actor domain.Identity) (*domain.Transaction, error)
	History(ctx context.Context, number string, actor domain.Identity) ([]*domain.Transaction, error)
	Flagged(ctx context.Context, actor domain.Identity) ([]*domain.Transaction, error)
	Deactivate(ctx context.Context, number string, actor domain.Identity) (*domain.Account, error)
}

type APIHandler struct {
	ledger         Ledger
	tokens         *TokenService
	logger         *slog.Logger
	requestTimeout time.Duration
	retryAfter     time.Duration
}

func NewAPIHandler(ledger Ledger, tokens *TokenService, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		ledger:         ledger,
		tokens:         tokens,
		logger:         logger,
		requestTimeout: 30 * time.Second,
		retryAfter:     time.Second,
	}
}

type TransferRequest struct {
	FromAccountNumber string `json:"from_account_number"`
	ToAccountNumber   string `json:"to_account_number"`
	Amount            string `json:"amount"`
	Description       string `json:"description,omitempty"`
}

type TransferResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
	Message     string              `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *APIHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.requestTimeout))

	r.Get("/api/health", h.HealthCheckHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireAuth(h.tokens, h.logger))

		r.Post("/transfers", h.CreateTransferHandler)
		r.Get("/transactions/{id}", h.GetTransactionHandler)
		r.Get("/accounts/{number}/transactions", h.HistoryHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/transactions/flagged", h.FlaggedHandler)
			r.Post("/accounts/{number}/deactivate", h.DeactivateHandler)
		})
	})

	return r
}

func (h *APIHandler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, r, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.sendError(w, r, "Amount must be a decimal string", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	tx, err := h.ledger.Transfer(r.Context(), domain.TransferRequest{
		FromAccountNumber: req.FromAccountNumber,
		ToAccountNumber:   req.ToAccountNumber,
		Amount:            amount,
		Description:       req.Description,
	}, identity)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}

	message := "Transfer successful"
	if tx.IsFlagged {
		message = "Transfer completed and flagged for review"
	}
	h.sendJSON(w, TransferResponse{Transaction: tx, Message: message}, http.StatusCreated)
}

func (h *APIHandler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	tx, err := h.ledger.Transaction(r.Context(), chi.URLParam(r, "id"), identity)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}

	h.sendJSON(w, tx, http.StatusOK)
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	txs, err := h.ledger.History(r.Context(), chi.URLParam(r, "number"), identity)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}

	h.sendJSON(w, nonNil(txs), http.StatusOK)
}

func (h *APIHandler) FlaggedHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	txs, err := h.ledger.Flagged(r.Context(), identity)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}

	h.sendJSON(w, nonNil(txs), http.StatusOK)
}

func (h *APIHandler) DeactivateHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	account, err := h.ledger.Deactivate(r.Context(), chi.URLParam(r, "number"), identity)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}

	h.sendJSON(w, account, http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	h.sendJSON(w, response, http.StatusOK)
}

// sendDomainError is the one place ledger errors become HTTP statuses.
func (h *APIHandler) sendDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.sendError(w, r, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
	case errors.Is(err, domain.ErrInsufficientFunds):
		h.sendError(w, r, "Insufficient balance", http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS")
	case errors.Is(err, domain.ErrAccountInactive):
		h.sendError(w, r, "Account is not active", http.StatusUnprocessableEntity, "ACCOUNT_INACTIVE")
	case errors.Is(err, domain.ErrAccountNotFound):
		h.sendError(w, r, "Account not found", http.StatusNotFound, "ACCOUNT_NOT_FOUND")
	case errors.Is(err, domain.ErrTransactionNotFound):
		h.sendError(w, r, "Transaction not found", http.StatusNotFound, "NOT_FOUND")
	case errors.Is(err, domain.ErrNotOwner):
		h.sendError(w, r, "Account does not belong to caller", http.StatusForbidden, "NOT_OWNER")
	case errors.Is(err, domain.ErrForbidden):
		h.sendError(w, r, "Access denied", http.StatusForbidden, "FORBIDDEN")
	case errors.Is(err, domain.ErrTransferTimeout):
		w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
		h.sendError(w, r, "Accounts busy, retry later", http.StatusServiceUnavailable, "TRANSFER_TIMEOUT")
	default:
		h.logger.ErrorContext(r.Context(), "Request failed",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetReqID(r.Context())))
		h.sendError(w, r, "Internal server error", http.StatusInternalServerError, "SERVER_ERROR")
	}
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	writeJSON(w, h.logger, data, statusCode)
}

func (h *APIHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int, code string) {
	writeJSON(w, h.logger, ErrorResponse{Error: message, Code: code}, statusCode)

	h.logger.WarnContext(r.Context(), "API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode),
		slog.String("request_id", middleware.GetReqID(r.Context())))
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func nonNil(txs []*domain.Transaction) []*domain.Transaction {
	if txs == nil {
		return []*domain.Transaction{}
	}
	return txs
}
