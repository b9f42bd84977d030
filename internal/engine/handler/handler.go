// Package handler is the thin HTTP layer over the vault service. It parses
// requests, resolves the authenticated principal and translates domain errors
// into JSON envelopes; business rules stay in the engine.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"covault/internal/engine"
	"covault/internal/engine/models"
	"covault/internal/platform/metrics"
	"covault/internal/platform/middleware"
	id "covault/pkg/domain"
	dErrors "covault/pkg/domain-errors"
	"covault/pkg/platform/httputil"
	"covault/pkg/requestcontext"
)

const defaultPageSize = 50

// Service defines the vault operations the handler exposes.
type Service interface {
	Submit(ctx context.Context, proposer id.Principal, target models.Target, value uint64, payload []byte) (models.Snapshot, error)
	Confirm(ctx context.Context, principal id.Principal, index id.EntryIndex) (models.Snapshot, error)
	Revoke(ctx context.Context, principal id.Principal, index id.EntryIndex) (models.Snapshot, error)
	Execute(ctx context.Context, caller id.Principal, index id.EntryIndex) (engine.ExecutionResult, error)
	Deposit(ctx context.Context, amount uint64) (uint64, error)
	Members(ctx context.Context) []id.Principal
	Quorum(ctx context.Context) int
	Pool(ctx context.Context) uint64
	EntryCount(ctx context.Context) int
	Entry(ctx context.Context, index id.EntryIndex) (models.Snapshot, error)
	Entries(ctx context.Context, offset, limit int) []models.Snapshot
}

// Guard is the abuse throttle surface the handler reports to.
type Guard interface {
	Allow(ctx context.Context, identity string) (bool, time.Duration, error)
	RecordRejection(ctx context.Context, identity string)
	Clear(ctx context.Context, identity string)
}

// Handler handles vault endpoints.
type Handler struct {
	logger       *slog.Logger
	vault        Service
	guard        Guard
	metrics      *metrics.Metrics
	jwtValidator middleware.TokenValidator
	timeout      time.Duration
}

// New creates a vault Handler.
func New(
	vault Service,
	guard Guard,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:       logger,
		vault:        vault,
		guard:        guard,
		metrics:      m,
		jwtValidator: jwtValidator,
		timeout:      30 * time.Second,
	}
}

// Register registers the vault routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	vaultRouter := chi.NewRouter()
	vaultRouter.Use(middleware.Recovery(h.logger))
	vaultRouter.Use(middleware.RequestID)
	vaultRouter.Use(middleware.Logger(h.logger))
	vaultRouter.Use(middleware.Timeout(h.timeout))
	vaultRouter.Use(middleware.ContentTypeJSON)
	vaultRouter.Use(middleware.LatencyMiddleware(h.metrics))
	vaultRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	if h.guard != nil {
		vaultRouter.Use(middleware.Guard(h.guard, h.metrics, h.logger))
	}

	vaultRouter.Post("/vault/transactions", h.handleSubmit)
	vaultRouter.Get("/vault/transactions", h.handleList)
	vaultRouter.Get("/vault/transactions/{index}", h.handleGet)
	vaultRouter.Post("/vault/transactions/{index}/confirmations", h.handleConfirm)
	vaultRouter.Delete("/vault/transactions/{index}/confirmations", h.handleRevoke)
	vaultRouter.Post("/vault/transactions/{index}/execute", h.handleExecute)
	vaultRouter.Get("/vault/members", h.handleMembers)
	vaultRouter.Get("/vault/quorum", h.handleQuorum)
	vaultRouter.Get("/vault/pool", h.handlePool)
	vaultRouter.Post("/vault/deposits", h.handleDeposit)

	r.Mount("/", vaultRouter)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := h.principal(w, ctx)
	if !ok {
		return
	}

	req, err := httputil.Decode[SubmitRequest](r)
	if err != nil {
		h.warn(ctx, "invalid submit request", err)
		httputil.WriteError(w, err)
		return
	}
	target, payload, err := req.target()
	if err != nil {
		h.warn(ctx, "invalid submit target", err)
		httputil.WriteError(w, err)
		return
	}

	snap, err := h.vault.Submit(ctx, principal, target, req.Value, payload)
	if err != nil {
		h.writeDomainError(w, ctx, principal, "submit failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toTransactionResponse(snap))
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := h.principal(w, ctx)
	if !ok {
		return
	}
	index, err := h.entryIndex(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	snap, err := h.vault.Confirm(ctx, principal, index)
	if err != nil {
		h.writeDomainError(w, ctx, principal, "confirm failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransactionResponse(snap))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := h.principal(w, ctx)
	if !ok {
		return
	}
	index, err := h.entryIndex(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	snap, err := h.vault.Revoke(ctx, principal, index)
	if err != nil {
		h.writeDomainError(w, ctx, principal, "revoke failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransactionResponse(snap))
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := h.principal(w, ctx)
	if !ok {
		return
	}
	index, err := h.entryIndex(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.vault.Execute(ctx, principal, index)
	if err != nil {
		h.writeDomainError(w, ctx, principal, "execute failed", err)
		return
	}
	if h.guard != nil {
		h.guard.Clear(ctx, principal.String())
	}
	httputil.WriteJSON(w, http.StatusOK, toExecuteResponse(result))
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[DepositRequest](r)
	if err != nil {
		h.warn(ctx, "invalid deposit request", err)
		httputil.WriteError(w, err)
		return
	}
	if req.Amount == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "deposit amount must be positive"))
		return
	}

	pool, err := h.vault.Deposit(ctx, req.Amount)
	if err != nil {
		h.warn(ctx, "deposit failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PoolResponse{Pool: pool})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultPageSize)

	snaps := h.vault.Entries(ctx, offset, limit)
	resp := ListTransactionsResponse{
		Count:        h.vault.EntryCount(ctx),
		Transactions: make([]TransactionResponse, 0, len(snaps)),
	}
	for _, snap := range snaps {
		resp.Transactions = append(resp.Transactions, toTransactionResponse(snap))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	index, err := h.entryIndex(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	snap, err := h.vault.Entry(ctx, index)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransactionResponse(snap))
}

func (h *Handler) handleMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	members := h.vault.Members(ctx)
	resp := MembersResponse{
		Members: make([]string, 0, len(members)),
		Quorum:  h.vault.Quorum(ctx),
	}
	for _, m := range members {
		resp.Members = append(resp.Members, m.String())
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleQuorum(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, QuorumResponse{Quorum: h.vault.Quorum(r.Context())})
}

func (h *Handler) handlePool(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, PoolResponse{Pool: h.vault.Pool(r.Context())})
}

// principal pulls the authenticated principal from the context. RequireAuth
// guarantees it is set; an empty value means broken middleware wiring.
func (h *Handler) principal(w http.ResponseWriter, ctx context.Context) (id.Principal, bool) {
	principal := requestcontext.Principal(ctx)
	if principal == "" {
		h.logger.ErrorContext(ctx, "principal missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", false
	}
	return principal, true
}

func (h *Handler) entryIndex(r *http.Request) (id.EntryIndex, error) {
	return id.ParseEntryIndex(chi.URLParam(r, "index"))
}

// writeDomainError logs the rejection, feeds unauthorized attempts to the
// abuse guard and renders the error envelope.
func (h *Handler) writeDomainError(w http.ResponseWriter, ctx context.Context, principal id.Principal, msg string, err error) {
	h.warn(ctx, msg, err)
	if h.guard != nil && dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		h.guard.RecordRejection(ctx, principal.String())
	}
	httputil.WriteError(w, err)
}

func (h *Handler) warn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
