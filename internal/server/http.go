package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"RwaLedger/internal/core"
	"RwaLedger/internal/ledger"
	"RwaLedger/internal/observability"
	"RwaLedger/internal/query"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rwa_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rwa_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Handler serves the ledger's HTTP surface. Mutations are dispatched into
// the engine loop so the single-writer model holds; mirror reads go to
// the query service.
type Handler struct {
	loop    *core.Loop
	queries *query.Service
	health  *observability.HealthChecker
	log     zerolog.Logger
	block   atomic.Uint64
}

func NewHandler(loop *core.Loop, queries *query.Service, health *observability.HealthChecker, log zerolog.Logger) *Handler {
	return &Handler{
		loop:    loop,
		queries: queries,
		health:  health,
		log:     log,
	}
}

// Router wires all routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	// Request creation
	r.HandleFunc("/v1/requests/deposit", h.CreateDeposit).Methods("POST")
	r.HandleFunc("/v1/requests/withdrawal", h.CreateWithdrawal).Methods("POST")
	r.HandleFunc("/v1/requests/borrow", h.CreateBorrow).Methods("POST")

	// Admin settlement
	r.HandleFunc("/v1/admin/process/{type}/{id:[0-9]+}", h.ProcessRequest).Methods("POST")
	r.HandleFunc("/v1/admin/batch/{type}", h.BatchProcess).Methods("POST")
	r.HandleFunc("/v1/admin/registration", h.SetRegistration).Methods("POST")
	r.HandleFunc("/v1/admin/epoch/close", h.CloseEpoch).Methods("POST")
	r.HandleFunc("/v1/admin/emergency-withdraw", h.EmergencyWithdraw).Methods("POST")
	r.HandleFunc("/v1/admin/params/{name}", h.SetParam).Methods("PUT")

	// Execution gateway
	r.HandleFunc("/v1/withdrawals/{id:[0-9]+}/execute", h.ExecuteWithdrawal).Methods("POST")

	// Engine reads
	r.HandleFunc("/v1/users/{account}", h.GetUser).Methods("GET")
	r.HandleFunc("/v1/requests/{id:[0-9]+}", h.GetRequest).Methods("GET")
	r.HandleFunc("/v1/epochs/current", h.GetCurrentEpoch).Methods("GET")
	r.HandleFunc("/v1/epochs/{id:[0-9]+}", h.GetEpoch).Methods("GET")
	r.HandleFunc("/v1/treasury", h.GetTreasury).Methods("GET")
	r.HandleFunc("/v1/params", h.GetParams).Methods("GET")
	r.HandleFunc("/v1/requests/count/{type}", h.GetRequestCount).Methods("GET")
	r.HandleFunc("/v1/users/{account}/requests/{type}", h.GetUserRequestIDs).Methods("GET")

	// Mirror reads
	r.HandleFunc("/v1/accounts/{account}", h.GetAccountRegistration).Methods("GET")
	r.HandleFunc("/v1/accounts/{account}/requests", h.ListAccountRequests).Methods("GET")
	r.HandleFunc("/v1/admin/unprocessed/{type}", h.ListUnprocessed).Methods("GET")
	r.HandleFunc("/v1/epochs", h.ListEpochs).Methods("GET")
	r.HandleFunc("/v1/processing-events", h.ListProcessingEvents).Methods("GET")
	r.HandleFunc("/v1/validation-failures", h.ListValidationFailures).Methods("GET")

	// Health
	r.HandleFunc("/healthz", h.health.LivenessHandler).Methods("GET")
	r.HandleFunc("/readyz", h.health.ReadinessHandler).Methods("GET")

	return r
}

// callContext builds the caller context from the transport edge. Caller
// identity comes from the X-Account header (signature verification is the
// host environment's concern); timestamp and synthetic tx identifiers are
// assigned here so the core never touches the wall clock.
func (h *Handler) callContext(r *http.Request) (core.CallContext, bool) {
	account := r.Header.Get("X-Account")
	if account == "" {
		return core.CallContext{}, false
	}
	return core.CallContext{
		Caller: ledger.Account(account),
		Now:    time.Now().UnixMilli(),
		TxHash: uuid.NewString(),
		Block:  h.block.Add(1),
	}, true
}

// --- Request creation ---

type createRequestBody struct {
	Amount     uint64 `json:"amount"`
	Collateral uint64 `json:"collateral"`
}

func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	h.createRequest(w, r, "/v1/requests/deposit", ledger.RequestTypeDeposit)
}

func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.createRequest(w, r, "/v1/requests/withdrawal", ledger.RequestTypeWithdrawal)
}

func (h *Handler) CreateBorrow(w http.ResponseWriter, r *http.Request) {
	h.createRequest(w, r, "/v1/requests/borrow", ledger.RequestTypeBorrow)
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request, endpoint string, rt ledger.RequestType) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	cc, ok := h.callContext(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Missing X-Account", "POST", endpoint)
		return
	}

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}

	var id uint64
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		var err error
		switch rt {
		case ledger.RequestTypeDeposit:
			id, err = e.CreateDepositRequest(cc, body.Amount)
		case ledger.RequestTypeWithdrawal:
			id, err = e.CreateWithdrawalRequest(cc, body.Amount)
		case ledger.RequestTypeBorrow:
			id, err = e.CreateBorrowRequest(cc, body.Amount, body.Collateral)
		}
		return err
	})
	if err != nil {
		h.respondLedgerError(w, err, "POST", endpoint)
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]uint64{"request_id": id}, "POST", endpoint)
}

// --- Admin settlement ---

func (h *Handler) ProcessRequest(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/admin/process/{type}/{id}"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	cc, ok := h.callContext(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Missing X-Account", "POST", endpoint)
		return
	}

	vars := mux.Vars(r)
	rt, ok := ledger.ParseRequestType(vars["type"])
	if !ok {
		h.respondError(w, http.StatusBadRequest, "Unknown request type", "POST", endpoint)
		return
	}
	id, _ := strconv.ParseUint(vars["id"], 10, 64)

	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		switch rt {
		case ledger.RequestTypeDeposit:
			return e.ProcessDepositRequest(cc, id)
		case ledger.RequestTypeWithdrawal:
			return e.ProcessWithdrawalRequest(cc, id)
		default:
			return e.ProcessBorrowRequest(cc, id)
		}
	})
	if err != nil {
		h.respondLedgerError(w, err, "POST", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]uint64{"request_id": id}, "POST", endpoint)
}

type batchBody struct {
	RequestIDs []uint64 `json:"request_ids"`
}

func (h *Handler) BatchProcess(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/admin/batch/{type}"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	cc, ok := h.callContext(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Missing X-Account", "POST", endpoint)
		return
	}

	rt, ok := ledger.ParseRequestType(mux.Vars(r)["type"])
	if !ok {
		h.respondError(w, http.StatusBadRequest, "Unknown request type", "POST", endpoint)
		return
	}

	var body batchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}

	var result core.BatchResult
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		var err error
		result, err = e.BatchProcessRequests(cc, rt, body.RequestIDs)
		return err
	})
	if err != nil {
		h.respondLedgerError(w, err, "POST", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, result, "POST", endpoint)
}

type registrationBody struct {
	Account  string `json:"account"`
	Approved bool   `json:"approved"`
}

func (h *Handler) SetRegistration(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/admin/registration"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	cc, ok := h.callContext(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Missing X-Account", "POST", endpoint)
		return
	}

	var body registrationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Account == "" {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}

	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		return e.SetRegistrationStatus(cc, ledger.Account(body.Account), body.Approved)
	})
	if err != nil {
		h.respondLedgerError(w, err, "POST", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, body, "POST", endpoint)
}

func (h *Handler) CloseEpoch(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/admin/epoch/close"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	cc, ok := h.callContext(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Missing X-Account", "POST", endpoint)
		return
	}

	var newEpoch uint64
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		var err error
		newEpoch, err = e.CloseCurrentEpoch(cc)
		return err
	})
	if err != nil {
		h.respondLedgerError(w, err, "POST", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]uint64{"new_epoch_id": newEpoch}, "POST", endpoint)
}

type amountBody struct {
	Amount uint64 `json:"amount"`
}

func (h *Handler) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/admin/emergency-withdraw"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	cc, ok := h.callContext(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Missing X-Account", "POST", endpoint)
		return
	}

	var body amountBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return
	}

	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		return e.EmergencyWithdraw(cc, body.Amount)
	})
	if err != nil {
		h.respondLedgerError(w, err, "POST", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]uint64{"amount": body.Amount}, "POST", endpoint)
}

type paramBody struct {
	Value uint64 `json:"value"`
}

func (h *Handler) SetParam(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/admin/params/{name}"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("PUT", endpoint))
	defer timer.ObserveDuration()

	cc, ok := h.callContext(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Missing X-Account", "PUT", endpoint)
		return
	}

	var body paramBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "PUT", endpoint)
		return
	}

	name := mux.Vars(r)["name"]
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		switch name {
		case "daily_withdrawal_limit":
			return e.SetDailyWithdrawalLimit(cc, body.Value)
		case "max_pending_requests":
			return e.SetMaxPendingRequests(cc, body.Value)
		case "min_deposit_amount":
			return e.SetMinDepositAmount(cc, body.Value)
		case "min_withdrawal_amount":
			return e.SetMinWithdrawalAmount(cc, body.Value)
		case "min_borrow_amount":
			return e.SetMinBorrowAmount(cc, body.Value)
		case "collateral_ratio_bps":
			return e.SetCollateralRatioBps(cc, body.Value)
		default:
			return errUnknownParam
		}
	})
	if errors.Is(err, errUnknownParam) {
		h.respondError(w, http.StatusBadRequest, "Unknown parameter", "PUT", endpoint)
		return
	}
	if err != nil {
		h.respondLedgerError(w, err, "PUT", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"name": name, "value": body.Value}, "PUT", endpoint)
}

var errUnknownParam = errors.New("unknown parameter")

// --- Execution gateway ---

func (h *Handler) ExecuteWithdrawal(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/withdrawals/{id}/execute"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	cc, ok := h.callContext(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Missing X-Account", "POST", endpoint)
		return
	}

	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		return e.ExecuteWithdrawal(cc, id)
	})
	if err != nil {
		h.respondLedgerError(w, err, "POST", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]uint64{"request_id": id}, "POST", endpoint)
}

// --- Engine reads ---

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/users/{account}"
	account := ledger.Account(mux.Vars(r)["account"])

	var user ledger.User
	var found bool
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		user, found = e.GetUser(account)
		return nil
	})
	if err != nil {
		h.respondLedgerError(w, err, "GET", endpoint)
		return
	}
	if !found {
		h.respondError(w, http.StatusNotFound, "User not found", "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, user, "GET", endpoint)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/requests/{id}"
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)

	var req ledger.Request
	var found bool
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		req, found = e.GetRequest(id)
		return nil
	})
	if err != nil {
		h.respondLedgerError(w, err, "GET", endpoint)
		return
	}
	if !found {
		h.respondError(w, http.StatusNotFound, "Request not found", "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, req, "GET", endpoint)
}

func (h *Handler) GetCurrentEpoch(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/epochs/current"

	var epoch ledger.Epoch
	var found bool
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		epoch, found = e.GetCurrentEpoch()
		return nil
	})
	if err != nil {
		h.respondLedgerError(w, err, "GET", endpoint)
		return
	}
	if !found {
		h.respondError(w, http.StatusNotFound, "No active epoch", "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, epoch, "GET", endpoint)
}

func (h *Handler) GetEpoch(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/epochs/{id}"
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)

	var epoch ledger.Epoch
	var found bool
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		epoch, found = e.GetEpoch(id)
		return nil
	})
	if err != nil {
		h.respondLedgerError(w, err, "GET", endpoint)
		return
	}
	if !found {
		h.respondError(w, http.StatusNotFound, "Epoch not found", "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, epoch, "GET", endpoint)
}

func (h *Handler) GetTreasury(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/treasury"

	var balance uint64
	var owner ledger.Account
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		balance = e.TreasuryBalance()
		owner = e.Owner()
		return nil
	})
	if err != nil {
		h.respondLedgerError(w, err, "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"balance": balance,
		"owner":   owner,
	}, "GET", endpoint)
}

func (h *Handler) GetParams(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/params"

	var params ledger.Params
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		params = e.Params()
		return nil
	})
	if err != nil {
		h.respondLedgerError(w, err, "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, params, "GET", endpoint)
}

func (h *Handler) GetRequestCount(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/requests/count/{type}"
	rt, ok := ledger.ParseRequestType(mux.Vars(r)["type"])
	if !ok {
		h.respondError(w, http.StatusBadRequest, "Unknown request type", "GET", endpoint)
		return
	}

	var count uint64
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		count = e.RequestCount(rt)
		return nil
	})
	if err != nil {
		h.respondLedgerError(w, err, "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"request_type": rt.String(),
		"count":        count,
	}, "GET", endpoint)
}

func (h *Handler) GetUserRequestIDs(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/users/{account}/requests/{type}"
	vars := mux.Vars(r)
	account := ledger.Account(vars["account"])
	rt, ok := ledger.ParseRequestType(vars["type"])
	if !ok {
		h.respondError(w, http.StatusBadRequest, "Unknown request type", "GET", endpoint)
		return
	}

	var ids []uint64
	err := h.loop.Do(r.Context(), func(e *core.Engine) error {
		ids = e.RequestIDs(account, rt)
		return nil
	})
	if err != nil {
		h.respondLedgerError(w, err, "GET", endpoint)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"account":     account,
		"request_ids": ids,
	}, "GET", endpoint)
}

// --- Mirror reads ---

// GetAccountRegistration serves the mirrored registration record. Unlike
// /v1/users/{account} this reads the mirror, not the engine, so it trails
// live state by the indexer's lag.
func (h *Handler) GetAccountRegistration(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/accounts/{account}"
	account := mux.Vars(r)["account"]

	row, err := h.queries.GetUser(r.Context(), account)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "GET", endpoint)
		return
	}
	if row == nil {
		h.respondError(w, http.StatusNotFound, "User not found", "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, row, "GET", endpoint)
}

func (h *Handler) ListAccountRequests(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/accounts/{account}/requests"
	account := mux.Vars(r)["account"]
	requestType := r.URL.Query().Get("type")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.queries.RequestsByAccount(r.Context(), account, requestType, limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, rows, "GET", endpoint)
}

func (h *Handler) ListUnprocessed(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/admin/unprocessed/{type}"
	rt, ok := ledger.ParseRequestType(mux.Vars(r)["type"])
	if !ok {
		h.respondError(w, http.StatusBadRequest, "Unknown request type", "GET", endpoint)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.queries.UnprocessedRequests(r.Context(), rt.String(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, rows, "GET", endpoint)
}

func (h *Handler) ListEpochs(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/epochs"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.queries.Epochs(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, rows, "GET", endpoint)
}

func (h *Handler) ListProcessingEvents(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/processing-events"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.queries.ProcessingEvents(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, rows, "GET", endpoint)
}

func (h *Handler) ListValidationFailures(w http.ResponseWriter, r *http.Request) {
	endpoint := "/v1/validation-failures"
	account := r.URL.Query().Get("account")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.queries.ValidationFailures(r.Context(), account, limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "GET", endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, rows, "GET", endpoint)
}

// --- Response helpers ---

// respondLedgerError maps core sentinels onto HTTP statuses.
func (h *Handler) respondLedgerError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, ledger.ErrNotOwner),
		errors.Is(err, ledger.ErrNotAdmin),
		errors.Is(err, ledger.ErrNotRequestOwner):
		h.respondError(w, http.StatusForbidden, err.Error(), method, endpoint)

	case errors.Is(err, ledger.ErrRequestNotFound),
		errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, ledger.ErrEpochNotFound):
		h.respondError(w, http.StatusNotFound, err.Error(), method, endpoint)

	case errors.Is(err, ledger.ErrAlreadyProcessed),
		errors.Is(err, ledger.ErrNotDepositRequest),
		errors.Is(err, ledger.ErrNotWithdrawalRequest),
		errors.Is(err, ledger.ErrNotBorrowRequest),
		errors.Is(err, ledger.ErrNoActiveEpoch),
		errors.Is(err, ledger.ErrWithdrawalNotProcessed),
		errors.Is(err, ledger.ErrAlreadyExecuted):
		h.respondError(w, http.StatusConflict, err.Error(), method, endpoint)

	case errors.Is(err, ledger.ErrAmountZero),
		errors.Is(err, ledger.ErrAmountTooLow),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientCollateral),
		errors.Is(err, ledger.ErrUserNotRegistered),
		errors.Is(err, ledger.ErrRequestLimitExceeded),
		errors.Is(err, ledger.ErrDailyLimitExceeded),
		errors.Is(err, ledger.ErrEmptyBatch):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)

	case errors.Is(err, ledger.ErrTransferFailed):
		h.respondError(w, http.StatusBadGateway, err.Error(), method, endpoint)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusServiceUnavailable, err.Error(), method, endpoint)

	default:
		h.log.Error().Err(err).Str("endpoint", endpoint).Msg("unhandled error")
		h.respondError(w, http.StatusInternalServerError, "internal error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
