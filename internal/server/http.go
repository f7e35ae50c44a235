package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"VaultLedger/internal/asset"
	"VaultLedger/internal/custody"
	"VaultLedger/internal/gate"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/oracle"
	"VaultLedger/internal/query"
	"VaultLedger/internal/vault"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// principalHeader identifies the caller. Authentication happens upstream
// (API gateway); this service trusts the header.
const principalHeader = "X-Principal"

// Server is the HTTP/JSON surface over the ledger and the query service.
type Server struct {
	ledger   *vault.Ledger
	queries  *query.Service
	registry *asset.Registry
	gate     gate.AccessGate
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func New(ledger *vault.Ledger, queries *query.Service, registry *asset.Registry, g gate.AccessGate, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{
		ledger:   ledger,
		queries:  queries,
		registry: registry,
		gate:     g,
		metrics:  metrics,
		log:      log,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.logRequests)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/deposits", s.handleDeposit)
		r.Post("/withdrawals", s.handleWithdraw)
		r.Post("/withdrawals/all", s.handleWithdrawAll)

		r.Get("/accounts/{principal}/balance", s.handleBalance)
		r.Get("/accounts/{principal}/events", s.handleAccountEvents)
		r.Get("/stats", s.handleStats)
		r.Get("/estimate", s.handleEstimate)

		r.Get("/assets/{symbol}", s.handleAssetInfo)
		r.Get("/assets/{symbol}/route", s.handleAssetRoute)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/assets", s.handleRegisterAsset)
			r.Put("/assets/{symbol}/accepted", s.handleSetAccepted)
			r.Put("/slippage", s.handleUpdateSlippage)
			r.Get("/integrity", s.handleIntegrity)
		})
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		if s.metrics != nil {
			endpoint := r.Method + " " + routePattern(r)
			s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(ww.Status())).Inc()
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
		}
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", elapsed).
			Msg("http request")
	})
}

// --- Request/response shapes. Amounts are decimal strings. ---

type depositRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type depositResponse struct {
	Credited string `json:"credited"`
	Balance  string `json:"balance"`
}

type withdrawRequest struct {
	Amount string `json:"amount"`
}

type withdrawResponse struct {
	Withdrawn string `json:"withdrawn"`
	Balance   string `json:"balance"`
}

type balanceResponse struct {
	Principal string `json:"principal"`
	Balance   string `json:"balance"`
}

type statsResponse struct {
	TotalHeld         string `json:"total_held"`
	DepositCount      int64  `json:"deposit_count"`
	WithdrawalCount   int64  `json:"withdrawal_count"`
	AvailableCapacity string `json:"available_capacity"`
	SlippageBps       uint64 `json:"slippage_bps"`
	Sequence          int64  `json:"sequence"`
}

type estimateResponse struct {
	Asset    string `json:"asset"`
	AmountIn string `json:"amount_in"`
	Estimate string `json:"estimate"`
}

type registerAssetRequest struct {
	Symbol   string   `json:"symbol"`
	Decimals uint8    `json:"decimals"`
	Route    []string `json:"route,omitempty"`
}

type setAcceptedRequest struct {
	Accepted bool `json:"accepted"`
}

type slippageRequest struct {
	Bps uint64 `json:"bps"`
}

type routeResponse struct {
	Symbol string   `json:"symbol"`
	Route  []string `json:"route"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get(principalHeader)
	if principal == "" {
		writeError(w, http.StatusBadRequest, "missing "+principalHeader+" header")
		return
	}
	if err := s.gate.Authorize(r.Context(), principal, gate.ActionDeposit); err != nil {
		s.writeMapped(w, err)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a decimal integer string")
		return
	}

	credited, err := s.ledger.Deposit(r.Context(), principal, asset.Symbol(req.Asset), amount)
	if err != nil {
		s.writeMapped(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, depositResponse{
		Credited: credited.String(),
		Balance:  s.ledger.BalanceOf(principal).String(),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get(principalHeader)
	if principal == "" {
		writeError(w, http.StatusBadRequest, "missing "+principalHeader+" header")
		return
	}
	if err := s.gate.Authorize(r.Context(), principal, gate.ActionWithdraw); err != nil {
		s.writeMapped(w, err)
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a decimal integer string")
		return
	}

	if err := s.ledger.Withdraw(r.Context(), principal, amount); err != nil {
		s.writeMapped(w, err)
		return
	}

	writeJSON(w, http.StatusOK, withdrawResponse{
		Withdrawn: amount.String(),
		Balance:   s.ledger.BalanceOf(principal).String(),
	})
}

func (s *Server) handleWithdrawAll(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get(principalHeader)
	if principal == "" {
		writeError(w, http.StatusBadRequest, "missing "+principalHeader+" header")
		return
	}
	if err := s.gate.Authorize(r.Context(), principal, gate.ActionWithdraw); err != nil {
		s.writeMapped(w, err)
		return
	}

	moved, err := s.ledger.WithdrawAll(r.Context(), principal)
	if err != nil {
		s.writeMapped(w, err)
		return
	}

	writeJSON(w, http.StatusOK, withdrawResponse{
		Withdrawn: moved.String(),
		Balance:   s.ledger.BalanceOf(principal).String(),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	writeJSON(w, http.StatusOK, balanceResponse{
		Principal: principal,
		Balance:   s.ledger.BalanceOf(principal).String(),
	})
}

func (s *Server) handleAccountEvents(w http.ResponseWriter, r *http.Request) {
	if s.queries == nil {
		writeError(w, http.StatusNotImplemented, "event history requires the database")
		return
	}

	principal := chi.URLParam(r, "principal")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be an integer sequence")
			return
		}
		before = &v
	}

	entries, err := s.queries.GetEventHistory(r.Context(), &principal, limit, before)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.ledger.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		TotalHeld:         stats.TotalHeld.String(),
		DepositCount:      stats.DepositCount,
		WithdrawalCount:   stats.WithdrawalCount,
		AvailableCapacity: stats.AvailableCapacity.String(),
		SlippageBps:       s.ledger.SlippageBps(),
		Sequence:          s.ledger.Sequence(),
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	sym := r.URL.Query().Get("asset")
	amount, ok := parseAmount(r.URL.Query().Get("amount"))
	if sym == "" || !ok {
		writeError(w, http.StatusBadRequest, "asset and integer amount query parameters required")
		return
	}

	estimate, err := s.ledger.EstimateConversion(r.Context(), asset.Symbol(sym), amount)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, estimateResponse{
		Asset:    sym,
		AmountIn: amount.String(),
		Estimate: estimate.String(),
	})
}

func (s *Server) handleAssetInfo(w http.ResponseWriter, r *http.Request) {
	sym := asset.Symbol(chi.URLParam(r, "symbol"))
	info, ok := s.registry.Get(sym)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown asset")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAssetRoute(w http.ResponseWriter, r *http.Request) {
	sym := asset.Symbol(chi.URLParam(r, "symbol"))
	if _, ok := s.registry.Get(sym); !ok {
		writeError(w, http.StatusNotFound, "unknown asset")
		return
	}

	route := s.registry.RouteFor(sym)
	out := make([]string, len(route))
	for i, hop := range route {
		out[i] = string(hop)
	}
	writeJSON(w, http.StatusOK, routeResponse{Symbol: string(sym), Route: out})
}

func (s *Server) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get(principalHeader)
	if err := s.gate.Authorize(r.Context(), principal, gate.ActionAdmin); err != nil {
		s.writeMapped(w, err)
		return
	}

	var req registerAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	route := make([]asset.Symbol, len(req.Route))
	for i, hop := range req.Route {
		route[i] = asset.Symbol(hop)
	}

	if err := s.ledger.RegisterAsset(asset.Symbol(req.Symbol), req.Decimals, route); err != nil {
		s.writeMapped(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleSetAccepted(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get(principalHeader)
	if err := s.gate.Authorize(r.Context(), principal, gate.ActionAdmin); err != nil {
		s.writeMapped(w, err)
		return
	}

	var req setAcceptedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	sym := asset.Symbol(chi.URLParam(r, "symbol"))
	if err := s.registry.SetAccepted(sym, req.Accepted); err != nil {
		s.writeMapped(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateSlippage(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get(principalHeader)
	if err := s.gate.Authorize(r.Context(), principal, gate.ActionAdmin); err != nil {
		s.writeMapped(w, err)
		return
	}

	var req slippageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.ledger.UpdateSlippageTolerance(req.Bps); err != nil {
		s.writeMapped(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	principal := r.Header.Get(principalHeader)
	if err := s.gate.Authorize(r.Context(), principal, gate.ActionAdmin); err != nil {
		s.writeMapped(w, err)
		return
	}
	if s.queries == nil {
		writeError(w, http.StatusNotImplemented, "integrity check requires the database")
		return
	}

	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Helpers ---

// routePattern reads the matched chi pattern after routing so metric labels
// stay low-cardinality; unmatched requests fall back to the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// parseAmount accepts non-negative decimal integer strings.
func parseAmount(raw string) (*big.Int, bool) {
	if raw == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, false
	}
	return v, true
}

// writeMapped translates domain errors into HTTP status codes.
func (s *Server) writeMapped(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidSlippage),
		errors.Is(err, asset.ErrInvalidAsset),
		errors.Is(err, asset.ErrInvalidRoute):
		status = http.StatusBadRequest
	case errors.Is(err, asset.ErrUnknownAsset):
		status = http.StatusNotFound
	case errors.Is(err, gate.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, gate.ErrPaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, vault.ErrAssetNotAccepted),
		errors.Is(err, vault.ErrDepositTooSmall),
		errors.Is(err, vault.ErrCapacityExceeded),
		errors.Is(err, vault.ErrWithdrawalLimitExceeded),
		errors.Is(err, vault.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, oracle.ErrSlippageExceeded),
		errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, oracle.ErrDeadlineExceeded):
		status = http.StatusConflict
	case errors.Is(err, oracle.ErrRouteInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, custody.ErrTransferFailed):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("internal error")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
