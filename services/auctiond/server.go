package auctiond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"nhbmarket/crypto"
	"nhbmarket/native/assets"
	"nhbmarket/native/auction"
	"nhbmarket/native/bank"
	"nhbmarket/native/common"
	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
	"nhbmarket/observability"
)

const (
	maxRequestBody   = 1 << 20 // 1 MiB
	defaultEventPage = 100
)

// Server is the HTTP front-end of the auction market.
type Server struct {
	market   *Market
	auth     *Authenticator
	limiter  *RateLimiter
	metrics  *observability.AuctionMetrics
	eventLog *EventLog
	obs      *observability.HTTP
	logger   *slog.Logger
}

// NewServer wires the handlers. market and auth are required.
func NewServer(market *Market, auth *Authenticator, limiter *RateLimiter, metrics *observability.AuctionMetrics, eventLog *EventLog, logger *slog.Logger) *Server {
	if market == nil {
		panic("market required")
	}
	if auth == nil {
		panic("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = NewRateLimiter(RateLimitConfig{}, metrics)
	}
	return &Server{
		market:   market,
		auth:     auth,
		limiter:  limiter,
		metrics:  metrics,
		eventLog: eventLog,
		obs:      observability.NewHTTP("auctiond", metrics, logger),
		logger:   logger,
	}
}

// Routes builds the router. Reads are public; mutations require a bearer
// token whose subject is the acting account.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Group(func(pub chi.Router) {
		pub.Use(s.limiter.Middleware)
		pub.Get("/v1/auctions/{id}", s.instrument("auction_get", s.handleGetAuction))
		pub.Get("/v1/auctions/{id}/minimum-bid", s.instrument("auction_minimum_bid", s.handleMinimumBid))
		pub.Get("/v1/auctions/{id}/distribution", s.instrument("auction_distribution", s.handleDistribution))
		pub.Get("/v1/refunds/{address}", s.instrument("refund_get", s.handlePendingRefund))
		pub.Get("/v1/sellers/{address}/auctions", s.instrument("seller_auctions", s.handleSellerAuctions))
		pub.Get("/v1/bidders/{address}/auctions", s.instrument("bidder_auctions", s.handleBidderAuctions))
		pub.Get("/v1/accounts/{address}", s.instrument("account_get", s.handleAccount))
		pub.Get("/v1/holdings/{id}", s.instrument("holding_get", s.handleGetHolding))
		pub.Get("/v1/events", s.instrument("events_list", s.handleListEvents))
		pub.Get("/v1/events/stream", s.instrument("events_stream", s.handleEventStream))
	})

	r.Group(func(priv chi.Router) {
		priv.Use(s.auth.Middleware, s.limiter.Middleware)
		priv.Post("/v1/auctions", s.instrument("auction_create", s.handleCreateAuction))
		priv.Post("/v1/auctions/{id}/bids", s.instrument("auction_bid", s.handlePlaceBid))
		priv.Post("/v1/auctions/{id}/end", s.instrument("auction_end", s.handleEndAuction))
		priv.Post("/v1/auctions/{id}/cancel", s.instrument("auction_cancel", s.handleCancelAuction))
		priv.Post("/v1/auctions/{id}/emergency-withdraw", s.instrument("auction_emergency", s.handleEmergencyWithdraw))
		priv.Post("/v1/refunds/withdraw", s.instrument("refund_withdraw", s.handleWithdraw))
		priv.Post("/v1/holdings/{id}/confirm", s.instrument("holding_confirm", s.handleConfirmDelivery))
		priv.Post("/v1/assets/approvals", s.instrument("asset_approval", s.handleApproval))
		priv.Post("/v1/admin/pause", s.instrument("admin_pause", s.handlePause(true)))
		priv.Post("/v1/admin/unpause", s.instrument("admin_unpause", s.handlePause(false)))
		priv.Post("/v1/admin/fees", s.instrument("admin_fees", s.handleSetFee))
		priv.Post("/v1/admin/mint", s.instrument("admin_mint", s.handleMint))
	})
	return r
}

func (s *Server) instrument(route string, fn http.HandlerFunc) http.HandlerFunc {
	return s.obs.Middleware(route)(fn).ServeHTTP
}

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	var req createAuctionRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	create, err := req.toEngine()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	var view auctionView
	err = s.market.Do(r.Context(), func() error {
		id, err := s.market.Auctions.CreateAuction(caller, create)
		if err != nil {
			return err
		}
		view, err = loadAuctionView(s.market.Auctions, id)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := auctionIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var view auctionView
	err = s.market.View(func() error {
		view, err = loadAuctionView(s.market.Auctions, id)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMinimumBid(w http.ResponseWriter, r *http.Request) {
	id, err := auctionIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var minimum *big.Int
	err = s.market.View(func() error {
		minimum, err = s.market.Auctions.MinimumBid(id)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auctionId":  id,
		"minimumBid": minimum.String(),
	})
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	id, err := auctionIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var dist fees.Distribution
	err = s.market.View(func() error {
		dist, err = s.market.Auctions.CalculatePaymentDistribution(id)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDistributionView(id, dist))
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	id, err := auctionIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req amountRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mutateAuction(w, r, id, func() error {
		return s.market.Auctions.PlaceBid(caller, id, amount)
	})
}

func (s *Server) handleEndAuction(w http.ResponseWriter, r *http.Request) {
	id, err := auctionIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mutateAuction(w, r, id, func() error {
		_, err := s.market.Auctions.EndAuction(id)
		return err
	})
}

func (s *Server) handleCancelAuction(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	id, err := auctionIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mutateAuction(w, r, id, func() error {
		return s.market.Auctions.CancelAuction(caller, id)
	})
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	id, err := auctionIDParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mutateAuction(w, r, id, func() error {
		return s.market.Auctions.EmergencyWithdraw(caller, id)
	})
}

// mutateAuction runs op and responds with the auction as committed.
func (s *Server) mutateAuction(w http.ResponseWriter, r *http.Request, id uint64, op func() error) {
	var view auctionView
	err := s.market.Do(r.Context(), func() error {
		if err := op(); err != nil {
			return err
		}
		var err error
		view, err = loadAuctionView(s.market.Auctions, id)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	var paid *big.Int
	err := s.market.Do(r.Context(), func() error {
		var err error
		paid, err = s.market.Auctions.Withdraw(caller)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": crypto.FormatAddress(caller),
		"amount":  paid.String(),
	})
}

func (s *Server) handlePendingRefund(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAccount(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var pending *big.Int
	err = s.market.View(func() error {
		pending, err = s.market.Auctions.PendingRefund(addr)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": crypto.FormatAddress(addr),
		"pending": pending.String(),
	})
}

func (s *Server) handleSellerAuctions(w http.ResponseWriter, r *http.Request) {
	s.listAuctions(w, r, s.market.Auctions.SellerAuctions)
}

func (s *Server) handleBidderAuctions(w http.ResponseWriter, r *http.Request) {
	s.listAuctions(w, r, s.market.Auctions.BidderAuctions)
}

func (s *Server) listAuctions(w http.ResponseWriter, r *http.Request, list func([20]byte) ([]uint64, error)) {
	addr, err := parseAccount(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var ids []uint64
	err = s.market.View(func() error {
		ids, err = list(addr)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":  crypto.FormatAddress(addr),
		"auctions": ids,
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAccount(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var balance *big.Int
	err = s.market.View(func() error {
		balance, err = s.market.Bank.Balance(addr)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": crypto.FormatAddress(addr),
		"balance": balance.String(),
	})
}

func (s *Server) handleGetHolding(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var holding *escrow.Holding
	err = s.market.View(func() error {
		holding, err = s.market.Holdings.Get(id)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newHoldingView(holding))
}

func (s *Server) handleConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var holding *escrow.Holding
	err = s.market.Do(r.Context(), func() error {
		if err := s.market.Holdings.ConfirmDelivery(id, caller); err != nil {
			return err
		}
		var err error
		holding, err = s.market.Holdings.Get(id)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newHoldingView(holding))
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	var req approvalRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	coll, err := parseAccount(req.Collection)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	err = s.market.Do(r.Context(), func() error {
		return s.market.ApproveVault(caller, coll, req.Approved)
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"collection": crypto.FormatAddress(coll),
		"operator":   crypto.FormatAddress(s.market.Vault()),
		"approved":   req.Approved,
	})
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := mustCaller(r)
		err := s.market.Do(r.Context(), func() error {
			if paused {
				return s.market.Auctions.Pause(caller)
			}
			return s.market.Auctions.Unpause(caller)
		})
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
	}
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	var req feeRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.market.Do(r.Context(), func() error {
		return s.market.Fees.SetPlatformFeeBps(caller, req.PlatformBps)
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"platformBps": req.PlatformBps})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	var req mintRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	coll, err := parseAccount(req.Collection)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseAccount(req.To)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	unit, err := parseAmount(req.UnitID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	err = s.market.Do(r.Context(), func() error {
		return s.market.Mint(caller, coll, unit, to, quantity)
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"collection": crypto.FormatAddress(coll),
		"unitId":     unit.String(),
		"owner":      crypto.FormatAddress(to),
		"quantity":   quantity,
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventLog == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("event log disabled"))
		return
	}
	query := r.URL.Query()
	var after uint64
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errBadRequest("invalid after cursor"))
			return
		}
		after = parsed
	}
	limit := defaultEventPage
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, errBadRequest("invalid limit"))
			return
		}
		limit = parsed
	}
	records, err := s.eventLog.List(r.Context(), after, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	next := after
	if len(records) > 0 {
		next = records[len(records)-1].Sequence
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": records,
		"next":   next,
	})
}

func mustCaller(r *http.Request) [20]byte {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		panic("auctiond: handler mounted without authentication")
	}
	return caller
}

func auctionIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, errBadRequest(fmt.Sprintf("invalid auction id %q", raw))
	}
	return id, nil
}

func readJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return err
	}
	if len(data) > maxRequestBody {
		return fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	writeJSONError(w, status, err.Error())
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("component", "auctiond"),
			slog.Int("status", status),
			slog.Any("error", err))
	}
	s.writeError(w, status, err)
}

var (
	validationErrors = []error{
		auction.ErrInvalidDuration, auction.ErrInvalidQuantity, auction.ErrMissingAssetProof,
		auction.ErrInvalidAsset, auction.ErrInvalidIncrement, auction.ErrInvalidReserve,
		auction.ErrBidTooLow, auction.ErrNoBalance, fees.ErrFeeOutOfRange,
		assets.ErrEmptyProof, assets.ErrInvalidCategory, assets.ErrInvalidQuantity,
		assets.ErrStandardMismatch, assets.ErrNotApproved, assets.ErrInsufficientBalance,
		assets.ErrCollectionExists, assets.ErrUnitExists, escrow.ErrNotOffChain,
		bank.ErrInsufficientBalance,
	}
	authorizationErrors = []error{
		auction.ErrSellerCannotBid, auction.ErrNotSeller, auction.ErrNotAuthorized,
		fees.ErrNotFeeManager, escrow.ErrUnauthorized, assets.ErrNotOwner, ErrNotMinter,
	}
	notFoundErrors = []error{
		auction.ErrNotFound, escrow.ErrHoldingNotFound, assets.ErrCollectionNotFound,
	}
	conflictErrors = []error{
		auction.ErrNotActive, auction.ErrEnded, auction.ErrNotEnded, auction.ErrAlreadySettled,
		auction.ErrHasBids, auction.ErrTooEarly, common.ErrReentrantCall,
	}
)

// statusFor maps engine errors onto HTTP status codes. Anything unrecognised
// is treated as a failing downstream adapter.
func statusFor(err error) int {
	var bad badRequestError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable
	case matchesAny(err, validationErrors):
		return http.StatusBadRequest
	case matchesAny(err, authorizationErrors):
		return http.StatusForbidden
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound
	case matchesAny(err, conflictErrors):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
