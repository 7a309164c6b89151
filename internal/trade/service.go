// Package trade provides the HTTP handlers for buying and selling team
// shares and for reading a player's portfolio and trade history.
package trade

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ssugameworks/invest-system-backend/internal/api"
	"github.com/ssugameworks/invest-system-backend/internal/auth"
	"github.com/ssugameworks/invest-system-backend/internal/ledger"
	"github.com/ssugameworks/invest-system-backend/internal/metrics"
	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/portfolio"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100

	unknownTeamName = "알 수 없는 팀"
)

// HistoryEntry is a trade joined with the name of its team.
type HistoryEntry struct {
	model.TradeRecord
	TeamName string `json:"team_name"`
}

// Publisher receives executed trades for broadcasting.
type Publisher interface {
	PublishTrade(rec model.TradeRecord)
}

// Service handles trade and portfolio requests. Trades are serialized per
// row by the ledger's store transaction, so the handlers hold no locks.
type Service struct {
	ledger    *ledger.Service
	portfolio *portfolio.Service
	store     store.Store
	hub       Publisher
	logger    *slog.Logger
}

// NewService creates a trade service. Pass nil for hub if broadcasting is
// not needed.
func NewService(l *ledger.Service, p *portfolio.Service, st store.Store, hub Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, portfolio: p, store: st, hub: hub, logger: logger}
}

// Request is the JSON body of POST /api/invest and POST /api/sell.
type Request struct {
	Amount int64 `json:"amount"`
	TeamID int64 `json:"teamId"`
}

// Routes mounts the trade endpoints under r. limit, if non-nil, wraps the
// two trade endpoints.
func (s *Service) Routes(r chi.Router, tokens *auth.Tokens, limit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(tokens))
		r.Group(func(r chi.Router) {
			if limit != nil {
				r.Use(limit)
			}
			r.Post("/invest", s.Invest)
			r.Post("/sell", s.Sell)
		})
		r.Get("/user/portfolio", s.GetPortfolio)
		r.Get("/user/portfolio/{teamId}", s.GetPosition)
		r.Get("/user/history", s.GetHistory)
	})
}

// Invest handles POST /api/invest
func (s *Service) Invest(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, model.TradeBuy)
}

// Sell handles POST /api/sell
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, model.TradeSell)
}

func (s *Service) execute(w http.ResponseWriter, r *http.Request, side model.TradeType) {
	var req Request
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TeamID <= 0 {
		api.WriteError(w, "teamId is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	token := auth.Token(r.Context())
	var (
		res *ledger.Result
		err error
	)
	if side == model.TradeBuy {
		res, err = s.ledger.Buy(r.Context(), token, req.TeamID, req.Amount)
	} else {
		res, err = s.ledger.Sell(r.Context(), token, req.TeamID, req.Amount)
	}
	if err != nil {
		s.writeTradeError(w, err, side)
		return
	}

	metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	metrics.TradeLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())
	metrics.TradeVolume.WithLabelValues(strconv.FormatInt(req.TeamID, 10), string(side)).Add(float64(res.Amount))
	if s.hub != nil {
		s.hub.PublishTrade(res.Trade)
	}

	status := http.StatusOK
	if side == model.TradeBuy {
		status = http.StatusCreated
	}
	api.WriteJSON(w, status, res)
}

func (s *Service) writeTradeError(w http.ResponseWriter, err error, side model.TradeType) {
	if errors.Is(err, ledger.ErrInvalidAmount) {
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind := ledger.KindOf(err)
	if kind == "" {
		s.logger.Error("trade failed", "type", side, "err", err)
		api.WriteError(w, "trade failed", http.StatusInternalServerError)
		return
	}
	metrics.TradeRejections.WithLabelValues(string(kind)).Inc()
	status := StatusFor(kind)
	if status == http.StatusInternalServerError {
		s.logger.Error("trade rejected", "type", side, "kind", kind, "err", err)
	}
	api.WriteKindError(w, err.Error(), string(kind), status)
}

// StatusFor maps a ledger error kind to its HTTP status.
func StatusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindUnauthorized:
		return http.StatusUnauthorized
	case ledger.KindInvalidTarget:
		return http.StatusNotFound
	case ledger.KindInsufficientFunds, ledger.KindInsufficientShares,
		ledger.KindNoHolding, ledger.KindInvalidPrice:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// GetPortfolio handles GET /api/user/portfolio
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	sum, err := s.portfolio.GetPortfolio(r.Context(), auth.Token(r.Context()))
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, sum)
}

// GetPosition handles GET /api/user/portfolio/{teamId}
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	teamID, err := strconv.ParseInt(chi.URLParam(r, "teamId"), 10, 64)
	if err != nil || teamID <= 0 {
		api.WriteError(w, "invalid team id", http.StatusBadRequest)
		return
	}
	pos, err := s.portfolio.GetPosition(r.Context(), auth.Token(r.Context()), teamID)
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, pos)
}

// GetHistory handles GET /api/user/history?limit=
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUserByToken(r.Context(), auth.Token(r.Context()))
	if errors.Is(err, store.ErrNotFound) {
		api.WriteKindError(w, "invalid token", string(ledger.KindUnauthorized), http.StatusUnauthorized)
		return
	}
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	limit := api.IntQuery(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
	trades, err := s.store.ListTrades(r.Context(), user.ID, limit)
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	teams, err := s.store.ListTeams(r.Context())
	if err != nil {
		s.writeReadError(w, err)
		return
	}
	names := make(map[int64]string, len(teams))
	for _, t := range teams {
		names[t.ID] = t.Name
	}

	entries := make([]HistoryEntry, len(trades))
	for i, rec := range trades {
		name, ok := names[rec.TeamID]
		if !ok {
			name = unknownTeamName
		}
		entries[i] = HistoryEntry{TradeRecord: rec, TeamName: name}
	}
	api.WriteJSON(w, http.StatusOK, entries)
}

func (s *Service) writeReadError(w http.ResponseWriter, err error) {
	if errors.Is(err, portfolio.ErrUnauthorized) {
		api.WriteKindError(w, "invalid token", string(ledger.KindUnauthorized), http.StatusUnauthorized)
		return
	}
	s.logger.Error("portfolio read failed", "err", err)
	api.WriteError(w, "internal error", http.StatusInternalServerError)
}
