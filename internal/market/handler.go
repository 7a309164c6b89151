// Package market serves the public read endpoints: teams, prices and the
// leaderboard.
package market

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ssugameworks/invest-system-backend/internal/api"
	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxWindow       = 7 * 24 * time.Hour
)

// Handler serves market data.
type Handler struct {
	store         store.Store
	historyWindow time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

func NewHandler(st store.Store, historyWindow time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if historyWindow <= 0 {
		historyWindow = 150 * time.Minute
	}
	return &Handler{store: st, historyWindow: historyWindow, now: time.Now, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/teams", h.ListTeams)
	r.Get("/teams/{id}", h.GetTeam)
	r.Get("/teams/{id}/prices", h.GetPriceHistory)
	r.Get("/prices", h.LatestPrices)
	r.Get("/leaderboard", h.Leaderboard)
}

// ListTeams handles GET /api/teams
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.store.ListTeams(r.Context())
	if err != nil {
		h.internal(w, "list teams", err)
		return
	}
	if teams == nil {
		teams = []model.Team{}
	}
	api.WriteJSON(w, http.StatusOK, teams)
}

// GetTeam handles GET /api/teams/{id}
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := teamID(w, r)
	if !ok {
		return
	}
	team, err := h.store.GetTeam(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		api.WriteError(w, "team not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.internal(w, "get team", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, team)
}

// PriceHistory is the response of GET /api/teams/{id}/prices.
type PriceHistory struct {
	TeamID int64             `json:"teamId"`
	Since  time.Time         `json:"since"`
	Ticks  []model.PriceTick `json:"ticks"`
}

// GetPriceHistory handles GET /api/teams/{id}/prices?window=
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := teamID(w, r)
	if !ok {
		return
	}
	window := h.historyWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxWindow {
			api.WriteError(w, "window must be a positive duration up to 168h", http.StatusBadRequest)
			return
		}
		window = d
	}

	since := h.now().UTC().Add(-window)
	ticks, err := h.store.PriceHistory(r.Context(), id, since)
	if err != nil {
		h.internal(w, "price history", err)
		return
	}
	if ticks == nil {
		ticks = []model.PriceTick{}
	}
	api.WriteJSON(w, http.StatusOK, PriceHistory{TeamID: id, Since: since, Ticks: ticks})
}

// LatestPrices handles GET /api/prices
func (h *Handler) LatestPrices(w http.ResponseWriter, r *http.Request) {
	ticks, err := h.store.LatestPrices(r.Context())
	if err != nil {
		h.internal(w, "latest prices", err)
		return
	}
	if ticks == nil {
		ticks = []model.PriceTick{}
	}
	api.WriteJSON(w, http.StatusOK, ticks)
}

// Entry is one leaderboard row.
type Entry struct {
	Name         string `json:"name"`
	SchoolNumber int    `json:"schoolNumber"`
	Department   string `json:"department"`
	Capital      int64  `json:"capital"`
	TotalAssets  int64  `json:"total_assets"`
	ROI          *int64 `json:"roi"`
	Rank         *int64 `json:"rank"`
}

// Leaderboard is the response of GET /api/leaderboard.
type Leaderboard struct {
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
	Entries  []Entry `json:"entries"`
}

// Leaderboard handles GET /api/leaderboard?page=&pageSize=
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	page := api.IntQuery(r, "page", 1, 1, 1<<20)
	size := api.IntQuery(r, "pageSize", defaultPageSize, 1, maxPageSize)

	users, err := h.store.Leaderboard(r.Context(), (page-1)*size, size)
	if err != nil {
		h.internal(w, "leaderboard", err)
		return
	}
	out := Leaderboard{Page: page, PageSize: size, Entries: make([]Entry, 0, len(users))}
	for _, u := range users {
		out.Entries = append(out.Entries, Entry{
			Name:         u.Name,
			SchoolNumber: u.SchoolNumber,
			Department:   u.Department,
			Capital:      u.Capital,
			TotalAssets:  u.TotalAssets,
			ROI:          u.ROI,
			Rank:         u.Rank,
		})
	}
	api.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) internal(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", "err", err)
	api.WriteError(w, "internal error", http.StatusInternalServerError)
}

func teamID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.WriteError(w, "invalid team id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
