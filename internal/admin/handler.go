// Package admin serves the operator endpoints: pricing configuration,
// manual price overrides, recalculation, team creation, user deletion and
// raw table inspection.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ssugameworks/invest-system-backend/internal/api"
	"github.com/ssugameworks/invest-system-backend/internal/auth"
	"github.com/ssugameworks/invest-system-backend/internal/config"
	"github.com/ssugameworks/invest-system-backend/internal/ledger"
	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/pricing"
	"github.com/ssugameworks/invest-system-backend/internal/scheduler"
	"github.com/ssugameworks/invest-system-backend/internal/settings"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

// Recalculator runs one pricing cycle on demand.
type Recalculator interface {
	RecalculatePrices(ctx context.Context) (scheduler.Summary, error)
}

// Handler serves /admin.
type Handler struct {
	cfg       config.AdminConfig
	tokens    *auth.Tokens
	store     store.Store
	settings  *settings.Source
	recalc    Recalculator
	ledger    *ledger.Service
	inspector TableInspector
	logger    *slog.Logger
}

// Deps bundles the services the admin endpoints drive. Inspector may be nil
// when no SQL database backs the store.
type Deps struct {
	Tokens    *auth.Tokens
	Store     store.Store
	Settings  *settings.Source
	Recalc    Recalculator
	Ledger    *ledger.Service
	Inspector TableInspector
	Logger    *slog.Logger
}

func NewHandler(cfg config.AdminConfig, d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:       cfg,
		tokens:    d.Tokens,
		store:     d.Store,
		settings:  d.Settings,
		recalc:    d.Recalc,
		ledger:    d.Ledger,
		inspector: d.Inspector,
		logger:    logger,
	}
}

// Routes mounts the admin endpoints under r.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.gate)
	r.Post("/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/pricing/config", h.GetPricingConfig)
		r.Patch("/pricing/config", h.UpdatePricingConfig)
		r.Post("/pricing/recalculate", h.Recalculate)
		r.Post("/teams", h.CreateTeam)
		r.Patch("/teams/{teamId}/price", h.UpdateTeamPrice)
		r.Delete("/users/{id}", h.DeleteUser)
		r.Post("/users/batch-delete", h.BatchDeleteUsers)
		r.Get("/tables", h.ListTables)
		r.Get("/tables/{table}/rows/{id}", h.ReadRow)
		r.Patch("/tables/{table}/rows/{id}", h.WriteRow)
	})
}

// gate refuses every admin request while the interface is disabled or the
// shared key header does not match.
func (h *Handler) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.cfg.Enabled {
			api.WriteError(w, "admin interface disabled", http.StatusForbidden)
			return
		}
		if h.cfg.Key != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Admin-Key")), []byte(h.cfg.Key)) != 1 {
			api.WriteError(w, "invalid admin key", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := api.BearerToken(r)
		if err != nil {
			api.WriteKindError(w, err.Error(), "Unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := h.tokens.VerifyRole(token, auth.RoleAdmin); err != nil {
			api.WriteKindError(w, "invalid admin token", "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Login handles POST /admin/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	token, exp, err := auth.AdminLogin(h.tokens, h.cfg.Password, req.Password, h.cfg.TokenTTL)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.logger.Warn("admin login refused", "remote", r.RemoteAddr)
		api.WriteKindError(w, "invalid admin password", "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.internal(w, "admin login", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"accessToken": token, "expiresAt": exp})
}

// GetPricingConfig handles GET /admin/pricing/config
func (h *Handler) GetPricingConfig(w http.ResponseWriter, r *http.Request) {
	entries, err := h.settings.Entries(r.Context())
	if err != nil {
		h.internal(w, "read pricing config", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, entries)
}

// UpdatePricingConfig handles PATCH /admin/pricing/config. The body maps
// keys such as "GAMMA" to new values.
func (h *Handler) UpdatePricingConfig(w http.ResponseWriter, r *http.Request) {
	var values map[string]decimal.Decimal
	if err := api.DecodeJSON(r, &values); err != nil || len(values) == 0 {
		api.WriteError(w, "body must be a non-empty object of key/value pairs", http.StatusBadRequest)
		return
	}
	params, err := h.settings.Update(r.Context(), values)
	switch {
	case errors.Is(err, settings.ErrUnknownKey), errors.Is(err, pricing.ErrInvalidParams):
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.internal(w, "update pricing config", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, params)
}

// Recalculate handles POST /admin/pricing/recalculate
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	sum, err := h.recalc.RecalculatePrices(r.Context())
	if err != nil {
		h.internal(w, "recalculate prices", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, sum)
}

// CreateTeamRequest is the body of POST /admin/teams.
type CreateTeamRequest struct {
	Name   string `json:"teamName"`
	Status string `json:"status"`
	P0     int64  `json:"p0"`
}

// CreateTeam handles POST /admin/teams
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if err := api.DecodeJSON(r, &req); err != nil || req.Name == "" {
		api.WriteError(w, "teamName is required", http.StatusBadRequest)
		return
	}
	if req.P0 < 0 {
		api.WriteError(w, "p0 must not be negative", http.StatusBadRequest)
		return
	}
	if req.P0 == 0 {
		req.P0 = model.DefaultReferencePrice
	}
	team := &model.Team{Name: req.Name, Status: req.Status, P0: req.P0}
	if err := h.store.CreateTeam(r.Context(), team); err != nil {
		if errors.Is(err, store.ErrConflict) {
			api.WriteError(w, "team already exists", http.StatusConflict)
			return
		}
		h.internal(w, "create team", err)
		return
	}
	h.logger.Info("team created", "team_id", team.ID, "name", team.Name)
	api.WriteJSON(w, http.StatusCreated, team)
}

// UpdateTeamPrice handles PATCH /admin/teams/{teamId}/price
func (h *Handler) UpdateTeamPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "teamId")
	if !ok {
		return
	}
	var upd model.TeamPriceUpdate
	if err := api.DecodeJSON(r, &upd); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if upd.Empty() {
		api.WriteError(w, "at least one of p, p0, p1, p2, money is required", http.StatusBadRequest)
		return
	}
	for _, v := range []*int64{upd.P, upd.P0, upd.P1, upd.P2, upd.Money} {
		if v != nil && *v < 0 {
			api.WriteError(w, "pricing fields must not be negative", http.StatusBadRequest)
			return
		}
	}
	team, err := h.store.UpdateTeamPricing(r.Context(), id, upd)
	if errors.Is(err, store.ErrNotFound) {
		api.WriteError(w, "team not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.internal(w, "update team price", err)
		return
	}
	h.logger.Info("team price overridden", "team_id", id)
	api.WriteJSON(w, http.StatusOK, team)
}

// DeleteUser handles DELETE /admin/users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	refund, err := h.ledger.DeleteUser(r.Context(), id)
	if errors.Is(err, ledger.ErrInvalidTarget) {
		api.WriteKindError(w, err.Error(), string(ledger.KindInvalidTarget), http.StatusNotFound)
		return
	}
	if err != nil {
		h.internal(w, "delete user", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, refund)
}

// BatchDeleteUsers handles POST /admin/users/batch-delete
func (h *Handler) BatchDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserIDs []int64 `json:"userIds"`
	}
	if err := api.DecodeJSON(r, &req); err != nil || len(req.UserIDs) == 0 {
		api.WriteError(w, "userIds is required", http.StatusBadRequest)
		return
	}
	api.WriteJSON(w, http.StatusOK, h.ledger.DeleteUsers(r.Context(), req.UserIDs))
}

// ListTables handles GET /admin/tables
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	if !h.hasInspector(w) {
		return
	}
	tables, err := h.inspector.ListTables(r.Context())
	if err != nil {
		h.internal(w, "list tables", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, tables)
}

// ReadRow handles GET /admin/tables/{table}/rows/{id}
func (h *Handler) ReadRow(w http.ResponseWriter, r *http.Request) {
	if !h.hasInspector(w) {
		return
	}
	table := chi.URLParam(r, "table")
	if !ValidIdentifier(table) {
		api.WriteError(w, "invalid table name", http.StatusBadRequest)
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	row, err := h.inspector.ReadRow(r.Context(), table, id)
	if err != nil {
		h.writeTableError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, mask(row))
}

// WriteRow handles PATCH /admin/tables/{table}/rows/{id}
func (h *Handler) WriteRow(w http.ResponseWriter, r *http.Request) {
	if !h.hasInspector(w) {
		return
	}
	table := chi.URLParam(r, "table")
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var values Row
	if err := api.DecodeJSON(r, &values); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := checkWrite(table, values); err != nil {
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	row, err := h.inspector.WriteRow(r.Context(), table, id, values)
	if err != nil {
		h.writeTableError(w, err)
		return
	}
	if inv, ok := h.store.(store.Invalidator); ok {
		inv.InvalidateRow(r.Context(), table, id)
	}
	h.logger.Info("table row written", "table", table, "id", id, "columns", len(values))
	api.WriteJSON(w, http.StatusOK, mask(row))
}

func (h *Handler) hasInspector(w http.ResponseWriter) bool {
	if h.inspector == nil {
		api.WriteError(w, "table inspection requires a database", http.StatusNotImplemented)
		return false
	}
	return true
}

func (h *Handler) writeTableError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownTable), errors.Is(err, store.ErrNotFound):
		api.WriteError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrUnknownColumn), errors.Is(err, ErrInvalidIdentifier), errors.Is(err, ErrReadOnlyColumn):
		api.WriteError(w, err.Error(), http.StatusBadRequest)
	default:
		h.internal(w, "table access", err)
	}
}

func (h *Handler) internal(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", "err", err)
	api.WriteError(w, "internal error", http.StatusInternalServerError)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		api.WriteError(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
