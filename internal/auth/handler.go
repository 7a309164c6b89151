package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ssugameworks/invest-system-backend/internal/api"
)

// Handler serves the account endpoints.
type Handler struct {
	svc    *Service
	tokens *Tokens
	logger *slog.Logger
}

func NewHandler(svc *Service, tokens *Tokens, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// Routes mounts /auth/* and /user under r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/check-user", h.CheckUser)
	r.Post("/auth/signup", h.SignUp)
	r.Post("/auth/signin", h.SignIn)
	r.With(RequireUser(h.tokens)).Get("/user", h.GetUser)
}

// CheckUser handles POST /api/auth/check-user
func (h *Handler) CheckUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SchoolNumber int `json:"schoolNumber"`
	}
	if err := api.DecodeJSON(r, &req); err != nil || req.SchoolNumber < 1 {
		api.WriteError(w, "schoolNumber is required", http.StatusBadRequest)
		return
	}
	exists, err := h.svc.CheckUser(r.Context(), req.SchoolNumber)
	if err != nil {
		h.logger.Error("check user failed", "err", err)
		api.WriteError(w, "failed to check user", http.StatusInternalServerError)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// SignUp handles POST /api/auth/signup
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	token, err := h.svc.SignUp(r.Context(), req)
	switch {
	case errors.Is(err, ErrInvalidInput):
		api.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrSchoolNumberTaken):
		api.WriteError(w, "school number already registered", http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("signup failed", "err", err)
		api.WriteError(w, "failed to sign up", http.StatusInternalServerError)
		return
	}
	api.WriteJSON(w, http.StatusCreated, map[string]string{"accessToken": token})
}

// SignIn handles POST /api/auth/signin
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := h.svc.SignIn(r.Context(), req)
	if errors.Is(err, ErrInvalidCredentials) {
		api.WriteKindError(w, "invalid school number or password", "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("signin failed", "err", err)
		api.WriteError(w, "failed to sign in", http.StatusInternalServerError)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

// GetUser handles GET /api/user
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.CurrentUser(r.Context(), Token(r.Context()))
	if errors.Is(err, ErrUnauthorized) {
		api.WriteKindError(w, "invalid token", "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("load user failed", "err", err)
		api.WriteError(w, "failed to load user", http.StatusInternalServerError)
		return
	}
	api.WriteJSON(w, http.StatusOK, user)
}
