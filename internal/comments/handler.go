// Package comments serves team comment threads and the site-wide comment
// feed.
package comments

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/ssugameworks/invest-system-backend/internal/api"
	"github.com/ssugameworks/invest-system-backend/internal/auth"
	"github.com/ssugameworks/invest-system-backend/internal/metrics"
	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

const (
	DefaultTeamLimit = 7
	PreviewLimit     = 3
	DefaultFeedLimit = 10
	MaxLimit         = 50

	// MaxBodyLength is counted in characters.
	MaxBodyLength = 1000

	unknownDepartment = "미분류"
)

// TeamPage is one page of a team's comments. NextCursor is the creation
// time of the last item, to be passed back as ?cursor=.
type TeamPage struct {
	Items      []model.Comment `json:"items"`
	Count      int             `json:"count"`
	HasMore    bool            `json:"hasMore"`
	NextCursor *string         `json:"nextCursor"`
}

// FeedPage is one page of the site-wide feed, paged by comment ID.
type FeedPage struct {
	Comments   []model.Comment `json:"comments"`
	HasMore    bool            `json:"hasMore"`
	NextCursor *int64          `json:"nextCursor"`
	TotalCount int64           `json:"totalCount"`
}

type createRequest struct {
	Body string `json:"body"`
}

type Handler struct {
	store  store.Store
	logger *slog.Logger
}

func NewHandler(st store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: st, logger: logger}
}

// Routes mounts the comment endpoints. Reads are public; posting needs a
// user session.
func (h *Handler) Routes(r chi.Router, tokens *auth.Tokens) {
	r.Get("/teams/{id}/comments", h.ListTeamComments)
	r.Get("/comments", h.Feed)
	r.Get("/comments/recent", h.Feed)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(tokens))
		r.Post("/teams/{id}/comments", h.PostTeamComment)
		r.Post("/comments", h.PostGeneralComment)
	})
}

// TeamLimit resolves the page size of a team thread: preview mode is fixed,
// otherwise the requested size is clamped to [1, MaxLimit].
func TeamLimit(mode, raw string) int {
	if mode == "preview" {
		return PreviewLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultTeamLimit
	}
	return min(max(n, 1), MaxLimit)
}

// ListTeamComments handles GET /api/teams/{id}/comments?limit=&cursor=&mode=
func (h *Handler) ListTeamComments(w http.ResponseWriter, r *http.Request) {
	team, ok := h.team(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit := TeamLimit(q.Get("mode"), q.Get("limit"))

	// An unparsable cursor reads from the newest comment.
	var before time.Time
	if c := q.Get("cursor"); c != "" {
		if ts, err := time.Parse(time.RFC3339Nano, c); err == nil {
			before = ts
		}
	}

	items, err := h.store.ListTeamComments(r.Context(), team.ID, before, limit+1)
	if err != nil {
		h.internal(w, "list team comments", err)
		return
	}
	page := TeamPage{HasMore: len(items) > limit}
	if page.HasMore {
		items = items[:limit]
	}
	page.Items = present(items)
	page.Count = len(page.Items)
	if page.HasMore {
		next := items[len(items)-1].CreatedAt.UTC().Format(time.RFC3339Nano)
		page.NextCursor = &next
	}
	api.WriteJSON(w, http.StatusOK, page)
}

// Feed handles GET /api/comments?limit=&cursor=
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	limit := api.IntQuery(r, "limit", DefaultFeedLimit, 1, MaxLimit)
	cursor, _ := strconv.ParseInt(r.URL.Query().Get("cursor"), 10, 64)

	items, err := h.store.ListComments(r.Context(), cursor, limit+1)
	if err != nil {
		h.internal(w, "list comments", err)
		return
	}
	total, err := h.store.CountComments(r.Context())
	if err != nil {
		h.internal(w, "count comments", err)
		return
	}
	page := FeedPage{HasMore: len(items) > limit, TotalCount: total}
	if page.HasMore {
		items = items[:limit]
		next := items[len(items)-1].ID
		page.NextCursor = &next
	}
	page.Comments = present(items)
	api.WriteJSON(w, http.StatusOK, page)
}

// PostTeamComment handles POST /api/teams/{id}/comments
func (h *Handler) PostTeamComment(w http.ResponseWriter, r *http.Request) {
	team, ok := h.team(w, r)
	if !ok {
		return
	}
	h.post(w, r, team.ID, "team")
}

// PostGeneralComment handles POST /api/comments
func (h *Handler) PostGeneralComment(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, model.GeneralCommentTeamID, "general")
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request, teamID int64, scope string) {
	var req createRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		api.WriteError(w, "body must not be empty", http.StatusBadRequest)
		return
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		api.WriteError(w, fmt.Sprintf("body exceeds %d characters", MaxBodyLength), http.StatusBadRequest)
		return
	}

	user, err := h.store.GetUserByToken(r.Context(), auth.Token(r.Context()))
	if errors.Is(err, store.ErrNotFound) {
		api.WriteKindError(w, "invalid token", "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.internal(w, "comment author lookup", err)
		return
	}

	c := &model.Comment{TeamID: teamID, AuthorID: user.ID, Body: body}
	if err := h.store.CreateComment(r.Context(), c); err != nil {
		h.internal(w, "create comment", err)
		return
	}
	metrics.CommentsPosted.WithLabelValues(scope).Inc()
	h.logger.Info("comment posted", "id", c.ID, "team_id", teamID, "author_id", user.ID)
	api.WriteJSON(w, http.StatusCreated, present([]model.Comment{*c})[0])
}

func (h *Handler) team(w http.ResponseWriter, r *http.Request) (*model.Team, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.WriteError(w, "invalid team id", http.StatusBadRequest)
		return nil, false
	}
	team, err := h.store.GetTeam(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		api.WriteError(w, "team not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.internal(w, "get team", err)
		return nil, false
	}
	return team, true
}

// present fills in author labels for comments whose author is gone.
func present(cs []model.Comment) []model.Comment {
	out := make([]model.Comment, len(cs))
	for i, c := range cs {
		if c.AuthorName == "" {
			c.AuthorName = fmt.Sprintf("사용자%d", c.AuthorID)
		}
		if c.AuthorDepartment == "" {
			c.AuthorDepartment = unknownDepartment
		}
		out[i] = c
	}
	return out
}

func (h *Handler) internal(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", "err", err)
	api.WriteError(w, "internal error", http.StatusInternalServerError)
}
