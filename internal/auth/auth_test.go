package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ssugameworks/invest-system-backend/internal/store"
)

const testSecret = "test-secret"

func newService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	tokens := NewTokens(testSecret, time.Hour)
	return NewService(ms, tokens, 50000, bcrypt.MinCost, nil), ms
}

func TestTokens_IssueVerify(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	tok, exp, err := tokens.Issue("42", RoleUser, 20241234, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("expiry %v too early for default ttl", exp)
	}

	claims, err := tokens.VerifyRole(tok, RoleUser)
	if err != nil {
		t.Fatalf("VerifyRole: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Errorf("UserID = %d, %v", id, err)
	}
	if claims.SchoolNumber != 20241234 {
		t.Errorf("SchoolNumber = %d", claims.SchoolNumber)
	}

	if _, err := tokens.VerifyRole(tok, RoleAdmin); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("user token must not pass admin check, got %v", err)
	}
	other := NewTokens("other-secret", time.Hour)
	if _, err := other.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token signed with another secret should fail, got %v", err)
	}
}

func TestTokens_Expired(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	tok, _, err := tokens.Issue("1", RoleUser, 0, time.Nanosecond)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := tokens.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestUniqueName_FallsBackToSuffix(t *testing.T) {
	calls := 0
	taken := func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	}
	name, err := uniqueName(context.Background(), taken, func() string { return "brave tiger" })
	if err != nil {
		t.Fatalf("uniqueName: %v", err)
	}
	if calls != nameAttempts {
		t.Errorf("expected %d lookups, got %d", nameAttempts, calls)
	}
	if !strings.HasPrefix(name, "brave tiger ") || len(name) != len("brave tiger 1234") {
		t.Errorf("unexpected fallback name %q", name)
	}
}

func TestSignUp_SignIn(t *testing.T) {
	svc, ms := newService(t)
	ctx := context.Background()

	token, err := svc.SignUp(ctx, SignUpRequest{SchoolNumber: 20240001, Department: "CS", Password: "secret1"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	user, err := svc.CurrentUser(ctx, token)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if user.Capital != 50000 || user.TotalAssets != 50000 {
		t.Errorf("capital = %d, total = %d", user.Capital, user.TotalAssets)
	}
	if user.ROI == nil || *user.ROI != 0 {
		t.Errorf("roi should start at 0, got %v", user.ROI)
	}
	if user.PasswordHash == "secret1" {
		t.Fatal("password stored in plain text")
	}

	if _, err := svc.SignUp(ctx, SignUpRequest{SchoolNumber: 20240001, Department: "EE", Password: "secret2"}); !errors.Is(err, ErrSchoolNumberTaken) {
		t.Errorf("duplicate signup: got %v", err)
	}
	if exists, _ := svc.CheckUser(ctx, 20240001); !exists {
		t.Error("CheckUser should report the registered number")
	}

	if _, err := svc.SignIn(ctx, SignInRequest{SchoolNumber: 20240001, Password: "wrong!!"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{SchoolNumber: 999, Password: "secret1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown number: got %v", err)
	}

	res, err := svc.SignIn(ctx, SignInRequest{SchoolNumber: 20240001, Password: "secret1"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if res.Name != user.Name {
		t.Errorf("name = %q, want %q", res.Name, user.Name)
	}

	// The signup token is superseded by the new session.
	if _, err := svc.CurrentUser(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("old session should be revoked, got %v", err)
	}
	if got, err := ms.GetUserByToken(ctx, res.AccessToken); err != nil || got.ID != user.ID {
		t.Errorf("new session not stored: %v", err)
	}
}

func TestSignUp_Validation(t *testing.T) {
	svc, _ := newService(t)
	tests := []struct {
		name string
		req  SignUpRequest
	}{
		{"missing number", SignUpRequest{Department: "CS", Password: "secret1"}},
		{"missing department", SignUpRequest{SchoolNumber: 1, Password: "secret1"}},
		{"short password", SignUpRequest{SchoolNumber: 1, Department: "CS", Password: "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SignUp(context.Background(), tt.req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestAdminLogin(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	if _, _, err := AdminLogin(tokens, "", "", time.Hour); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unset password must refuse login, got %v", err)
	}
	if _, _, err := AdminLogin(tokens, "hunter2", "hunter3", time.Hour); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	tok, _, err := AdminLogin(tokens, "hunter2", "hunter2", time.Hour)
	if err != nil {
		t.Fatalf("AdminLogin: %v", err)
	}
	if _, err := tokens.VerifyRole(tok, RoleAdmin); err != nil {
		t.Errorf("admin token rejected: %v", err)
	}
}

func newRouter(t *testing.T) *chi.Mux {
	t.Helper()
	svc, _ := newService(t)
	r := chi.NewRouter()
	r.Route("/api", NewHandler(svc, svc.tokens, nil).Routes)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_SignupFlow(t *testing.T) {
	r := newRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/auth/check-user", "", map[string]int{"schoolNumber": 20245555})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"exists":false`) {
		t.Fatalf("check-user: %d %s", rec.Code, rec.Body.String())
	}

	signup := map[string]any{"schoolNumber": 20245555, "department": "Math", "password": "pa55word"}
	rec = doJSON(t, r, http.MethodPost, "/api/auth/signup", "", signup)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil || created.AccessToken == "" {
		t.Fatalf("signup body: %v", err)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/auth/signup", "", signup)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate signup: got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/user", created.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get user: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "pa55word") || strings.Contains(rec.Body.String(), "password") {
		t.Error("user response leaks credentials")
	}

	rec = doJSON(t, r, http.MethodPost, "/api/auth/signin", "", map[string]any{"schoolNumber": 20245555, "password": "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signin: got %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodPost, "/api/auth/signin", "", map[string]any{"schoolNumber": 20245555, "password": "pa55word"})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"name"`) {
		t.Fatalf("signin: %d %s", rec.Code, rec.Body.String())
	}

	// Signing in again revokes the signup session.
	rec = doJSON(t, r, http.MethodGet, "/api/user", created.AccessToken, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked session: got %d", rec.Code)
	}
}

func TestHandlers_Unauthorized(t *testing.T) {
	r := newRouter(t)
	for _, tok := range []string{"", "garbage"} {
		if rec := doJSON(t, r, http.MethodGet, "/api/user", tok, nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("token %q: got %d", tok, rec.Code)
		}
	}
	rec := doJSON(t, r, http.MethodPost, "/api/auth/signup", "", map[string]any{"schoolNumber": 1, "department": "", "password": "pa55word"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid signup: got %d", rec.Code)
	}
}
