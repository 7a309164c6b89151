// Package auth handles player signup and signin, session tokens and the
// admin login. Session tokens are HS256 JWTs; the latest one issued to a
// user is also stored on the user row, so signing in again revokes the
// previous session.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid school number or password")
	ErrSchoolNumberTaken  = errors.New("auth: school number already registered")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrUnauthorized       = errors.New("auth: invalid session")
)

const minPasswordLen = 6

type SignUpRequest struct {
	SchoolNumber int    `json:"schoolNumber"`
	Department   string `json:"department"`
	Password     string `json:"password"`
}

type SignInRequest struct {
	SchoolNumber int    `json:"schoolNumber"`
	Password     string `json:"password"`
}

type SignInResult struct {
	AccessToken string `json:"accessToken"`
	Name        string `json:"name"`
}

// Service implements the player account flows.
type Service struct {
	store          store.Store
	tokens         *Tokens
	initialCapital int64
	bcryptCost     int
	logger         *slog.Logger
	nameGen        func() string
}

func NewService(st store.Store, tokens *Tokens, initialCapital int64, bcryptCost int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:          st,
		tokens:         tokens,
		initialCapital: initialCapital,
		bcryptCost:     bcryptCost,
		logger:         logger,
		nameGen:        randomName,
	}
}

// CheckUser reports whether a school number is registered.
func (s *Service) CheckUser(ctx context.Context, schoolNumber int) (bool, error) {
	_, err := s.store.GetUserBySchoolNumber(ctx, schoolNumber)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SignUp registers a player with the initial endowment and returns a
// session token.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (string, error) {
	switch {
	case req.SchoolNumber < 1:
		return "", fmt.Errorf("%w: schoolNumber must be positive", ErrInvalidInput)
	case req.Department == "":
		return "", fmt.Errorf("%w: department is required", ErrInvalidInput)
	case len(req.Password) < minPasswordLen:
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	exists, err := s.CheckUser(ctx, req.SchoolNumber)
	if err != nil {
		return "", err
	}
	if exists {
		return "", ErrSchoolNumberTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	name, err := uniqueName(ctx, s.store.UserNameExists, s.nameGen)
	if err != nil {
		return "", fmt.Errorf("pick display name: %w", err)
	}

	roi := int64(0)
	user := &model.User{
		Name:         name,
		SchoolNumber: req.SchoolNumber,
		Department:   req.Department,
		PasswordHash: string(hash),
		Capital:      s.initialCapital,
		TotalAssets:  s.initialCapital,
		ROI:          &roi,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", ErrSchoolNumberTaken
		}
		return "", err
	}

	token, err := s.startSession(ctx, user)
	if err != nil {
		return "", err
	}
	s.logger.Info("user signed up", "user_id", user.ID, "name", user.Name)
	return token, nil
}

// SignIn checks the password and issues a fresh session token.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	user, err := s.store.GetUserBySchoolNumber(ctx, req.SchoolNumber)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &SignInResult{AccessToken: token, Name: user.Name}, nil
}

// CurrentUser resolves a session token to its user. The token must be
// validly signed and be the user's current session.
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	if _, err := s.tokens.VerifyRole(token, RoleUser); err != nil {
		return nil, ErrUnauthorized
	}
	user, err := s.store.GetUserByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	return user, err
}

func (s *Service) startSession(ctx context.Context, user *model.User) (string, error) {
	token, _, err := s.tokens.Issue(strconv.FormatInt(user.ID, 10), RoleUser, user.SchoolNumber, 0)
	if err != nil {
		return "", err
	}
	if err := s.store.SetAccessToken(ctx, user.ID, token); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// AdminLogin exchanges the configured admin password for an admin token.
func AdminLogin(tokens *Tokens, configured, given string, ttl time.Duration) (string, time.Time, error) {
	if configured == "" || subtle.ConstantTimeCompare([]byte(configured), []byte(given)) != 1 {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return tokens.Issue(RoleAdmin, RoleAdmin, 0, ttl)
}
