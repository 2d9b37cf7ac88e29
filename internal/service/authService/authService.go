package authService

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tiangangQiu/FundVal-Live/data/repository"
	"github.com/tiangangQiu/FundVal-Live/data/session"
	"github.com/tiangangQiu/FundVal-Live/internal/converter/dbConverter"
	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
	"github.com/tiangangQiu/FundVal-Live/internal/service"
	"github.com/tiangangQiu/FundVal-Live/utils"
	"golang.org/x/crypto/bcrypt"
)

type Repository interface {
	GetUserByUsername(ctx context.Context, username string) (dbModel.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)
}

type SessionStore interface {
	GetSession(ctx context.Context, sid string) (model.Session, error)
	SetSession(ctx context.Context, sid string, session model.Session) error
	DeleteSession(ctx context.Context, sid string) error
}

type AuthService struct {
	repo     Repository
	sessions SessionStore
}

func New(repo Repository, sessions SessionStore) *AuthService {
	return &AuthService{repo: repo, sessions: sessions}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (int64, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AuthService.Register"

	slog.Debug("Register start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("Register finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if username == "" || len(password) < 6 {
		return 0, service.ErrValidation
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("can't hash password", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	userID, err := s.repo.CreateUser(ctx, username, string(hash))
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return 0, service.ErrAlreadyExists
		}
		slog.Error("got error from repo.CreateUser", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	return userID, nil
}

// Login verifies credentials and issues a session id the handler sets as a
// cookie.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, model.User, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "AuthService.Login"

	slog.Debug("Login start", slog.String("rqID", rqID), slog.String("op", op), slog.String("username", username))
	defer func() {
		slog.Debug("Login finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	dbUser, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", model.User{}, service.ErrForbidden
		}
		return "", model.User{}, err
	}

	if err = bcrypt.CompareHashAndPassword([]byte(dbUser.PasswordHash), []byte(password)); err != nil {
		return "", model.User{}, service.ErrForbidden
	}

	sid := uuid.NewString()
	if err = s.sessions.SetSession(ctx, sid, model.Session{UserID: dbUser.ID}); err != nil {
		slog.Error("got error from sessions.SetSession", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", model.User{}, err
	}

	return sid, dbConverter.ConvertUser(dbUser), nil
}

func (s *AuthService) Logout(ctx context.Context, sid string) error {
	return s.sessions.DeleteSession(ctx, sid)
}

// ResolveSession maps a session cookie to a user id. Absent or expired
// sessions resolve to user 0, the single-user fallback, never an error.
func (s *AuthService) ResolveSession(ctx context.Context, sid string) int64 {
	if sid == "" {
		return 0
	}

	sess, err := s.sessions.GetSession(ctx, sid)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			slog.Error("got error from sessions.GetSession", slog.String("err", err.Error()))
		}
		return 0
	}

	return sess.UserID
}
