package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"lv-exchange/internal/apperr"
	"lv-exchange/internal/model"
	"lv-exchange/internal/storage"
	"lv-exchange/internal/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Service issues and checks API keys. A key is a signed JWT whose copy is
// stored on the user row, so possession of a well-formed token is not
// enough: the row must still exist and carry the same key. Deleting a
// user therefore revokes access immediately.
type Service struct {
	store  storage.Store
	issuer string
	secret []byte
	log    *zap.Logger
}

func NewService(store storage.Store, issuer string, secret []byte, log *zap.Logger) *Service {
	return &Service{store: store, issuer: issuer, secret: secret, log: log}
}

func (s *Service) Register(ctx context.Context, name, password string) (model.User, error) {
	name = strings.TrimSpace(name)
	if len(name) < 3 {
		return model.User{}, apperr.Validation("name must be at least 3 characters")
	}
	if password == "" {
		return model.User{}, apperr.Validation("password is required")
	}
	return s.createUser(ctx, name, password, types.RoleUser)
}

// EnsureAdmin creates the bootstrap admin account on startup if it does
// not exist yet. An existing account is left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, name, password string) error {
	if name == "" || password == "" {
		return nil
	}
	if _, err := s.store.UserByName(ctx, name); err == nil {
		return nil
	} else if !errors.Is(err, apperr.ErrUserNotFound) {
		return err
	}
	u, err := s.createUser(ctx, name, password, types.RoleAdmin)
	if err != nil {
		if errors.Is(err, apperr.ErrDuplicateKey) {
			return nil
		}
		return err
	}
	s.log.Info("admin account created", zap.String("user_id", u.ID.String()), zap.String("name", u.Name))
	return nil
}

func (s *Service) createUser(ctx context.Context, name, password string, role types.Role) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		ID:           uuid.New(),
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	u.APIKey, err = s.signToken(u.ID)
	if err != nil {
		return model.User{}, err
	}
	err = storage.InTx(ctx, s.store, func(tx storage.Tx) error {
		return tx.CreateUser(ctx, u)
	})
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

// Authenticate resolves a bearer token to its user. Signature problems
// and unknown keys both come back as ErrUnauthorized so callers cannot
// probe which keys exist.
func (s *Service) Authenticate(ctx context.Context, token string) (model.User, error) {
	if token == "" {
		return model.User{}, apperr.ErrUnauthorized
	}
	if _, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}); err != nil {
		return model.User{}, apperr.ErrUnauthorized
	}
	u, err := s.store.UserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return model.User{}, apperr.ErrUnauthorized
		}
		return model.User{}, err
	}
	return u, nil
}

func (s *Service) signToken(userID uuid.UUID) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:   s.issuer,
		Subject:  userID.String(),
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.New().String(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}
