// Package auth issues and verifies the bearer tokens the API runs on.
// Credentials live in the usuarios table as bcrypt hashes; sessions are
// stateless HS256 JWTs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"servivent/backend/internal/domain"
	"servivent/backend/internal/store"
)

// ErrInvalidCredentials covers both unknown users and wrong passwords so the
// login endpoint cannot be used to probe for registered emails.
var ErrInvalidCredentials = errors.New("credenciales invalidas")

type Actor struct {
	UserID int64
	Correo string
	Rol    string
}

type LoginResponse struct {
	AccessToken string      `json:"accessToken"`
	ExpiresAt   string      `json:"expiresAt"`
	User        domain.User `json:"user"`
}

type claims struct {
	jwtlib.RegisteredClaims
	Correo string `json:"correo"`
	Rol    string `json:"rol"`
}

type Manager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
}

type UserStore interface {
	GetUserByEmail(ctx context.Context, correo string) (*domain.User, error)
}

func NewManager(secret string, tokenTTL time.Duration, users UserStore) *Manager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &Manager{secret: []byte(secret), tokenTTL: tokenTTL, users: users}
}

func (m *Manager) Login(ctx context.Context, correo, password string) (LoginResponse, error) {
	user, err := m.users.GetUserByEmail(ctx, correo)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResponse{}, ErrInvalidCredentials
		}
		return LoginResponse{}, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return LoginResponse{}, ErrInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(m.tokenTTL)
	token, err := m.sign(user, expiresAt)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		User:        *user,
	}, nil
}

func (m *Manager) ParseToken(tokenStr string) (Actor, error) {
	parsed := &claims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, parsed, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return Actor{}, errors.New("token invalido o expirado")
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return Actor{}, errors.New("token sin sujeto")
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return Actor{}, errors.New("token sin sujeto")
	}
	return Actor{UserID: userID, Correo: parsed.Correo, Rol: parsed.Rol}, nil
}

func (m *Manager) sign(user *domain.User, expiresAt time.Time) (string, error) {
	c := claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "servivent",
		},
		Correo: user.Correo,
		Rol:    user.Rol,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, c)
	return token.SignedString(m.secret)
}

// HashPassword is used by seeding and user administration.
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password vacio")
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
