package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servivent/backend/internal/domain"
	"servivent/backend/internal/store"
)

type singleUserStore struct {
	user domain.User
}

func (s singleUserStore) GetUserByEmail(_ context.Context, correo string) (*domain.User, error) {
	if correo != s.user.Correo {
		return nil, store.ErrNotFound
	}
	u := s.user
	return &u, nil
}

func testStore(t *testing.T) singleUserStore {
	t.Helper()
	hash, err := HashPassword("secreto123")
	require.NoError(t, err)
	return singleUserStore{user: domain.User{
		ID:           7,
		Correo:       "cajero@servivent.bo",
		Nombre:       "Cajero",
		Rol:          "vendedor",
		PasswordHash: hash,
	}}
}

func TestLoginAndParseToken(t *testing.T) {
	manager := NewManager("test-secret", time.Hour, testStore(t))

	resp, err := manager.Login(context.Background(), "cajero@servivent.bo", "secreto123")
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "cajero@servivent.bo", resp.User.Correo)
	assert.Empty(t, resp.User.PasswordHash, "el hash nunca se serializa")

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(7), actor.UserID)
	assert.Equal(t, "cajero@servivent.bo", actor.Correo)
	assert.Equal(t, "vendedor", actor.Rol)
}

func TestLoginInvalidCredentials(t *testing.T) {
	manager := NewManager("test-secret", time.Hour, testStore(t))
	ctx := context.Background()

	_, err := manager.Login(ctx, "cajero@servivent.bo", "incorrecta")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = manager.Login(ctx, "nadie@servivent.bo", "secreto123")
	require.ErrorIs(t, err, ErrInvalidCredentials,
		"usuario inexistente produce el mismo error que password incorrecta")
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	users := testStore(t)
	issuer := NewManager("secret-a", time.Hour, users)
	verifier := NewManager("secret-b", time.Hour, users)

	resp, err := issuer.Login(context.Background(), "cajero@servivent.bo", "secreto123")
	require.NoError(t, err)

	_, err = verifier.ParseToken(resp.AccessToken)
	require.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := NewManager("test-secret", time.Nanosecond, testStore(t))

	resp, err := manager.Login(context.Background(), "cajero@servivent.bo", "secreto123")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = manager.ParseToken(resp.AccessToken)
	require.Error(t, err)
}

func TestActorContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, ok := ActorFrom(ctx)
	assert.False(t, ok)

	actor := Actor{UserID: 7, Correo: "cajero@servivent.bo", Rol: "vendedor"}
	ctx = WithActor(ctx, actor)
	got, ok := ActorFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, actor, got)
}
