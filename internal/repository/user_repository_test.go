package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestUser(t *testing.T, email, role string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    "Wanjiru",
		LastName:     "Kamau",
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Registration stores bcrypt hashes, never plaintext
func TestProperty_RegistrationCreatesHashedPasswords(t *testing.T) {
	requireDB(t)
	resetTables(t)

	repo := NewUserRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("passwords are hashed with bcrypt and not stored as plaintext", prop.ForAll(
		func(email string, password string, firstName string, role string) bool {
			_, _ = testDB.Exec("DELETE FROM users WHERE email = $1", email)

			hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
			if err != nil {
				t.Logf("Failed to hash password: %v", err)
				return false
			}

			user := &domain.User{
				ID:           uuid.New(),
				Email:        email,
				PasswordHash: string(hashedPassword),
				FirstName:    firstName,
				Role:         role,
				CreatedAt:    time.Now(),
				UpdatedAt:    time.Now(),
			}

			if err := repo.Create(ctx, user); err != nil {
				t.Logf("Failed to create user: %v", err)
				return false
			}

			retrievedUser, err := repo.FindByEmail(ctx, email)
			if err != nil {
				t.Logf("Failed to find user: %v", err)
				return false
			}

			if retrievedUser.PasswordHash == password {
				t.Logf("Password was stored as plaintext!")
				return false
			}

			if err := bcrypt.CompareHashAndPassword([]byte(retrievedUser.PasswordHash), []byte(password)); err != nil {
				t.Logf("Stored password is not a valid bcrypt hash: %v", err)
				return false
			}

			_, _ = testDB.Exec("DELETE FROM users WHERE email = $1", email)

			return retrievedUser.Role == role
		},
		gen.RegexMatch(`[a-z]{5,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`),
		gen.RegexMatch(`[A-Z][a-z]{2,15}`),
		gen.OneConstOf(domain.RoleBuyer, domain.RoleSeller),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	requireDB(t)
	resetTables(t)

	repo := NewUserRepository(testDB)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestUser(t, "dup@example.com", domain.RoleBuyer)))

	err := repo.Create(ctx, newTestUser(t, "dup@example.com", domain.RoleSeller))
	assert.True(t, errors.Is(err, ErrUserAlreadyExists))
}

func TestUserRepository_FindByID(t *testing.T) {
	requireDB(t)
	resetTables(t)

	repo := NewUserRepository(testDB)
	ctx := context.Background()

	user := newTestUser(t, "seller@example.com", domain.RoleSeller)
	require.NoError(t, repo.Create(ctx, user))

	found, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, found.Email)
	assert.Equal(t, domain.RoleSeller, found.Role)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrUserNotFound))

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestRefreshTokenRepository_RevokeLifecycle(t *testing.T) {
	requireDB(t)
	resetTables(t)

	users := NewUserRepository(testDB)
	tokens := NewRefreshTokenRepository(testDB)
	ctx := context.Background()

	user := newTestUser(t, "buyer@example.com", domain.RoleBuyer)
	require.NoError(t, users.Create(ctx, user))

	for _, value := range []string{"token-a", "token-b"} {
		require.NoError(t, tokens.Create(ctx, &domain.RefreshToken{
			ID:        uuid.New(),
			UserID:    user.ID,
			Token:     value,
			ExpiresAt: time.Now().Add(time.Hour),
			CreatedAt: time.Now(),
		}))
	}

	found, err := tokens.FindByToken(ctx, "token-a")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.UserID)

	require.NoError(t, tokens.Revoke(ctx, "token-a"))
	_, err = tokens.FindByToken(ctx, "token-a")
	assert.True(t, errors.Is(err, ErrRefreshTokenRevoked))

	revoked, err := tokens.RevokeAllForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), revoked)

	assert.True(t, errors.Is(tokens.Revoke(ctx, "missing"), ErrRefreshTokenNotFound))
}
