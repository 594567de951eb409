package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRefreshTokenRepository(t *testing.T) (RefreshTokenRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRefreshTokenRepository(db), mock
}

var refreshTokenColumns = []string{"id", "user_id", "token", "expires_at", "created_at", "revoked"}

func TestRefreshToken_FindByToken(t *testing.T) {
	userID := uuid.New()
	now := time.Now()

	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		wantErr error
	}{
		{
			name: "live",
			rows: sqlmock.NewRows(refreshTokenColumns).
				AddRow(uuid.NewString(), userID.String(), "tok", now.Add(time.Hour), now, false),
		},
		{
			name: "revoked",
			rows: sqlmock.NewRows(refreshTokenColumns).
				AddRow(uuid.NewString(), userID.String(), "tok", now.Add(time.Hour), now, true),
			wantErr: ErrRefreshTokenRevoked,
		},
		{
			name:    "missing",
			rows:    sqlmock.NewRows(refreshTokenColumns),
			wantErr: ErrRefreshTokenNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRefreshTokenRepository(t)
			mock.ExpectQuery(regexp.QuoteMeta(`FROM refresh_tokens`)).
				WithArgs("tok").
				WillReturnRows(tt.rows)

			token, err := repo.FindByToken(context.Background(), "tok")
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, userID, token.UserID)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRefreshToken_RevokeUnknownToken(t *testing.T) {
	repo, mock := newMockRefreshTokenRepository(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`)).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Revoke(context.Background(), "gone")
	assert.True(t, errors.Is(err, ErrRefreshTokenNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshToken_RevokeAllForUser(t *testing.T) {
	repo, mock := newMockRefreshTokenRepository(t)
	userID := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(`WHERE user_id = $1 AND revoked = FALSE`)).
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RevokeAllForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
