package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/DukeRupert/uplink/internal/domain"
)

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestIdentity_SignIn(t *testing.T) {
	hash := mustHash(t, "trinity")

	tests := []struct {
		name      string
		email     string
		password  string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantID    string
		wantCode  string
		wantMsg   string
	}{
		{
			name:     "valid credentials",
			email:    " Neo@Matrix.io ",
			password: "trinity",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"id", "email", "password_hash"}).
					AddRow("6f1c9f4e-0000-4000-8000-000000000001", "neo@matrix.io", hash)
				mock.ExpectQuery(`FROM identities`).
					WithArgs("neo@matrix.io").
					WillReturnRows(rows)
			},
			wantID: "6f1c9f4e-0000-4000-8000-000000000001",
		},
		{
			name:     "wrong password",
			email:    "neo@matrix.io",
			password: "morpheus",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{"id", "email", "password_hash"}).
					AddRow("6f1c9f4e-0000-4000-8000-000000000001", "neo@matrix.io", hash)
				mock.ExpectQuery(`FROM identities`).
					WithArgs("neo@matrix.io").
					WillReturnRows(rows)
			},
			wantCode: domain.EUNAUTHORIZED,
			wantMsg:  domain.MsgInvalidCredentials,
		},
		{
			name:     "unknown email",
			email:    "smith@matrix.io",
			password: "trinity",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM identities`).
					WithArgs("smith@matrix.io").
					WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash"}))
			},
			wantCode: domain.EUNAUTHORIZED,
			wantMsg:  domain.MsgInvalidCredentials,
		},
		{
			name:     "database error",
			email:    "neo@matrix.io",
			password: "trinity",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`FROM identities`).
					WithArgs("neo@matrix.io").
					WillReturnError(errors.New("connection refused"))
			},
			wantCode: domain.EUNAVAILABLE,
			wantMsg:  msgSignInDatabase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			s := NewWithCost(mock, nil, bcrypt.MinCost)
			session, err := s.SignIn(context.Background(), tt.email, tt.password)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, domain.ErrorCode(err))
				assert.Equal(t, tt.wantMsg, domain.ErrorMessage(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, session.IdentityID)
				assert.NotEmpty(t, session.AccessToken)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdentity_SignUp(t *testing.T) {
	tests := []struct {
		name      string
		params    domain.SignUpParams
		setupMock func(mock pgxmock.PgxPoolIface)
		wantCode  string
		wantMsg   string
	}{
		{
			name:   "new identity",
			params: domain.SignUpParams{Email: "Neo@Matrix.io", Password: "trinity", Username: "neo"},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO identities`).
					WithArgs(pgxmock.AnyArg(), "neo@matrix.io", pgxmock.AnyArg(), "neo").
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name:   "email taken",
			params: domain.SignUpParams{Email: "neo@matrix.io", Password: "trinity", Username: "neo"},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO identities`).
					WithArgs(pgxmock.AnyArg(), "neo@matrix.io", pgxmock.AnyArg(), "neo").
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "identities_email_key"})
			},
			wantCode: domain.ECONFLICT,
			wantMsg:  domain.MsgAlreadyRegistered,
		},
		{
			name:   "database error",
			params: domain.SignUpParams{Email: "neo@matrix.io", Password: "trinity", Username: "neo"},
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO identities`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(errors.New("connection reset by peer"))
			},
			wantCode: domain.EUNAVAILABLE,
			wantMsg:  msgSignUpDatabase,
		},
		{
			name:      "empty email",
			params:    domain.SignUpParams{Email: "  ", Password: "trinity"},
			setupMock: func(mock pgxmock.PgxPoolIface) {},
			wantCode:  domain.EINVALID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			s := NewWithCost(mock, nil, bcrypt.MinCost)
			session, err := s.SignUp(context.Background(), tt.params)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, domain.ErrorCode(err))
				if tt.wantMsg != "" {
					assert.Equal(t, tt.wantMsg, domain.ErrorMessage(err))
				}
			} else {
				require.NoError(t, err)
				assert.Len(t, session.IdentityID, 36)
				assert.Equal(t, "neo@matrix.io", session.Email)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdentity_SignUp_PasswordTooLong(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}

	s := NewWithCost(mock, nil, bcrypt.MinCost)
	_, err = s.SignUp(context.Background(), domain.SignUpParams{Email: "neo@matrix.io", Password: string(long)})

	require.Error(t, err)
	assert.Equal(t, msgPasswordTooLong, domain.ErrorMessage(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentity_UpsertProfile(t *testing.T) {
	profile := domain.NewProfile("6f1c9f4e-0000-4000-8000-000000000001", "neo")

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantCode  string
	}{
		{
			name: "upsert",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO profiles`).
					WithArgs(profile.ID, "neo", 0, 0, 0).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "identity missing",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO profiles`).
					WithArgs(profile.ID, "neo", 0, 0, 0).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})
			},
			wantCode: domain.ENOTFOUND,
		},
		{
			name: "table missing",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO profiles`).
					WithArgs(profile.ID, "neo", 0, 0, 0).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UndefinedTable})
			},
			wantCode: domain.EUNAVAILABLE,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setupMock(mock)

			err = New(mock, nil).UpsertProfile(context.Background(), profile)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, domain.ErrorCode(err))
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
