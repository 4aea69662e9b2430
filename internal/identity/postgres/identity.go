// Package postgres implements the identity service directly on PostgreSQL.
//
// Identities and profiles are stored in the tables created by the goose
// migrations in internal/migrations. Failure messages use the same wording
// as the hosted identity service so the auth form renders the same codes
// regardless of backend.
package postgres

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/DukeRupert/uplink/internal/domain"
)

const (
	// BcryptCost is the cost factor for password hashing.
	BcryptCost = 12

	msgSignInDatabase  = "Database error querying schema"
	msgSignUpDatabase  = "Database error saving new user"
	msgPasswordTooLong = "Password cannot be longer than 72 characters"
)

// DBTX is the subset of *pgxpool.Pool used by Identity.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Identity implements the identity service on PostgreSQL.
type Identity struct {
	db       DBTX
	logger   *slog.Logger
	hashCost int

	dummyOnce sync.Once
	dummyHash []byte
}

// New creates an Identity using db.
func New(db DBTX, logger *slog.Logger) *Identity {
	return NewWithCost(db, logger, BcryptCost)
}

// NewWithCost creates an Identity that hashes new passwords with cost.
func NewWithCost(db DBTX, logger *slog.Logger, cost int) *Identity {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Identity{
		db:       db,
		logger:   logger,
		hashCost: cost,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignIn looks up the identity by email and checks the password.
func (s *Identity) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	const op = "postgres.sign_in"

	var (
		id, storedEmail, hash string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id::text, email, password_hash
		FROM identities
		WHERE email = $1
	`, normalizeEmail(email)).Scan(&id, &storedEmail, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		// Spend the same time as a real comparison so unknown emails
		// are not distinguishable by latency.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return nil, domain.Unauthorized(op, domain.MsgInvalidCredentials)
	}
	if err != nil {
		s.logger.Error("identity lookup failed", "error", err)
		return nil, domain.Unavailable(err, op, msgSignInDatabase)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, domain.Unauthorized(op, domain.MsgInvalidCredentials)
	}

	return &domain.Session{
		IdentityID:  id,
		Email:       storedEmail,
		AccessToken: uuid.NewString(),
	}, nil
}

// SignUp inserts a new identity with a bcrypt password hash.
func (s *Identity) SignUp(ctx context.Context, params domain.SignUpParams) (*domain.Session, error) {
	const op = "postgres.sign_up"

	email := normalizeEmail(params.Email)
	if email == "" {
		return nil, domain.Invalid(op, "Unable to validate email address: invalid format")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, domain.Invalid(op, msgPasswordTooLong)
	}
	if err != nil {
		return nil, domain.Internal(err, op, msgSignUpDatabase)
	}

	id := uuid.New()
	_, err = s.db.Exec(ctx, `
		INSERT INTO identities (id, email, password_hash, username)
		VALUES ($1, $2, $3, $4)
	`, id.String(), email, string(hash), params.Username)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, domain.Conflict(op, domain.MsgAlreadyRegistered)
		}
		s.logger.Error("identity insert failed", "error", err)
		return nil, domain.Unavailable(err, op, msgSignUpDatabase)
	}

	return &domain.Session{
		IdentityID:  id.String(),
		Email:       email,
		AccessToken: uuid.NewString(),
	}, nil
}

// UpsertProfile creates or replaces the profile row for profile.ID.
func (s *Identity) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	const op = "postgres.upsert_profile"

	_, err := s.db.Exec(ctx, `
		INSERT INTO profiles (id, username, wins, losses, total_score, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			username    = EXCLUDED.username,
			wins        = EXCLUDED.wins,
			losses      = EXCLUDED.losses,
			total_score = EXCLUDED.total_score,
			updated_at  = now()
	`, profile.ID, profile.Username, profile.Wins, profile.Losses, profile.TotalScore)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return domain.NotFound(op, "identity", profile.ID)
		}
		return domain.Unavailable(err, op, "")
	}
	return nil
}

// dummy returns a hash used to keep failed lookups as slow as real ones.
func (s *Identity) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("uplink-dummy-password"), s.hashCost)
	})
	return s.dummyHash
}
