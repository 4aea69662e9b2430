// Package memory provides a process-local identity service for development
// and tests. Identities and profiles live only as long as the process.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/DukeRupert/uplink/internal/domain"
)

type identity struct {
	id           uuid.UUID
	email        string
	passwordHash []byte
	username     string
}

// Identity is an in-memory identity service. It is safe for concurrent use.
type Identity struct {
	logger *slog.Logger

	// HashCost is the bcrypt cost used for new identities.
	HashCost int

	// FailProfileUpserts makes UpsertProfile return an error, to exercise
	// best-effort provisioning.
	FailProfileUpserts bool

	mu         sync.RWMutex
	identities map[string]*identity // keyed by lower-cased email
	profiles   map[string]domain.Profile
}

// New creates an empty in-memory identity service.
func New(logger *slog.Logger) *Identity {
	return &Identity{
		logger:     logger,
		HashCost:   bcrypt.DefaultCost,
		identities: make(map[string]*identity),
		profiles:   make(map[string]domain.Profile),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignIn checks the password against the stored hash.
func (s *Identity) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	const op = "memory.sign_in"

	s.mu.RLock()
	ident, ok := s.identities[normalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.Unauthorized(op, domain.MsgInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword(ident.passwordHash, []byte(password)); err != nil {
		return nil, domain.Unauthorized(op, domain.MsgInvalidCredentials)
	}

	return &domain.Session{
		IdentityID:  ident.id.String(),
		Email:       ident.email,
		AccessToken: uuid.NewString(),
	}, nil
}

// SignUp registers a new identity.
func (s *Identity) SignUp(ctx context.Context, params domain.SignUpParams) (*domain.Session, error) {
	const op = "memory.sign_up"

	key := normalizeEmail(params.Email)
	if key == "" {
		return nil, domain.Invalid(op, "Unable to validate email address: invalid format")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.HashCost)
	if err != nil {
		return nil, domain.Internal(err, op, "Unable to process password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[key]; exists {
		return nil, domain.Conflict(op, domain.MsgAlreadyRegistered)
	}

	ident := &identity{
		id:           uuid.New(),
		email:        key,
		passwordHash: hash,
		username:     params.Username,
	}
	s.identities[key] = ident

	if s.logger != nil {
		s.logger.Debug("identity registered", "identity_id", ident.id, "username", ident.username)
	}

	return &domain.Session{
		IdentityID:  ident.id.String(),
		Email:       ident.email,
		AccessToken: uuid.NewString(),
	}, nil
}

// UpsertProfile stores profile, replacing any existing one with the same ID.
func (s *Identity) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	if s.FailProfileUpserts {
		return domain.Errorf(domain.EUNAVAILABLE, "memory.upsert_profile", "profile store unavailable")
	}

	s.mu.Lock()
	s.profiles[profile.ID] = profile
	s.mu.Unlock()
	return nil
}

// Profile returns the stored profile for id.
func (s *Identity) Profile(id string) (domain.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	return p, ok
}
