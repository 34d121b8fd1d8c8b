package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service is a stand-in for the external identity provider: it registers
// users, resolves contact identifiers to accounts and answers the trust
// predicate consulted by the transfer engine.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates an unverified user and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	if len(creds.Phone) < 7 {
		return User{}, errors.New("phone number is too short")
	}
	if len(creds.PIN) < 4 {
		return User{}, errors.New("PIN must be at least 4 digits")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:        uuid.NewString(),
		Phone:     creds.Phone,
		PINHash:   hash,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// ResolveContact maps a contact identifier (phone) to a user.
func (s *Service) ResolveContact(ctx context.Context, contact string) (User, error) {
	return s.repo.FindByPhone(ctx, contact)
}

// Verified reports whether the user has passed identity verification.
func (s *Service) Verified(ctx context.Context, userID string) (bool, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Verified, nil
}

// MarkVerified records a completed identity verification.
func (s *Service) MarkVerified(ctx context.Context, userID string) error {
	return s.repo.SetVerified(ctx, userID, true)
}
