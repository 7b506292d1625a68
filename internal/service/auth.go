package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/ridesplit/ridesplit/internal/auth"
	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/repository"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 128
	minFullNameLength = 3
	maxFullNameLength = 100
	maxVenmoLength    = 64
)

// ProfileStore is the persistence AuthService needs for riders.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *model.Profile) error
	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error)
	ListProfilesByIDs(ctx context.Context, ids []string) ([]*model.Profile, error)
}

// Session is a signed-in rider.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Profile   *model.Profile
}

// SignUpInput holds registration fields.
type SignUpInput struct {
	Email         string
	Password      string
	FullName      string
	VenmoUsername string
}

// AuthService registers and signs in riders.
type AuthService struct {
	profiles     ProfileStore
	tokens       *auth.TokenManager
	emailPattern *regexp.Regexp
	logger       *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService. Only addresses at emailDomain
// may register.
func NewAuthService(profiles ProfileStore, tokens *auth.TokenManager, emailDomain string, logger *slog.Logger) *AuthService {
	pattern := `^[a-zA-Z0-9._%+-]+@` + regexp.QuoteMeta(strings.ToLower(emailDomain)) + `$`
	return &AuthService{
		profiles:     profiles,
		tokens:       tokens,
		emailPattern: regexp.MustCompile(pattern),
		logger:       logger.With("component", "service.auth"),
	}
}

// SignUp validates the input, creates a profile and returns a session.
func (s *AuthService) SignUp(ctx context.Context, input SignUpInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	fullName := strings.TrimSpace(input.FullName)
	venmo := strings.TrimSpace(input.VenmoUsername)

	if err := s.validateSignUp(email, input.Password, fullName, venmo); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	profile := &model.Profile{
		ID:            ulid.Make().String(),
		Email:         email,
		FullName:      fullName,
		VenmoUsername: venmo,
		PasswordHash:  hash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, repoErr("create profile", err)
	}

	s.logger.Info("rider signed up", "user_id", profile.ID)
	return s.newSession(profile)
}

// SignIn checks credentials and returns a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	profile, err := s.profiles.GetProfileByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			// Spend the same hashing time as a real check.
			_, _ = auth.VerifyPassword(password, s.placeholderHash())
			return nil, ErrInvalidCredentials
		}
		return nil, repoErr("get profile", err)
	}

	ok, err := auth.VerifyPassword(password, profile.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", profile.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return s.newSession(profile)
}

// Me returns the rider's profile, including the group they are riding in.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.Profile, error) {
	if userID == "" {
		return nil, invalid("user is required")
	}
	profile, err := s.profiles.GetProfileByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, repoErr("get profile", err)
	}
	return profile, nil
}

func (s *AuthService) validateSignUp(email, password, fullName, venmo string) error {
	if !s.emailPattern.MatchString(email) {
		return invalid("email must be a valid address at the allowed domain")
	}
	if n := utf8.RuneCountInString(fullName); n < minFullNameLength || n > maxFullNameLength {
		return invalid("full name must be %d-%d characters", minFullNameLength, maxFullNameLength)
	}
	if n := len(password); n < minPasswordLength || n > maxPasswordLength {
		return invalid("password must be %d-%d characters", minPasswordLength, maxPasswordLength)
	}
	if len(venmo) > maxVenmoLength {
		return invalid("venmo username must be at most %d characters", maxVenmoLength)
	}
	return nil
}

func (s *AuthService) newSession(profile *model.Profile) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(profile.ID, profile.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, Profile: profile}, nil
}

func (s *AuthService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword(ulid.Make().String())
	})
	return s.dummyHash
}
