package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Signup is the input of Service.Signup.
type Signup struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned by signup and login.
type Session struct {
	User   *User       `json:"user"`
	Access AccessToken `json:"access"`
}

// Service implements signup, login and token verification.
type Service struct {
	users  *UserRepository
	issuer *Issuer
}

// NewService creates the auth service.
func NewService(users *UserRepository, issuer *Issuer) *Service {
	return &Service{users: users, issuer: issuer}
}

// Signup creates a user account with RoleUser and signs it in.
func (s *Service) Signup(ctx context.Context, in Signup) (*Session, error) {
	email := NormalizeEmail(in.Email)
	switch {
	case strings.TrimSpace(in.Name) == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSignup)
	case !validEmail(email):
		return nil, fmt.Errorf("%w: email is not a valid address", ErrInvalidSignup)
	case len(in.Password) < minPasswordLength:
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidSignup, minPasswordLength)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &User{Name: strings.TrimSpace(in.Name), Email: email, PasswordHash: hash, Role: RoleUser}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return s.session(user)
}

// Login verifies credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.session(user)
}

// Verify parses an access token.
func (s *Service) Verify(token string) (*Claims, error) {
	return s.issuer.Parse(token)
}

// User returns the account with id.
func (s *Service) User(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) session(user *User) (*Session, error) {
	access, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Access: access}, nil
}
