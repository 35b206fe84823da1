package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"github.com/andrianfaa/Studi-Bareng/internal/domain"
	"github.com/andrianfaa/Studi-Bareng/internal/repository"
	"github.com/andrianfaa/Studi-Bareng/pkg/apperr"
	"github.com/andrianfaa/Studi-Bareng/pkg/crypto"
	jwtpkg "github.com/andrianfaa/Studi-Bareng/pkg/jwt"
)

const (
	msgSignUpRequired    = "Name, email, and password are required"
	msgSignInRequired    = "Email and password are required"
	msgUserExists        = "User already exists"
	msgBadCredentials    = "Invalid email or password"
	msgUserNotFound      = "User not found"
	msgInvalidToken      = "Invalid token"
	msgUnauthorized      = "Unauthorized"
	msgPasswordRequired  = "Current and new password are required"
	msgPasswordIncorrect = "Current password is incorrect"
)

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	hasher crypto.Hasher
	tokens *jwtpkg.Codec
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Service.
func New(users repository.UserRepository, hasher crypto.Hasher, tokens *jwtpkg.Codec, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{users: users, hasher: hasher, tokens: tokens, logger: logger, now: time.Now}
}

// SignUpInput carries registration fields.
type SignUpInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate reports missing fields.
func (in SignUpInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required),
		validation.Field(&in.Email, validation.Required),
		validation.Field(&in.Password, validation.Required),
	)
}

// SignInInput carries login credentials.
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate reports missing fields.
func (in SignInInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required),
		validation.Field(&in.Password, validation.Required),
	)
}

// Profile is the public view of the signed-in user.
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	ID              string
	Email           string
	VerificationTag string
}

// SignUp registers a user and returns a signed token.
func (s Service) SignUp(ctx context.Context, in SignUpInput) (string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := in.Validate(); err != nil {
		return "", apperr.BadRequest(msgSignUpRequired)
	}

	_, err := s.users.GetUserByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return "", apperr.Conflict(msgUserExists)
	case !errors.Is(err, repository.ErrNotFound):
		return "", s.internal("lookup user", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:             uuid.NewString(),
		Name:           in.Name,
		Email:          in.Email,
		PasswordDigest: s.hasher.PasswordDigest(in.Password),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return "", apperr.Conflict(msgUserExists)
		}
		return "", s.internal("create user", err)
	}

	token, err := s.issue(user)
	if err != nil {
		return "", err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return token, nil
}

// SignIn authenticates credentials and returns a signed token.
func (s Service) SignIn(ctx context.Context, in SignInInput) (string, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := in.Validate(); err != nil {
		return "", apperr.BadRequest(msgSignInRequired)
	}

	user, err := s.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperr.Unauthorized(msgBadCredentials)
		}
		return "", s.internal("lookup user", err)
	}
	if !crypto.Equal(user.PasswordDigest, s.hasher.PasswordDigest(in.Password)) {
		return "", apperr.Unauthorized(msgBadCredentials)
	}

	token, err := s.issue(user)
	if err != nil {
		return "", err
	}
	s.logger.Info("user signed in", "user_id", user.ID)
	return token, nil
}

// Profile returns the name and email of the user with the given id.
func (s Service) Profile(ctx context.Context, id string) (Profile, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Name: user.Name, Email: user.Email}, nil
}

// ReVerify recomputes the verification tag from the stored record and
// compares it with the tag presented in a token.
func (s Service) ReVerify(ctx context.Context, id, presentedTag string) error {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	expected := s.hasher.VerificationTag(user.Email, user.PasswordDigest)
	if !crypto.Equal(expected, presentedTag) {
		return apperr.Unauthorized(msgInvalidToken)
	}
	return nil
}

// Authorize verifies a bearer token and re-checks it against the directory.
// Codec failures yield "Invalid token"; a stale or orphaned token yields
// "Unauthorized"; anything else is internal.
func (s Service) Authorize(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, apperr.Unauthorized(msgUnauthorized)
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Identity{}, &apperr.Error{Kind: apperr.KindUnauthorized, Message: msgInvalidToken, Err: err}
	}
	if err := s.ReVerify(ctx, claims.UserID, claims.VerificationTag); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) || apperr.IsKind(err, apperr.KindUnauthorized) {
			return Identity{}, &apperr.Error{Kind: apperr.KindUnauthorized, Message: msgUnauthorized, Err: err}
		}
		return Identity{}, err
	}
	return Identity{ID: claims.UserID, Email: claims.Email, VerificationTag: claims.VerificationTag}, nil
}

// ChangePasswordInput carries the caller's current and replacement password.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Validate reports missing fields.
func (in ChangePasswordInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.CurrentPassword, validation.Required),
		validation.Field(&in.NewPassword, validation.Required),
	)
}

// ChangePassword replaces the stored digest and returns a token for the new
// credentials. Tokens issued before the change no longer pass ReVerify.
func (s Service) ChangePassword(ctx context.Context, id string, in ChangePasswordInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", apperr.BadRequest(msgPasswordRequired)
	}
	user, err := s.lookup(ctx, id)
	if err != nil {
		return "", err
	}
	if !crypto.Equal(user.PasswordDigest, s.hasher.PasswordDigest(in.CurrentPassword)) {
		return "", apperr.BadRequest(msgPasswordIncorrect)
	}
	user.PasswordDigest = s.hasher.PasswordDigest(in.NewPassword)
	user.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperr.NotFound(msgUserNotFound)
		}
		return "", s.internal("update user", err)
	}
	s.logger.Info("password changed", "user_id", user.ID)
	return s.issue(user)
}

func (s Service) lookup(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgUserNotFound)
		}
		return nil, s.internal("lookup user", err)
	}
	return user, nil
}

func (s Service) issue(user *domain.User) (string, error) {
	tag := s.hasher.VerificationTag(user.Email, user.PasswordDigest)
	token, err := s.tokens.Issue(user.ID, user.Email, tag)
	if err != nil {
		return "", s.internal("issue token", err)
	}
	return token, nil
}

func (s Service) internal(op string, err error) error {
	s.logger.Error("auth operation failed", "op", op, "error", err)
	return apperr.Internal(err)
}
