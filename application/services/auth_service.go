package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/heirloom-app/heirloom/application/ports"
	"github.com/heirloom-app/heirloom/domain/accounts"
	"github.com/heirloom-app/heirloom/pkg/auth"
	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

// AuthService implements invite-gated registration and password login.
type AuthService struct {
	users         ports.UserRepository
	invites       ports.InviteRepository
	spaces        ports.SpaceRepository
	tokens        *auth.TokenManager
	requireInvite bool
	logger        *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	users ports.UserRepository,
	invites ports.InviteRepository,
	spaces ports.SpaceRepository,
	tokens *auth.TokenManager,
	requireInvite bool,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:         users,
		invites:       invites,
		spaces:        spaces,
		tokens:        tokens,
		requireInvite: requireInvite,
		logger:        logger,
	}
}

// Register creates an account, consuming the invite code when invites are
// required.
func (s *AuthService) Register(ctx context.Context, inviteCode, username, email, password, spaceID string) error {
	var invite *accounts.Invite
	if s.requireInvite {
		inv, err := s.invites.Get(ctx, inviteCode)
		if err != nil || !inv.Active {
			return apperrors.NewValidationError("invalid invite code")
		}
		invite = inv
	}

	if existing, err := s.users.GetByUsername(ctx, username); err == nil && existing != nil {
		return apperrors.NewConflictError("username already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(err, "hash password")
	}

	if spaceID != "" {
		if _, err := s.spaces.GetByID(ctx, spaceID); err != nil {
			return err
		}
	}

	user := &accounts.User{
		Username:       username,
		Email:          email,
		PasswordHash:   string(hash),
		CurrentSpace:   spaceID,
		InviteCodeUsed: inviteCode,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return err
	}

	if invite != nil {
		invite.Active = false
		invite.UsedBy = username
		invite.UsedEmail = email
		invite.UsedAt = time.Now().UTC()
		if err := s.invites.Update(ctx, invite); err != nil {
			s.logger.Warn("Failed to mark invite as used",
				zap.String("code", inviteCode),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("User registered", zap.String("username", username))
	return nil
}

// Login verifies credentials and issues an access token scoped to the user's
// selected space.
func (s *AuthService) Login(ctx context.Context, username, password, spaceID string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		// Uniform error: never reveal whether the username exists.
		return "", apperrors.NewUnauthorizedError("invalid credentials")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", apperrors.NewUnauthorizedError("invalid credentials")
	}

	if spaceID == "" {
		spaceID = user.CurrentSpace
	} else if spaceID != user.CurrentSpace {
		if _, err := s.spaces.GetByID(ctx, spaceID); err != nil {
			return "", err
		}
		user.CurrentSpace = spaceID
		if err := s.users.Update(ctx, user); err != nil {
			return "", apperrors.Wrap(err, "update current space")
		}
	}

	token, err := s.tokens.Issue(username, spaceID)
	if err != nil {
		return "", apperrors.Wrap(err, "issue token")
	}
	return token, nil
}

// SelectSpace switches the user's current space and issues a token for it.
func (s *AuthService) SelectSpace(ctx context.Context, username, spaceID string) (string, error) {
	if _, err := s.spaces.GetByID(ctx, spaceID); err != nil {
		return "", err
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	user.CurrentSpace = spaceID
	if err := s.users.Update(ctx, user); err != nil {
		return "", apperrors.Wrap(err, "update current space")
	}

	return s.tokens.Issue(username, spaceID)
}
