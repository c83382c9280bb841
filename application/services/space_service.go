package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/application/ports"
	"github.com/heirloom-app/heirloom/domain/accounts"
	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

var spaceIDRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

// SpaceService manages family spaces.
type SpaceService struct {
	spaces ports.SpaceRepository
	logger *zap.Logger
}

// NewSpaceService creates a new space service
func NewSpaceService(spaces ports.SpaceRepository, logger *zap.Logger) *SpaceService {
	return &SpaceService{spaces: spaces, logger: logger}
}

// Create registers a new family space.
func (s *SpaceService) Create(ctx context.Context, id, name, description, createdBy string) (*accounts.Space, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	name = strings.TrimSpace(name)

	if id == "" || !spaceIDRe.MatchString(id) {
		return nil, apperrors.NewValidationError("space id must contain only lowercase letters, numbers, hyphens, and underscores")
	}
	if len(id) > 50 {
		return nil, apperrors.NewValidationError("space id too long (max 50 characters)")
	}
	if name == "" {
		return nil, apperrors.NewValidationError("space name is required")
	}
	if len(name) > 100 {
		return nil, apperrors.NewValidationError("space name too long (max 100 characters)")
	}

	if existing, err := s.spaces.GetByID(ctx, id); err == nil && existing != nil {
		return nil, apperrors.NewConflictError("space already exists")
	}

	space := &accounts.Space{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.spaces.Create(ctx, space); err != nil {
		return nil, err
	}

	s.logger.Info("Space created", zap.String("spaceID", id), zap.String("createdBy", createdBy))
	return space, nil
}

// List returns all spaces.
func (s *SpaceService) List(ctx context.Context) ([]*accounts.Space, error) {
	return s.spaces.List(ctx)
}
