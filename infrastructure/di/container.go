package di

import (
	"context"

	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/application/ports"
	"github.com/heirloom-app/heirloom/application/services"
	"github.com/heirloom-app/heirloom/infrastructure/config"
	"github.com/heirloom-app/heirloom/pkg/auth"
)

// Container holds all application dependencies
type Container struct {
	Config         *config.Config
	Logger         *zap.Logger
	Repos          Repositories
	Events         ports.EventPublisher
	TokenManager   *auth.TokenManager
	RateLimiter    *auth.TokenBucketLimiter
	TreeService    *services.TreeService
	VersionService *services.VersionService
	AuthService    *services.AuthService
	SpaceService   *services.SpaceService
}

// NewContainer wires the application graph for the configured storage
// backend. The memory backend skips AWS client construction entirely.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}

	var repos Repositories
	var events ports.EventPublisher

	if cfg.StorageBackend == "memory" {
		repos = ProvideMemoryRepositories()
	} else {
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		repos = ProvideDynamoDBRepositories(ProvideDynamoDBClient(awsCfg), cfg, logger)
		events = ProvideEventPublisher(ProvideEventBridgeClient(awsCfg), cfg, logger)
	}

	tokens := ProvideTokenManager(cfg)

	return &Container{
		Config:         cfg,
		Logger:         logger,
		Repos:          repos,
		Events:         events,
		TokenManager:   tokens,
		RateLimiter:    ProvideRateLimiter(),
		TreeService:    ProvideTreeService(repos, events, logger),
		VersionService: ProvideVersionService(repos, events, logger),
		AuthService:    ProvideAuthService(repos, tokens, cfg, logger),
		SpaceService:   ProvideSpaceService(repos, logger),
	}, nil
}

// Shutdown flushes buffered log entries.
func (c *Container) Shutdown() {
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}
