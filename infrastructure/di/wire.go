//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/heirloom-app/heirloom/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideEventPublisher,
	ProvideTokenManager,
	ProvideRateLimiter,
	ProvideDynamoDBRepositories,
	ProvideTreeService,
	ProvideVersionService,
	ProvideAuthService,
	ProvideSpaceService,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container for the DynamoDB
// backend. NewContainer remains the entry point when the storage backend
// is chosen at runtime.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
