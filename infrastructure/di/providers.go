package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/heirloom-app/heirloom/application/ports"
	"github.com/heirloom-app/heirloom/application/services"
	"github.com/heirloom-app/heirloom/infrastructure/config"
	"github.com/heirloom-app/heirloom/infrastructure/messaging/eventbridge"
	"github.com/heirloom-app/heirloom/infrastructure/persistence/dynamodb"
	"github.com/heirloom-app/heirloom/infrastructure/persistence/memory"
	"github.com/heirloom-app/heirloom/pkg/auth"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	return zapCfg.Build()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideEventPublisher creates the mutation event publisher. Events are
// optional; a nil publisher disables them.
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if !cfg.EnableEvents {
		return nil
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideTokenManager creates the JWT token manager
func ProvideTokenManager(cfg *config.Config) *auth.TokenManager {
	return auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
}

// ProvideRateLimiter creates the per-IP login rate limiter
func ProvideRateLimiter() *auth.TokenBucketLimiter {
	return auth.NewIPRateLimiter(60)
}

// Repositories bundles the persistence interfaces behind the storage
// backend switch.
type Repositories struct {
	Members   ports.MemberRepository
	Relations ports.RelationRepository
	Versions  ports.VersionRepository
	Users     ports.UserRepository
	Invites   ports.InviteRepository
	Spaces    ports.SpaceRepository
}

// ProvideDynamoDBRepositories creates the DynamoDB-backed repository set
func ProvideDynamoDBRepositories(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) Repositories {
	return Repositories{
		Members:   dynamodb.NewMemberRepository(client, cfg.DynamoDBTable, logger),
		Relations: dynamodb.NewRelationRepository(client, cfg.DynamoDBTable, logger),
		Versions:  dynamodb.NewVersionRepository(client, cfg.DynamoDBTable, cfg.IndexName, logger),
		Users:     dynamodb.NewUserRepository(client, cfg.DynamoDBTable, logger),
		Invites:   dynamodb.NewInviteRepository(client, cfg.DynamoDBTable, logger),
		Spaces:    dynamodb.NewSpaceRepository(client, cfg.DynamoDBTable, logger),
	}
}

// ProvideMemoryRepositories creates the in-memory repository set used in
// development and tests
func ProvideMemoryRepositories() Repositories {
	return Repositories{
		Members:   memory.NewMemberRepository(),
		Relations: memory.NewRelationRepository(),
		Versions:  memory.NewVersionRepository(),
		Users:     memory.NewUserRepository(),
		Invites:   memory.NewInviteRepository(),
		Spaces:    memory.NewSpaceRepository(),
	}
}

// ProvideTreeService creates the tree service
func ProvideTreeService(repos Repositories, events ports.EventPublisher, logger *zap.Logger) *services.TreeService {
	return services.NewTreeService(repos.Members, repos.Relations, events, logger)
}

// ProvideVersionService creates the version service
func ProvideVersionService(repos Repositories, events ports.EventPublisher, logger *zap.Logger) *services.VersionService {
	return services.NewVersionService(repos.Versions, repos.Relations, events, logger)
}

// ProvideAuthService creates the auth service
func ProvideAuthService(repos Repositories, tokens *auth.TokenManager, cfg *config.Config, logger *zap.Logger) *services.AuthService {
	return services.NewAuthService(repos.Users, repos.Invites, repos.Spaces, tokens, cfg.RequireInvite, logger)
}

// ProvideSpaceService creates the space service
func ProvideSpaceService(repos Repositories, logger *zap.Logger) *services.SpaceService {
	return services.NewSpaceService(repos.Spaces, logger)
}
