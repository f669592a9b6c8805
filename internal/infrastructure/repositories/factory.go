package repositories

import (
	"context"

	"callwire/internal/core/ports"
	"callwire/internal/infrastructure/repositories/memory"
	redisrepo "callwire/internal/infrastructure/repositories/redis"
	"callwire/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates the call store with fallback support: Redis when
// enabled and reachable, in-memory otherwise.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory call store",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis call store")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory call store")
	}

	return factory, nil
}

// CreateCallStore creates the shared call record store.
func (f *RepositoryFactory) CreateCallStore() ports.CallStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisCallStore(f.redisClient, f.logger)
	}
	return memory.NewMemoryCallStore()
}

// CreateParticipantRegistry creates the participant registry. The registry is
// process-local: each session agent owns the view of its own conference.
func (f *RepositoryFactory) CreateParticipantRegistry() ports.ParticipantRegistry {
	return memory.NewMemoryParticipantRegistry()
}

// Close closes the Redis connection if one is in use.
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
