package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/blogsphere/blogsphere/internal/api"
	"github.com/blogsphere/blogsphere/internal/app"
	"github.com/blogsphere/blogsphere/internal/app/maintenance"
	iauth "github.com/blogsphere/blogsphere/internal/auth"
	"github.com/blogsphere/blogsphere/internal/database"
	"github.com/blogsphere/blogsphere/internal/ratelimit"
	"github.com/blogsphere/blogsphere/internal/users"
	"github.com/blogsphere/blogsphere/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Limiter ratelimit.Limiter
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, optional Redis, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			if shutdownErr := stack.Shutdown(context.Background()); shutdownErr != nil {
				log.Warn("partial runtime shutdown", zap.Error(shutdownErr))
			}
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		stack.Redis, err = connectRedis(ctx, cfg.Cache)
		if err != nil {
			log.Warn("redis unavailable; falling back to in-memory rate limiting", zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	stack.Limiter, err = buildLimiter(cfg, stack.Redis, log)
	if err != nil {
		return nil, err
	}

	userRepo, err := users.NewRepository(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise user repository: %w", err)
	}
	if err := ensureBootstrapUser(ctx, cfg, userRepo, log); err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionStore, err := iauth.NewGormSessionStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise session store: %w", err)
	}

	sessionSvc, err := iauth.NewSessionService(sessionStore, jwtSvc, iauth.SessionConfig{})
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	credentials, err := iauth.NewCredentialVerifier(userRepo, stack.Limiter, cfg.Auth.CredentialConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise credential verifier: %w", err)
	}

	hybrid, err := iauth.NewHybridAuthenticator(jwtSvc, sessionStore, userRepo, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise hybrid authenticator: %w", err)
	}

	var pruner maintenance.Pruner
	if memory, ok := stack.Limiter.(*ratelimit.MemoryLimiter); ok {
		pruner = memory
	}
	stack.Cleaner = maintenance.NewCleaner(stack.DB, pruner, maintenance.WithPruneSchedule(cfg.Maintenance.RateLimitPrune))
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:          stack.DB,
		Config:      cfg,
		Users:       userRepo,
		Sessions:    sessionSvc,
		Credentials: credentials,
		Hybrid:      hybrid,
		Limiter:     stack.Limiter,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var errs error

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		errs = multierr.Append(errs, s.Cleaner.RunOnce(ctx))
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOpenConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func connectRedis(ctx context.Context, cfg app.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(cfg.RedisOptions())
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func buildLimiter(cfg *app.Config, client *redis.Client, log *zap.Logger) (ratelimit.Limiter, error) {
	switch backend := cfg.Auth.RateLimitBackend(); backend {
	case app.RateLimitBackendMemory:
		return ratelimit.NewMemoryLimiter(), nil
	case app.RateLimitBackendRedis:
		if client == nil {
			log.Warn("redis rate limiter requested but redis is unavailable; using memory")
			return ratelimit.NewMemoryLimiter(), nil
		}
		limiter, err := ratelimit.NewRedisLimiter(client, "")
		if err != nil {
			return nil, fmt.Errorf("initialise redis rate limiter: %w", err)
		}
		return limiter, nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend %q", backend)
	}
}

func ensureBootstrapUser(ctx context.Context, cfg *app.Config, repo *users.Repository, log *zap.Logger) error {
	input, ok := cfg.Auth.BootstrapUserInput()
	if !ok {
		return nil
	}

	user, created, err := repo.EnsureUser(ctx, input)
	if err != nil {
		return fmt.Errorf("ensure bootstrap user: %w", err)
	}
	if created {
		log.Info("bootstrap user created", zap.String("login", user.Login))
	} else if !strings.EqualFold(user.Login, input.Login) {
		log.Warn("bootstrap e-mail already belongs to another user", zap.String("login", user.Login))
	}
	return nil
}
