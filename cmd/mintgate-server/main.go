package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/mintgate/mintgate-go/pkg/admission"
	"github.com/mintgate/mintgate-go/pkg/config"
	"github.com/mintgate/mintgate-go/pkg/gateway"
	"github.com/mintgate/mintgate-go/pkg/ledger"
	"github.com/mintgate/mintgate-go/pkg/persistence"
	"github.com/mintgate/mintgate-go/pkg/persistence/badger"
	"github.com/mintgate/mintgate-go/pkg/persistence/memory"
	"github.com/mintgate/mintgate-go/pkg/persistence/redis"
	"github.com/mintgate/mintgate-go/pkg/registry"
)

const jwksRefreshInterval = 15 * time.Minute

func main() {
	app := &cli.App{
		Name:  "mintgate-server",
		Usage: "Merkle-allowlist campaign admission server",
		Description: `Admission service for allowlist-gated mint campaigns.

The server hosts:
- Campaign registry with lifecycle management (create, update, activate, delete)
- Proof-verified claim admission against per-campaign Merkle roots
- Non-transferable credential ledger with metadata resolution
- JWT-gated administrative interface`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvPort},
			},
			&cli.StringFlag{
				Name:     "submitter-address",
				Usage:    "Identity of the authorized claim submitter (0x-prefixed address)",
				EnvVars:  []string{config.EnvSubmitterAddress},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "admin-jwt-secret",
				Usage:   "Shared HMAC secret for admin tokens (mutually exclusive with --admin-jwks-url)",
				EnvVars: []string{config.EnvAdminJWTSecret},
			},
			&cli.StringFlag{
				Name:    "admin-jwks-url",
				Usage:   "JWKS URL for admin token verification",
				EnvVars: []string{config.EnvAdminJWKSURL},
			},
			&cli.StringFlag{
				Name:    "persistence-type",
				Value:   "memory",
				Usage:   "Backing store: memory, badger, or redis",
				EnvVars: []string{config.EnvPersistenceType},
			},
			&cli.StringFlag{
				Name:    "badger-path",
				Usage:   "Data directory for badger persistence",
				EnvVars: []string{config.EnvBadgerPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis server address (host:port)",
				EnvVars: []string{config.EnvRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvRedisPassword},
			},
			&cli.Float64Flag{
				Name:    "claim-rate-limit",
				Value:   50,
				Usage:   "Sustained claims per second accepted before shedding (0 disables)",
				EnvVars: []string{config.EnvClaimRateLimit},
			},
			&cli.IntFlag{
				Name:    "max-proof-depth",
				Usage:   "Maximum accepted Merkle proof length (default 32)",
				EnvVars: []string{config.EnvMaxProofDepth},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvVerbose},
			},
		},
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func parseConfig(c *cli.Context) (*config.ServerConfig, error) {
	persistenceType, err := config.ParsePersistenceType(c.String("persistence-type"))
	if err != nil {
		return nil, err
	}

	cfg := &config.ServerConfig{
		Port:             c.Int("port"),
		SubmitterAddress: c.String("submitter-address"),
		AdminJWTSecret:   c.String("admin-jwt-secret"),
		AdminJWKSURL:     c.String("admin-jwks-url"),
		PersistenceType:  persistenceType,
		BadgerPath:       c.String("badger-path"),
		RedisAddress:     c.String("redis-address"),
		RedisPassword:    c.String("redis-password"),
		ClaimRateLimit:   c.Float64("claim-rate-limit"),
		MaxProofDepth:    c.Int("max-proof-depth"),
		Verbose:          c.Bool("verbose"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildStore(cfg *config.ServerConfig, logger *zap.Logger) (persistence.Store, error) {
	switch cfg.PersistenceType {
	case config.PersistenceMemory:
		return memory.NewMemoryStore(), nil
	case config.PersistenceBadger:
		return badger.NewBadgerStore(cfg.BadgerPath, logger)
	case config.PersistenceRedis:
		return redis.NewRedisStore(&redis.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.PersistenceType)
	}
}

func buildAuthenticator(ctx context.Context, cfg *config.ServerConfig, logger *zap.Logger) (*gateway.AdminAuthenticator, error) {
	if cfg.AdminJWKSURL != "" {
		return gateway.NewJWKSAuthenticator(ctx, cfg.AdminJWKSURL, jwksRefreshInterval, logger)
	}
	return gateway.NewHMACAuthenticator(cfg.AdminJWTSecret, logger)
}

func runServer(c *cli.Context) error {
	cfg, err := parseConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	var logger *zap.Logger
	if cfg.Verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Sugar().Infow("Starting mintgate server",
		"port", cfg.Port,
		"persistence", cfg.PersistenceType,
		"submitter", cfg.SubmitterAddress,
		"claim_rate_limit", cfg.ClaimRateLimit)

	store, err := buildStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	reg, err := registry.NewRegistry(store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}

	led, err := ledger.NewLedger(reg, store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	controller, err := admission.NewController(admission.Config{
		AuthorizedSubmitter: cfg.Submitter(),
		MaxProofDepth:       cfg.MaxProofDepth,
	}, reg, led, store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize admission controller: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth, err := buildAuthenticator(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize admin authenticator: %w", err)
	}

	server := gateway.NewServer(cfg.Port, controller, reg, led, store, auth, cfg.ClaimRateLimit, logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Sugar().Infow("Shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Sugar().Errorw("Graceful shutdown failed", "error", err)
	}
	return nil
}
