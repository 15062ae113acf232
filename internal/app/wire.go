package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/nftbay/marketd/internal/blob/s3"
	"github.com/nftbay/marketd/internal/cache/redis"
	"github.com/nftbay/marketd/internal/config"
	"github.com/nftbay/marketd/internal/domain"
	"github.com/nftbay/marketd/internal/ledger/evm"
	"github.com/nftbay/marketd/internal/mirror"
	"github.com/nftbay/marketd/internal/server/handler"
	"github.com/nftbay/marketd/internal/service"
	"github.com/nftbay/marketd/internal/store/postgres"
	"github.com/nftbay/marketd/internal/txmgr"
	"github.com/nftbay/marketd/internal/wallet"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Wallet *wallet.Wallet
	Ledger *evm.Client
	Mirror *mirror.Mirror
	TxMgr  *txmgr.Manager

	ActivityStore domain.ActivityStore
	SnapshotCache domain.SnapshotCache
	SignalBus     domain.SignalBus
	BlobWriter    domain.BlobWriter

	Catalog  *service.Catalog
	Activity *service.Activity

	// Pingers for the health endpoint, keyed by dependency name.
	Pingers map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the
// configuration and returns them with a cleanup function to be called
// on shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Pingers: map[string]handler.Pinger{}}

	// --- Wallet (optional; absent means a read-only session) ---
	w, err := wallet.Open(wallet.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	}, cfg.Chain.ChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}
	deps.Wallet = w

	// --- Ledger ---
	ledger, err := evm.Dial(ctx, evm.ClientConfig{
		RPCURL:              cfg.Chain.RPCURL,
		ContractAddress:     cfg.Chain.ContractAddress,
		ChainID:             cfg.Chain.ChainID,
		CallTimeout:         cfg.Chain.CallTimeout.Duration,
		ConfirmPollInterval: cfg.Chain.ConfirmPollInterval.Duration,
	}, w, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}
	closers = append(closers, ledger.Close)
	deps.Ledger = ledger

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.ActivityStore = postgres.NewActivityStore(pgClient.Pool())
	deps.Pingers["postgres"] = pingFunc(func(ctx context.Context) error {
		return pgClient.Pool().Ping(ctx)
	})

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.SnapshotCache = redis.NewSnapshotCache(redisClient, cfg.Market.CacheTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Pingers["redis"] = redisClient
	}

	// --- S3 (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Pingers["s3"] = pingFunc(s3Client.Health)
	}

	// --- Core ---
	deps.Mirror = mirror.New(ledger, deps.SnapshotCache, deps.SignalBus, logger, mirror.Options{
		MaxAttempts: cfg.Market.MaxReadAttempts,
		BaseBackoff: cfg.Market.ReadBackoff.Duration,
		PageSize:    cfg.Market.PageSize,
	})
	deps.TxMgr = txmgr.New(ledger, w, deps.Mirror, deps.ActivityStore, deps.SignalBus, logger, txmgr.Options{
		ConfirmTimeout: cfg.Market.ConfirmTimeout.Duration,
	})

	deps.Catalog = service.NewCatalog(deps.Mirror, logger)
	deps.Activity = service.NewActivity(deps.ActivityStore, deps.BlobWriter, logger)

	return deps, cleanup, nil
}

// pingFunc adapts a function to the Pinger interface.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
