package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/predictionledger/internal/blob/s3"
	"github.com/alanyoungcy/predictionledger/internal/bus/memory"
	"github.com/alanyoungcy/predictionledger/internal/cache/redis"
	"github.com/alanyoungcy/predictionledger/internal/chain"
	"github.com/alanyoungcy/predictionledger/internal/config"
	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/idgen"
	"github.com/alanyoungcy/predictionledger/internal/ledger"
	"github.com/alanyoungcy/predictionledger/internal/notify"
	"github.com/alanyoungcy/predictionledger/internal/ratelimit"
	"github.com/alanyoungcy/predictionledger/internal/store/postgres"
)

// Dependencies bundles the ledger and every collaborator built from the
// configuration. Optional collaborators are nil when not configured.
type Dependencies struct {
	Ledger *ledger.Ledger

	SignalBus   domain.SignalBus
	BusName     string
	RateLimiter domain.RateLimiter

	// Optional.
	AuditStore domain.AuditStore
	Exporter   *s3blob.Exporter
	Chain      domain.ChainSubmitter

	Notifier *notify.Notifier
}

// ChainName reports the configured chain submitter, or "none".
func (d *Dependencies) ChainName() string {
	if d.Chain == nil {
		return "none"
	}
	return d.Chain.Name()
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	l, err := newLedger(cfg.Ledger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: ledger: %w", err)
	}
	deps := &Dependencies{Ledger: l}

	// --- Event bus and rate limiter: Redis when configured, else in-process ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.BusName = "redis"
	} else {
		deps.SignalBus = memory.NewBus(int(cfg.Redis.StreamMaxLen))
		deps.RateLimiter = ratelimit.New()
		deps.BusName = "memory"
	}

	// --- PostgreSQL audit log ---
	if cfg.Postgres.DSN != "" {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
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
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
	}

	// --- S3 snapshot export ---
	if cfg.S3.Bucket != "" {
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
		deps.Exporter = s3blob.NewExporter(l, s3blob.NewWriter(s3Client), deps.AuditStore, nil,
			s3blob.ExporterConfig{
				Prefix:   cfg.S3.Prefix,
				Interval: cfg.S3.ExportInterval.Duration,
			}, logger)
	}

	// --- Chain submission ---
	if cfg.Chain.Enabled {
		deps.Chain = chain.NewSimulated(chain.SimulatedConfig{
			Network:       cfg.Chain.Network,
			RequireWallet: cfg.Chain.RequireWallet,
		})
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
			notify.WithTelegramLimiter(deps.RateLimiter),
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

func newLedger(cfg config.LedgerConfig) (*ledger.Ledger, error) {
	marketIDs, err := idgen.New(cfg.IDScheme)
	if err != nil {
		return nil, err
	}
	tradeIDs, err := idgen.New(cfg.IDScheme)
	if err != nil {
		return nil, err
	}
	return ledger.New(ledger.Options{
		InitialLiquidity: decimal.NewFromFloat(cfg.InitialLiquidity),
		MarketIDs:        marketIDs,
		TradeIDs:         tradeIDs,
	}), nil
}
