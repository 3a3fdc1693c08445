package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/billvault/internal/blob/s3"
	"github.com/alanyoungcy/billvault/internal/cache/redis"
	"github.com/alanyoungcy/billvault/internal/config"
	"github.com/alanyoungcy/billvault/internal/domain"
	"github.com/alanyoungcy/billvault/internal/ledger"
	"github.com/alanyoungcy/billvault/internal/notify"
	"github.com/alanyoungcy/billvault/internal/service"
	"github.com/alanyoungcy/billvault/internal/store/memory"
	"github.com/alanyoungcy/billvault/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Series     domain.SeriesStore
	Positions  domain.HolderPositionStore
	Repos      domain.RepoPositionStore
	Accounting domain.AccountingStore
	Audit      domain.AuditStore

	// Ledgers
	Balances domain.BalanceLedger
	Cash     domain.CashLedger

	// Coordination and caches (nil outside server mode)
	Locker      domain.OpLocker
	RateLimiter domain.RateLimiter
	EventBus    *redis.EventBus
	PriceCache  *redis.PriceCache

	// Blob storage (nil unless archival is wired)
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Bus returns the event bus as a domain interface, or nil when Redis is not
// wired. The typed nil must not leak into the interface value.
func (d *Dependencies) Bus() domain.EventBus {
	if d.EventBus == nil {
		return nil
	}
	return d.EventBus
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "server", "archive":
		return true
	default:
		return false
	}
}

// needsRedis returns true for modes that require Redis coordination.
func needsRedis(mode string) bool {
	return mode == "server"
}

// needsS3 reports whether object storage must be wired for the given config.
func needsS3(cfg *config.Config, mode string) bool {
	return mode == "archive" || (mode == "server" && cfg.Archive.Enabled)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	operator := cfg.Vault.LedgerOperator

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Series = postgres.NewSeriesStore(pool)
		deps.Positions = postgres.NewHolderPositionStore(pool)
		deps.Repos = postgres.NewRepoPositionStore(pool)
		deps.Accounting = postgres.NewAccountingStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Balances = ledger.NewPGClaimLedger(pool, operator).Operator(operator)
		deps.Cash = ledger.NewPGCashAccounts(pool)
	} else {
		// Paper mode: everything lives in process memory.
		deps.Series = memory.NewSeriesStore()
		deps.Positions = memory.NewHolderPositionStore()
		deps.Repos = memory.NewRepoPositionStore()
		deps.Accounting = memory.NewAccountingStore()
		deps.Audit = memory.NewAuditStore()
		deps.Balances = ledger.NewClaimLedger(operator).Operator(operator)
		deps.Cash = ledger.NewCashAccounts()
	}

	// --- Redis (server mode coordination) ---
	if needsRedis(mode) {
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

		deps.Locker = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
		deps.PriceCache = redis.NewPriceCache(redisClient)
	} else {
		deps.Locker = service.NewLocalLocker()
	}

	// --- S3 blob storage (archival) ---
	if needsS3(cfg, mode) {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Audit, logger)
	}

	// --- Notifications ---
	senders := notify.Senders(
		cfg.Notify.TelegramToken,
		cfg.Notify.TelegramChatID,
		cfg.Notify.DiscordWebhookURL,
		logger,
	)
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
