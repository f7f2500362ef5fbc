package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/codexplain/codexplain/internal/config"
	"github.com/codexplain/codexplain/internal/core/ratelimit"
	"github.com/codexplain/codexplain/internal/core/store"
	"github.com/codexplain/codexplain/internal/observability"
)

func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// openClientLimiter builds the advisory limiter over the local store. When the
// store cannot be opened the limiter falls back to memory for this run; the
// server still enforces the quota.
func openClientLimiter(ctx context.Context, cfg *config.Config) (*ratelimit.ClientLimiter, func(), error) {
	var (
		storage ratelimit.Storage
		closeFn = func() {}
	)

	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		observability.CLILogger.Warn("Local store unavailable; advisory quota will not persist", zap.Error(err))
		storage = ratelimit.NewMemoryStorage()
	} else {
		storage = db.LocalStorage()
		closeFn = func() { _ = db.Close() }
	}

	limiter, err := ratelimit.NewClientLimiter(ratelimit.ClientOptions{
		Quota:      cfg.RateLimit.Client.Quota,
		Storage:    storage,
		StorageKey: cfg.RateLimit.Client.StorageKey,
		OnError: func(op string, err error) {
			observability.CLILogger.Debug("Advisory quota storage error", zap.String("op", op), zap.Error(err))
		},
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return limiter, closeFn, nil
}
