package workers

import (
	"context"
	"time"

	"gateflow/internal/domain/access"
	"gateflow/internal/infra/metrics"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ExpiryWorker periodically hard-deletes access grants whose expiry has
// passed. Grants with a nil expires_at are untouched.
type ExpiryWorker struct {
	db       *gorm.DB
	interval time.Duration
	log      zerolog.Logger
}

func NewExpiryWorker(db *gorm.DB, interval time.Duration, logger zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpiryWorker{
		db:       db,
		interval: interval,
		log:      logger.With().Str("component", "expiry-worker").Logger(),
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping expiry worker")
			return
		case <-ticker.C:
			n, err := w.sweep(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("expiry sweep failed")
			}
			if n > 0 {
				w.log.Info().Int64("count", n).Msg("expired grants removed")
			}
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) (int64, error) {
	res := w.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now()).
		Delete(&access.Grant{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		metrics.AddAccessRevoked("expiry", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
