package points

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// expirableSources are the grant types whose points age out. Debits and
// expiration rows themselves never expire.
var expirableSources = []SourceType{
	SourceTaskComplete,
	SourceTaskCompleteTop3,
	SourceManual,
}

// ExpireStale writes one offsetting expiration row for every positive grant
// older than ttl that has not been expired yet. The original grant's id is
// recorded as the expiration row's source_id, which is what makes repeated
// sweeps idempotent: a grant with an expiration row pointing at it is
// skipped forever after.
func (s *Service) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)

	var expired int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		expired = 0

		var stale []*PointTransaction
		if err := tx.WithContext(ctx).
			Where("amount > 0").
			Where("source_type IN ?", expirableSources).
			Where("created_at < ?", cutoff).
			Order("created_at ASC").
			Find(&stale).Error; err != nil {
			return err
		}

		if len(stale) == 0 {
			return nil
		}

		staleIDs := make([]string, 0, len(stale))
		for _, row := range stale {
			staleIDs = append(staleIDs, row.ID.String())
		}

		var covered []string
		if err := tx.WithContext(ctx).
			Model(&PointTransaction{}).
			Where("source_type = ?", SourceExpiration).
			Where("source_id IN ?", staleIDs).
			Pluck("source_id", &covered).Error; err != nil {
			return err
		}

		coveredSet := make(map[string]struct{}, len(covered))
		for _, id := range covered {
			coveredSet[id] = struct{}{}
		}

		ledger := s.WithTx(tx)
		for _, row := range stale {
			sourceID := row.ID.String()
			if _, ok := coveredSet[sourceID]; ok {
				continue
			}

			if _, err := ledger.Add(ctx, AddParams{
				UserID:     row.UserID,
				Amount:     -row.Amount,
				SourceType: SourceExpiration,
				SourceID:   &sourceID,
			}); err != nil {
				return err
			}
			expired++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		zap.L().Info("expired stale point grants",
			zap.Int("count", expired),
			zap.Duration("ttl", ttl),
		)
	}

	return expired, nil
}
