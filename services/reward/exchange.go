package reward

import (
	"context"

	"questboard/pkg/errutil"
	"questboard/services/points"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Redeem converts a recipe's materials into its result item, all or nothing.
// Every shortfall is collected before anything is written, so a user three
// coins and one gem short learns both at once. On success the consume rows
// and the grant row share one transaction_group id, which is what lets an
// exchange be audited or reversed as a unit.
func (s *Service) Redeem(ctx context.Context, userID string, recipeID snowflake.ID) (string, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var group string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		inv := s.WithTx(tx)

		var recipe RewardRecipe
		err := tx.WithContext(ctx).
			Where("id = ? AND is_active = ?", recipeID, true).
			First(&recipe).Error
		if err == gorm.ErrRecordNotFound {
			return errutil.NotFound("recipe not found")
		}
		if err != nil {
			return err
		}

		var materials []*RecipeMaterial
		if err := tx.WithContext(ctx).
			Where("recipe_id = ?", recipe.ID).
			Order("id ASC").
			Find(&materials).Error; err != nil {
			return err
		}
		if len(materials) == 0 {
			return errutil.UnprocessableEntity("recipe has no materials")
		}

		var shortfalls []Shortfall
		for _, m := range materials {
			item, err := inv.findItem(ctx, m.RewardID)
			if err != nil {
				return err
			}
			owned, err := inv.OwnedQuantity(ctx, userID, m.RewardID)
			if err != nil {
				return err
			}
			if owned < m.Quantity {
				shortfalls = append(shortfalls, Shortfall{
					RewardID: item.ID,
					Slug:     item.Slug,
					Required: m.Quantity,
					Owned:    owned,
				})
			}
		}
		if len(shortfalls) > 0 {
			return &InsufficientError{Required: shortfalls}
		}

		group = uuid.NewString()
		sourceID := recipe.ID.String()

		for _, m := range materials {
			if err := inv.Consume(ctx, ConsumeParams{
				UserID:           userID,
				RewardID:         m.RewardID,
				Quantity:         m.Quantity,
				SourceType:       points.SourceRedemption,
				SourceID:         &sourceID,
				TransactionGroup: &group,
			}); err != nil {
				return err
			}
		}

		if _, err := inv.Grant(ctx, GrantParams{
			UserID:           userID,
			RewardID:         recipe.ResultRewardID,
			Quantity:         1,
			SourceType:       points.SourceRedemption,
			SourceID:         &sourceID,
			TransactionGroup: &group,
		}); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	zap.L().Info("recipe redeemed",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", userID),
		zap.String("recipe_id", recipeID.String()),
		zap.String("transaction_group", group),
	)

	return group, nil
}
