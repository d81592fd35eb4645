package reward

import (
	"context"

	"questboard/internal/config"
	"questboard/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultCatalog is used when configuration carries no catalog of its own.
var DefaultCatalog = config.Catalog{
	Rewards: []config.RewardSeed{
		{Name: "Gold Coin", Description: "Common currency dropped by the daily lottery", PointsValue: 10, Active: true},
		{Name: "Gem", Description: "Uncommon lottery drop", PointsValue: 50, Active: true},
		{Name: "Trophy", Description: "Crafted from gems, pure bragging rights", PointsValue: 500, Active: false},
	},
	Recipes: []config.RecipeSeed{
		{
			Name:   "Trophy Forge",
			Result: "Trophy",
			Active: true,
			Materials: []config.MaterialSeed{
				{Reward: "Gem", Quantity: 5},
				{Reward: "Gold Coin", Quantity: 10},
			},
		},
	},
}

// Seed upserts the reward and recipe catalog. It keys every row by slug, so
// running it on every process start converges instead of duplicating, and
// material names resolve to reward ids exactly once, here.
func (s *Service) Seed(ctx context.Context, catalog config.Catalog) error {
	if len(catalog.Rewards) == 0 && len(catalog.Recipes) == 0 {
		catalog = DefaultCatalog
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		bySlug := make(map[string]snowflake.ID)

		for _, seed := range catalog.Rewards {
			sl := slug.Make(seed.Name)

			var existing RewardItem
			err := tx.WithContext(ctx).Where("slug = ?", sl).First(&existing).Error
			switch {
			case err == gorm.ErrRecordNotFound:
				item := &RewardItem{
					ID:          s.node.Generate(),
					Slug:        sl,
					Name:        seed.Name,
					Description: seed.Description,
					PointsValue: seed.PointsValue,
					Active:      seed.Active,
				}
				if err := tx.WithContext(ctx).Create(item).Error; err != nil {
					return err
				}
				bySlug[sl] = item.ID
			case err != nil:
				return err
			default:
				updates := map[string]any{
					"name":         seed.Name,
					"description":  seed.Description,
					"points_value": seed.PointsValue,
					"is_active":    seed.Active,
				}
				if err := tx.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
					return err
				}
				bySlug[sl] = existing.ID
			}
		}

		for _, seed := range catalog.Recipes {
			resultID, ok := bySlug[slug.Make(seed.Result)]
			if !ok {
				return errutil.ValidationFailed("recipe result references an unknown reward: " + seed.Result)
			}

			sl := slug.Make(seed.Name)
			var recipeID snowflake.ID

			var existing RewardRecipe
			err := tx.WithContext(ctx).Where("slug = ?", sl).First(&existing).Error
			switch {
			case err == gorm.ErrRecordNotFound:
				recipe := &RewardRecipe{
					ID:             s.node.Generate(),
					Slug:           sl,
					Name:           seed.Name,
					ResultRewardID: resultID,
					Active:         seed.Active,
				}
				if err := tx.WithContext(ctx).Create(recipe).Error; err != nil {
					return err
				}
				recipeID = recipe.ID
			case err != nil:
				return err
			default:
				updates := map[string]any{
					"name":             seed.Name,
					"result_reward_id": resultID,
					"is_active":        seed.Active,
				}
				if err := tx.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
					return err
				}
				recipeID = existing.ID
			}

			if err := tx.WithContext(ctx).
				Where("recipe_id = ?", recipeID).
				Delete(&RecipeMaterial{}).Error; err != nil {
				return err
			}
			for _, m := range seed.Materials {
				rewardID, ok := bySlug[slug.Make(m.Reward)]
				if !ok {
					return errutil.ValidationFailed("recipe material references an unknown reward: " + m.Reward)
				}
				if m.Quantity <= 0 {
					return errutil.ValidationFailed("recipe material quantity must be > 0")
				}
				material := &RecipeMaterial{
					ID:       s.node.Generate(),
					RecipeID: recipeID,
					RewardID: rewardID,
					Quantity: m.Quantity,
				}
				if err := tx.WithContext(ctx).Create(material).Error; err != nil {
					return err
				}
			}
		}

		zap.L().Info("reward catalog seeded",
			zap.Int("rewards", len(catalog.Rewards)),
			zap.Int("recipes", len(catalog.Recipes)),
		)
		return nil
	})
}
