package reward

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"questboard/internal/config"
	"questboard/pkg/errutil"
	"questboard/services/points"
	"questboard/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t,
		&RewardItem{},
		&RewardRecipe{},
		&RecipeMaterial{},
		&RewardTransaction{},
	)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func seedItem(t *testing.T, svc *Service, name, slug string, active bool) *RewardItem {
	t.Helper()

	item := &RewardItem{
		ID:          svc.node.Generate(),
		Slug:        slug,
		Name:        name,
		PointsValue: 10,
		Active:      active,
	}
	require.NoError(t, svc.db.Create(item).Error)
	return item
}

func seedRecipe(t *testing.T, svc *Service, result *RewardItem, materials map[*RewardItem]int64) *RewardRecipe {
	t.Helper()

	recipe := &RewardRecipe{
		ID:             svc.node.Generate(),
		Slug:           "test-recipe",
		Name:           "Test Recipe",
		ResultRewardID: result.ID,
		Active:         true,
	}
	require.NoError(t, svc.db.Create(recipe).Error)

	for item, qty := range materials {
		material := &RecipeMaterial{
			ID:       svc.node.Generate(),
			RecipeID: recipe.ID,
			RewardID: item.ID,
			Quantity: qty,
		}
		require.NoError(t, svc.db.Create(material).Error)
	}
	return recipe
}

func TestGrantAndOwnedQuantity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	coin := seedItem(t, svc, "Gold Coin", "gold-coin", true)

	_, err := svc.Grant(ctx, GrantParams{
		UserID:     "user-1",
		RewardID:   coin.ID,
		Quantity:   5,
		SourceType: points.SourceTaskCompleteTop3,
	})
	require.NoError(t, err)

	owned, err := svc.OwnedQuantity(ctx, "user-1", coin.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), owned)

	owned, err = svc.OwnedQuantity(ctx, "user-2", coin.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), owned)
}

func TestGrantRejectsNonPositiveQuantity(t *testing.T) {
	svc := newTestService(t)
	coin := seedItem(t, svc, "Gold Coin", "gold-coin", true)

	_, err := svc.Grant(context.Background(), GrantParams{
		UserID:     "user-1",
		RewardID:   coin.ID,
		Quantity:   0,
		SourceType: points.SourceManual,
	})
	require.Error(t, err)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestConsumeDecrementsOwned(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	coin := seedItem(t, svc, "Gold Coin", "gold-coin", true)

	_, err := svc.Grant(ctx, GrantParams{UserID: "user-1", RewardID: coin.ID, Quantity: 5, SourceType: points.SourceManual})
	require.NoError(t, err)

	err = svc.Consume(ctx, ConsumeParams{UserID: "user-1", RewardID: coin.ID, Quantity: 3, SourceType: points.SourceRedemption})
	require.NoError(t, err)

	owned, err := svc.OwnedQuantity(ctx, "user-1", coin.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), owned)
}

func TestConsumeInsufficientFailsClosed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	coin := seedItem(t, svc, "Gold Coin", "gold-coin", true)

	_, err := svc.Grant(ctx, GrantParams{UserID: "user-1", RewardID: coin.ID, Quantity: 2, SourceType: points.SourceManual})
	require.NoError(t, err)

	err = svc.Consume(ctx, ConsumeParams{UserID: "user-1", RewardID: coin.ID, Quantity: 3, SourceType: points.SourceRedemption})
	require.Error(t, err)

	var insufficient *InsufficientError
	require.True(t, errors.As(err, &insufficient))
	require.Len(t, insufficient.Required, 1)
	require.Equal(t, coin.ID, insufficient.Required[0].RewardID)
	require.Equal(t, "gold-coin", insufficient.Required[0].Slug)
	require.Equal(t, int64(3), insufficient.Required[0].Required)
	require.Equal(t, int64(2), insufficient.Required[0].Owned)
	require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))

	// nothing was written, the owned quantity can never go negative
	owned, err := svc.OwnedQuantity(ctx, "user-1", coin.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), owned)
}

func TestConsumeUnknownReward(t *testing.T) {
	svc := newTestService(t)

	err := svc.Consume(context.Background(), ConsumeParams{
		UserID:     "user-1",
		RewardID:   snowflake.ID(12345),
		Quantity:   1,
		SourceType: points.SourceRedemption,
	})
	require.Error(t, err)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestConsumeRollsBackWithEnclosingTransaction(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	coin := seedItem(t, svc, "Gold Coin", "gold-coin", true)

	_, err := svc.Grant(ctx, GrantParams{UserID: "user-1", RewardID: coin.ID, Quantity: 5, SourceType: points.SourceManual})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = svc.db.Transaction(func(tx *gorm.DB) error {
		if err := svc.WithTx(tx).Consume(ctx, ConsumeParams{
			UserID:     "user-1",
			RewardID:   coin.ID,
			Quantity:   3,
			SourceType: points.SourceRedemption,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	owned, err := svc.OwnedQuantity(ctx, "user-1", coin.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), owned)
}

func TestRedeemSuccess(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	coin := seedItem(t, svc, "Gold Coin", "gold-coin", true)
	gem := seedItem(t, svc, "Gem", "gem", true)
	trophy := seedItem(t, svc, "Trophy", "trophy", false)
	recipe := seedRecipe(t, svc, trophy, map[*RewardItem]int64{coin: 10, gem: 5})

	_, err := svc.Grant(ctx, GrantParams{UserID: "user-1", RewardID: coin.ID, Quantity: 12, SourceType: points.SourceManual})
	require.NoError(t, err)
	_, err = svc.Grant(ctx, GrantParams{UserID: "user-1", RewardID: gem.ID, Quantity: 5, SourceType: points.SourceManual})
	require.NoError(t, err)

	group, err := svc.Redeem(ctx, "user-1", recipe.ID)
	require.NoError(t, err)
	require.NotEmpty(t, group)

	owned, err := svc.OwnedQuantity(ctx, "user-1", coin.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), owned)

	owned, err = svc.OwnedQuantity(ctx, "user-1", gem.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), owned)

	owned, err = svc.OwnedQuantity(ctx, "user-1", trophy.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), owned)

	// two consumes plus one grant, all stamped with the same group
	var rows []*RewardTransaction
	require.NoError(t, svc.db.Where("transaction_group = ?", group).Find(&rows).Error)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.Equal(t, points.SourceRedemption, row.SourceType)
		require.NotNil(t, row.SourceID)
		require.Equal(t, recipe.ID.String(), *row.SourceID)
	}
}

func TestRedeemCollectsEveryShortfall(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	coin := seedItem(t, svc, "Gold Coin", "gold-coin", true)
	gem := seedItem(t, svc, "Gem", "gem", true)
	trophy := seedItem(t, svc, "Trophy", "trophy", false)
	recipe := seedRecipe(t, svc, trophy, map[*RewardItem]int64{coin: 10, gem: 5})

	_, err := svc.Grant(ctx, GrantParams{UserID: "user-1", RewardID: coin.ID, Quantity: 7, SourceType: points.SourceManual})
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, "user-1", recipe.ID)
	require.Error(t, err)

	var insufficient *InsufficientError
	require.True(t, errors.As(err, &insufficient))
	require.Len(t, insufficient.Required, 2)

	bySlug := make(map[string]Shortfall, len(insufficient.Required))
	for _, shortfall := range insufficient.Required {
		bySlug[shortfall.Slug] = shortfall
	}
	require.Equal(t, int64(10), bySlug["gold-coin"].Required)
	require.Equal(t, int64(7), bySlug["gold-coin"].Owned)
	require.Equal(t, int64(5), bySlug["gem"].Required)
	require.Equal(t, int64(0), bySlug["gem"].Owned)

	// all or nothing: the failed redeem wrote no rows
	var count int64
	require.NoError(t, svc.db.Model(&RewardTransaction{}).
		Where("source_type = ?", points.SourceRedemption).
		Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestGrantUnknownReward(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Grant(context.Background(), GrantParams{
		UserID:     "user-1",
		RewardID:   snowflake.ID(54321),
		Quantity:   1,
		SourceType: points.SourceManual,
	})
	require.Error(t, err)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestRedeemRollsBackWhenGrantFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	coin := seedItem(t, svc, "Gold Coin", "gold-coin", true)
	gem := seedItem(t, svc, "Gem", "gem", true)

	// the recipe's result points at a reward that no longer exists, so the
	// final grant fails after every consume has already been written
	ghost := &RewardItem{ID: svc.node.Generate()}
	recipe := seedRecipe(t, svc, ghost, map[*RewardItem]int64{coin: 10, gem: 5})

	_, err := svc.Grant(ctx, GrantParams{UserID: "user-1", RewardID: coin.ID, Quantity: 10, SourceType: points.SourceManual})
	require.NoError(t, err)
	_, err = svc.Grant(ctx, GrantParams{UserID: "user-1", RewardID: gem.ID, Quantity: 5, SourceType: points.SourceManual})
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, "user-1", recipe.ID)
	require.Error(t, err)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))

	// the consumes rolled back with the failed grant
	var count int64
	require.NoError(t, svc.db.Model(&RewardTransaction{}).
		Where("source_type = ?", points.SourceRedemption).
		Count(&count).Error)
	require.Equal(t, int64(0), count)

	owned, err := svc.OwnedQuantity(ctx, "user-1", coin.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), owned)

	owned, err = svc.OwnedQuantity(ctx, "user-1", gem.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), owned)
}

func TestRedeemUnknownRecipe(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Redeem(context.Background(), "user-1", snowflake.ID(999))
	require.Error(t, err)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestRedeemInactiveRecipe(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	trophy := seedItem(t, svc, "Trophy", "trophy", false)
	recipe := &RewardRecipe{
		ID:             svc.node.Generate(),
		Slug:           "retired",
		Name:           "Retired Recipe",
		ResultRewardID: trophy.ID,
		Active:         false,
	}
	require.NoError(t, svc.db.Create(recipe).Error)

	_, err := svc.Redeem(ctx, "user-1", recipe.ID)
	require.Error(t, err)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestRedeemRecipeWithoutMaterials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	trophy := seedItem(t, svc, "Trophy", "trophy", false)
	recipe := seedRecipe(t, svc, trophy, nil)

	_, err := svc.Redeem(ctx, "user-1", recipe.ID)
	require.Error(t, err)
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.StatusOf(err))
}

func TestActiveItemsExcludesInactive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	seedItem(t, svc, "Gold Coin", "gold-coin", true)
	seedItem(t, svc, "Gem", "gem", true)
	seedItem(t, svc, "Trophy", "trophy", false)

	items, err := svc.ActiveItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.True(t, item.Active)
	}
}

func TestOwnedRewardsListsPositiveHoldingsOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	coin := seedItem(t, svc, "Gold Coin", "gold-coin", true)
	gem := seedItem(t, svc, "Gem", "gem", true)

	_, err := svc.Grant(ctx, GrantParams{UserID: "user-1", RewardID: coin.ID, Quantity: 3, SourceType: points.SourceManual})
	require.NoError(t, err)
	_, err = svc.Grant(ctx, GrantParams{UserID: "user-1", RewardID: gem.ID, Quantity: 2, SourceType: points.SourceManual})
	require.NoError(t, err)
	require.NoError(t, svc.Consume(ctx, ConsumeParams{UserID: "user-1", RewardID: gem.ID, Quantity: 2, SourceType: points.SourceRedemption}))

	owned, err := svc.OwnedRewards(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, "gold-coin", owned[0].Slug)
	require.Equal(t, "Gold Coin", owned[0].Name)
	require.Equal(t, int64(3), owned[0].Quantity)
}

func TestSeedIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx, DefaultCatalog))
	require.NoError(t, svc.Seed(ctx, DefaultCatalog))

	var itemCount, recipeCount, materialCount int64
	require.NoError(t, svc.db.Model(&RewardItem{}).Count(&itemCount).Error)
	require.NoError(t, svc.db.Model(&RewardRecipe{}).Count(&recipeCount).Error)
	require.NoError(t, svc.db.Model(&RecipeMaterial{}).Count(&materialCount).Error)

	require.Equal(t, int64(len(DefaultCatalog.Rewards)), itemCount)
	require.Equal(t, int64(len(DefaultCatalog.Recipes)), recipeCount)
	require.Equal(t, int64(len(DefaultCatalog.Recipes[0].Materials)), materialCount)
}

func TestSeedUpdatesExistingRows(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx, DefaultCatalog))

	changed := DefaultCatalog
	changed.Rewards = append([]config.RewardSeed{}, DefaultCatalog.Rewards...)
	changed.Rewards[0].PointsValue = 25

	require.NoError(t, svc.Seed(ctx, changed))

	var item RewardItem
	require.NoError(t, svc.db.Where("slug = ?", "gold-coin").First(&item).Error)
	require.Equal(t, int64(25), item.PointsValue)
}

func TestFindRecipeBySlug(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx, DefaultCatalog))

	recipe, err := svc.FindRecipeBySlug(ctx, "trophy-forge")
	require.NoError(t, err)
	require.Equal(t, "Trophy Forge", recipe.Name)

	_, err = svc.FindRecipeBySlug(ctx, "no-such-recipe")
	require.Error(t, err)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestListRecipesResolvesNames(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx, DefaultCatalog))

	recipes, err := svc.ListRecipes(ctx)
	require.NoError(t, err)
	require.Len(t, recipes, 1)

	forge := recipes[0]
	require.Equal(t, "Trophy Forge", forge.Name)
	require.Equal(t, "Trophy", forge.Result.Name)
	require.Len(t, forge.Materials, 2)
	for _, material := range forge.Materials {
		require.NotEmpty(t, material.Name)
		require.Greater(t, material.Quantity, int64(0))
	}
}
