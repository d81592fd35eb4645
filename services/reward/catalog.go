package reward

import (
	"context"

	"questboard/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// OwnedReward is a user's current holding of one catalog item.
type OwnedReward struct {
	RewardID    snowflake.ID `json:"reward_id"`
	Slug        string       `json:"slug"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Quantity    int64        `json:"quantity"`
}

// OwnedRewards lists everything the user currently holds a positive quantity
// of, enriched with catalog names.
func (s *Service) OwnedRewards(ctx context.Context, userID string) ([]*OwnedReward, error) {
	var out []*OwnedReward
	err := s.db.WithContext(ctx).
		Model(&RewardTransaction{}).
		Select("reward_transactions.reward_id AS reward_id, rewards.slug AS slug, rewards.name AS name, rewards.description AS description, SUM(reward_transactions.quantity) AS quantity").
		Joins("JOIN rewards ON rewards.id = reward_transactions.reward_id").
		Where("reward_transactions.user_id = ?", userID).
		Group("reward_transactions.reward_id, rewards.slug, rewards.name, rewards.description").
		Having("SUM(reward_transactions.quantity) > 0").
		Order("name ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}

	return out, nil
}

// RewardRef is the display shape of a catalog item inside a recipe view.
type RewardRef struct {
	RewardID    snowflake.ID `json:"reward_id"`
	Slug        string       `json:"slug"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
}

type MaterialView struct {
	RewardRef
	Quantity int64 `json:"quantity"`
}

type RecipeView struct {
	ID        snowflake.ID   `json:"id"`
	Slug      string         `json:"slug"`
	Name      string         `json:"name"`
	Result    RewardRef      `json:"result"`
	Materials []MaterialView `json:"materials"`
}

// ListRecipes returns every active recipe with material and result names
// resolved, so the caller never has to string-match ids back to display
// names.
func (s *Service) ListRecipes(ctx context.Context) ([]*RecipeView, error) {
	var recipes []*RewardRecipe
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&recipes).Error; err != nil {
		return nil, err
	}

	if len(recipes) == 0 {
		return []*RecipeView{}, nil
	}

	var items []*RewardItem
	if err := s.db.WithContext(ctx).Find(&items).Error; err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]*RewardItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	ref := func(id snowflake.ID) (RewardRef, error) {
		item, ok := byID[id]
		if !ok {
			return RewardRef{}, errutil.Internal("recipe references a missing reward")
		}
		return RewardRef{
			RewardID:    item.ID,
			Slug:        item.Slug,
			Name:        item.Name,
			Description: item.Description,
		}, nil
	}

	views := make([]*RecipeView, 0, len(recipes))
	for _, recipe := range recipes {
		result, err := ref(recipe.ResultRewardID)
		if err != nil {
			return nil, err
		}

		var materials []*RecipeMaterial
		if err := s.db.WithContext(ctx).
			Where("recipe_id = ?", recipe.ID).
			Order("id ASC").
			Find(&materials).Error; err != nil {
			return nil, err
		}

		view := &RecipeView{
			ID:     recipe.ID,
			Slug:   recipe.Slug,
			Name:   recipe.Name,
			Result: result,
		}
		for _, m := range materials {
			mref, err := ref(m.RewardID)
			if err != nil {
				return nil, err
			}
			view.Materials = append(view.Materials, MaterialView{RewardRef: mref, Quantity: m.Quantity})
		}

		views = append(views, view)
	}

	return views, nil
}

// FindRecipeBySlug is a lookup helper for callers holding the stable
// identifier instead of the row id.
func (s *Service) FindRecipeBySlug(ctx context.Context, slug string) (*RewardRecipe, error) {
	var recipe RewardRecipe
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&recipe).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errutil.NotFound("recipe not found")
	}
	if err != nil {
		return nil, err
	}
	return &recipe, nil
}
