package reward

import (
	"time"

	"questboard/services/points"

	"github.com/bwmarrin/snowflake"
)

// RewardItem is a catalog entry. Rows are created by the startup seed and
// are read-mostly afterwards; the slug is the stable identifier, the name is
// display only.
type RewardItem struct {
	ID          snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false"`
	Slug        string       `gorm:"column:slug;uniqueIndex;not null"`
	Name        string       `gorm:"column:name;uniqueIndex;not null"`
	Description string       `gorm:"column:description;type:text"`
	PointsValue int64        `gorm:"column:points_value;not null"`
	Active      bool         `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (RewardItem) TableName() string {
	return "rewards"
}

// RewardRecipe converts N material items into 1 result item.
type RewardRecipe struct {
	ID             snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false"`
	Slug           string       `gorm:"column:slug;uniqueIndex;not null"`
	Name           string       `gorm:"column:name;uniqueIndex;not null"`
	ResultRewardID snowflake.ID `gorm:"column:result_reward_id;index;not null"`
	Active         bool         `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (RewardRecipe) TableName() string {
	return "reward_recipes"
}

type RecipeMaterial struct {
	ID       snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false"`
	RecipeID snowflake.ID `gorm:"column:recipe_id;index;not null"`
	RewardID snowflake.ID `gorm:"column:reward_id;index;not null"`
	Quantity int64        `gorm:"column:quantity;not null"`
}

func (RecipeMaterial) TableName() string {
	return "reward_recipe_materials"
}

// RewardTransaction is the inventory ledger, same append-only pattern as the
// points ledger: owned quantity of a reward = SUM(quantity) for the
// (user, reward) pair. Negative rows are only ever written after the owned
// quantity has been verified inside the same transaction, so the sum can
// never go below zero.
type RewardTransaction struct {
	ID               snowflake.ID      `gorm:"column:id;primaryKey;autoIncrement:false"`
	UserID           string            `gorm:"column:user_id;index;not null"`
	RewardID         snowflake.ID      `gorm:"column:reward_id;index;not null"`
	Quantity         int64             `gorm:"column:quantity;not null"` // +ve grant, -ve consume
	SourceType       points.SourceType `gorm:"column:source_type;type:varchar(30);not null"`
	SourceID         *string           `gorm:"column:source_id;index"`
	TransactionGroup *string           `gorm:"column:transaction_group;index"`
	CreatedAt        time.Time         `gorm:"column:created_at;index;autoCreateTime"`
}

func (RewardTransaction) TableName() string {
	return "reward_transactions"
}
