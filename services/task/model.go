package task

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Task is owned by the task domain; the reward core only reads ownership and
// the claim marker, and writes status plus last_claimed_date on completion.
// Once last_claimed_date is set the task can never grant a reward again,
// whatever its status does afterwards. Presence is what matters, not the
// stored date value.
type Task struct {
	ID              snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false"`
	UserID          string       `gorm:"column:user_id;index;not null"`
	Title           string       `gorm:"column:title;not null"`
	Status          Status       `gorm:"column:status;type:varchar(20);not null;default:'pending'"`
	LastClaimedDate *time.Time   `gorm:"column:last_claimed_date"`
	CreatedAt       time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

func (Task) TableName() string {
	return "tasks"
}
