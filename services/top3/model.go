package top3

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DateLayout is the canonical day key. Selections are per calendar day in
// the server's timezone.
const DateLayout = "2006-01-02"

// DailyTop3 is one user's selection for one day. The composite unique index
// is the belt-and-suspenders guarantee behind the application-level
// existence check: even under an isolation-level edge case a second insert
// for the same (user, date) fails at the database.
type DailyTop3 struct {
	ID        snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false"`
	UserID    string       `gorm:"column:user_id;not null;uniqueIndex:idx_top3_user_date"`
	Date      string       `gorm:"column:date;type:varchar(10);not null;uniqueIndex:idx_top3_user_date"`
	CreatedAt time.Time    `gorm:"column:created_at;autoCreateTime"`
}

func (DailyTop3) TableName() string {
	return "task_top3"
}

// DailyTop3Task pins one task at one position (1..3) inside a selection.
type DailyTop3Task struct {
	ID       snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false"`
	Top3ID   snowflake.ID `gorm:"column:top3_id;index;not null"`
	TaskID   snowflake.ID `gorm:"column:task_id;index;not null"`
	Position int          `gorm:"column:position;not null"`
}

func (DailyTop3Task) TableName() string {
	return "task_top3_tasks"
}
