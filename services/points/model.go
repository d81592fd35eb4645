package points

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SourceType identifies the operation that produced a ledger row.
type SourceType string

const (
	SourceTaskComplete     SourceType = "task_complete"
	SourceTaskCompleteTop3 SourceType = "task_complete_top3"
	SourceTop3Cost         SourceType = "top3_cost"
	SourceRedemption       SourceType = "redemption"
	SourceExpiration       SourceType = "expiration"
	SourceManual           SourceType = "manual"
)

func (t SourceType) Valid() bool {
	switch t {
	case SourceTaskComplete, SourceTaskCompleteTop3, SourceTop3Cost,
		SourceRedemption, SourceExpiration, SourceManual:
		return true
	default:
		return false
	}
}

// PointTransaction is one immutable row of the points ledger. A user's
// balance is always SUM(amount) over their rows; no stored balance field
// exists anywhere, so there is nothing to drift. Corrections are new
// offsetting rows, never updates.
type PointTransaction struct {
	ID               snowflake.ID   `gorm:"column:id;primaryKey;autoIncrement:false"`
	UserID           string         `gorm:"column:user_id;index;not null"`
	Amount           int64          `gorm:"column:amount;not null"` // +ve for grants, -ve for debits
	SourceType       SourceType     `gorm:"column:source_type;type:varchar(30);not null"`
	SourceID         *string        `gorm:"column:source_id;index"`
	TransactionGroup *string        `gorm:"column:transaction_group;index"`
	Metadata         datatypes.JSON `gorm:"column:metadata"`
	CreatedAt        time.Time      `gorm:"column:created_at;index;autoCreateTime"`
}

func (PointTransaction) TableName() string {
	return "points_transactions"
}
