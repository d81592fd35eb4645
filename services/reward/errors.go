package reward

import (
	"fmt"

	"questboard/pkg/errutil"

	"github.com/bwmarrin/snowflake"
)

// Shortfall describes one material the user does not own enough of.
type Shortfall struct {
	RewardID snowflake.ID `json:"reward_id"`
	Slug     string       `json:"slug"`
	Required int64        `json:"required"`
	Owned    int64        `json:"owned"`
}

// InsufficientError carries every shortfall of a failed consume or redeem,
// not just the first, so a caller can render "you need 3 more X and 1 more Y"
// without re-querying the inventory.
type InsufficientError struct {
	Required []Shortfall `json:"required"`
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient rewards: %d material(s) short", len(e.Required))
}

func (e *InsufficientError) Status() errutil.CoreStatus {
	return errutil.StatusBadRequest
}
