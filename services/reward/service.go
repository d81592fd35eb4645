package reward

import (
	"context"

	"questboard/pkg/errutil"
	"questboard/services/points"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the reward inventory: grants, consumes and owned quantities over
// the reward_transactions ledger, plus the catalog reads.
type Service struct {
	db   *gorm.DB
	node *snowflake.Node
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
	}
}

// WithTx returns a copy of the service bound to tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	c := *s
	c.db = tx
	return &c
}

// OwnedQuantity computes SUM(quantity) for the (user, reward) pair.
func (s *Service) OwnedQuantity(ctx context.Context, userID string, rewardID snowflake.ID) (int64, error) {
	var owned int64
	err := s.db.WithContext(ctx).
		Model(&RewardTransaction{}).
		Where("user_id = ? AND reward_id = ?", userID, rewardID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&owned).Error
	if err != nil {
		zap.L().Error("failed to sum reward transactions",
			zap.String("user_id", userID),
			zap.String("reward_id", rewardID.String()),
			zap.Error(err),
		)
		return 0, err
	}

	return owned, nil
}

// ActiveItems returns every catalog item currently eligible as a lottery
// prize.
func (s *Service) ActiveItems(ctx context.Context) ([]*RewardItem, error) {
	var items []*RewardItem
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Service) findItem(ctx context.Context, rewardID snowflake.ID) (*RewardItem, error) {
	var item RewardItem
	err := s.db.WithContext(ctx).Where("id = ?", rewardID).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errutil.NotFound("reward not found")
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

type GrantParams struct {
	UserID           string
	RewardID         snowflake.ID
	Quantity         int64
	SourceType       points.SourceType
	SourceID         *string
	TransactionGroup *string
}

// Grant appends a positive inventory row. The reward must exist in the
// catalog; a grant against a missing id fails instead of minting an
// inventory row nothing can resolve.
func (s *Service) Grant(ctx context.Context, p GrantParams) (*RewardTransaction, error) {
	if p.Quantity <= 0 {
		return nil, errutil.ValidationFailed("quantity must be > 0 for a grant")
	}
	if !p.SourceType.Valid() {
		return nil, errutil.ValidationFailed("unsupported source_type")
	}
	if _, err := s.findItem(ctx, p.RewardID); err != nil {
		return nil, err
	}

	row := &RewardTransaction{
		ID:               s.node.Generate(),
		UserID:           p.UserID,
		RewardID:         p.RewardID,
		Quantity:         p.Quantity,
		SourceType:       p.SourceType,
		SourceID:         p.SourceID,
		TransactionGroup: p.TransactionGroup,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}

	return row, nil
}

type ConsumeParams struct {
	UserID           string
	RewardID         snowflake.ID
	Quantity         int64
	SourceType       points.SourceType
	SourceID         *string
	TransactionGroup *string
}

// Consume verifies the owned quantity covers p.Quantity and then appends the
// negative row. Check and write run in one transaction; when the service is
// already bound to an enclosing transaction gorm turns the inner one into a
// savepoint.
func (s *Service) Consume(ctx context.Context, p ConsumeParams) error {
	if p.Quantity <= 0 {
		return errutil.ValidationFailed("quantity must be > 0 for a consume")
	}
	if !p.SourceType.Valid() {
		return errutil.ValidationFailed("unsupported source_type")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		inv := s.WithTx(tx)

		item, err := inv.findItem(ctx, p.RewardID)
		if err != nil {
			return err
		}

		owned, err := inv.OwnedQuantity(ctx, p.UserID, p.RewardID)
		if err != nil {
			return err
		}
		if owned < p.Quantity {
			return &InsufficientError{Required: []Shortfall{{
				RewardID: item.ID,
				Slug:     item.Slug,
				Required: p.Quantity,
				Owned:    owned,
			}}}
		}

		row := &RewardTransaction{
			ID:               s.node.Generate(),
			UserID:           p.UserID,
			RewardID:         p.RewardID,
			Quantity:         -p.Quantity,
			SourceType:       p.SourceType,
			SourceID:         p.SourceID,
			TransactionGroup: p.TransactionGroup,
		}
		return tx.WithContext(ctx).Create(row).Error
	})
}
