package completion

import (
	"context"
	"time"

	"questboard/pkg/errutil"
	"questboard/services/points"
	"questboard/services/reward"
	"questboard/services/task"
	"questboard/services/top3"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service coordinates task completion: claim check, top3 membership lookup,
// lottery resolution, ledger/inventory writes and the task's status + claim
// marker update, all inside one database transaction. Any failure rolls the
// whole sequence back; a completion either fully happens or leaves no trace.
type Service struct {
	db      *gorm.DB
	points  *points.Service
	rewards *reward.Service
	top3    *top3.Service
	tasks   *task.Store
	lottery *Lottery
	now     func() time.Time
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Points  *points.Service
	Rewards *reward.Service
	Top3    *top3.Service
	Tasks   *task.Store
	Lottery *Lottery
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		points:  p.Points,
		rewards: p.Rewards,
		top3:    p.Top3,
		tasks:   p.Tasks,
		lottery: p.Lottery,
		now:     time.Now,
	}
}

// RewardEarned is the completion payout as surfaced to the API layer. Type
// is "points" or "reward"; Amount is zero for repeat completions.
type RewardEarned struct {
	Type   string            `json:"type"`
	Amount int64             `json:"amount"`
	Reward *reward.RewardRef `json:"reward,omitempty"`
}

type Result struct {
	Task         *task.Task   `json:"task"`
	RewardEarned RewardEarned `json:"reward_earned"`
}

// Complete finishes the task and, at most once per task, grants its lottery
// reward. Repeat calls keep the status transition (idempotent) but pay
// nothing and touch neither ledger.
func (s *Service) Complete(ctx context.Context, taskID snowflake.ID, userID string) (*Result, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var result *Result
	err := s.db.Transaction(func(tx *gorm.DB) error {
		tasks := s.tasks.WithTx(tx)

		t, err := tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if t == nil {
			return errutil.NotFound("task not found")
		}
		if t.UserID != userID {
			return errutil.Forbidden("task belongs to another user")
		}

		if !claimable(t) {
			if t.Status != task.StatusCompleted {
				if err := tasks.Update(ctx, t.ID, map[string]any{"status": task.StatusCompleted}); err != nil {
					return err
				}
				t.Status = task.StatusCompleted
			}
			result = &Result{Task: t, RewardEarned: RewardEarned{Type: "points", Amount: 0}}
			return nil
		}

		now := s.now()
		today := now.Format(top3.DateLayout)

		isTop3, err := s.top3.WithTx(tx).Contains(ctx, userID, taskID, today)
		if err != nil {
			return err
		}

		var pool []*reward.RewardItem
		if isTop3 {
			pool, err = s.rewards.WithTx(tx).ActiveItems(ctx)
			if err != nil {
				return err
			}
		}

		outcome := s.lottery.Resolve(isTop3, pool)
		sourceID := taskID.String()

		earned := RewardEarned{Type: "points", Amount: outcome.Points}
		if outcome.Item != nil {
			if _, err := s.rewards.WithTx(tx).Grant(ctx, reward.GrantParams{
				UserID:     userID,
				RewardID:   outcome.Item.ID,
				Quantity:   1,
				SourceType: outcome.SourceType,
				SourceID:   &sourceID,
			}); err != nil {
				return err
			}
			earned = RewardEarned{Type: "reward", Reward: &reward.RewardRef{
				RewardID:    outcome.Item.ID,
				Slug:        outcome.Item.Slug,
				Name:        outcome.Item.Name,
				Description: outcome.Item.Description,
			}}
		} else {
			if _, err := s.points.WithTx(tx).Add(ctx, points.AddParams{
				UserID:     userID,
				Amount:     outcome.Points,
				SourceType: outcome.SourceType,
				SourceID:   &sourceID,
			}); err != nil {
				return err
			}
		}

		claimedAt := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if err := tasks.Update(ctx, t.ID, map[string]any{
			"status":            task.StatusCompleted,
			"last_claimed_date": claimedAt,
		}); err != nil {
			return err
		}
		t.Status = task.StatusCompleted
		t.LastClaimedDate = &claimedAt

		result = &Result{Task: t, RewardEarned: earned}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("task completed",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", userID),
		zap.String("task_id", taskID.String()),
		zap.String("reward_type", result.RewardEarned.Type),
		zap.Int64("amount", result.RewardEarned.Amount),
	)

	return result, nil
}

var Module = fx.Module("completion.service",
	fx.Provide(
		NewLottery,
		NewService,
	),
)
