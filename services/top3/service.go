package top3

import (
	"context"
	"time"

	"questboard/internal/config"
	"questboard/pkg/errutil"
	"questboard/services/points"
	"questboard/services/task"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service allocates the daily Top3 slots. Setting a selection costs points;
// the existence check, the debit and the insert all run in one database
// transaction so a concurrent double-set cannot slip through between check
// and write.
type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	points *points.Service
	tasks  *task.Store
	cost   int64
	now    func() time.Time
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Points *points.Service
	Tasks  *task.Store
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		points: p.Points,
		tasks:  p.Tasks,
		cost:   p.Config.Economy.Top3Cost,
		now:    time.Now,
	}
}

// Set records the user's Top3 for the given day and debits the slot cost.
// Only today and tomorrow are valid targets; each (user, date) pair can be
// set at most once. The returned balance is recomputed after the debit
// inside the same transaction, never a cached value.
func (s *Service) Set(ctx context.Context, userID, date string, taskIDs []snowflake.ID) (int64, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if len(taskIDs) < 1 || len(taskIDs) > 3 {
		return 0, errutil.ValidationFailed("top3 requires between 1 and 3 tasks")
	}
	seen := make(map[snowflake.ID]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		if _, dup := seen[id]; dup {
			return 0, errutil.ValidationFailed("top3 tasks must be distinct")
		}
		seen[id] = struct{}{}
	}

	if err := s.validateDate(date); err != nil {
		return 0, err
	}

	for _, id := range taskIDs {
		t, err := s.tasks.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		if t == nil {
			return 0, errutil.NotFound("task not found")
		}
		if t.UserID != userID {
			return 0, errutil.Forbidden("task belongs to another user")
		}
	}

	var remaining int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing DailyTop3
		err := tx.WithContext(ctx).
			Where("user_id = ? AND date = ?", userID, date).
			First(&existing).Error
		if err == nil {
			return &AlreadySetError{Date: date}
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		ledger := s.points.WithTx(tx)

		balance, err := ledger.Balance(ctx, userID)
		if err != nil {
			return err
		}
		if balance < s.cost {
			return &points.InsufficientError{Required: s.cost, Balance: balance}
		}

		sourceID := date
		if _, err := ledger.Add(ctx, points.AddParams{
			UserID:     userID,
			Amount:     -s.cost,
			SourceType: points.SourceTop3Cost,
			SourceID:   &sourceID,
		}); err != nil {
			return err
		}

		selection := &DailyTop3{
			ID:     s.node.Generate(),
			UserID: userID,
			Date:   date,
		}
		if err := tx.WithContext(ctx).Create(selection).Error; err != nil {
			return err
		}
		for i, taskID := range taskIDs {
			slot := &DailyTop3Task{
				ID:       s.node.Generate(),
				Top3ID:   selection.ID,
				TaskID:   taskID,
				Position: i + 1,
			}
			if err := tx.WithContext(ctx).Create(slot).Error; err != nil {
				return err
			}
		}

		remaining, err = ledger.Balance(ctx, userID)
		return err
	})
	if err != nil {
		return 0, err
	}

	zap.L().Info("top3 set",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", userID),
		zap.String("date", date),
		zap.Int("tasks", len(taskIDs)),
		zap.Int64("remaining_balance", remaining),
	)

	return remaining, nil
}

func (s *Service) validateDate(date string) error {
	parsed, err := time.ParseInLocation(DateLayout, date, time.Local)
	if err != nil {
		return errutil.ValidationFailed("date must be formatted as YYYY-MM-DD")
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	tomorrow := today.AddDate(0, 0, 1)

	if !parsed.Equal(today) && !parsed.Equal(tomorrow) {
		return errutil.ValidationFailed("top3 can only be set for today or tomorrow")
	}
	return nil
}

// SelectedTask is one slot of a selection, ordered by position.
type SelectedTask struct {
	TaskID   snowflake.ID `json:"task_id"`
	Position int          `json:"position"`
}

type Selection struct {
	Date  string         `json:"date"`
	Tasks []SelectedTask `json:"tasks"`
}

// Get returns the selection for (user, date), or nil when none exists.
func (s *Service) Get(ctx context.Context, userID, date string) (*Selection, error) {
	var record DailyTop3
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var slots []*DailyTop3Task
	if err := s.db.WithContext(ctx).
		Where("top3_id = ?", record.ID).
		Order("position ASC").
		Find(&slots).Error; err != nil {
		return nil, err
	}

	selection := &Selection{Date: record.Date}
	for _, slot := range slots {
		selection.Tasks = append(selection.Tasks, SelectedTask{TaskID: slot.TaskID, Position: slot.Position})
	}
	return selection, nil
}

// Contains reports whether taskID is part of the user's selection for the
// given day. This explicit query is the only way Top3 membership is ever
// determined; task content is never inspected.
func (s *Service) Contains(ctx context.Context, userID string, taskID snowflake.ID, date string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&DailyTop3Task{}).
		Joins("JOIN task_top3 ON task_top3.id = task_top3_tasks.top3_id").
		Where("task_top3.user_id = ? AND task_top3.date = ? AND task_top3_tasks.task_id = ?", userID, date, taskID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// WithTx returns a copy bound to tx so membership checks can join an
// enclosing transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	c := *s
	c.db = tx
	return &c
}

var Module = fx.Module("top3.service",
	fx.Provide(NewService),
)
