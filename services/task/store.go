package task

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Store is the minimal read/write surface the reward core needs from the
// task domain. Not-found reads return (nil, nil); callers decide whether
// that is an error.
type Store struct {
	db   *gorm.DB
	node *snowflake.Node
}

type StoreParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:   p.DB,
		node: p.Node,
	}
}

func (s *Store) WithTx(tx *gorm.DB) *Store {
	c := *s
	c.db = tx
	return &c
}

func (s *Store) Get(ctx context.Context, id snowflake.ID) (*Task, error) {
	var t Task
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) Create(ctx context.Context, t *Task) error {
	if t.ID == 0 {
		t.ID = s.node.Generate()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *Store) Update(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	return s.db.WithContext(ctx).
		Model(&Task{}).
		Where("id = ?", id).
		Updates(fields).Error
}

var Module = fx.Module("task.store",
	fx.Provide(NewStore),
)
