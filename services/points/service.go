package points

import (
	"context"
	"encoding/json"
	"time"

	"questboard/pkg/db/pagination"
	"questboard/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is the points ledger. It only ever appends rows; it deliberately
// does not enforce balance non-negativity. A caller that needs the
// check-balance-then-debit guarantee must read the balance and write the
// debit through the same transaction, via WithTx.
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

// WithTx returns a copy of the service bound to tx so ledger reads and
// writes participate in the caller's transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	c := *s
	c.db = tx
	return &c
}

// Balance computes SUM(amount) over the user's rows. Zero rows means zero
// balance, not an error.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.WithContext(ctx).
		Model(&PointTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&balance).Error
	if err != nil {
		zap.L().Error("failed to sum point transactions", zap.String("user_id", userID), zap.Error(err))
		return 0, err
	}

	return balance, nil
}

type AddParams struct {
	UserID           string
	Amount           int64
	SourceType       SourceType
	SourceID         *string
	TransactionGroup *string
	Metadata         map[string]any
}

// Add appends one ledger row and returns it. The row is durable only once
// the enclosing transaction commits.
func (s *Service) Add(ctx context.Context, p AddParams) (*PointTransaction, error) {
	if p.UserID == "" {
		return nil, errutil.ValidationFailed("user_id is required")
	}
	if p.Amount == 0 {
		return nil, errutil.ValidationFailed("amount must be non-zero")
	}
	if !p.SourceType.Valid() {
		return nil, errutil.ValidationFailed("unsupported source_type")
	}

	row := &PointTransaction{
		ID:               s.node.Generate(),
		UserID:           p.UserID,
		Amount:           p.Amount,
		SourceType:       p.SourceType,
		SourceID:         p.SourceID,
		TransactionGroup: p.TransactionGroup,
	}
	if len(p.Metadata) > 0 {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, errutil.ValidationFailed("metadata is not serialisable", errutil.WithErr(err))
		}
		row.Metadata = datatypes.JSON(b)
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		zap.L().Error("failed to create point transaction",
			zap.String("user_id", p.UserID),
			zap.String("source_type", string(p.SourceType)),
			zap.Error(err),
		)
		return nil, err
	}

	return row, nil
}

// ListTransactions returns the user's ledger rows newest first, cursor
// paginated.
func (s *Service) ListTransactions(ctx context.Context, userID string, page pagination.Pagination) ([]*PointTransaction, *pagination.PageInfo, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 250 {
		limit = 250
	}

	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit + 1)

	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor", errutil.WithErr(err))
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor", errutil.WithErr(err))
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, nil, errutil.ValidationFailed("invalid cursor", errutil.WithErr(err))
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", createdAt, createdAt, cursorID)
	}

	var rows []*PointTransaction
	if err := query.Find(&rows).Error; err != nil {
		zap.L().Error("failed to list point transactions",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, nil, err
	}

	rows, pageInfo := pagination.BuildCursorPage(rows, limit, func(row *PointTransaction) pagination.Cursor {
		return pagination.Cursor{
			CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339Nano),
			ID:        row.ID.String(),
		}
	})

	return rows, pageInfo, nil
}
