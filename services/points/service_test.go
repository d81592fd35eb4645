package points

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"questboard/pkg/db/pagination"
	"questboard/pkg/errutil"
	"questboard/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &PointTransaction{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestBalanceEmptyLedger(t *testing.T) {
	svc := newTestService(t)

	balance, err := svc.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)
}

func TestBalanceIsSumOfRows(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	amounts := []int64{2, 100, -300, 500, -2}
	var want int64
	for _, amount := range amounts {
		_, err := svc.Add(ctx, AddParams{
			UserID:     "user-1",
			Amount:     amount,
			SourceType: SourceManual,
		})
		require.NoError(t, err)
		want += amount
	}

	// an unrelated user's rows must not bleed into the sum
	_, err := svc.Add(ctx, AddParams{UserID: "user-2", Amount: 999, SourceType: SourceManual})
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, want, balance)
}

func TestAddValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, AddParams{Amount: 10, SourceType: SourceManual})
	require.Error(t, err)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	_, err = svc.Add(ctx, AddParams{UserID: "user-1", Amount: 0, SourceType: SourceManual})
	require.Error(t, err)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	_, err = svc.Add(ctx, AddParams{UserID: "user-1", Amount: 10, SourceType: SourceType("bogus")})
	require.Error(t, err)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	balance, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)
}

func TestAddPersistsMetadata(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sourceID := "task-42"
	row, err := svc.Add(ctx, AddParams{
		UserID:     "user-1",
		Amount:     2,
		SourceType: SourceTaskComplete,
		SourceID:   &sourceID,
		Metadata:   map[string]any{"note": "first completion"},
	})
	require.NoError(t, err)
	require.NotZero(t, row.ID)
	require.NotNil(t, row.SourceID)
	require.Equal(t, "task-42", *row.SourceID)
	require.JSONEq(t, `{"note":"first completion"}`, string(row.Metadata))
}

func TestListTransactionsPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Add(ctx, AddParams{
			UserID:     "user-1",
			Amount:     int64(i + 1),
			SourceType: SourceManual,
		})
		require.NoError(t, err)
	}

	var collected []*PointTransaction
	cursor := ""
	pages := 0
	for {
		rows, pageInfo, err := svc.ListTransactions(ctx, "user-1", pagination.Pagination{Cursor: cursor, Limit: 2})
		require.NoError(t, err)
		collected = append(collected, rows...)
		pages++

		if !pageInfo.HasMore {
			break
		}
		require.NotEmpty(t, pageInfo.NextCursor)
		cursor = pageInfo.NextCursor
	}

	require.Equal(t, 3, pages)
	require.Len(t, collected, 5)

	// newest first, no duplicates across pages
	seen := make(map[snowflake.ID]struct{}, len(collected))
	for i, row := range collected {
		if i > 0 {
			require.True(t, row.ID < collected[i-1].ID)
		}
		_, dup := seen[row.ID]
		require.False(t, dup)
		seen[row.ID] = struct{}{}
	}
}

func TestListTransactionsRejectsBrokenCursor(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.ListTransactions(context.Background(), "user-1", pagination.Pagination{Cursor: "not-base64!"})
	require.Error(t, err)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestExpireStale(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	old := time.Now().Add(-100 * 24 * time.Hour)

	stale := &PointTransaction{
		ID:         svc.node.Generate(),
		UserID:     "user-1",
		Amount:     50,
		SourceType: SourceTaskComplete,
		CreatedAt:  old,
	}
	require.NoError(t, svc.db.Create(stale).Error)

	// debits and fresh grants must survive the sweep
	debit := &PointTransaction{
		ID:         svc.node.Generate(),
		UserID:     "user-1",
		Amount:     -10,
		SourceType: SourceTop3Cost,
		CreatedAt:  old,
	}
	require.NoError(t, svc.db.Create(debit).Error)

	_, err := svc.Add(ctx, AddParams{UserID: "user-1", Amount: 7, SourceType: SourceTaskComplete})
	require.NoError(t, err)

	expired, err := svc.ExpireStale(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	balance, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(-10+7), balance)

	var offset PointTransaction
	require.NoError(t, svc.db.Where("source_type = ?", SourceExpiration).First(&offset).Error)
	require.Equal(t, int64(-50), offset.Amount)
	require.NotNil(t, offset.SourceID)
	require.Equal(t, stale.ID.String(), *offset.SourceID)
}

func TestExpireStaleIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		row := &PointTransaction{
			ID:         svc.node.Generate(),
			UserID:     "user-1",
			Amount:     int64(10 * (i + 1)),
			SourceType: SourceManual,
			CreatedAt:  time.Now().Add(-200 * 24 * time.Hour),
		}
		require.NoError(t, svc.db.Create(row).Error)
	}

	expired, err := svc.ExpireStale(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 3, expired)

	expired, err = svc.ExpireStale(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, expired)

	balance, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)

	var count int64
	require.NoError(t, svc.db.Model(&PointTransaction{}).
		Where("source_type = ?", SourceExpiration).
		Count(&count).Error)
	require.Equal(t, int64(3), count)
}
