package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/repositories"
	"go.uber.org/zap"
)

var usageColumns = []string{
	"pk", "sk", "tenant_id", "event_id", "timestamp", "model_id", "model_type",
	"input_tokens", "output_tokens", "total_tokens", "estimated_cost",
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return Wrap(sqlDB, zap.NewNop()), mock
}

func usageRow(rows *sqlmock.Rows, e *models.UsageEvent) *sqlmock.Rows {
	return rows.AddRow(
		e.PartitionKey(), e.SortKey(), e.TenantID, e.EventID.String(), e.Timestamp,
		e.ModelID, string(e.ModelType), e.InputTokens, e.OutputTokens, e.TotalTokens, e.EstimatedCost,
	)
}

func TestTenantConfigRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns config row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTenantConfigRepository(db, zap.NewNop())

		mock.ExpectQuery(`SELECT tenant_id, store_host, index_name\s+FROM tenant_configs`).
			WithArgs("tenant#t1", "os_config").
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "store_host", "index_name"}).
				AddRow("t1", "search.example.com", "docs-t1"))

		cfg, err := repo.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, &models.TenantConfig{TenantID: "t1", StoreHost: "search.example.com", IndexName: "docs-t1"}, cfg)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns incomplete row unchanged", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTenantConfigRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM tenant_configs`).
			WithArgs("tenant#t2", "os_config").
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "store_host", "index_name"}).
				AddRow("t2", "search.example.com", ""))

		cfg, err := repo.Get(ctx, "t2")
		require.NoError(t, err)
		assert.Equal(t, "index_name", cfg.MissingField())
	})

	t.Run("missing row maps to ErrNotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTenantConfigRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM tenant_configs`).
			WithArgs("tenant#ghost", "os_config").
			WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "store_host", "index_name"}))

		cfg, err := repo.Get(ctx, "ghost")
		assert.Nil(t, cfg)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("query failure is wrapped", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTenantConfigRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM tenant_configs`).WillReturnError(errors.New("connection reset"))

		_, err := repo.Get(ctx, "t1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, repositories.ErrNotFound)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestUsageEventRepository_Insert(t *testing.T) {
	ctx := context.Background()
	event := models.NewUsageEvent("t1", "amazon.titan-embed-text-v2:0", models.ModelTypeEmbedding, 500, 0, 0.00001, time.Now())

	t.Run("inserts keyed row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageEventRepository(db, zap.NewNop())

		mock.ExpectExec(`INSERT INTO usage_events`).
			WithArgs(
				event.PartitionKey(), event.SortKey(), "t1", event.EventID, event.Timestamp,
				"amazon.titan-embed-text-v2:0", "embedding", 500, 0, 500, 0.00001,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Insert(ctx, event))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("write failure is returned", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageEventRepository(db, zap.NewNop())

		mock.ExpectExec(`INSERT INTO usage_events`).WillReturnError(errors.New("disk full"))

		err := repo.Insert(ctx, event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert usage event")
	})
}

func TestUsageEventRepository_ScanPrefix(t *testing.T) {
	ctx := context.Background()
	prefix := models.UsagePrefix("t1")
	base := time.Date(2024, 11, 5, 10, 0, 0, 0, time.UTC)

	first := models.NewUsageEvent("t1", "embed", models.ModelTypeEmbedding, 500, 0, 0.00001, base)
	second := models.NewUsageEvent("t1", "chat", models.ModelTypeChat, 100, 50, 0.00105, base.Add(time.Second))

	t.Run("full page returns next key", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageEventRepository(db, zap.NewNop())

		rows := sqlmock.NewRows(usageColumns)
		usageRow(rows, first)
		usageRow(rows, second)
		mock.ExpectQuery(`WHERE pk LIKE \$1 ESCAPE '\\'\s+ORDER BY pk, sk\s+LIMIT \$2`).
			WithArgs(prefix+"%", 2).
			WillReturnRows(rows)

		events, next, err := repo.ScanPrefix(ctx, prefix, nil, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, first.EventID, events[0].EventID)
		assert.Equal(t, models.ModelTypeChat, events[1].ModelType)
		assert.Equal(t, 150, events[1].TotalTokens)
		require.NotNil(t, next)
		assert.Equal(t, models.PageKey{PK: second.PartitionKey(), SK: second.SortKey()}, *next)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("start key continues after last row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageEventRepository(db, zap.NewNop())
		start := &models.PageKey{PK: first.PartitionKey(), SK: first.SortKey()}

		rows := sqlmock.NewRows(usageColumns)
		usageRow(rows, second)
		mock.ExpectQuery(`\(pk, sk\) > \(\$2, \$3\)`).
			WithArgs(prefix+"%", start.PK, start.SK, 2).
			WillReturnRows(rows)

		events, next, err := repo.ScanPrefix(ctx, prefix, start, 2)
		require.NoError(t, err)
		assert.Len(t, events, 1)
		assert.Nil(t, next)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageEventRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM usage_events`).WillReturnRows(sqlmock.NewRows(usageColumns))

		events, next, err := repo.ScanPrefix(ctx, prefix, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.Nil(t, next)
	})

	t.Run("query failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageEventRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM usage_events`).WillReturnError(errors.New("timeout"))

		_, _, err := repo.ScanPrefix(ctx, prefix, nil, 10)
		assert.Error(t, err)
	})

	t.Run("wildcards in the tenant id match literally", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUsageEventRepository(db, zap.NewNop())

		mock.ExpectQuery(`FROM usage_events`).
			WithArgs(`tenant#acme\_eu\%#usage#%`, 10).
			WillReturnRows(sqlmock.NewRows(usageColumns))

		_, _, err := repo.ScanPrefix(ctx, models.UsagePrefix("acme_eu%"), nil, 10)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive limit rejected", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewUsageEventRepository(db, zap.NewNop())

		_, _, err := repo.ScanPrefix(ctx, prefix, nil, 0)
		assert.Error(t, err)
	})
}

func TestDB_HealthCheck(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db := Wrap(sqlDB, nil)

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	assert.NoError(t, db.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, db.HealthCheck(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_InitSchema(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS tenant_configs`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, db.InitSchema(context.Background()))

	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))
	assert.Error(t, db.InitSchema(context.Background()))
}
