package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestPostgresAdapter(t *testing.T) *PostgresAdapter {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=pantry port=5432 sslmode=disable"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		t.Skipf("Postgres not available: %v", err)
	}

	adapter := NewPostgresAdapter(db)
	require.NoError(t, adapter.Migrate(context.Background()))

	t.Cleanup(func() {
		db.Where("1 = 1").Delete(&productRecord{})
		db.Where("1 = 1").Delete(&recipeRecord{})
		sqlDB.Close()
	})
	return adapter
}

func TestPostgresAdapter_RoundTrip(t *testing.T) {
	adapter := newTestPostgresAdapter(t)
	ctx := context.Background()

	products, recipes := sampleSnapshot()
	require.NoError(t, adapter.SaveProducts(ctx, products))
	require.NoError(t, adapter.SaveRecipes(ctx, recipes))

	loadedProducts, err := adapter.LoadProducts(ctx)
	require.NoError(t, err)
	assertSameProducts(t, products, loadedProducts)

	loadedRecipes, err := adapter.LoadRecipes(ctx)
	require.NoError(t, err)
	assertSameRecipes(t, recipes, loadedRecipes)
}

func TestPostgresAdapter_SaveReplacesPreviousSet(t *testing.T) {
	adapter := newTestPostgresAdapter(t)
	ctx := context.Background()

	products, recipes := sampleSnapshot()
	require.NoError(t, adapter.SaveProducts(ctx, products))
	require.NoError(t, adapter.SaveRecipes(ctx, recipes))

	require.NoError(t, adapter.SaveProducts(ctx, nil))
	require.NoError(t, adapter.SaveRecipes(ctx, recipes[:1]))

	loadedProducts, err := adapter.LoadProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, loadedProducts)

	loadedRecipes, err := adapter.LoadRecipes(ctx)
	require.NoError(t, err)
	assertSameRecipes(t, recipes[:1], loadedRecipes)
}
