package repository

import (
	"testing"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// インメモリのsqlite。接続1本に絞ってDBを共有する。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.Order{}))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, stock int64) model.Product {
	t.Helper()
	p := model.Product{
		Name:          "Tea",
		OriginalPrice: 1000,
		StockQuantity: stock,
		Status:        model.ProductStatusActive,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func seedPendingOrder(t *testing.T, db *gorm.DB, ref string) model.Order {
	t.Helper()
	o, err := NewOrderGormRepository(db).Create(t.Context(), model.Order{
		UserID:         1,
		TransactionRef: ref,
		Status:         model.OrderStatusPending,
		Subtotal:       2000,
		ShippingCharge: 100,
		TotalAmount:    2100,
		ShippingInfo: model.ShippingInfo{
			FullName: "Sita",
			Phone:    "9800000000",
			City:     "Kathmandu",
			Address:  "Thamel 1",
		},
	})
	require.NoError(t, err)
	return o
}
