package models_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/simvoyage/esim-backend/pkg/db/models"
)

func newModelTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:models_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

// AutoMigrate must work on sqlite, so the gorm tags cannot carry Postgres
// defaults like gen_random_uuid(). Those live in the SQL migrations.
func TestAutoMigrateAllModelsOnSqlite(t *testing.T) {
	db := newModelTestDB(t)

	if err := db.AutoMigrate(
		&models.Account{}, &models.LedgerEntry{}, &models.Order{},
		&models.EsimProfile{}, &models.PromoCode{}, &models.StoreSettings{},
	); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	account := &models.Account{Email: "models@example.com", PasswordHash: "x"}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	if account.ID == uuid.Nil {
		t.Fatal("expected hook to assign account id")
	}
}

// A default tag makes gorm omit zero-value columns on insert, which would
// silently flip a deactivated promo back to active.
func TestPromoCodePersistsInactive(t *testing.T) {
	db := newModelTestDB(t)
	if err := db.AutoMigrate(&models.PromoCode{}); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	until := time.Now().Add(24 * time.Hour)
	promo := &models.PromoCode{
		Code:            "PAUSED10",
		DiscountPercent: 10,
		Active:          false,
		ValidUntil:      &until,
	}
	if err := db.Create(promo).Error; err != nil {
		t.Fatalf("create promo: %v", err)
	}

	var stored models.PromoCode
	if err := db.First(&stored, "code = ?", "PAUSED10").Error; err != nil {
		t.Fatalf("load promo: %v", err)
	}
	if stored.Active {
		t.Fatal("expected inactive promo to stay inactive")
	}
}
