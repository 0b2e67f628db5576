package promo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/simvoyage/esim-backend/pkg/db/models"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
)

func newPromoTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:promo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.PromoCode{}); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

func newPromoService(t *testing.T, db *gorm.DB) Service {
	t.Helper()

	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func intPtr(v int) *int { return &v }

func TestCreateNormalizesCode(t *testing.T) {
	db := newPromoTestDB(t)
	svc := newPromoService(t, db)
	ctx := context.Background()

	promo, err := svc.Create(ctx, UpsertPromoInput{Code: "  summer10 ", DiscountPercent: 10, Active: true})
	require.NoError(t, err)
	assert.Equal(t, "SUMMER10", promo.Code)

	discount, err := svc.ResolveDiscount(ctx, "summer10")
	require.NoError(t, err)
	assert.Equal(t, 10, discount)
}

func TestResolveDiscountDegradesToZero(t *testing.T) {
	db := newPromoTestDB(t)
	svc := newPromoService(t, db)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	seed := []models.PromoCode{
		{Code: "INACTIVE", DiscountPercent: 15, Active: false},
		{Code: "EXPIRED", DiscountPercent: 15, Active: true, ValidUntil: &past},
		{Code: "EXHAUSTED", DiscountPercent: 15, Active: true, MaxUses: intPtr(2), UsedCount: 2},
		{Code: "LIVE", DiscountPercent: 15, Active: true, ValidUntil: &future, MaxUses: intPtr(5), UsedCount: 1},
	}
	for i := range seed {
		require.NoError(t, db.Create(&seed[i]).Error)
	}

	for _, code := range []string{"INACTIVE", "EXPIRED", "EXHAUSTED", "UNKNOWN", ""} {
		discount, err := svc.ResolveDiscount(ctx, code)
		require.NoError(t, err, code)
		assert.Zero(t, discount, code)
	}

	discount, err := svc.ResolveDiscount(ctx, "LIVE")
	require.NoError(t, err)
	assert.Equal(t, 15, discount)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc := newPromoService(t, newPromoTestDB(t))
	ctx := context.Background()

	cases := []UpsertPromoInput{
		{Code: "", DiscountPercent: 10},
		{Code: "OK", DiscountPercent: -1},
		{Code: "OK", DiscountPercent: 101},
		{Code: "OK", DiscountPercent: 10, MaxUses: intPtr(-1)},
	}
	for _, input := range cases {
		_, err := svc.Create(ctx, input)
		require.Error(t, err)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	}
}

func TestUpdateUnknownPromoReturnsNotFound(t *testing.T) {
	svc := newPromoService(t, newPromoTestDB(t))

	_, err := svc.Update(context.Background(), uuid.New(), UpsertPromoInput{Code: "X2", DiscountPercent: 5})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestUpdateAndDeleteRoundtrip(t *testing.T) {
	db := newPromoTestDB(t)
	svc := newPromoService(t, db)
	ctx := context.Background()

	created, err := svc.Create(ctx, UpsertPromoInput{Code: "SPRING", DiscountPercent: 5, Active: true})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, UpsertPromoInput{Code: "SPRING", DiscountPercent: 20, Active: false})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.DiscountPercent)
	assert.False(t, updated.Active)

	require.NoError(t, svc.Delete(ctx, created.ID))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
