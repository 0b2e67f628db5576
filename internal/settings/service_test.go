package settings

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/simvoyage/esim-backend/pkg/db/models"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
)

func newSettingsService(t *testing.T) Service {
	t.Helper()

	dsn := fmt.Sprintf("file:settings_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.StoreSettings{}); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestGetReturnsDefaultsWhenUnset(t *testing.T) {
	svc := newSettingsService(t)

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaultMarkupPercent, settings.MarkupPercent)
	assert.Equal(t, int64(defaultMinTopupCents), settings.MinTopupCents)
	assert.Equal(t, int64(defaultMaxTopupCents), settings.MaxTopupCents)
}

func TestUpdatePersistsAndGetReturnsStored(t *testing.T) {
	svc := newSettingsService(t)
	ctx := context.Background()
	admin := uuid.New()

	updated, err := svc.Update(ctx, UpdateSettingsInput{
		MarkupPercent:  45,
		RegionalMarkup: map[string]int{"JP": 60},
		MinTopupCents:  500,
		MaxTopupCents:  100000,
		UpdatedBy:      admin,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.UpdatedBy)
	assert.Equal(t, admin, *updated.UpdatedBy)

	stored, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45, stored.MarkupPercent)
	assert.Equal(t, int64(500), stored.MinTopupCents)
}

func TestUpdateValidatesMarkupBounds(t *testing.T) {
	svc := newSettingsService(t)
	ctx := context.Background()

	cases := []UpdateSettingsInput{
		{MarkupPercent: -1},
		{MarkupPercent: 201},
		{MarkupPercent: 30, RegionalMarkup: map[string]int{"US": 250}},
		{MarkupPercent: 30, MinTopupCents: 5000, MaxTopupCents: 1000},
	}
	for _, input := range cases {
		_, err := svc.Update(ctx, input)
		require.Error(t, err)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	}
}

func TestMarkupForRegionPrefersOverride(t *testing.T) {
	svc := newSettingsService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, UpdateSettingsInput{
		MarkupPercent:  30,
		RegionalMarkup: map[string]int{"JP": 55},
	})
	require.NoError(t, err)

	markup, err := svc.MarkupForRegion(ctx, "JP")
	require.NoError(t, err)
	assert.Equal(t, 55, markup)

	markup, err = svc.MarkupForRegion(ctx, "US")
	require.NoError(t, err)
	assert.Equal(t, 30, markup)

	markup, err = svc.MarkupForRegion(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 30, markup)
}
