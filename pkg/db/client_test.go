package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type txProbe struct {
	ID   int
	Note string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:db_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&txProbe{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	client := &Client{conn: newTestDB(t)}
	ctx := context.Background()

	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&txProbe{Note: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := client.DB().Model(&txProbe{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	client := &Client{conn: newTestDB(t)}
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&txProbe{Note: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to surface the callback error")
	}

	var count int64
	if err := client.DB().Model(&txProbe{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to leave no records, got %d", count)
	}
}

func TestPing(t *testing.T) {
	client := &Client{conn: newTestDB(t)}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}
