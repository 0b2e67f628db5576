package provisioning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/esimaccess"
)

type stubSupplier struct {
	orderNo     string
	orderErr    error
	orderCalls  int
	lastOrder   esimaccess.OrderRequest
	queryCalls  int
	queryScript []func() ([]esimaccess.Profile, error)
}

func (s *stubSupplier) OrderProfiles(_ context.Context, req esimaccess.OrderRequest) (string, error) {
	s.orderCalls++
	s.lastOrder = req
	if s.orderErr != nil {
		return "", s.orderErr
	}
	return s.orderNo, nil
}

func (s *stubSupplier) QueryProfiles(context.Context, string, esimaccess.Pager) ([]esimaccess.Profile, error) {
	s.queryCalls++
	if s.queryCalls <= len(s.queryScript) {
		return s.queryScript[s.queryCalls-1]()
	}
	return nil, nil
}

type fakeTime struct {
	now time.Time
}

func (f *fakeTime) Now() time.Time { return f.now }

func (f *fakeTime) Sleep(_ context.Context, d time.Duration) error {
	f.now = f.now.Add(d)
	return nil
}

func newPoller(t *testing.T, supplier Supplier, clock *fakeTime, cfg config.ProvisioningConfig) Service {
	t.Helper()

	svc, err := NewService(supplier, cfg, nil, nil, WithClock(clock.Now), WithSleep(clock.Sleep))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestProvisionReturnsProfileWhenAllocated(t *testing.T) {
	profile := esimaccess.Profile{ICCID: "8943108", QRCodeURL: "https://cdn.test/qr.png"}
	supplier := &stubSupplier{
		orderNo: "B123",
		queryScript: []func() ([]esimaccess.Profile, error){
			func() ([]esimaccess.Profile, error) { return nil, nil },
			func() ([]esimaccess.Profile, error) { return []esimaccess.Profile{profile}, nil },
		},
	}
	clock := &fakeTime{now: time.Unix(0, 0)}
	svc := newPoller(t, supplier, clock, config.ProvisioningConfig{
		PollInterval: 3 * time.Second,
		MaxAttempts:  10,
		Deadline:     45 * time.Second,
	})

	result, err := svc.Provision(context.Background(), Request{
		TransactionID: "SIMV-acct-1",
		PackageCode:   "PK-11",
		PriceUnits:    110000,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if result.Pending {
		t.Fatal("expected allocated result")
	}
	if result.Profile == nil || result.Profile.ICCID != "8943108" {
		t.Fatalf("unexpected profile %+v", result.Profile)
	}
	if result.OrderNo != "B123" {
		t.Fatalf("unexpected order number %q", result.OrderNo)
	}
	if supplier.queryCalls != 2 {
		t.Fatalf("expected 2 polls, got %d", supplier.queryCalls)
	}
}

func TestProvisionPendingAfterAttemptsExhausted(t *testing.T) {
	supplier := &stubSupplier{orderNo: "B123"}
	clock := &fakeTime{now: time.Unix(0, 0)}
	svc := newPoller(t, supplier, clock, config.ProvisioningConfig{
		PollInterval: 3 * time.Second,
		MaxAttempts:  4,
		Deadline:     10 * time.Minute,
	})

	result, err := svc.Provision(context.Background(), Request{
		TransactionID: "SIMV-acct-2",
		PackageCode:   "PK-11",
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !result.Pending {
		t.Fatal("expected pending result")
	}
	if supplier.queryCalls != 4 {
		t.Fatalf("expected attempts exhausted at 4, got %d", supplier.queryCalls)
	}
}

func TestProvisionPendingAfterDeadline(t *testing.T) {
	supplier := &stubSupplier{orderNo: "B123"}
	clock := &fakeTime{now: time.Unix(0, 0)}
	svc := newPoller(t, supplier, clock, config.ProvisioningConfig{
		PollInterval: 3 * time.Second,
		MaxAttempts:  100,
		Deadline:     10 * time.Second,
	})

	result, err := svc.Provision(context.Background(), Request{
		TransactionID: "SIMV-acct-3",
		PackageCode:   "PK-11",
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !result.Pending {
		t.Fatal("expected pending result")
	}
	// Polls at t=3s, 6s, 9s; the 12s check trips the deadline first.
	if supplier.queryCalls != 3 {
		t.Fatalf("expected 3 polls before the deadline, got %d", supplier.queryCalls)
	}
}

func TestProvisionSwallowsPollErrors(t *testing.T) {
	profile := esimaccess.Profile{ICCID: "8943108"}
	supplier := &stubSupplier{
		orderNo: "B123",
		queryScript: []func() ([]esimaccess.Profile, error){
			func() ([]esimaccess.Profile, error) { return nil, errors.New("supplier 404") },
			func() ([]esimaccess.Profile, error) { return []esimaccess.Profile{profile}, nil },
		},
	}
	clock := &fakeTime{now: time.Unix(0, 0)}
	svc := newPoller(t, supplier, clock, config.ProvisioningConfig{
		PollInterval: 3 * time.Second,
		MaxAttempts:  10,
		Deadline:     45 * time.Second,
	})

	result, err := svc.Provision(context.Background(), Request{
		TransactionID: "SIMV-acct-4",
		PackageCode:   "PK-11",
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if result.Pending || result.Profile == nil {
		t.Fatalf("expected allocated result after failed poll, got %+v", result)
	}
}

func TestProvisionPropagatesOrderFailure(t *testing.T) {
	supplier := &stubSupplier{orderErr: errors.New("supplier down")}
	clock := &fakeTime{now: time.Unix(0, 0)}
	svc := newPoller(t, supplier, clock, config.ProvisioningConfig{})

	_, err := svc.Provision(context.Background(), Request{
		TransactionID: "SIMV-acct-5",
		PackageCode:   "PK-11",
	})
	if err == nil {
		t.Fatal("expected order failure")
	}
	if supplier.queryCalls != 0 {
		t.Fatalf("expected no polls after order failure, got %d", supplier.queryCalls)
	}
}

func TestProvisionSendsIdempotencyKeyAndAmount(t *testing.T) {
	supplier := &stubSupplier{
		orderNo: "B123",
		queryScript: []func() ([]esimaccess.Profile, error){
			func() ([]esimaccess.Profile, error) {
				return []esimaccess.Profile{{ICCID: "1"}}, nil
			},
		},
	}
	clock := &fakeTime{now: time.Unix(0, 0)}
	svc := newPoller(t, supplier, clock, config.ProvisioningConfig{})

	if _, err := svc.Provision(context.Background(), Request{
		TransactionID: "SIMV-acct-6",
		PackageCode:   "PK-11",
		PriceUnits:    110000,
		Count:         2,
	}); err != nil {
		t.Fatalf("provision: %v", err)
	}

	if supplier.lastOrder.TransactionID != "SIMV-acct-6" {
		t.Fatalf("unexpected transaction id %q", supplier.lastOrder.TransactionID)
	}
	if supplier.lastOrder.Amount != 220000 {
		t.Fatalf("unexpected amount %d", supplier.lastOrder.Amount)
	}
	if len(supplier.lastOrder.PackageInfoList) != 1 || supplier.lastOrder.PackageInfoList[0].Count != 2 {
		t.Fatalf("unexpected package list %+v", supplier.lastOrder.PackageInfoList)
	}
}
