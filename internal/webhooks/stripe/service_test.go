package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/simvoyage/esim-backend/internal/topup"
	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
)

type recordingTopups struct {
	completed []string
	failed    []string
	err       error
}

func (r *recordingTopups) Start(context.Context, uuid.UUID, int64) (*topup.StartResult, error) {
	panic("not used")
}

func (r *recordingTopups) Complete(_ context.Context, ref string, _ enums.PaymentProvider) (*models.LedgerEntry, bool, error) {
	if r.err != nil {
		return nil, false, r.err
	}
	r.completed = append(r.completed, ref)
	return &models.LedgerEntry{Reference: ref}, true, nil
}

func (r *recordingTopups) Fail(_ context.Context, ref string, _ enums.PaymentProvider) (*models.LedgerEntry, bool, error) {
	r.failed = append(r.failed, ref)
	return &models.LedgerEntry{Reference: ref}, true, nil
}

func (r *recordingTopups) Callback(context.Context, uuid.UUID, string) (*topup.CallbackResult, error) {
	panic("not used")
}

func sessionEvent(t *testing.T, eventType stripe.EventType, metadata map[string]string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"id": "cs_test_1", "metadata": metadata})
	require.NoError(t, err)
	return &stripe.Event{Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestHandleEventCompletesTopup(t *testing.T) {
	topups := &recordingTopups{}
	svc, err := NewService(ServiceParams{Topups: topups})
	require.NoError(t, err)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]string{
		"type": "WALLET_TOPUP", "reference": "SIMV-1-AAAAAA",
	})
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Equal(t, []string{"SIMV-1-AAAAAA"}, topups.completed)
	assert.Empty(t, topups.failed)
}

func TestHandleEventFailsTopupOnExpiry(t *testing.T) {
	topups := &recordingTopups{}
	svc, err := NewService(ServiceParams{Topups: topups})
	require.NoError(t, err)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionExpired, map[string]string{
		"type": "WALLET_TOPUP", "reference": "SIMV-2-BBBBBB",
	})
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Equal(t, []string{"SIMV-2-BBBBBB"}, topups.failed)
	assert.Empty(t, topups.completed)
}

func TestHandleEventIgnoresForeignSessions(t *testing.T) {
	topups := &recordingTopups{}
	svc, err := NewService(ServiceParams{Topups: topups})
	require.NoError(t, err)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]string{
		"type": "SOMETHING_ELSE",
	})
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Empty(t, topups.completed)
}

func TestHandleEventIgnoresUnrelatedEventTypes(t *testing.T) {
	topups := &recordingTopups{}
	svc, err := NewService(ServiceParams{Topups: topups})
	require.NoError(t, err)

	event := &stripe.Event{Type: stripe.EventTypeInvoicePaid, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Empty(t, topups.completed)
	assert.Empty(t, topups.failed)
}

func TestHandleEventRejectsMissingReference(t *testing.T) {
	topups := &recordingTopups{}
	svc, err := NewService(ServiceParams{Topups: topups})
	require.NoError(t, err)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]string{
		"type": "WALLET_TOPUP",
	})
	err = svc.HandleEvent(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestHandleEventPropagatesTopupErrors(t *testing.T) {
	topups := &recordingTopups{err: fmt.Errorf("db down")}
	svc, err := NewService(ServiceParams{Topups: topups})
	require.NoError(t, err)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, map[string]string{
		"type": "WALLET_TOPUP", "reference": "SIMV-3-CCCCCC",
	})
	require.Error(t, svc.HandleEvent(context.Background(), event))
}

func TestIdempotencyGuardValidation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Minute, "stripe")
	require.Error(t, err)
}
