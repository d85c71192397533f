package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/service"
	"github.com/medflow/medication-ledger/pkg/logger"
	"github.com/medflow/medication-ledger/pkg/messaging"
	"github.com/medflow/medication-ledger/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBulkForAlerts(t *testing.T, h *harness) map[string]string {
	t.Helper()
	f := h.fixtures
	seed := []struct {
		key  string
		item domain.BulkItem
	}{
		{"healthy", f.BulkItem(testutil.WithBulkName("Healthy"), testutil.WithBulkExpiry(f.DaysFromNow(100)))},
		{"depleted", f.BulkItem(testutil.WithBulkName("Depleted"), testutil.WithBulkQuantity("0"), testutil.WithBulkExpiry(f.DaysFromNow(-2)))},
		{"low", f.BulkItem(testutil.WithBulkName("Low"), testutil.WithBulkQuantity("5"))},
		{"expired", f.BulkItem(testutil.WithBulkName("Expired"), testutil.WithBulkExpiry(f.DaysFromNow(-2)))},
		{"soon", f.BulkItem(testutil.WithBulkName("Soon"), testutil.WithBulkExpiry(f.DaysFromNow(5)))},
		{"later", f.BulkItem(testutil.WithBulkName("Later"), testutil.WithBulkExpiry(f.DaysFromNow(20)))},
		{"today", f.BulkItem(testutil.WithBulkName("Today"), testutil.WithBulkExpiry(f.DaysFromNow(0)))},
	}

	ids := make(map[string]string)
	for i := range seed {
		require.NoError(t, h.store.CreateBulkItem(context.Background(), &seed[i].item))
		ids[seed[i].key] = seed[i].item.ID
	}
	return ids
}

func TestBulkAlerts(t *testing.T) {
	h := newHarness(t)
	seedBulkForAlerts(t, h)

	alerts, err := h.ledger.Alerts.BulkAlerts(context.Background())
	require.NoError(t, err)

	type got struct {
		name     string
		kind     domain.AlertType
		severity domain.Severity
	}
	var summary []got
	for _, a := range alerts {
		assert.Equal(t, domain.WarehouseBulk, a.Warehouse)
		summary = append(summary, got{a.MedicationName, a.Type, a.Severity})
	}

	assert.Equal(t, []got{
		{"Depleted", domain.AlertDepleted, domain.SeverityCritical},
		{"Expired", domain.AlertExpired, domain.SeverityCritical},
		{"Soon", domain.AlertExpiringSoon, domain.SeverityCritical},
		{"Today", domain.AlertExpiringSoon, domain.SeverityCritical},
		{"Low", domain.AlertLowStock, domain.SeverityWarning},
		{"Later", domain.AlertExpiringSoon, domain.SeverityWarning},
	}, summary)

	require.NotNil(t, alerts[1].DaysUntilExpiry)
	assert.Equal(t, -2, *alerts[1].DaysUntilExpiry)
	require.NotNil(t, alerts[3].DaysUntilExpiry)
	assert.Equal(t, 0, *alerts[3].DaysUntilExpiry)
	assert.Contains(t, alerts[4].Message, "minimum 10")
}

func TestBulkAlerts_ExpiredStockBelowMinimumIsNotLow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := h.fixtures

	item := f.BulkItem(testutil.WithBulkName("Expired Short"),
		testutil.WithBulkQuantity("5"),
		testutil.WithBulkExpiry(f.DaysFromNow(-3)))
	require.NoError(t, h.store.CreateBulkItem(ctx, &item))

	stored, err := h.ledger.Queries.BulkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, stored.Status)

	alerts, err := h.ledger.Alerts.BulkAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertExpired, alerts[0].Type)
	assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)
}

func TestResidentAlerts_ScopedToResident(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := h.fixtures

	mine := f.ResidentItem("res-1", testutil.WithResidentQuantity("2"))
	theirs := f.ResidentItem("res-2", testutil.WithResidentQuantity("0"))
	require.NoError(t, h.store.CreateResidentItem(ctx, &mine))
	require.NoError(t, h.store.CreateResidentItem(ctx, &theirs))

	alerts, err := h.ledger.Alerts.ResidentAlerts(ctx, "res-1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertLowStock, alerts[0].Type)
	assert.Equal(t, "res-1", alerts[0].ResidentID)
	assert.Equal(t, domain.WarehouseResident, alerts[0].Warehouse)

	all, err := h.ledger.Alerts.AllAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.AlertDepleted, all[0].Type, "critical first")
}

func TestAlerts_ConfigurableWindows(t *testing.T) {
	h := newHarness(t, func(o *service.Options) {
		o.ExpirationWarningDays = 60
		o.ExpirationCriticalDays = 14
	})
	item := h.fixtures.BulkItem(testutil.WithBulkExpiry(h.fixtures.DaysFromNow(10)))
	require.NoError(t, h.store.CreateBulkItem(context.Background(), &item))

	alerts, err := h.ledger.Alerts.BulkAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)
}

func TestAlertScheduler_PublishesCriticalAlerts(t *testing.T) {
	h := newHarness(t)
	seedBulkForAlerts(t, h)

	publisher := testutil.NewMockPublisher()
	scheduler := service.NewAlertScheduler(h.ledger.Alerts,
		eventsWith(publisher), time.Hour, logger.Nop())

	published, err := scheduler.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, published)
	assert.Equal(t, 4, publisher.Count(messaging.EventAlertGenerated))
}

func TestAlertScheduler_StartRunsInitialScan(t *testing.T) {
	h := newHarness(t)
	seedBulkForAlerts(t, h)

	publisher := testutil.NewMockPublisher()
	scheduler := service.NewAlertScheduler(h.ledger.Alerts,
		eventsWith(publisher), time.Hour, logger.Nop())

	scheduler.Start(context.Background())
	testutil.RequireEventually(t, func() bool {
		return publisher.Count(messaging.EventAlertGenerated) == 4
	}, 2*time.Second, 10*time.Millisecond, "initial scan did not publish")
	scheduler.Stop()
}

func TestAlertScheduler_ZeroIntervalFallsBackToDefault(t *testing.T) {
	h := newHarness(t)
	seedBulkForAlerts(t, h)

	publisher := testutil.NewMockPublisher()
	scheduler := service.NewAlertScheduler(h.ledger.Alerts, eventsWith(publisher), 0, logger.Nop())
	assert.Equal(t, service.DefaultAlertScanInterval, scheduler.Interval())

	scheduler.Start(context.Background())
	testutil.RequireEventually(t, func() bool {
		return publisher.Count(messaging.EventAlertGenerated) == 4
	}, 2*time.Second, 10*time.Millisecond, "initial scan did not publish")
	scheduler.Stop()
}
