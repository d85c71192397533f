package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/repository"
	"github.com/shopspring/decimal"
)

// AlertService computes stock and expiry alerts from current ledger state.
// Nothing is stored: every call reflects the latest writes.
type AlertService struct {
	store        repository.Store
	warningDays  int
	criticalDays int
	now          Clock
}

// NewAlertService creates a new alert service
func NewAlertService(store repository.Store, warningDays, criticalDays int, clock Clock) *AlertService {
	return &AlertService{
		store:        store,
		warningDays:  warningDays,
		criticalDays: criticalDays,
		now:          clock,
	}
}

// BulkAlerts covers the central warehouse.
func (s *AlertService) BulkAlerts(ctx context.Context) ([]domain.Alert, error) {
	items, err := s.store.ListBulkItems(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	alerts := make([]domain.Alert, 0)
	for _, item := range items {
		alerts = append(alerts, s.itemAlerts(stockSnapshot{
			warehouse:  domain.WarehouseBulk,
			id:         item.ID,
			name:       item.MedicationName,
			batch:      item.BatchNumber,
			quantity:   item.Quantity,
			minimum:    item.MinimumStock,
			unit:       item.Unit,
			expiration: item.ExpirationDate,
		}, now)...)
	}
	sortAlerts(alerts)
	return alerts, nil
}

// ResidentAlerts covers one resident's stock, or every resident's when residentID is empty.
func (s *AlertService) ResidentAlerts(ctx context.Context, residentID string) ([]domain.Alert, error) {
	items, err := s.store.ListResidentItems(ctx, repository.ResidentItemFilter{ResidentID: residentID})
	if err != nil {
		return nil, err
	}

	now := s.now()
	alerts := make([]domain.Alert, 0)
	for _, item := range items {
		alerts = append(alerts, s.itemAlerts(stockSnapshot{
			warehouse:  domain.WarehouseResident,
			id:         item.ID,
			residentID: item.ResidentID,
			name:       item.MedicationName,
			batch:      item.BatchNumber,
			quantity:   item.Quantity,
			minimum:    item.MinimumStock,
			unit:       item.Unit,
			expiration: item.ExpirationDate,
		}, now)...)
	}
	sortAlerts(alerts)
	return alerts, nil
}

// AllAlerts merges bulk and resident alerts, critical first.
func (s *AlertService) AllAlerts(ctx context.Context) ([]domain.Alert, error) {
	bulk, err := s.BulkAlerts(ctx)
	if err != nil {
		return nil, err
	}
	resident, err := s.ResidentAlerts(ctx, "")
	if err != nil {
		return nil, err
	}
	alerts := append(bulk, resident...)
	sortAlerts(alerts)
	return alerts, nil
}

type stockSnapshot struct {
	warehouse  domain.Warehouse
	id         string
	residentID string
	name       string
	batch      string
	quantity   decimal.Decimal
	minimum    decimal.Decimal
	unit       string
	expiration *time.Time
}

// itemAlerts yields at most one stock alert (depleted or low) and, while stock
// remains, at most one expiry alert.
func (s *AlertService) itemAlerts(item stockSnapshot, now time.Time) []domain.Alert {
	base := domain.Alert{
		Warehouse:      item.warehouse,
		ItemID:         item.id,
		ResidentID:     item.residentID,
		MedicationName: item.name,
		BatchNumber:    item.batch,
		Quantity:       item.quantity,
		MinimumStock:   item.minimum,
		ExpirationDate: item.expiration,
	}

	var alerts []domain.Alert
	if !item.quantity.IsPositive() {
		a := base
		a.Type, a.Severity = domain.AlertDepleted, domain.SeverityCritical
		a.Message = fmt.Sprintf("%s is out of stock", item.name)
		return append(alerts, a)
	}

	if domain.DeriveStatus(item.quantity, item.minimum, item.expiration, now) == domain.StatusLow {
		a := base
		a.Type, a.Severity = domain.AlertLowStock, domain.SeverityWarning
		a.Message = fmt.Sprintf("%s is low: %s %s left (minimum %s)",
			item.name, item.quantity.String(), item.unit, item.minimum.String())
		alerts = append(alerts, a)
	}

	if item.expiration == nil {
		return alerts
	}
	days := domain.DaysUntil(*item.expiration, now)
	a := base
	a.DaysUntilExpiry = &days
	switch {
	case days < 0:
		a.Type, a.Severity = domain.AlertExpired, domain.SeverityCritical
		a.Message = fmt.Sprintf("%s batch %s expired %d days ago", item.name, item.batch, -days)
	case days <= s.criticalDays:
		a.Type, a.Severity = domain.AlertExpiringSoon, domain.SeverityCritical
		a.Message = fmt.Sprintf("%s batch %s expires in %d days", item.name, item.batch, days)
	case days <= s.warningDays:
		a.Type, a.Severity = domain.AlertExpiringSoon, domain.SeverityWarning
		a.Message = fmt.Sprintf("%s batch %s expires in %d days", item.name, item.batch, days)
	default:
		return alerts
	}
	return append(alerts, a)
}

func sortAlerts(alerts []domain.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity == domain.SeverityCritical && alerts[j].Severity != domain.SeverityCritical
	})
}
