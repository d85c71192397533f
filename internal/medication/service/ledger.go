// Package service holds the medication ledger's business logic: transfers from the
// bulk warehouse, family receipts, dispense reconciliation, alerts and cost summaries.
// Every quantity change goes through repository.Store.
package service

import (
	"context"
	"time"

	"github.com/medflow/medication-ledger/internal/medication/catalog"
	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/events"
	"github.com/medflow/medication-ledger/internal/medication/prescription"
	"github.com/medflow/medication-ledger/internal/medication/repository"
	"github.com/medflow/medication-ledger/pkg/logger"
)

// Clock returns the current instant. Tests pin it.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// Expiration windows used when Options leaves them unset.
const (
	DefaultExpirationWarningDays  = 30
	DefaultExpirationCriticalDays = 7
)

// Options carries the ledger's collaborators. Only Prescriptions is required.
type Options struct {
	Prescriptions          prescription.Lookup
	Catalog                catalog.Oracle
	Publisher              *events.LedgerEventPublisher
	Logger                 *logger.Logger
	Clock                  Clock
	Location               *time.Location
	ExpirationWarningDays  int
	ExpirationCriticalDays int
}

// Ledger bundles the services that share one store.
type Ledger struct {
	Bulk      *BulkService
	Transfers *TransferService
	Receipts  *ReceiptService
	Dispense  *DispenseReconciler
	Alerts    *AlertService
	Costs     *CostService
	Queries   *QueryService
}

// NewLedger wires the services. It refuses a store whose schema is behind the code.
func NewLedger(ctx context.Context, store repository.Store, opts Options) (*Ledger, error) {
	if err := repository.Ready(ctx, store); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	// Unset windows take the defaults; configuration rejects zero windows before here.
	warning, critical := opts.ExpirationWarningDays, opts.ExpirationCriticalDays
	if warning == 0 && critical == 0 {
		warning, critical = DefaultExpirationWarningDays, DefaultExpirationCriticalDays
	}

	return &Ledger{
		Bulk:      NewBulkService(store, opts.Catalog, log.WithComponent("bulk"), clock),
		Transfers: NewTransferService(store, opts.Publisher, log.WithComponent("transfer"), clock),
		Receipts:  NewReceiptService(store, opts.Publisher, log.WithComponent("receipt"), clock),
		Dispense:  NewDispenseReconciler(store, opts.Prescriptions, opts.Publisher, log.WithComponent("dispense"), clock, loc),
		Alerts:    NewAlertService(store, warning, critical, clock),
		Costs:     NewCostService(store),
		Queries:   NewQueryService(store, clock),
	}, nil
}

// QueryService serves read models with statuses refreshed as of now.
type QueryService struct {
	store repository.Store
	now   Clock
}

// NewQueryService creates a new query service
func NewQueryService(store repository.Store, clock Clock) *QueryService {
	return &QueryService{store: store, now: clock}
}

// BulkItems lists the central warehouse.
func (s *QueryService) BulkItems(ctx context.Context) ([]domain.BulkItem, error) {
	items, err := s.store.ListBulkItems(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range items {
		items[i].RefreshStatus(now)
	}
	return items, nil
}

// BulkItem returns one warehouse item.
func (s *QueryService) BulkItem(ctx context.Context, id string) (*domain.BulkItem, error) {
	item, err := s.store.GetBulkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item.RefreshStatus(s.now())
	return item, nil
}

// ResidentItems lists a resident's stock; an empty residentID lists everyone's.
func (s *QueryService) ResidentItems(ctx context.Context, residentID string) ([]domain.ResidentItem, error) {
	items, err := s.store.ListResidentItems(ctx, repository.ResidentItemFilter{ResidentID: residentID})
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range items {
		items[i].RefreshStatus(now)
	}
	return items, nil
}

// ResidentItem returns one resident item.
func (s *QueryService) ResidentItem(ctx context.Context, id string) (*domain.ResidentItem, error) {
	item, err := s.store.GetResidentItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item.RefreshStatus(s.now())
	return item, nil
}

func (s *QueryService) Transfers(ctx context.Context, residentID string) ([]domain.Transfer, error) {
	return s.store.ListTransfers(ctx, residentID)
}

func (s *QueryService) Receipts(ctx context.Context, residentID string) ([]domain.ExternalReceipt, error) {
	return s.store.ListReceipts(ctx, residentID)
}

func (s *QueryService) DispenseLog(ctx context.Context, filter repository.DispenseLogFilter) ([]domain.DispenseLogEntry, error) {
	return s.store.ListDispenseLog(ctx, filter)
}
