package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/shopspring/decimal"
)

// Memory is a single-process Store. A mutex serializes every call; WithTx holds
// it for the whole unit of work and restores a snapshot when fn fails.
type Memory struct {
	mu    sync.Mutex
	state *memoryState
}

// NewMemory returns an empty store already at CurrentSchemaVersion.
func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

type memoryState struct {
	bulk          map[string]domain.BulkItem
	bulkOrder     []string
	resident      map[string]domain.ResidentItem
	residentOrder []string
	transfers     []domain.Transfer
	receipts      []domain.ExternalReceipt
	dispenseLog   []domain.DispenseLogEntry
	ids           map[string]bool
	version       int
}

func newMemoryState() *memoryState {
	return &memoryState{
		bulk:     make(map[string]domain.BulkItem),
		resident: make(map[string]domain.ResidentItem),
		ids:      make(map[string]bool),
		version:  CurrentSchemaVersion,
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		bulk:          make(map[string]domain.BulkItem, len(s.bulk)),
		bulkOrder:     append([]string(nil), s.bulkOrder...),
		resident:      make(map[string]domain.ResidentItem, len(s.resident)),
		residentOrder: append([]string(nil), s.residentOrder...),
		transfers:     append([]domain.Transfer(nil), s.transfers...),
		receipts:      append([]domain.ExternalReceipt(nil), s.receipts...),
		dispenseLog:   append([]domain.DispenseLogEntry(nil), s.dispenseLog...),
		ids:           make(map[string]bool, len(s.ids)),
		version:       s.version,
	}
	for k, v := range s.bulk {
		c.bulk[k] = v
	}
	for k, v := range s.resident {
		c.resident[k] = v
	}
	for k, v := range s.ids {
		c.ids[k] = v
	}
	return c
}

// claimID assigns a fresh id when empty and rejects duplicates across all collections.
func (s *memoryState) claimID(id *string, resource string) error {
	if *id == "" {
		*id = uuid.New().String()
	}
	if s.ids[*id] {
		return errors.Conflict(resource + " " + *id + " already exists")
	}
	s.ids[*id] = true
	return nil
}

// Bulk warehouse

func (s *memoryState) CreateBulkItem(_ context.Context, item *domain.BulkItem) error {
	if item.Quantity.IsNegative() {
		return errors.Validation(map[string]string{"quantity": "must be 0 or greater"})
	}
	if err := s.claimID(&item.ID, "bulk item"); err != nil {
		return err
	}
	item.UpdatedAt = stamp(&item.CreatedAt)
	s.bulk[item.ID] = *item
	s.bulkOrder = append(s.bulkOrder, item.ID)
	return nil
}

func (s *memoryState) GetBulkItem(_ context.Context, id string) (*domain.BulkItem, error) {
	item, ok := s.bulk[id]
	if !ok {
		return nil, errors.NotFound("bulk item")
	}
	return &item, nil
}

func (s *memoryState) ListBulkItems(_ context.Context) ([]domain.BulkItem, error) {
	items := make([]domain.BulkItem, 0, len(s.bulkOrder))
	for _, id := range s.bulkOrder {
		items = append(items, s.bulk[id])
	}
	return items, nil
}

func (s *memoryState) UpdateBulkItem(_ context.Context, item *domain.BulkItem) error {
	existing, ok := s.bulk[item.ID]
	if !ok {
		return errors.NotFound("bulk item")
	}
	if item.Quantity.IsNegative() {
		return errors.Validation(map[string]string{"quantity": "must be 0 or greater"})
	}

	existing.Descriptor = item.Descriptor
	existing.BatchNumber = item.BatchNumber
	existing.ExpirationDate = item.ExpirationDate
	existing.Quantity = item.Quantity
	existing.Unit = item.Unit
	existing.UnitCost = item.UnitCost
	existing.SupplierID = item.SupplierID
	existing.FundingSource = item.FundingSource
	existing.MinimumStock = item.MinimumStock
	existing.UpdatedAt = time.Now().UTC()

	s.bulk[item.ID] = existing
	*item = existing
	return nil
}

func (s *memoryState) DebitBulkItem(_ context.Context, id string, qty decimal.Decimal) (*domain.BulkItem, error) {
	item, ok := s.bulk[id]
	if !ok {
		return nil, errors.NotFound("bulk item")
	}
	if !qty.IsPositive() {
		return nil, errors.BadRequest("debit quantity must be positive")
	}
	if qty.GreaterThan(item.Quantity) {
		return nil, errors.InsufficientStock(id, item.Quantity, qty)
	}

	item.Quantity = item.Quantity.Sub(qty)
	item.UpdatedAt = time.Now().UTC()
	s.bulk[id] = item
	return &item, nil
}

// Resident stock

func (s *memoryState) CreateResidentItem(_ context.Context, item *domain.ResidentItem) error {
	if item.Quantity.IsNegative() {
		return errors.Validation(map[string]string{"quantity": "must be 0 or greater"})
	}
	if err := s.claimID(&item.ID, "resident item"); err != nil {
		return err
	}
	item.UpdatedAt = stamp(&item.CreatedAt)
	s.resident[item.ID] = *item
	s.residentOrder = append(s.residentOrder, item.ID)
	return nil
}

func (s *memoryState) GetResidentItem(_ context.Context, id string) (*domain.ResidentItem, error) {
	item, ok := s.resident[id]
	if !ok {
		return nil, errors.NotFound("resident item")
	}
	return &item, nil
}

func (s *memoryState) ListResidentItems(_ context.Context, filter ResidentItemFilter) ([]domain.ResidentItem, error) {
	items := make([]domain.ResidentItem, 0)
	for _, id := range s.residentOrder {
		item := s.resident[id]
		if filter.ResidentID != "" && item.ResidentID != filter.ResidentID {
			continue
		}
		if filter.PrescriptionID != "" && (item.PrescriptionID == nil || *item.PrescriptionID != filter.PrescriptionID) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *memoryState) CreditResidentItem(_ context.Context, id string, qty, unitCost decimal.Decimal) (*domain.ResidentItem, error) {
	item, ok := s.resident[id]
	if !ok {
		return nil, errors.NotFound("resident item")
	}
	if !qty.IsPositive() {
		return nil, errors.BadRequest("credit quantity must be positive")
	}

	item.UnitCost = domain.WeightedAverageCost(item.Quantity, item.UnitCost, qty, unitCost)
	item.Quantity = item.Quantity.Add(qty)
	item.UpdatedAt = time.Now().UTC()
	s.resident[id] = item
	return &item, nil
}

func (s *memoryState) UpdateResidentInventoryQuantity(_ context.Context, id string, delta decimal.Decimal) (*domain.QuantityChange, error) {
	item, ok := s.resident[id]
	if !ok {
		return nil, errors.NotFound("resident item")
	}

	change := newQuantityChange(id, item.Quantity, delta)
	now := time.Now().UTC()
	item.Quantity = change.New
	item.UpdatedAt = now
	if delta.IsNegative() {
		item.LastDispenseDate = &now
	}
	s.resident[id] = item
	return change, nil
}

func newQuantityChange(id string, previous, delta decimal.Decimal) *domain.QuantityChange {
	next := previous.Add(delta)
	clamped := false
	if next.IsNegative() {
		next = decimal.Zero
		clamped = true
	}
	return &domain.QuantityChange{
		ItemID:    id,
		Previous:  previous,
		New:       next,
		Requested: delta,
		Applied:   next.Sub(previous),
		Clamped:   clamped,
	}
}

// Append-only records

func (s *memoryState) CreateTransfer(_ context.Context, t *domain.Transfer) error {
	if err := s.claimID(&t.ID, "transfer"); err != nil {
		return err
	}
	stamp(&t.CreatedAt)
	s.transfers = append(s.transfers, *t)
	return nil
}

func (s *memoryState) ListTransfers(_ context.Context, residentID string) ([]domain.Transfer, error) {
	out := make([]domain.Transfer, 0)
	for _, t := range s.transfers {
		if residentID == "" || t.ResidentID == residentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memoryState) CreateReceipt(_ context.Context, r *domain.ExternalReceipt) error {
	if err := s.claimID(&r.ID, "receipt"); err != nil {
		return err
	}
	stamp(&r.CreatedAt)
	s.receipts = append(s.receipts, *r)
	return nil
}

func (s *memoryState) ListReceipts(_ context.Context, residentID string) ([]domain.ExternalReceipt, error) {
	out := make([]domain.ExternalReceipt, 0)
	for _, r := range s.receipts {
		if residentID == "" || r.ResidentID == residentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryState) AppendDispenseLog(_ context.Context, e *domain.DispenseLogEntry) error {
	if err := s.claimID(&e.ID, "dispense log entry"); err != nil {
		return err
	}
	stamp(&e.CreatedAt)
	s.dispenseLog = append(s.dispenseLog, *e)
	return nil
}

func (s *memoryState) ListDispenseLog(_ context.Context, filter DispenseLogFilter) ([]domain.DispenseLogEntry, error) {
	out := make([]domain.DispenseLogEntry, 0)
	for i := range s.dispenseLog {
		if matchesDispense(&s.dispenseLog[i], filter) {
			out = append(out, s.dispenseLog[i])
		}
	}
	return out, nil
}

func (s *memoryState) SchemaVersion(_ context.Context) (int, error) {
	return s.version, nil
}

// memoryTx is the view handed to WithTx callbacks; the outer lock is already held.
type memoryTx struct {
	*memoryState
}

func (tx memoryTx) WithTx(_ context.Context, fn func(Store) error) error {
	return fn(tx)
}

// WithTx runs fn against a lock-free view and rolls back every change if fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(memoryTx{m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *Memory) CreateBulkItem(ctx context.Context, item *domain.BulkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateBulkItem(ctx, item)
}

func (m *Memory) GetBulkItem(ctx context.Context, id string) (*domain.BulkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetBulkItem(ctx, id)
}

func (m *Memory) ListBulkItems(ctx context.Context) ([]domain.BulkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListBulkItems(ctx)
}

func (m *Memory) UpdateBulkItem(ctx context.Context, item *domain.BulkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateBulkItem(ctx, item)
}

func (m *Memory) DebitBulkItem(ctx context.Context, id string, qty decimal.Decimal) (*domain.BulkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DebitBulkItem(ctx, id, qty)
}

func (m *Memory) CreateResidentItem(ctx context.Context, item *domain.ResidentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateResidentItem(ctx, item)
}

func (m *Memory) GetResidentItem(ctx context.Context, id string) (*domain.ResidentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetResidentItem(ctx, id)
}

func (m *Memory) ListResidentItems(ctx context.Context, filter ResidentItemFilter) ([]domain.ResidentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListResidentItems(ctx, filter)
}

func (m *Memory) CreditResidentItem(ctx context.Context, id string, qty, unitCost decimal.Decimal) (*domain.ResidentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreditResidentItem(ctx, id, qty, unitCost)
}

func (m *Memory) UpdateResidentInventoryQuantity(ctx context.Context, id string, delta decimal.Decimal) (*domain.QuantityChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateResidentInventoryQuantity(ctx, id, delta)
}

func (m *Memory) CreateTransfer(ctx context.Context, t *domain.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateTransfer(ctx, t)
}

func (m *Memory) ListTransfers(ctx context.Context, residentID string) ([]domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListTransfers(ctx, residentID)
}

func (m *Memory) CreateReceipt(ctx context.Context, r *domain.ExternalReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateReceipt(ctx, r)
}

func (m *Memory) ListReceipts(ctx context.Context, residentID string) ([]domain.ExternalReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListReceipts(ctx, residentID)
}

func (m *Memory) AppendDispenseLog(ctx context.Context, e *domain.DispenseLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendDispenseLog(ctx, e)
}

func (m *Memory) ListDispenseLog(ctx context.Context, filter DispenseLogFilter) ([]domain.DispenseLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListDispenseLog(ctx, filter)
}

func (m *Memory) SchemaVersion(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SchemaVersion(ctx)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = memoryTx{}
)
