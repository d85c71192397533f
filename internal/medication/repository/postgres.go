package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/pkg/database"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	bulkColumns = `id, medication_name, active_ingredient, form, batch_number, expiration_date,
		quantity, unit, unit_cost, entry_method, supplier_id, funding_source, minimum_stock,
		created_at, updated_at`

	residentColumns = `id, resident_id, medication_name, active_ingredient, form, batch_number,
		expiration_date, quantity, unit, unit_cost, entry_method, supplier_id, funding_source,
		source_id, prescription_id, is_foreign, origin_country, minimum_stock, last_dispense_date,
		created_at, updated_at`

	transferColumns = `id, bulk_item_id, resident_id, resident_item_id, medication_name, batch_number,
		quantity, unit, unit_cost, reason, notes, performed_by, created_at`

	receiptColumns = `id, resident_id, resident_item_id, medication_name, active_ingredient, form,
		batch_number, expiration_date, quantity, unit, brought_by, relationship, received_by,
		is_foreign, origin_country, notes, created_at`

	dispenseColumns = `id, resident_inventory_id, resident_id, prescription_id, administration_log_id,
		quantity_dispensed, unit, time_slot, type, previous_quantity, new_quantity, reason,
		performed_by, created_at`
)

// Postgres is the production Store. Outside WithTx it runs on the pool; inside,
// every call goes through the same *sqlx.Tx.
type Postgres struct {
	db   *database.DB
	exec sqlx.ExtContext
	inTx bool
}

// NewPostgres creates a Postgres-backed ledger store
func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{db: db, exec: db.DB}
}

// WithTx wraps fn in database.DB.Transaction; a store already inside a transaction joins it.
func (p *Postgres) WithTx(ctx context.Context, fn func(Store) error) error {
	if p.inTx {
		return fn(p)
	}
	return p.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(&Postgres{db: p.db, exec: tx, inTx: true})
	})
}

// mapError turns constraint violations into AppErrors and leaves everything else wrapped.
func mapError(err error, op string) error {
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Bulk warehouse

func (p *Postgres) CreateBulkItem(ctx context.Context, item *domain.BulkItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.UpdatedAt = stamp(&item.CreatedAt)

	query := `
		INSERT INTO bulk_items (` + bulkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := p.exec.ExecContext(ctx, query,
		item.ID, item.MedicationName, item.ActiveIngredient, item.Form, item.BatchNumber,
		item.ExpirationDate, item.Quantity, item.Unit, item.UnitCost, item.EntryMethod,
		item.SupplierID, item.FundingSource, item.MinimumStock, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "create bulk item")
	}
	return nil
}

func (p *Postgres) GetBulkItem(ctx context.Context, id string) (*domain.BulkItem, error) {
	var item domain.BulkItem
	query := `SELECT ` + bulkColumns + ` FROM bulk_items WHERE id = $1`
	if err := sqlx.GetContext(ctx, p.exec, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("bulk item")
		}
		return nil, fmt.Errorf("get bulk item: %w", err)
	}
	return &item, nil
}

func (p *Postgres) ListBulkItems(ctx context.Context) ([]domain.BulkItem, error) {
	items := []domain.BulkItem{}
	query := `SELECT ` + bulkColumns + ` FROM bulk_items ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, p.exec, &items, query); err != nil {
		return nil, fmt.Errorf("list bulk items: %w", err)
	}
	return items, nil
}

func (p *Postgres) UpdateBulkItem(ctx context.Context, item *domain.BulkItem) error {
	if item.Quantity.IsNegative() {
		return errors.Validation(map[string]string{"quantity": "must be 0 or greater"})
	}

	query := `
		UPDATE bulk_items SET
			medication_name = $2, active_ingredient = $3, form = $4, batch_number = $5,
			expiration_date = $6, quantity = $7, unit = $8, unit_cost = $9,
			supplier_id = $10, funding_source = $11, minimum_stock = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + bulkColumns

	var updated domain.BulkItem
	err := sqlx.GetContext(ctx, p.exec, &updated, query,
		item.ID, item.MedicationName, item.ActiveIngredient, item.Form, item.BatchNumber,
		item.ExpirationDate, item.Quantity, item.Unit, item.UnitCost,
		item.SupplierID, item.FundingSource, item.MinimumStock,
	)
	if err == sql.ErrNoRows {
		return errors.NotFound("bulk item")
	}
	if err != nil {
		return mapError(err, "update bulk item")
	}
	*item = updated
	return nil
}

// DebitBulkItem only updates when enough stock remains, so concurrent debits cannot
// drive the quantity negative. A miss is resolved into NotFound or InsufficientStock.
func (p *Postgres) DebitBulkItem(ctx context.Context, id string, qty decimal.Decimal) (*domain.BulkItem, error) {
	if !qty.IsPositive() {
		return nil, errors.BadRequest("debit quantity must be positive")
	}

	query := `
		UPDATE bulk_items SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
		RETURNING ` + bulkColumns

	var item domain.BulkItem
	err := sqlx.GetContext(ctx, p.exec, &item, query, id, qty)
	if err == nil {
		return &item, nil
	}
	if err != sql.ErrNoRows {
		return nil, mapError(err, "debit bulk item")
	}

	var available decimal.Decimal
	err = sqlx.GetContext(ctx, p.exec, &available, `SELECT quantity FROM bulk_items WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("bulk item")
	}
	if err != nil {
		return nil, fmt.Errorf("debit bulk item: %w", err)
	}
	return nil, errors.InsufficientStock(id, available, qty)
}

// Resident stock

func (p *Postgres) CreateResidentItem(ctx context.Context, item *domain.ResidentItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.UpdatedAt = stamp(&item.CreatedAt)

	query := `
		INSERT INTO resident_items (` + residentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err := p.exec.ExecContext(ctx, query,
		item.ID, item.ResidentID, item.MedicationName, item.ActiveIngredient, item.Form,
		item.BatchNumber, item.ExpirationDate, item.Quantity, item.Unit, item.UnitCost,
		item.EntryMethod, item.SupplierID, item.FundingSource, item.SourceID, item.PrescriptionID,
		item.IsForeign, item.OriginCountry, item.MinimumStock, item.LastDispenseDate,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "create resident item")
	}
	return nil
}

func (p *Postgres) GetResidentItem(ctx context.Context, id string) (*domain.ResidentItem, error) {
	var item domain.ResidentItem
	query := `SELECT ` + residentColumns + ` FROM resident_items WHERE id = $1`
	if err := sqlx.GetContext(ctx, p.exec, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("resident item")
		}
		return nil, fmt.Errorf("get resident item: %w", err)
	}
	return &item, nil
}

func (p *Postgres) ListResidentItems(ctx context.Context, filter ResidentItemFilter) ([]domain.ResidentItem, error) {
	var conds []string
	var args []interface{}
	if filter.ResidentID != "" {
		args = append(args, filter.ResidentID)
		conds = append(conds, fmt.Sprintf("resident_id = $%d", len(args)))
	}
	if filter.PrescriptionID != "" {
		args = append(args, filter.PrescriptionID)
		conds = append(conds, fmt.Sprintf("prescription_id = $%d", len(args)))
	}

	query := `SELECT ` + residentColumns + ` FROM resident_items` + where(conds) + ` ORDER BY created_at, id`

	items := []domain.ResidentItem{}
	if err := sqlx.SelectContext(ctx, p.exec, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list resident items: %w", err)
	}
	return items, nil
}

func (p *Postgres) CreditResidentItem(ctx context.Context, id string, qty, unitCost decimal.Decimal) (*domain.ResidentItem, error) {
	if !qty.IsPositive() {
		return nil, errors.BadRequest("credit quantity must be positive")
	}

	var item *domain.ResidentItem
	err := p.WithTx(ctx, func(s Store) error {
		tx := s.(*Postgres)

		var current struct {
			Quantity decimal.Decimal `db:"quantity"`
			UnitCost decimal.Decimal `db:"unit_cost"`
		}
		err := sqlx.GetContext(ctx, tx.exec, &current,
			`SELECT quantity, unit_cost FROM resident_items WHERE id = $1 FOR UPDATE`, id)
		if err == sql.ErrNoRows {
			return errors.NotFound("resident item")
		}
		if err != nil {
			return fmt.Errorf("credit resident item: %w", err)
		}

		cost := domain.WeightedAverageCost(current.Quantity, current.UnitCost, qty, unitCost)
		query := `
			UPDATE resident_items SET quantity = quantity + $2, unit_cost = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING ` + residentColumns

		var updated domain.ResidentItem
		if err := sqlx.GetContext(ctx, tx.exec, &updated, query, id, qty, cost); err != nil {
			return mapError(err, "credit resident item")
		}
		item = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (p *Postgres) UpdateResidentInventoryQuantity(ctx context.Context, id string, delta decimal.Decimal) (*domain.QuantityChange, error) {
	var change *domain.QuantityChange
	err := p.WithTx(ctx, func(s Store) error {
		tx := s.(*Postgres)

		var previous decimal.Decimal
		err := sqlx.GetContext(ctx, tx.exec, &previous,
			`SELECT quantity FROM resident_items WHERE id = $1 FOR UPDATE`, id)
		if err == sql.ErrNoRows {
			return errors.NotFound("resident item")
		}
		if err != nil {
			return fmt.Errorf("update resident quantity: %w", err)
		}

		query := `
			UPDATE resident_items SET
				quantity = GREATEST(quantity + $2, 0),
				last_dispense_date = CASE WHEN $3::boolean THEN NOW() ELSE last_dispense_date END,
				updated_at = NOW()
			WHERE id = $1
		`
		if _, err := tx.exec.ExecContext(ctx, query, id, delta, delta.IsNegative()); err != nil {
			return mapError(err, "update resident quantity")
		}

		change = newQuantityChange(id, previous, delta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// Append-only records

func (p *Postgres) CreateTransfer(ctx context.Context, t *domain.Transfer) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	stamp(&t.CreatedAt)

	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := p.exec.ExecContext(ctx, query,
		t.ID, t.BulkItemID, t.ResidentID, t.ResidentItemID, t.MedicationName, t.BatchNumber,
		t.Quantity, t.Unit, t.UnitCost, t.Reason, t.Notes, t.PerformedBy, t.CreatedAt,
	)
	if err != nil {
		return mapError(err, "create transfer")
	}
	return nil
}

func (p *Postgres) ListTransfers(ctx context.Context, residentID string) ([]domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers`
	var args []interface{}
	if residentID != "" {
		query += ` WHERE resident_id = $1`
		args = append(args, residentID)
	}
	query += ` ORDER BY created_at, id`

	out := []domain.Transfer{}
	if err := sqlx.SelectContext(ctx, p.exec, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return out, nil
}

func (p *Postgres) CreateReceipt(ctx context.Context, r *domain.ExternalReceipt) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	stamp(&r.CreatedAt)

	query := `
		INSERT INTO external_receipts (` + receiptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := p.exec.ExecContext(ctx, query,
		r.ID, r.ResidentID, r.ResidentItemID, r.MedicationName, r.ActiveIngredient, r.Form,
		r.BatchNumber, r.ExpirationDate, r.Quantity, r.Unit, r.BroughtBy, r.Relationship,
		r.ReceivedBy, r.IsForeign, r.OriginCountry, r.Notes, r.CreatedAt,
	)
	if err != nil {
		return mapError(err, "create receipt")
	}
	return nil
}

func (p *Postgres) ListReceipts(ctx context.Context, residentID string) ([]domain.ExternalReceipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM external_receipts`
	var args []interface{}
	if residentID != "" {
		query += ` WHERE resident_id = $1`
		args = append(args, residentID)
	}
	query += ` ORDER BY created_at, id`

	out := []domain.ExternalReceipt{}
	if err := sqlx.SelectContext(ctx, p.exec, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return out, nil
}

func (p *Postgres) AppendDispenseLog(ctx context.Context, e *domain.DispenseLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	stamp(&e.CreatedAt)

	query := `
		INSERT INTO dispense_log (` + dispenseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := p.exec.ExecContext(ctx, query,
		e.ID, e.ResidentInventoryID, e.ResidentID, e.PrescriptionID, e.AdministrationLogID,
		e.QuantityDispensed, e.Unit, e.TimeSlot, e.Type, e.PreviousQuantity, e.NewQuantity,
		e.Reason, e.PerformedBy, e.CreatedAt,
	)
	if err != nil {
		return mapError(err, "append dispense log")
	}
	return nil
}

func (p *Postgres) ListDispenseLog(ctx context.Context, filter DispenseLogFilter) ([]domain.DispenseLogEntry, error) {
	var conds []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s $%d", column, len(args)))
	}

	if filter.ResidentID != "" {
		add("resident_id =", filter.ResidentID)
	}
	if filter.PrescriptionID != "" {
		add("prescription_id =", filter.PrescriptionID)
	}
	if filter.ResidentInventoryID != "" {
		add("resident_inventory_id =", filter.ResidentInventoryID)
	}
	if filter.AdministrationLogID != "" {
		add("administration_log_id =", filter.AdministrationLogID)
	}
	if filter.TimeSlot != "" {
		add("time_slot =", filter.TimeSlot)
	}
	if filter.Type != "" {
		add("type =", filter.Type)
	}
	if filter.From != nil {
		add("created_at >=", *filter.From)
	}
	if filter.To != nil {
		add("created_at <", *filter.To)
	}

	query := `SELECT ` + dispenseColumns + ` FROM dispense_log` + where(conds) + ` ORDER BY created_at, id`

	out := []domain.DispenseLogEntry{}
	if err := sqlx.SelectContext(ctx, p.exec, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list dispense log: %w", err)
	}
	return out, nil
}

// SchemaVersion reports 0 for a database that has never been migrated.
func (p *Postgres) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := sqlx.GetContext(ctx, p.exec, &version, selectSchemaVersion)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

var _ Store = (*Postgres)(nil)
