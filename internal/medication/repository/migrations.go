package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medication-ledger/pkg/database"
	"github.com/medflow/medication-ledger/pkg/logger"
)

// CurrentSchemaVersion is the version the ledger code expects.
const CurrentSchemaVersion = 3

// ErrSchemaOutdated is returned by Ready when migrations have not been applied.
var ErrSchemaOutdated = stderrors.New("ledger schema is outdated")

// Migration is one upgrade step. Statements run in order inside a single transaction.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// Migrations is the ordered upgrade history. Never edit an applied entry; append a new one.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "create ledger tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS bulk_items (
				id TEXT PRIMARY KEY,
				medication_name TEXT NOT NULL,
				active_ingredient TEXT NOT NULL DEFAULT '',
				form TEXT NOT NULL DEFAULT '',
				batch_number TEXT NOT NULL DEFAULT '',
				expiration_date DATE,
				quantity NUMERIC(14,3) NOT NULL CONSTRAINT bulk_items_quantity_non_negative CHECK (quantity >= 0),
				unit TEXT NOT NULL,
				unit_cost NUMERIC(14,4) NOT NULL DEFAULT 0 CONSTRAINT bulk_items_unit_cost_non_negative CHECK (unit_cost >= 0),
				entry_method TEXT NOT NULL CONSTRAINT bulk_items_entry_method_valid CHECK (entry_method IN ('xml_import', 'manual_entry')),
				supplier_id TEXT NOT NULL DEFAULT '',
				funding_source TEXT NOT NULL DEFAULT '',
				minimum_stock NUMERIC(14,3) NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS resident_items (
				id TEXT PRIMARY KEY,
				resident_id TEXT NOT NULL,
				medication_name TEXT NOT NULL,
				active_ingredient TEXT NOT NULL DEFAULT '',
				form TEXT NOT NULL DEFAULT '',
				batch_number TEXT NOT NULL DEFAULT '',
				expiration_date DATE,
				quantity NUMERIC(14,3) NOT NULL CONSTRAINT resident_items_quantity_non_negative CHECK (quantity >= 0),
				unit TEXT NOT NULL,
				unit_cost NUMERIC(14,4) NOT NULL DEFAULT 0 CONSTRAINT resident_items_unit_cost_non_negative CHECK (unit_cost >= 0),
				entry_method TEXT NOT NULL CONSTRAINT resident_items_entry_method_valid CHECK (entry_method IN ('bulk_transfer', 'external_receipt')),
				supplier_id TEXT NOT NULL DEFAULT '',
				funding_source TEXT NOT NULL DEFAULT '',
				source_id TEXT,
				prescription_id TEXT,
				minimum_stock NUMERIC(14,3) NOT NULL DEFAULT 0,
				last_dispense_date TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS transfers (
				id TEXT PRIMARY KEY,
				bulk_item_id TEXT NOT NULL REFERENCES bulk_items(id),
				resident_id TEXT NOT NULL,
				resident_item_id TEXT NOT NULL REFERENCES resident_items(id),
				medication_name TEXT NOT NULL,
				batch_number TEXT NOT NULL DEFAULT '',
				quantity NUMERIC(14,3) NOT NULL,
				unit TEXT NOT NULL,
				unit_cost NUMERIC(14,4) NOT NULL DEFAULT 0,
				reason TEXT NOT NULL,
				notes TEXT,
				performed_by TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS external_receipts (
				id TEXT PRIMARY KEY,
				resident_id TEXT NOT NULL,
				resident_item_id TEXT NOT NULL REFERENCES resident_items(id),
				medication_name TEXT NOT NULL,
				active_ingredient TEXT NOT NULL DEFAULT '',
				form TEXT NOT NULL DEFAULT '',
				batch_number TEXT NOT NULL DEFAULT '',
				expiration_date DATE,
				quantity NUMERIC(14,3) NOT NULL,
				unit TEXT NOT NULL,
				brought_by TEXT NOT NULL,
				relationship TEXT NOT NULL,
				received_by TEXT NOT NULL,
				notes TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS dispense_log (
				id TEXT PRIMARY KEY,
				resident_inventory_id TEXT NOT NULL REFERENCES resident_items(id),
				resident_id TEXT NOT NULL,
				prescription_id TEXT NOT NULL DEFAULT '',
				administration_log_id TEXT NOT NULL DEFAULT '',
				quantity_dispensed NUMERIC(14,3) NOT NULL,
				unit TEXT NOT NULL,
				time_slot TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL CONSTRAINT dispense_log_type_valid CHECK (type IN ('auto_dispense', 'refusal_restore', 'manual_adjustment')),
				previous_quantity NUMERIC(14,3) NOT NULL,
				new_quantity NUMERIC(14,3) NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				performed_by TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		},
	},
	{
		Version: 2,
		Name:    "foreign medication fields",
		Statements: []string{
			`ALTER TABLE resident_items ADD COLUMN IF NOT EXISTS is_foreign BOOLEAN NOT NULL DEFAULT FALSE`,
			`ALTER TABLE resident_items ADD COLUMN IF NOT EXISTS origin_country TEXT`,
			`ALTER TABLE external_receipts ADD COLUMN IF NOT EXISTS is_foreign BOOLEAN NOT NULL DEFAULT FALSE`,
			`ALTER TABLE external_receipts ADD COLUMN IF NOT EXISTS origin_country TEXT`,
		},
	},
	{
		Version: 3,
		Name:    "reconciliation indexes",
		Statements: []string{
			`CREATE INDEX IF NOT EXISTS resident_items_resident_idx ON resident_items (resident_id)`,
			`CREATE INDEX IF NOT EXISTS dispense_log_prescription_slot_idx ON dispense_log (prescription_id, time_slot, created_at)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS dispense_log_administration_log_uniq
				ON dispense_log (administration_log_id)
				WHERE type = 'auto_dispense' AND administration_log_id <> ''`,
		},
	},
}

const (
	createSchemaVersionTable = `CREATE TABLE IF NOT EXISTS schema_version (
		id INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		version INT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	seedSchemaVersion   = `INSERT INTO schema_version (id, version) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`
	selectSchemaVersion = `SELECT version FROM schema_version WHERE id = 1`
	bumpSchemaVersion   = `UPDATE schema_version SET version = $1, updated_at = NOW() WHERE id = 1`
)

// Migrate applies every pending migration, each in its own transaction, bumping the
// version marker as part of the same transaction. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *database.DB, log *logger.Logger) (int, error) {
	if _, err := db.ExecContext(ctx, createSchemaVersionTable); err != nil {
		return 0, fmt.Errorf("failed to create schema_version: %w", err)
	}
	if _, err := db.ExecContext(ctx, seedSchemaVersion); err != nil {
		return 0, fmt.Errorf("failed to seed schema_version: %w", err)
	}

	var current int
	if err := db.GetContext(ctx, &current, selectSchemaVersion); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	applied := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}

		err := db.Transaction(ctx, func(tx *sqlx.Tx) error {
			for _, stmt := range m.Statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, bumpSchemaVersion, m.Version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}

		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applied ledger migration")
		applied++
	}

	return applied, nil
}

// Ready fails with ErrSchemaOutdated until the store has been migrated to CurrentSchemaVersion.
func Ready(ctx context.Context, store Store) error {
	version, err := store.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version < CurrentSchemaVersion {
		return fmt.Errorf("%w: store at version %d, code expects %d", ErrSchemaOutdated, version, CurrentSchemaVersion)
	}
	return nil
}
