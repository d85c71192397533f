package repository

import (
	"context"
	"testing"
	"time"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/pkg/database"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/logger"
	"github.com/medflow/medication-ledger/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_Integration(t *testing.T) {
	testutil.SkipIfShort(t)

	ctx := testutil.DefaultTestContext(t)
	container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(context.Background()) })

	conn, err := container.Connect(ctx)
	require.NoError(t, err)
	db := database.Wrap(conn, logger.Nop())
	t.Cleanup(func() { db.Close() })

	applied, err := Migrate(ctx, db, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, applied)

	again, err := Migrate(ctx, db, logger.Nop())
	require.NoError(t, err)
	assert.Zero(t, again, "second run applies nothing")

	store := NewPostgres(db)
	require.NoError(t, Ready(ctx, store))

	f := testutil.NewFixtureFactory(time.Now().UTC())

	bulk := f.BulkItem(testutil.WithBulkQuantity("10"))
	require.NoError(t, store.CreateBulkItem(ctx, &bulk))

	resident := f.ResidentItem("res-1", testutil.WithResidentQuantity("2"), testutil.WithPrescription("rx-1"))
	require.NoError(t, store.CreateResidentItem(ctx, &resident))

	t.Run("debit guards stock", func(t *testing.T) {
		_, err := store.DebitBulkItem(ctx, bulk.ID, testutil.Dec("11"))
		assert.True(t, errors.IsInsufficientStock(err))

		updated, err := store.DebitBulkItem(ctx, bulk.ID, testutil.Dec("4"))
		require.NoError(t, err)
		assert.True(t, updated.Quantity.Equal(testutil.Dec("6")))
	})

	t.Run("quantity update clamps", func(t *testing.T) {
		change, err := store.UpdateResidentInventoryQuantity(ctx, resident.ID, testutil.Dec("-5"))
		require.NoError(t, err)
		assert.True(t, change.Clamped)

		got, err := store.GetResidentItem(ctx, resident.ID)
		require.NoError(t, err)
		assert.True(t, got.Quantity.IsZero())
		assert.NotNil(t, got.LastDispenseDate)
	})

	t.Run("rolled back unit leaves no trace", func(t *testing.T) {
		err := store.WithTx(ctx, func(tx Store) error {
			if _, err := tx.DebitBulkItem(ctx, bulk.ID, testutil.Dec("1")); err != nil {
				return err
			}
			return errors.BadRequest("abort")
		})
		require.Error(t, err)

		got, err := store.GetBulkItem(ctx, bulk.ID)
		require.NoError(t, err)
		assert.True(t, got.Quantity.Equal(testutil.Dec("6")))
	})

	t.Run("administration reconciles once", func(t *testing.T) {
		entry := domain.DispenseLogEntry{
			ResidentInventoryID: resident.ID,
			ResidentID:          "res-1",
			PrescriptionID:      "rx-1",
			AdministrationLogID: "adm-1",
			QuantityDispensed:   testutil.Dec("1"),
			Unit:                "tablet",
			TimeSlot:            domain.SlotMorning,
			Type:                domain.DispenseAuto,
			PreviousQuantity:    testutil.Dec("1"),
			NewQuantity:         testutil.Dec("0"),
			PerformedBy:         "system",
		}
		require.NoError(t, store.AppendDispenseLog(ctx, &entry))

		dup := entry
		dup.ID = ""
		err := store.AppendDispenseLog(ctx, &dup)
		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "CONFLICT", appErr.Code)

		logged, err := store.ListDispenseLog(ctx, DispenseLogFilter{AdministrationLogID: "adm-1"})
		require.NoError(t, err)
		assert.Len(t, logged, 1)
	})
}
