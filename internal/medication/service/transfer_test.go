package service_test

import (
	"context"
	"testing"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/repository"
	"github.com/medflow/medication-ledger/internal/medication/validation"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/messaging"
	"github.com/medflow/medication-ledger/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTransfer_OpensResidentItem(t *testing.T) {
	h := newHarness(t)
	ctx := operatorCtx()

	bulk := h.fixtures.BulkItem(testutil.WithBulkName("Metformin 500mg"))
	require.NoError(t, h.store.CreateBulkItem(ctx, &bulk))

	transfer, err := h.ledger.Transfers.CreateTransfer(ctx, validation.TransferForm{
		BulkItemID:     bulk.ID,
		ResidentID:     "res-1",
		Quantity:       testutil.Dec("20"),
		Reason:         "initial_supply",
		PrescriptionID: "rx-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "nurse-1", transfer.PerformedBy)
	assert.Equal(t, domain.ReasonInitialSupply, transfer.Reason)
	assert.True(t, testutil.Dec("0.50").Equal(transfer.UnitCost))

	left, err := h.store.GetBulkItem(ctx, bulk.ID)
	require.NoError(t, err)
	assert.Equal(t, "80", left.Quantity.String())

	item, err := h.store.GetResidentItem(ctx, transfer.ResidentItemID)
	require.NoError(t, err)
	assert.Equal(t, "20", item.Quantity.String())
	assert.Equal(t, domain.EntryBulkTransfer, item.EntryMethod)
	assert.Equal(t, bulk.BatchNumber, item.BatchNumber)
	assert.Equal(t, bulk.SupplierID, item.SupplierID)
	require.NotNil(t, item.SourceID)
	assert.Equal(t, bulk.ID, *item.SourceID)
	require.NotNil(t, item.PrescriptionID)
	assert.Equal(t, "rx-1", *item.PrescriptionID)

	transfers, err := h.store.ListTransfers(ctx, "res-1")
	require.NoError(t, err)
	assert.Len(t, transfers, 1)

	h.events.AssertEventPublished(t, messaging.EventTransferCreated)
}

func TestCreateTransfer_CreditsSameBatchAtWeightedCost(t *testing.T) {
	h := newHarness(t)
	ctx := operatorCtx()

	bulk := h.fixtures.BulkItem(testutil.WithBulkName("Metformin 500mg"), testutil.WithBulkCost("0.80"))
	require.NoError(t, h.store.CreateBulkItem(ctx, &bulk))

	existing := h.fixtures.ResidentItem("res-1",
		testutil.WithResidentName("metformin 500MG"),
		testutil.WithResidentQuantity("10"))
	existing.BatchNumber = bulk.BatchNumber
	require.NoError(t, h.store.CreateResidentItem(ctx, &existing))

	transfer, err := h.ledger.Transfers.CreateTransfer(ctx, validation.TransferForm{
		BulkItemID: bulk.ID,
		ResidentID: "res-1",
		Quantity:   testutil.Dec("30"),
		Reason:     "refill",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, transfer.ResidentItemID)

	items, err := h.store.ListResidentItems(ctx, repository.ResidentItemFilter{ResidentID: "res-1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "40", items[0].Quantity.String())
	// 10 @ 0.50 + 30 @ 0.80 = 29 / 40
	assert.True(t, testutil.Dec("0.725").Equal(items[0].UnitCost), items[0].UnitCost.String())
}

func TestCreateTransfer_DifferentBatchOpensNewItem(t *testing.T) {
	h := newHarness(t)
	ctx := operatorCtx()

	bulk := h.fixtures.BulkItem(testutil.WithBulkName("Ramipril 5mg"))
	require.NoError(t, h.store.CreateBulkItem(ctx, &bulk))
	existing := h.fixtures.ResidentItem("res-1", testutil.WithResidentName("Ramipril 5mg"))
	require.NoError(t, h.store.CreateResidentItem(ctx, &existing))

	transfer, err := h.ledger.Transfers.CreateTransfer(ctx, validation.TransferForm{
		BulkItemID: bulk.ID,
		ResidentID: "res-1",
		Quantity:   testutil.Dec("5"),
		Reason:     "refill",
	})
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, transfer.ResidentItemID)
}

func TestCreateTransfer_NeverTopsUpFamilyStock(t *testing.T) {
	h := newHarness(t)
	ctx := operatorCtx()

	bulk := h.fixtures.BulkItem(testutil.WithBulkName("Metformin"), testutil.WithBulkCost("2"))
	require.NoError(t, h.store.CreateBulkItem(ctx, &bulk))

	family, err := h.ledger.Receipts.RecordExternalReceipt(ctx, "res-1", validation.ReceiptForm{
		MedicationName: "Metformin",
		BatchNumber:    bulk.BatchNumber,
		Quantity:       testutil.Dec("10"),
		Unit:           "tablet",
		BroughtBy:      "Anna Keller",
		Relationship:   "daughter",
	})
	require.NoError(t, err)

	transfer, err := h.ledger.Transfers.CreateTransfer(ctx, validation.TransferForm{
		BulkItemID: bulk.ID,
		ResidentID: "res-1",
		Quantity:   testutil.Dec("10"),
		Reason:     "refill",
	})
	require.NoError(t, err)
	assert.NotEqual(t, family.ID, transfer.ResidentItemID)

	item, err := h.store.GetResidentItem(ctx, transfer.ResidentItemID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryBulkTransfer, item.EntryMethod)
	assert.Equal(t, "10", item.Quantity.String())
	assert.True(t, testutil.Dec("2").Equal(item.UnitCost))

	untouched, err := h.store.GetResidentItem(ctx, family.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", untouched.Quantity.String())
	assert.True(t, untouched.UnitCost.IsZero())

	summary, err := h.ledger.Costs.ResidentSummary(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, "20", summary.FacilityCost.String())
}

func TestCreateTransfer_InsufficientStock(t *testing.T) {
	h := newHarness(t)
	ctx := operatorCtx()

	bulk := h.fixtures.BulkItem()
	require.NoError(t, h.store.CreateBulkItem(ctx, &bulk))

	_, err := h.ledger.Transfers.CreateTransfer(ctx, validation.TransferForm{
		BulkItemID: bulk.ID,
		ResidentID: "res-1",
		Quantity:   testutil.Dec("150"),
		Reason:     "refill",
	})
	require.Error(t, err)
	assert.True(t, errors.IsInsufficientStock(err))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "100", appErr.Details["available"])
	assert.Equal(t, "150", appErr.Details["requested"])

	left, err := h.store.GetBulkItem(ctx, bulk.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", left.Quantity.String())

	items, err := h.store.ListResidentItems(ctx, repository.ResidentItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
	h.events.AssertNoEventsPublished(t)
}

func TestCreateTransfer_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ledger.Transfers.CreateTransfer(ctx, validation.TransferForm{
		BulkItemID: "bulk-1",
		ResidentID: "res-1",
		Quantity:   testutil.Dec("0"),
		Reason:     "gift",
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Details, "quantity")
	assert.Contains(t, appErr.Details, "reason")

	_, err = h.ledger.Transfers.CreateTransfer(ctx, validation.TransferForm{
		BulkItemID: "missing",
		ResidentID: "res-1",
		Quantity:   testutil.Dec("1"),
		Reason:     "other",
	})
	assert.True(t, errors.IsNotFound(err))
}

func TestCreateTransfer_SystemOperatorWithoutActor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bulk := h.fixtures.BulkItem()
	require.NoError(t, h.store.CreateBulkItem(ctx, &bulk))

	transfer, err := h.ledger.Transfers.CreateTransfer(ctx, validation.TransferForm{
		BulkItemID: bulk.ID,
		ResidentID: "res-2",
		Quantity:   testutil.Dec("0.5"),
		Reason:     "other",
		Notes:      "half tablet for trial",
	})
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", transfer.PerformedBy)
	require.NotNil(t, transfer.Notes)
	assert.Equal(t, "half tablet for trial", *transfer.Notes)
}
