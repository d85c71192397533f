package service_test

import (
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

func receiptForm() validation.ReceiptForm {
	return validation.ReceiptForm{
		MedicationName: "Ibuprofen 400mg",
		ExpirationDate: "2027-06-30",
		Quantity:       testutil.Dec("20"),
		Unit:           "tablet",
		BroughtBy:      "Anna Berger",
		Relationship:   "daughter",
		UnitCost:       testutil.Dec("5.00"),
	}
}

func TestRecordExternalReceipt_Relatives(t *testing.T) {
	h := newHarness(t)
	ctx := operatorCtx()

	item, err := h.ledger.Receipts.RecordExternalReceipt(ctx, "res-1", receiptForm())
	require.NoError(t, err)

	assert.Equal(t, "res-1", item.ResidentID)
	assert.Equal(t, domain.EntryExternalReceipt, item.EntryMethod)
	assert.Equal(t, domain.SupplierRelatives, item.SupplierID)
	assert.Equal(t, domain.FundingFamily, item.FundingSource)
	assert.True(t, item.UnitCost.IsZero(), "family stock is never costed")
	assert.False(t, item.IsForeign)
	assert.Nil(t, item.OriginCountry)
	require.NotNil(t, item.ExpirationDate)
	assert.Equal(t, "2027-06-30", item.ExpirationDate.Format(validation.DateLayout))
	assert.Equal(t, domain.StatusAvailable, item.Status)

	receipts, err := h.store.ListReceipts(ctx, "res-1")
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, item.ID, receipts[0].ResidentItemID)
	assert.Equal(t, "nurse-1", receipts[0].ReceivedBy)
	assert.Equal(t, "daughter", receipts[0].Relationship)
	require.NotNil(t, item.SourceID)
	assert.Equal(t, receipts[0].ID, *item.SourceID)

	h.events.AssertEventPublished(t, messaging.EventReceiptRecorded)
}

func TestRecordExternalReceipt_Foreign(t *testing.T) {
	h := newHarness(t)
	form := receiptForm()
	form.IsForeign = true
	form.OriginCountry = "AT"

	item, err := h.ledger.Receipts.RecordExternalReceipt(operatorCtx(), "res-1", form)
	require.NoError(t, err)
	assert.Equal(t, domain.SupplierForeign, item.SupplierID)
	assert.True(t, item.IsForeign)
	require.NotNil(t, item.OriginCountry)
	assert.Equal(t, "AT", *item.OriginCountry)
}

func TestRecordExternalReceipt_NeverMerges(t *testing.T) {
	h := newHarness(t)
	ctx := operatorCtx()

	first, err := h.ledger.Receipts.RecordExternalReceipt(ctx, "res-1", receiptForm())
	require.NoError(t, err)
	second, err := h.ledger.Receipts.RecordExternalReceipt(ctx, "res-1", receiptForm())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	items, err := h.store.ListResidentItems(ctx, repository.ResidentItemFilter{ResidentID: "res-1"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRecordExternalReceipt_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := operatorCtx()

	form := receiptForm()
	form.IsForeign = true
	_, err := h.ledger.Receipts.RecordExternalReceipt(ctx, "res-1", form)
	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Details, "origin_country")

	form = receiptForm()
	form.ExpirationDate = "30.06.2027"
	_, err = h.ledger.Receipts.RecordExternalReceipt(ctx, "res-1", form)
	assert.True(t, errors.IsValidation(err))

	form = receiptForm()
	form.Quantity = testutil.Dec("-1")
	_, err = h.ledger.Receipts.RecordExternalReceipt(ctx, "res-1", form)
	assert.True(t, errors.IsValidation(err))

	items, err := h.store.ListResidentItems(ctx, repository.ResidentItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
	h.events.AssertNoEventsPublished(t)
}
