package service_test

import (
	"context"
	"testing"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCostItems(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	f := h.fixtures

	relatives := f.ResidentItem("res-1", testutil.WithResidentName("Ibuprofen"), testutil.WithResidentQuantity("20"))
	relatives.EntryMethod = domain.EntryExternalReceipt
	relatives.UnitCost = testutil.Dec("0")

	foreign := f.ResidentItem("res-1", testutil.WithResidentName("Novalgin"), testutil.WithResidentQuantity("10"))
	foreign.EntryMethod = domain.EntryExternalReceipt
	foreign.IsForeign = true
	foreign.UnitCost = testutil.Dec("0")

	items := []domain.ResidentItem{
		f.ResidentItem("res-1", testutil.WithResidentName("Metformin"), testutil.WithResidentQuantity("10")),
		f.ResidentItem("res-1", testutil.WithResidentName("metformin"), testutil.WithResidentQuantity("30"), func(r *domain.ResidentItem) {
			r.UnitCost = testutil.Dec("0.40")
		}),
		relatives,
		foreign,
		f.ResidentItem("res-2", testutil.WithResidentName("Ramipril"), testutil.WithResidentQuantity("4"), func(r *domain.ResidentItem) {
			r.UnitCost = testutil.Dec("1.25")
		}),
	}
	for i := range items {
		require.NoError(t, h.store.CreateResidentItem(ctx, &items[i]))
	}

	bulk := f.BulkItem()
	require.NoError(t, h.store.CreateBulkItem(ctx, &bulk))
}

func TestResidentSummary(t *testing.T) {
	h := newHarness(t)
	seedCostItems(t, h)

	summary, err := h.ledger.Costs.ResidentSummary(context.Background(), "res-1")
	require.NoError(t, err)

	assert.Equal(t, 4, summary.ItemCount)
	require.Len(t, summary.FacilityPurchased, 1)
	metformin := summary.FacilityPurchased[0]
	assert.Equal(t, "40", metformin.Quantity.String())
	assert.Equal(t, 2, metformin.Batches)
	// 10 @ 0.50 + 30 @ 0.40 = 17 / 40
	assert.True(t, testutil.Dec("17").Equal(metformin.TotalCost))
	assert.True(t, testutil.Dec("0.425").Equal(metformin.AverageUnitCost))

	require.Len(t, summary.RelativeBrought, 1)
	assert.Equal(t, "Ibuprofen", summary.RelativeBrought[0].MedicationName)
	assert.True(t, summary.RelativeBrought[0].TotalCost.IsZero())
	require.Len(t, summary.Foreign, 1)
	assert.Equal(t, "Novalgin", summary.Foreign[0].MedicationName)

	assert.True(t, testutil.Dec("17").Equal(summary.FacilityCost))
	assert.True(t, summary.ExternalCost.IsZero())
}

func TestFacilitySummary(t *testing.T) {
	h := newHarness(t)
	seedCostItems(t, h)

	summary, err := h.ledger.Costs.FacilitySummary(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Residents, 2)
	assert.Equal(t, "res-1", summary.Residents[0].ResidentID)
	assert.Equal(t, "res-2", summary.Residents[1].ResidentID)
	assert.True(t, testutil.Dec("5").Equal(summary.Residents[1].FacilityCost))

	assert.True(t, testutil.Dec("22").Equal(summary.ResidentStockValue))
	assert.Equal(t, 1, summary.BulkItemCount)
	assert.True(t, testutil.Dec("50").Equal(summary.BulkStockValue))
	assert.True(t, testutil.Dec("72").Equal(summary.TotalValue))
}

func TestResidentSummary_Empty(t *testing.T) {
	h := newHarness(t)

	summary, err := h.ledger.Costs.ResidentSummary(context.Background(), "res-9")
	require.NoError(t, err)
	assert.Zero(t, summary.ItemCount)
	assert.Empty(t, summary.FacilityPurchased)
	assert.True(t, summary.FacilityCost.IsZero())
}
