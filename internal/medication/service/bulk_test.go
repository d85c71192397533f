package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/medflow/medication-ledger/internal/medication/catalog"
	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/service"
	"github.com/medflow/medication-ledger/internal/medication/validation"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withCatalog(o *service.Options) {
	o.Catalog = catalog.NewStaticOracle(catalog.File{
		Suppliers: []catalog.Supplier{{ID: "SUP-PHARMA", Name: "Stadt-Apotheke"}},
		Products: []catalog.Product{{
			Code:             "PZN-001",
			Name:             "Metformin 500mg",
			ActiveIngredient: "metformin",
			Form:             "tablet",
			Unit:             "tablet",
			UnitPrice:        testutil.Dec("0.12"),
			SupplierID:       "SUP-PHARMA",
		}},
	})
}

func bulkForm() validation.BulkItemForm {
	return validation.BulkItemForm{
		MedicationName: "Aspirin 100mg",
		BatchNumber:    "ASP-01",
		ExpirationDate: "2027-01-31",
		Quantity:       testutil.Dec("200"),
		Unit:           "tablet",
		UnitCost:       testutil.Dec("0.05"),
		MinimumStock:   testutil.Dec("20"),
	}
}

func TestBulkService_CreateAndUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, err := h.ledger.Bulk.Create(ctx, bulkForm())
	require.NoError(t, err)
	assert.Equal(t, domain.EntryManual, item.EntryMethod)
	assert.Equal(t, domain.StatusAvailable, item.Status)

	form := bulkForm()
	form.Quantity = testutil.Dec("15")
	form.EntryMethod = "xml_import"
	updated, err := h.ledger.Bulk.Update(ctx, item.ID, form)
	require.NoError(t, err)
	assert.Equal(t, "15", updated.Quantity.String())
	assert.Equal(t, domain.EntryManual, updated.EntryMethod, "entry method is fixed at creation")
	assert.Equal(t, domain.StatusLow, updated.Status)

	form.UnitCost = testutil.Dec("-1")
	_, err = h.ledger.Bulk.Update(ctx, item.ID, form)
	assert.True(t, errors.IsValidation(err))

	_, err = h.ledger.Bulk.Update(ctx, "missing", bulkForm())
	assert.True(t, errors.IsNotFound(err))
}

func TestImportXML_FillsFromCatalog(t *testing.T) {
	h := newHarness(t, withCatalog)
	ctx := context.Background()

	note := `<delivery supplier="" funding="facility">
  <item code="PZN-001" batch="L-77" expires="2027-05-31" quantity="200"/>
  <item name="Ramipril 5mg" batch="R-1" quantity="50" unit="tablet" unitCost="0.30" minimumStock="10"/>
</delivery>`

	items, err := h.ledger.Bulk.ImportXML(ctx, strings.NewReader(note))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Metformin 500mg", items[0].MedicationName)
	assert.Equal(t, "metformin", items[0].ActiveIngredient)
	assert.Equal(t, "tablet", items[0].Unit)
	assert.Equal(t, "SUP-PHARMA", items[0].SupplierID)
	assert.True(t, testutil.Dec("0.12").Equal(items[0].UnitCost))
	assert.Equal(t, domain.EntryXMLImport, items[0].EntryMethod)
	require.NotNil(t, items[0].ExpirationDate)

	assert.Equal(t, "Ramipril 5mg", items[1].MedicationName)
	assert.True(t, testutil.Dec("0.30").Equal(items[1].UnitCost))
	assert.Equal(t, "facility", items[1].FundingSource)

	stored, err := h.store.ListBulkItems(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestImportXML_RejectsWholeNote(t *testing.T) {
	h := newHarness(t, withCatalog)
	ctx := context.Background()

	note := `<delivery supplier="SUP-PHARMA">
  <item code="PZN-404" batch="X" quantity="1"/>
  <item name="Aspirin" batch="A" quantity="lots" unit="tablet"/>
  <item name="Ramipril" batch="R" quantity="5" unit="tablet"/>
</delivery>`

	_, err := h.ledger.Bulk.ImportXML(ctx, strings.NewReader(note))
	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "unknown catalog product", appErr.Details["items[0].code"])
	assert.Equal(t, "must be a number", appErr.Details["items[1].quantity"])
	assert.NotContains(t, appErr.Details, "items[2].quantity")

	stored, err := h.store.ListBulkItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestImportXML_Malformed(t *testing.T) {
	h := newHarness(t)

	_, err := h.ledger.Bulk.ImportXML(context.Background(), strings.NewReader("<delivery><item"))
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "BAD_REQUEST", appErr.Code)

	_, err = h.ledger.Bulk.ImportXML(context.Background(), strings.NewReader("<delivery></delivery>"))
	assert.True(t, errors.IsValidation(err))
}
