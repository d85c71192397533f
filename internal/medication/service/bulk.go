package service

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/medflow/medication-ledger/internal/medication/catalog"
	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/repository"
	"github.com/medflow/medication-ledger/internal/medication/validation"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

// BulkService maintains the central warehouse: manual entry, direct edits and
// supplier delivery imports.
type BulkService struct {
	store   repository.Store
	catalog catalog.Oracle
	logger  *logger.Logger
	now     Clock
}

// NewBulkService creates a new bulk service. A nil oracle disables catalog fill-in.
func NewBulkService(store repository.Store, oracle catalog.Oracle, log *logger.Logger, clock Clock) *BulkService {
	return &BulkService{
		store:   store,
		catalog: oracle,
		logger:  log,
		now:     clock,
	}
}

// Create records a manually entered bulk item.
func (s *BulkService) Create(ctx context.Context, form validation.BulkItemForm) (*domain.BulkItem, error) {
	if form.EntryMethod == "" {
		form.EntryMethod = string(domain.EntryManual)
	}
	item, err := bulkItemFromForm(form)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateBulkItem(ctx, item); err != nil {
		return nil, err
	}
	item.RefreshStatus(s.now())

	s.logger.Info().
		Str("item_id", item.ID).
		Str("medication", item.MedicationName).
		Str("quantity", item.Quantity.String()).
		Msg("bulk item created")

	return item, nil
}

// Update edits a bulk item in place. The entry method is fixed at creation.
func (s *BulkService) Update(ctx context.Context, id string, form validation.BulkItemForm) (*domain.BulkItem, error) {
	existing, err := s.store.GetBulkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	form.EntryMethod = string(existing.EntryMethod)

	item, err := bulkItemFromForm(form)
	if err != nil {
		return nil, err
	}
	item.ID = id

	if err := s.store.UpdateBulkItem(ctx, item); err != nil {
		return nil, err
	}
	item.RefreshStatus(s.now())

	s.logger.Info().
		Str("item_id", id).
		Str("previous_quantity", existing.Quantity.String()).
		Str("quantity", item.Quantity.String()).
		Msg("bulk item updated")

	return item, nil
}

func bulkItemFromForm(form validation.BulkItemForm) (*domain.BulkItem, error) {
	if err := validation.BulkItem(form); err != nil {
		return nil, err
	}
	expires, err := validation.ParseDate(form.ExpirationDate)
	if err != nil {
		return nil, err
	}

	return &domain.BulkItem{
		Descriptor: domain.Descriptor{
			MedicationName:   strings.TrimSpace(form.MedicationName),
			ActiveIngredient: form.ActiveIngredient,
			Form:             form.Form,
		},
		BatchNumber:    strings.TrimSpace(form.BatchNumber),
		ExpirationDate: expires,
		Quantity:       form.Quantity,
		Unit:           form.Unit,
		UnitCost:       form.UnitCost,
		EntryMethod:    domain.EntryMethod(form.EntryMethod),
		SupplierID:     form.SupplierID,
		FundingSource:  form.FundingSource,
		MinimumStock:   form.MinimumStock,
	}, nil
}

// deliveryNote is a supplier's XML delivery:
//
//	<delivery supplier="SUP-PHARMA" funding="facility">
//	  <item code="PZN-001" batch="L123" expires="2027-01-31" quantity="200" unitCost="0.12"/>
//	</delivery>
type deliveryNote struct {
	XMLName  xml.Name       `xml:"delivery"`
	Supplier string         `xml:"supplier,attr"`
	Funding  string         `xml:"funding,attr"`
	Items    []deliveryLine `xml:"item"`
}

type deliveryLine struct {
	Code             string `xml:"code,attr"`
	Name             string `xml:"name,attr"`
	ActiveIngredient string `xml:"activeIngredient,attr"`
	Form             string `xml:"form,attr"`
	Batch            string `xml:"batch,attr"`
	Expires          string `xml:"expires,attr"`
	Quantity         string `xml:"quantity,attr"`
	Unit             string `xml:"unit,attr"`
	UnitCost         string `xml:"unitCost,attr"`
	MinimumStock     string `xml:"minimumStock,attr"`
}

// ImportXML books every line of a delivery note as an xml_import bulk item in one unit
// of work. Lines naming a catalog code get missing descriptor fields, unit price and
// supplier from the catalog. Nothing is stored unless every line validates.
func (s *BulkService) ImportXML(ctx context.Context, r io.Reader) ([]domain.BulkItem, error) {
	var note deliveryNote
	if err := xml.NewDecoder(r).Decode(&note); err != nil {
		return nil, errors.BadRequest("invalid delivery note: " + err.Error())
	}
	if len(note.Items) == 0 {
		return nil, errors.Validation(map[string]string{"items": "delivery note has no items"})
	}

	details := make(map[string]string)
	items := make([]domain.BulkItem, 0, len(note.Items))
	for i, line := range note.Items {
		prefix := fmt.Sprintf("items[%d].", i)
		form, lineErrs, err := s.deliveryForm(ctx, note, line)
		if err != nil {
			return nil, err
		}
		for field, msg := range lineErrs {
			details[prefix+field] = msg
		}
		if len(lineErrs) > 0 {
			continue
		}

		item, err := bulkItemFromForm(form)
		if err != nil {
			var appErr *errors.AppError
			if errors.As(err, &appErr) && appErr.Details != nil {
				for field, msg := range appErr.Details {
					details[prefix+field] = msg
				}
				continue
			}
			return nil, err
		}
		items = append(items, *item)
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		for i := range items {
			if err := tx.CreateBulkItem(ctx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range items {
		items[i].RefreshStatus(now)
	}

	s.logger.Info().
		Str("supplier_id", note.Supplier).
		Int("items", len(items)).
		Msg("delivery note imported")

	return items, nil
}

// deliveryForm turns one line into a form. Parse problems come back as field details;
// only catalog failures other than not-found are returned as errors.
func (s *BulkService) deliveryForm(ctx context.Context, note deliveryNote, line deliveryLine) (validation.BulkItemForm, map[string]string, error) {
	details := make(map[string]string)
	form := validation.BulkItemForm{
		MedicationName:   line.Name,
		ActiveIngredient: line.ActiveIngredient,
		Form:             line.Form,
		BatchNumber:      line.Batch,
		ExpirationDate:   line.Expires,
		Unit:             line.Unit,
		EntryMethod:      string(domain.EntryXMLImport),
		SupplierID:       note.Supplier,
		FundingSource:    note.Funding,
	}

	if line.Code != "" && s.catalog != nil {
		product, err := s.catalog.Product(ctx, line.Code)
		switch {
		case errors.IsNotFound(err):
			details["code"] = "unknown catalog product"
		case err != nil:
			return form, nil, err
		default:
			fillFromProduct(&form, &line, product)
		}
	}

	if strings.TrimSpace(line.Quantity) == "" {
		details["quantity"] = "this field is required"
	} else if d, err := decimal.NewFromString(line.Quantity); err != nil {
		details["quantity"] = "must be a number"
	} else {
		form.Quantity = d
	}
	if line.UnitCost != "" {
		if d, err := decimal.NewFromString(line.UnitCost); err != nil {
			details["unit_cost"] = "must be a number"
		} else {
			form.UnitCost = d
		}
	}
	if line.MinimumStock != "" {
		if d, err := decimal.NewFromString(line.MinimumStock); err != nil {
			details["minimum_stock"] = "must be a number"
		} else {
			form.MinimumStock = d
		}
	}

	return form, details, nil
}

func fillFromProduct(form *validation.BulkItemForm, line *deliveryLine, p *catalog.Product) {
	if form.MedicationName == "" {
		form.MedicationName = p.Name
	}
	if form.ActiveIngredient == "" {
		form.ActiveIngredient = p.ActiveIngredient
	}
	if form.Form == "" {
		form.Form = p.Form
	}
	if form.Unit == "" {
		form.Unit = p.Unit
	}
	if form.SupplierID == "" {
		form.SupplierID = p.SupplierID
	}
	if line.UnitCost == "" {
		form.UnitCost = p.UnitPrice
	}
}
