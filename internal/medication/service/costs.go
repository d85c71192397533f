package service

import (
	"context"
	"strings"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/repository"
	"github.com/shopspring/decimal"
)

// MedicationCost aggregates one medication across batches.
type MedicationCost struct {
	MedicationName  string          `json:"medication_name"`
	Unit            string          `json:"unit"`
	Quantity        decimal.Decimal `json:"quantity"`
	AverageUnitCost decimal.Decimal `json:"average_unit_cost"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	Batches         int             `json:"batches"`
}

// ResidentCostSummary splits a resident's stock by who paid for it.
type ResidentCostSummary struct {
	ResidentID        string           `json:"resident_id"`
	FacilityPurchased []MedicationCost `json:"facility_purchased"`
	RelativeBrought   []MedicationCost `json:"relative_brought"`
	Foreign           []MedicationCost `json:"foreign"`
	FacilityCost      decimal.Decimal  `json:"facility_cost"`
	ExternalCost      decimal.Decimal  `json:"external_cost"`
	ItemCount         int              `json:"item_count"`
}

// FacilityCostSummary totals every resident plus the bulk warehouse.
type FacilityCostSummary struct {
	Residents          []ResidentCostSummary `json:"residents"`
	ResidentStockValue decimal.Decimal       `json:"resident_stock_value"`
	BulkStockValue     decimal.Decimal       `json:"bulk_stock_value"`
	BulkItemCount      int                   `json:"bulk_item_count"`
	TotalValue         decimal.Decimal       `json:"total_value"`
}

// CostService values stock at weighted-average unit cost.
type CostService struct {
	store repository.Store
}

// NewCostService creates a new cost service
func NewCostService(store repository.Store) *CostService {
	return &CostService{store: store}
}

// ResidentSummary values one resident's stock. Family-supplied stock is listed but never costed.
func (s *CostService) ResidentSummary(ctx context.Context, residentID string) (*ResidentCostSummary, error) {
	items, err := s.store.ListResidentItems(ctx, repository.ResidentItemFilter{ResidentID: residentID})
	if err != nil {
		return nil, err
	}
	return summarizeResident(residentID, items), nil
}

// FacilitySummary values all resident stock, grouped by resident in first-seen order,
// and the bulk warehouse.
func (s *CostService) FacilitySummary(ctx context.Context) (*FacilityCostSummary, error) {
	items, err := s.store.ListResidentItems(ctx, repository.ResidentItemFilter{})
	if err != nil {
		return nil, err
	}
	bulk, err := s.store.ListBulkItems(ctx)
	if err != nil {
		return nil, err
	}

	var order []string
	byResident := make(map[string][]domain.ResidentItem)
	for _, item := range items {
		if _, seen := byResident[item.ResidentID]; !seen {
			order = append(order, item.ResidentID)
		}
		byResident[item.ResidentID] = append(byResident[item.ResidentID], item)
	}

	summary := &FacilityCostSummary{
		Residents:          make([]ResidentCostSummary, 0, len(order)),
		ResidentStockValue: decimal.Zero,
		BulkStockValue:     decimal.Zero,
		BulkItemCount:      len(bulk),
	}
	for _, residentID := range order {
		rs := summarizeResident(residentID, byResident[residentID])
		summary.Residents = append(summary.Residents, *rs)
		summary.ResidentStockValue = summary.ResidentStockValue.Add(rs.FacilityCost)
	}
	for _, item := range bulk {
		summary.BulkStockValue = summary.BulkStockValue.Add(item.Quantity.Mul(item.UnitCost))
	}
	summary.TotalValue = summary.ResidentStockValue.Add(summary.BulkStockValue)
	return summary, nil
}

func summarizeResident(residentID string, items []domain.ResidentItem) *ResidentCostSummary {
	var facility, relatives, foreign []domain.ResidentItem
	for _, item := range items {
		switch {
		case item.EntryMethod != domain.EntryExternalReceipt:
			facility = append(facility, item)
		case item.IsForeign:
			foreign = append(foreign, item)
		default:
			relatives = append(relatives, item)
		}
	}

	summary := &ResidentCostSummary{
		ResidentID:        residentID,
		FacilityPurchased: groupCosts(facility, true),
		RelativeBrought:   groupCosts(relatives, false),
		Foreign:           groupCosts(foreign, false),
		FacilityCost:      decimal.Zero,
		ExternalCost:      decimal.Zero,
		ItemCount:         len(items),
	}
	for _, c := range summary.FacilityPurchased {
		summary.FacilityCost = summary.FacilityCost.Add(c.TotalCost)
	}
	return summary
}

// groupCosts aggregates by medication name and unit. Uncosted groups report zero.
func groupCosts(items []domain.ResidentItem, costed bool) []MedicationCost {
	out := make([]MedicationCost, 0)
	index := make(map[string]int)
	lastCost := make(map[string]decimal.Decimal)

	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item.MedicationName)) + "|" + item.Unit
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, MedicationCost{
				MedicationName:  item.MedicationName,
				Unit:            item.Unit,
				Quantity:        decimal.Zero,
				AverageUnitCost: decimal.Zero,
				TotalCost:       decimal.Zero,
			})
		}
		out[i].Quantity = out[i].Quantity.Add(item.Quantity)
		out[i].Batches++
		if costed {
			out[i].TotalCost = out[i].TotalCost.Add(item.Quantity.Mul(item.UnitCost))
			lastCost[key] = item.UnitCost
		}
	}

	if !costed {
		return out
	}
	for key, i := range index {
		if out[i].Quantity.IsPositive() {
			out[i].AverageUnitCost = out[i].TotalCost.Div(out[i].Quantity).Round(4)
		} else {
			out[i].AverageUnitCost = lastCost[key]
		}
	}
	return out
}
