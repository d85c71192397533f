package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/shopspring/decimal"
)

// FixtureFactory creates ledger fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
	now      time.Time
}

// NewFixtureFactory creates a new fixture factory anchored at now.
func NewFixtureFactory(now time.Time) *FixtureFactory {
	return &FixtureFactory{now: now}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Dec parses a decimal literal and panics on bad input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DaysFromNow returns a date n calendar days after the factory's anchor.
func (f *FixtureFactory) DaysFromNow(n int) *time.Time {
	d := f.now.AddDate(0, 0, n)
	return &d
}

// BulkItem creates a warehouse item fixture: 100 tablets at 0.50, expiring in a year.
func (f *FixtureFactory) BulkItem(opts ...func(*domain.BulkItem)) domain.BulkItem {
	seq := f.nextSeq()

	item := domain.BulkItem{
		ID: uuid.New().String(),
		Descriptor: domain.Descriptor{
			MedicationName: fmt.Sprintf("Test Medication %d", seq),
			Form:           "tablet",
		},
		BatchNumber:    fmt.Sprintf("B-%04d", seq),
		ExpirationDate: f.DaysFromNow(365),
		Quantity:       Dec("100"),
		Unit:           "tablet",
		UnitCost:       Dec("0.50"),
		EntryMethod:    domain.EntryManual,
		SupplierID:     "SUP-PHARMACY",
		FundingSource:  "facility",
		MinimumStock:   Dec("10"),
	}

	for _, opt := range opts {
		opt(&item)
	}

	return item
}

// WithBulkName sets the medication name of a bulk item
func WithBulkName(name string) func(*domain.BulkItem) {
	return func(b *domain.BulkItem) {
		b.MedicationName = name
	}
}

// WithBulkQuantity sets the quantity of a bulk item
func WithBulkQuantity(qty string) func(*domain.BulkItem) {
	return func(b *domain.BulkItem) {
		b.Quantity = Dec(qty)
	}
}

// WithBulkCost sets the unit cost of a bulk item
func WithBulkCost(cost string) func(*domain.BulkItem) {
	return func(b *domain.BulkItem) {
		b.UnitCost = Dec(cost)
	}
}

// WithBulkExpiry sets the expiration date of a bulk item
func WithBulkExpiry(expires *time.Time) func(*domain.BulkItem) {
	return func(b *domain.BulkItem) {
		b.ExpirationDate = expires
	}
}

// ResidentItem creates a resident stock fixture: 30 tablets at 0.50, expiring in a year.
func (f *FixtureFactory) ResidentItem(residentID string, opts ...func(*domain.ResidentItem)) domain.ResidentItem {
	seq := f.nextSeq()

	item := domain.ResidentItem{
		ID:         uuid.New().String(),
		ResidentID: residentID,
		Descriptor: domain.Descriptor{
			MedicationName: fmt.Sprintf("Test Medication %d", seq),
			Form:           "tablet",
		},
		BatchNumber:    fmt.Sprintf("R-%04d", seq),
		ExpirationDate: f.DaysFromNow(365),
		Quantity:       Dec("30"),
		Unit:           "tablet",
		UnitCost:       Dec("0.50"),
		EntryMethod:    domain.EntryBulkTransfer,
		SupplierID:     "SUP-PHARMACY",
		FundingSource:  "facility",
		MinimumStock:   Dec("5"),
	}

	for _, opt := range opts {
		opt(&item)
	}

	return item
}

// WithResidentName sets the medication name of a resident item
func WithResidentName(name string) func(*domain.ResidentItem) {
	return func(r *domain.ResidentItem) {
		r.MedicationName = name
	}
}

// WithResidentQuantity sets the quantity of a resident item
func WithResidentQuantity(qty string) func(*domain.ResidentItem) {
	return func(r *domain.ResidentItem) {
		r.Quantity = Dec(qty)
	}
}

// WithPrescription links a resident item to a prescription
func WithPrescription(prescriptionID string) func(*domain.ResidentItem) {
	return func(r *domain.ResidentItem) {
		r.PrescriptionID = &prescriptionID
	}
}

// WithResidentExpiry sets the expiration date of a resident item
func WithResidentExpiry(expires *time.Time) func(*domain.ResidentItem) {
	return func(r *domain.ResidentItem) {
		r.ExpirationDate = expires
	}
}

// Prescription creates an active daily prescription with one tablet in the morning.
func (f *FixtureFactory) Prescription(residentID, medicationName string, opts ...func(*domain.Prescription)) domain.Prescription {
	p := domain.Prescription{
		ID:             uuid.New().String(),
		ResidentID:     residentID,
		MedicationName: medicationName,
		Active:         true,
		Frequency:      domain.FrequencyDaily,
		Schedule: map[domain.TimeSlot]domain.SlotDose{
			domain.SlotMorning: {Enabled: true, Dose: Dec("1"), Unit: "tablet"},
		},
	}

	for _, opt := range opts {
		opt(&p)
	}

	return p
}

// WithDose sets the dose for one time slot
func WithDose(slot domain.TimeSlot, qty string) func(*domain.Prescription) {
	return func(p *domain.Prescription) {
		p.Schedule[slot] = domain.SlotDose{Enabled: true, Dose: Dec(qty), Unit: "tablet"}
	}
}

// WithSpecificDays switches the prescription to a weekly schedule
func WithSpecificDays(days ...time.Weekday) func(*domain.Prescription) {
	return func(p *domain.Prescription) {
		p.Frequency = domain.FrequencySpecificDays
		p.DaysOfWeek = days
	}
}
