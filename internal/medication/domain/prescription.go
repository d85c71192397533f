package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeSlot is one of the daily administration rounds.
type TimeSlot string

const (
	SlotMorning TimeSlot = "morning"
	SlotNoon    TimeSlot = "noon"
	SlotEvening TimeSlot = "evening"
	SlotNight   TimeSlot = "night"
)

// TimeSlots in round order.
var TimeSlots = []TimeSlot{SlotMorning, SlotNoon, SlotEvening, SlotNight}

// Valid reports whether s is a known round.
func (s TimeSlot) Valid() bool {
	for _, slot := range TimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// Frequency of a prescription schedule.
type Frequency string

const (
	FrequencyDaily        Frequency = "daily"
	FrequencySpecificDays Frequency = "specific_days"
)

// SlotDose is the scheduled amount for one round.
type SlotDose struct {
	Enabled bool            `json:"enabled" yaml:"enabled"`
	Dose    decimal.Decimal `json:"dose" yaml:"dose"`
	Unit    string          `json:"unit" yaml:"unit"`
}

// Prescription is the read-only view of a schedule owned by the prescription service.
type Prescription struct {
	ID             string                `json:"id" yaml:"id"`
	ResidentID     string                `json:"resident_id" yaml:"resident_id"`
	MedicationName string                `json:"medication_name" yaml:"medication_name"`
	Active         bool                  `json:"active" yaml:"active"`
	AsNeeded       bool                  `json:"as_needed" yaml:"as_needed"`
	Frequency      Frequency             `json:"frequency" yaml:"frequency"`
	DaysOfWeek     []time.Weekday        `json:"days_of_week,omitempty" yaml:"days_of_week"`
	Schedule       map[TimeSlot]SlotDose `json:"schedule" yaml:"schedule"`
}

// DoseFor returns the scheduled dose for a slot. ok is false when the slot is
// disabled, missing, or schedules nothing.
func (p *Prescription) DoseFor(slot TimeSlot) (dose decimal.Decimal, unit string, ok bool) {
	sd, found := p.Schedule[slot]
	if !found || !sd.Enabled || !sd.Dose.IsPositive() {
		return decimal.Zero, "", false
	}
	return sd.Dose, sd.Unit, true
}

// DailyDose sums every enabled slot.
func (p *Prescription) DailyDose() decimal.Decimal {
	total := decimal.Zero
	for _, slot := range TimeSlots {
		if dose, _, ok := p.DoseFor(slot); ok {
			total = total.Add(dose)
		}
	}
	return total
}

// Unit returns the first unit named by an enabled slot.
func (p *Prescription) Unit() string {
	for _, slot := range TimeSlots {
		if _, unit, ok := p.DoseFor(slot); ok && unit != "" {
			return unit
		}
	}
	return ""
}

// DaysPerWeek counts distinct scheduled weekdays.
func (p *Prescription) DaysPerWeek() int {
	seen := make(map[time.Weekday]bool, 7)
	for _, d := range p.DaysOfWeek {
		if d >= time.Sunday && d <= time.Saturday {
			seen[d] = true
		}
	}
	return len(seen)
}

// AverageDailyDose is the dose averaged over a week. specific_days schedules are
// scaled by daysPerWeek/7; unknown frequencies count as daily.
func (p *Prescription) AverageDailyDose() decimal.Decimal {
	daily := p.DailyDose()
	if p.Frequency != FrequencySpecificDays {
		return daily
	}
	days := p.DaysPerWeek()
	if days == 0 {
		return decimal.Zero
	}
	return daily.Mul(decimal.NewFromInt(int64(days))).Div(decimal.NewFromInt(7))
}

// AdministrationStatus is the outcome the administration service reports.
type AdministrationStatus string

const (
	AdministrationGiven   AdministrationStatus = "given"
	AdministrationRefused AdministrationStatus = "refused"
)

// AdministrationEvent is one recorded administration of a scheduled dose.
type AdministrationEvent struct {
	ID             string               `json:"id"`
	PrescriptionID string               `json:"prescription_id"`
	ResidentID     string               `json:"resident_id"`
	Status         AdministrationStatus `json:"status"`
	TimeSlot       TimeSlot             `json:"time_slot"`
	AdministeredAt time.Time            `json:"administered_at"`
}
