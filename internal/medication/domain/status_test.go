package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	ten := decimal.NewFromInt(10)

	tests := []struct {
		name       string
		quantity   decimal.Decimal
		minimum    decimal.Decimal
		expiration *time.Time
		want       ItemStatus
	}{
		{"zero quantity wins over expiry", decimal.Zero, ten, date(2020, 1, 1), StatusDepleted},
		{"zero quantity without anything else", decimal.Zero, decimal.Zero, nil, StatusDepleted},
		{"expired yesterday", decimal.NewFromInt(50), ten, date(2026, 3, 9), StatusExpired},
		{"expiring today is not expired", decimal.NewFromInt(50), ten, date(2026, 3, 10), StatusAvailable},
		{"expired beats low", decimal.NewFromInt(5), ten, date(2025, 12, 31), StatusExpired},
		{"at minimum is low", ten, ten, nil, StatusLow},
		{"half tablet left", decimal.RequireFromString("0.5"), decimal.NewFromInt(1), nil, StatusLow},
		{"above minimum", decimal.NewFromInt(11), ten, date(2027, 1, 1), StatusAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.quantity, tt.minimum, tt.expiration, now))
		})
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysUntil(*date(2026, 3, 10), now))
	assert.Equal(t, 7, DaysUntil(*date(2026, 3, 17), now))
	assert.Equal(t, -1, DaysUntil(*date(2026, 3, 9), now))
	assert.Equal(t, 30, DaysUntil(*date(2026, 4, 9), now))
}

func TestWeightedAverageCost(t *testing.T) {
	d := decimal.RequireFromString

	assert.True(t, d("0.25").Equal(WeightedAverageCost(decimal.Zero, d("9.99"), d("20"), d("0.25"))))
	// 10 @ 0.20 + 30 @ 0.40 = 14 / 40
	assert.True(t, d("0.35").Equal(WeightedAverageCost(d("10"), d("0.20"), d("30"), d("0.40"))))
	// three-way split rounds to four places
	assert.True(t, d("0.3333").Equal(WeightedAverageCost(d("2"), d("0.5"), d("1"), d("0"))))
}

func TestNameMatches(t *testing.T) {
	assert.True(t, NameMatches("Metformin 500mg", "metformin"))
	assert.True(t, NameMatches("ASPIRIN", "Aspirin 100"))
	assert.True(t, NameMatches(" Ramipril ", "ramipril"))
	assert.False(t, NameMatches("Aspirin", "Paracetamol"))
	assert.False(t, NameMatches("", "Aspirin"))
	assert.True(t, SameMedication("Ibuprofen", " ibuprofen"))
	assert.False(t, SameMedication("Ibuprofen 400", "Ibuprofen"))
}

func TestPrescriptionDosing(t *testing.T) {
	one := decimal.NewFromInt(1)
	rx := Prescription{
		Frequency:  FrequencySpecificDays,
		DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday, time.Friday, time.Friday},
		Schedule: map[TimeSlot]SlotDose{
			SlotMorning: {Enabled: true, Dose: one, Unit: "tablet"},
			SlotNoon:    {Enabled: false, Dose: decimal.NewFromInt(5), Unit: "tablet"},
			SlotNight:   {Enabled: true, Dose: decimal.Zero, Unit: "tablet"},
		},
	}

	dose, unit, ok := rx.DoseFor(SlotMorning)
	assert.True(t, ok)
	assert.True(t, one.Equal(dose))
	assert.Equal(t, "tablet", unit)

	_, _, ok = rx.DoseFor(SlotNoon)
	assert.False(t, ok, "disabled slot")
	_, _, ok = rx.DoseFor(SlotNight)
	assert.False(t, ok, "zero dose")
	_, _, ok = rx.DoseFor(SlotEvening)
	assert.False(t, ok, "missing slot")

	assert.Equal(t, 3, rx.DaysPerWeek())
	assert.True(t, one.Equal(rx.DailyDose()))
	assert.True(t, decimal.NewFromInt(3).Div(decimal.NewFromInt(7)).Equal(rx.AverageDailyDose()))

	rx.DaysOfWeek = nil
	assert.True(t, rx.AverageDailyDose().IsZero())

	rx.Frequency = "weekly"
	assert.True(t, one.Equal(rx.AverageDailyDose()), "unknown frequency counts as daily")
}

func TestTimeSlotValid(t *testing.T) {
	assert.True(t, SlotEvening.Valid())
	assert.False(t, TimeSlot("afternoon").Valid())
}
