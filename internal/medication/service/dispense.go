package service

import (
	"context"
	"time"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/events"
	"github.com/medflow/medication-ledger/internal/medication/prescription"
	"github.com/medflow/medication-ledger/internal/medication/repository"
	"github.com/medflow/medication-ledger/internal/medication/validation"
	"github.com/medflow/medication-ledger/pkg/actor"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

// needDays is how many days of stock a prescription should have on hand.
const needDays = 4

// DispenseReconciler keeps resident stock in line with what the administration
// service reports: given doses are deducted, same-day refusals are put back.
type DispenseReconciler struct {
	store         repository.Store
	prescriptions prescription.Lookup
	publisher     *events.LedgerEventPublisher
	logger        *logger.Logger
	now           Clock
	loc           *time.Location
}

// NewDispenseReconciler creates a reconciler. loc decides where a calendar day starts
// when pairing refusals with earlier dispenses.
func NewDispenseReconciler(
	store repository.Store,
	prescriptions prescription.Lookup,
	publisher *events.LedgerEventPublisher,
	log *logger.Logger,
	clock Clock,
	loc *time.Location,
) *DispenseReconciler {
	if loc == nil {
		loc = time.UTC
	}
	return &DispenseReconciler{
		store:         store,
		prescriptions: prescriptions,
		publisher:     publisher,
		logger:        log,
		now:           clock,
		loc:           loc,
	}
}

// ProcessAdministrationEvent routes an administration to the matching handler.
// Statuses other than given and refused leave stock alone.
func (r *DispenseReconciler) ProcessAdministrationEvent(ctx context.Context, ev domain.AdministrationEvent) (*domain.DispenseLogEntry, error) {
	switch ev.Status {
	case domain.AdministrationGiven:
		return r.HandleMedicationGiven(ctx, ev)
	case domain.AdministrationRefused:
		return r.HandleMedicationRefused(ctx, ev)
	default:
		r.logger.Debug().
			Str("administration_log_id", ev.ID).
			Str("status", string(ev.Status)).
			Msg("administration status does not affect stock")
		return nil, nil
	}
}

// HandleMedicationGiven deducts the scheduled dose. When stock runs short only what is
// there is deducted and a warning is logged. A repeated administration id is ignored.
func (r *DispenseReconciler) HandleMedicationGiven(ctx context.Context, ev domain.AdministrationEvent) (*domain.DispenseLogEntry, error) {
	log := r.eventLogger(ev)

	rx, dose, unit, err := r.scheduledDose(ctx, ev)
	if rx == nil || err != nil {
		return nil, err
	}

	var entry *domain.DispenseLogEntry
	err = r.store.WithTx(ctx, func(tx repository.Store) error {
		if ev.ID != "" {
			seen, err := tx.ListDispenseLog(ctx, repository.DispenseLogFilter{
				AdministrationLogID: ev.ID,
				Type:                domain.DispenseAuto,
			})
			if err != nil {
				return err
			}
			if len(seen) > 0 {
				log.Info().Msg("administration already reconciled")
				return nil
			}
		}

		item, err := resolveItem(ctx, tx, rx)
		if err != nil {
			return err
		}
		if item == nil {
			log.Warn().Str("medication", rx.MedicationName).Msg("no resident stock matches prescription")
			return nil
		}
		if !item.Quantity.IsPositive() {
			log.Warn().Str("item_id", item.ID).Msg("resident stock depleted, nothing dispensed")
			return nil
		}

		qty := decimal.Min(dose, item.Quantity)
		if qty.LessThan(dose) {
			log.Warn().
				Str("item_id", item.ID).
				Str("dose", dose.String()).
				Str("available", item.Quantity.String()).
				Msg("insufficient resident stock, dispensing partial dose")
		}

		change, err := tx.UpdateResidentInventoryQuantity(ctx, item.ID, qty.Neg())
		if err != nil {
			return err
		}
		if change.Clamped {
			log.Warn().Str("item_id", item.ID).Msg("dispense clamped at zero")
		}

		entry = &domain.DispenseLogEntry{
			ResidentInventoryID: item.ID,
			ResidentID:          item.ResidentID,
			PrescriptionID:      rx.ID,
			AdministrationLogID: ev.ID,
			QuantityDispensed:   change.Applied.Neg(),
			Unit:                unitOr(unit, item.Unit),
			TimeSlot:            ev.TimeSlot,
			Type:                domain.DispenseAuto,
			PreviousQuantity:    change.Previous,
			NewQuantity:         change.New,
			PerformedBy:         actor.SystemID,
			CreatedAt:           r.eventTime(ev),
		}
		return tx.AppendDispenseLog(ctx, entry)
	})
	if err != nil || entry == nil {
		return nil, err
	}

	log.Info().
		Str("item_id", entry.ResidentInventoryID).
		Str("dispensed", entry.QuantityDispensed.String()).
		Str("remaining", entry.NewQuantity.String()).
		Msg("dose dispensed from resident stock")

	r.publisher.PublishDispenseRecorded(ctx, entry)
	return entry, nil
}

// HandleMedicationRefused puts the dose back, but only when a dispense for the same
// prescription and slot happened earlier the same day and has not been offset yet.
func (r *DispenseReconciler) HandleMedicationRefused(ctx context.Context, ev domain.AdministrationEvent) (*domain.DispenseLogEntry, error) {
	log := r.eventLogger(ev)

	rx, dose, unit, err := r.scheduledDose(ctx, ev)
	if rx == nil || err != nil {
		return nil, err
	}

	from, to := r.dayBounds(r.eventTime(ev))

	var entry *domain.DispenseLogEntry
	err = r.store.WithTx(ctx, func(tx repository.Store) error {
		today, err := tx.ListDispenseLog(ctx, repository.DispenseLogFilter{
			PrescriptionID: rx.ID,
			TimeSlot:       ev.TimeSlot,
			From:           &from,
			To:             &to,
		})
		if err != nil {
			return err
		}

		var dispensed []domain.DispenseLogEntry
		restored := 0
		for _, e := range today {
			switch e.Type {
			case domain.DispenseAuto:
				dispensed = append(dispensed, e)
			case domain.DispenseRestore:
				if ev.ID != "" && e.AdministrationLogID == ev.ID {
					log.Info().Msg("refusal already reconciled")
					return nil
				}
				restored++
			}
		}
		if len(dispensed) <= restored {
			log.Info().Msg("no unreconciled dispense today, nothing to restore")
			return nil
		}
		source := dispensed[len(dispensed)-1]

		change, err := tx.UpdateResidentInventoryQuantity(ctx, source.ResidentInventoryID, dose)
		if err != nil {
			return err
		}

		entry = &domain.DispenseLogEntry{
			ResidentInventoryID: source.ResidentInventoryID,
			ResidentID:          source.ResidentID,
			PrescriptionID:      rx.ID,
			AdministrationLogID: ev.ID,
			QuantityDispensed:   change.Applied.Neg(),
			Unit:                unitOr(unit, source.Unit),
			TimeSlot:            ev.TimeSlot,
			Type:                domain.DispenseRestore,
			PreviousQuantity:    change.Previous,
			NewQuantity:         change.New,
			Reason:              "medication refused",
			PerformedBy:         actor.SystemID,
			CreatedAt:           r.eventTime(ev),
		}
		return tx.AppendDispenseLog(ctx, entry)
	})
	if err != nil || entry == nil {
		return nil, err
	}

	log.Info().
		Str("item_id", entry.ResidentInventoryID).
		Str("restored", entry.QuantityDispensed.Neg().String()).
		Msg("refused dose restored to resident stock")

	r.publisher.PublishDispenseRecorded(ctx, entry)
	return entry, nil
}

// ManualAdjustment applies an operator correction. Results below zero are floored.
func (r *DispenseReconciler) ManualAdjustment(ctx context.Context, itemID string, form validation.AdjustmentForm) (*domain.DispenseLogEntry, error) {
	if err := validation.Adjustment(form); err != nil {
		return nil, err
	}

	var entry *domain.DispenseLogEntry
	err := r.store.WithTx(ctx, func(tx repository.Store) error {
		item, err := tx.GetResidentItem(ctx, itemID)
		if err != nil {
			return err
		}

		change, err := tx.UpdateResidentInventoryQuantity(ctx, itemID, form.Delta)
		if err != nil {
			return err
		}

		entry = &domain.DispenseLogEntry{
			ResidentInventoryID: itemID,
			ResidentID:          item.ResidentID,
			QuantityDispensed:   change.Applied.Neg(),
			Unit:                item.Unit,
			Type:                domain.DispenseManual,
			PreviousQuantity:    change.Previous,
			NewQuantity:         change.New,
			Reason:              form.Reason,
			PerformedBy:         actor.IDFromContext(ctx),
			CreatedAt:           r.now(),
		}
		if item.PrescriptionID != nil {
			entry.PrescriptionID = *item.PrescriptionID
		}
		if change.Clamped {
			r.logger.Warn().
				Str("item_id", itemID).
				Str("requested", form.Delta.String()).
				Str("applied", change.Applied.String()).
				Msg("manual adjustment clamped at zero")
		}
		return tx.AppendDispenseLog(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("item_id", itemID).
		Str("previous", entry.PreviousQuantity.String()).
		Str("new", entry.NewQuantity.String()).
		Str("operator_id", entry.PerformedBy).
		Msg("manual adjustment recorded")

	r.publisher.PublishDispenseRecorded(ctx, entry)
	return entry, nil
}

// CheckInventoryNeeds reports every active scheduled prescription whose matched stock
// cannot cover the next four days. As-needed prescriptions are skipped.
func (r *DispenseReconciler) CheckInventoryNeeds(ctx context.Context, residentID string, prescriptions []domain.Prescription) ([]domain.ShortageRecord, error) {
	items, err := r.store.ListResidentItems(ctx, repository.ResidentItemFilter{ResidentID: residentID})
	if err != nil {
		return nil, err
	}

	shortages := make([]domain.ShortageRecord, 0)
	for i := range prescriptions {
		rx := &prescriptions[i]
		if !rx.Active || rx.AsNeeded {
			continue
		}

		daily := rx.AverageDailyDose()
		need := daily.Mul(decimal.NewFromInt(needDays)).Ceil()
		if !need.IsPositive() {
			continue
		}

		stock := decimal.Zero
		unit := rx.Unit()
		for _, item := range matchItems(items, rx) {
			stock = stock.Add(item.Quantity)
			if unit == "" {
				unit = item.Unit
			}
		}

		if stock.LessThan(need) {
			shortages = append(shortages, domain.ShortageRecord{
				ResidentID:     residentID,
				PrescriptionID: rx.ID,
				MedicationName: rx.MedicationName,
				DailyDose:      daily,
				FourDayNeed:    need,
				CurrentStock:   stock,
				Shortage:       need.Sub(stock),
				Unit:           unit,
			})
		}
	}
	return shortages, nil
}

// CheckResidentNeeds runs CheckInventoryNeeds against the resident's current prescriptions.
func (r *DispenseReconciler) CheckResidentNeeds(ctx context.Context, residentID string) ([]domain.ShortageRecord, error) {
	prescriptions, err := r.prescriptions.ListForResident(ctx, residentID)
	if err != nil {
		return nil, err
	}
	return r.CheckInventoryNeeds(ctx, residentID, prescriptions)
}

// scheduledDose looks up the prescription and the dose for the event's slot. A nil
// prescription with a nil error means there is nothing to do.
func (r *DispenseReconciler) scheduledDose(ctx context.Context, ev domain.AdministrationEvent) (*domain.Prescription, decimal.Decimal, string, error) {
	log := r.eventLogger(ev)

	rx, err := r.prescriptions.Get(ctx, ev.PrescriptionID)
	if errors.IsNotFound(err) {
		log.Warn().Msg("prescription not found, administration ignored")
		return nil, decimal.Zero, "", nil
	}
	if err != nil {
		return nil, decimal.Zero, "", err
	}
	if rx.ResidentID == "" {
		rx.ResidentID = ev.ResidentID
	}

	dose, unit, ok := rx.DoseFor(ev.TimeSlot)
	if !ok {
		log.Info().Msg("no dose scheduled for slot")
		return nil, decimal.Zero, "", nil
	}
	return rx, dose, unit, nil
}

// eventTime is when the administration happened, falling back to now for events
// that do not carry it. Dispense and restore entries are stamped with it so a late
// redelivery still lands on the administration's day.
func (r *DispenseReconciler) eventTime(ev domain.AdministrationEvent) time.Time {
	if ev.AdministeredAt.IsZero() {
		return r.now()
	}
	return ev.AdministeredAt
}

func (r *DispenseReconciler) dayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(r.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
	return start, start.AddDate(0, 0, 1)
}

func (r *DispenseReconciler) eventLogger(ev domain.AdministrationEvent) *logger.Logger {
	l := r.logger.With().
		Str("administration_log_id", ev.ID).
		Str("prescription_id", ev.PrescriptionID).
		Str("time_slot", string(ev.TimeSlot)).
		Logger()
	return &logger.Logger{Logger: l}
}

// resolveItem finds the stock a prescription draws from: items linked by prescription
// id first, then the resident's items whose name matches. Stocked items win.
func resolveItem(ctx context.Context, tx repository.Store, rx *domain.Prescription) (*domain.ResidentItem, error) {
	items, err := tx.ListResidentItems(ctx, repository.ResidentItemFilter{ResidentID: rx.ResidentID})
	if err != nil {
		return nil, err
	}
	return preferStocked(matchItems(items, rx)), nil
}

func matchItems(items []domain.ResidentItem, rx *domain.Prescription) []domain.ResidentItem {
	var linked, named []domain.ResidentItem
	for _, item := range items {
		switch {
		case item.PrescriptionID != nil && *item.PrescriptionID == rx.ID:
			linked = append(linked, item)
		case domain.NameMatches(item.MedicationName, rx.MedicationName):
			named = append(named, item)
		}
	}
	if len(linked) > 0 {
		return linked
	}
	return named
}

func preferStocked(items []domain.ResidentItem) *domain.ResidentItem {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].Quantity.IsPositive() {
			return &items[i]
		}
	}
	return &items[0]
}

func unitOr(unit, fallback string) string {
	if unit != "" {
		return unit
	}
	return fallback
}
