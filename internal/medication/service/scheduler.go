package service

import (
	"context"
	"time"

	"github.com/medflow/medication-ledger/internal/medication/domain"
	"github.com/medflow/medication-ledger/internal/medication/events"
	"github.com/medflow/medication-ledger/pkg/logger"
)

// AlertScheduler periodically scans the ledger and publishes critical alerts.
// Alerts are recomputed on every scan; nothing is persisted between runs.
type AlertScheduler struct {
	alerts    *AlertService
	publisher *events.LedgerEventPublisher
	interval  time.Duration
	logger    *logger.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// DefaultAlertScanInterval applies when no positive interval is given.
const DefaultAlertScanInterval = time.Hour

// NewAlertScheduler creates a new alert scheduler
func NewAlertScheduler(alerts *AlertService, publisher *events.LedgerEventPublisher, interval time.Duration, log *logger.Logger) *AlertScheduler {
	if interval <= 0 {
		log.Warn().Dur("interval", interval).Msg("alert scan interval not positive, using default")
		interval = DefaultAlertScanInterval
	}
	return &AlertScheduler{
		alerts:    alerts,
		publisher: publisher,
		interval:  interval,
		logger:    log,
	}
}

// Interval is the time between scans.
func (s *AlertScheduler) Interval() time.Duration {
	return s.interval
}

// Start starts the scheduler in a background goroutine
func (s *AlertScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Msg("alert scheduler started")

		// Run an initial scan immediately
		s.scan(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("alert scheduler stopped")
				return
			case <-ticker.C:
				s.scan(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine and waits for it to exit
func (s *AlertScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// ScanOnce publishes every critical alert and returns how many went out.
func (s *AlertScheduler) ScanOnce(ctx context.Context) (int, error) {
	alerts, err := s.alerts.AllAlerts(ctx)
	if err != nil {
		return 0, err
	}

	published := 0
	for i := range alerts {
		if alerts[i].Severity != domain.SeverityCritical {
			// sorted critical first
			break
		}
		s.publisher.PublishAlertGenerated(ctx, &alerts[i])
		published++
	}
	return published, nil
}

func (s *AlertScheduler) scan(ctx context.Context) {
	start := time.Now()

	published, err := s.ScanOnce(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("alert scan failed")
		return
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("critical_alerts", published).
		Msg("alert scan completed")
}
