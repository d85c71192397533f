package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/medflow/medication-ledger/internal/medication/events"
	"github.com/medflow/medication-ledger/internal/medication/prescription"
	"github.com/medflow/medication-ledger/internal/medication/repository"
	"github.com/medflow/medication-ledger/internal/medication/service"
	"github.com/medflow/medication-ledger/pkg/actor"
	"github.com/medflow/medication-ledger/pkg/logger"
	"github.com/medflow/medication-ledger/pkg/testutil"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	store    *repository.Memory
	ledger   *service.Ledger
	events   *testutil.MockPublisher
	lookup   *prescription.StaticLookup
	fixtures *testutil.FixtureFactory
	clock    *fakeClock
}

func newHarness(t *testing.T, opts ...func(*service.Options)) *harness {
	t.Helper()

	h := &harness{
		store:    repository.NewMemory(),
		events:   testutil.NewMockPublisher(),
		lookup:   prescription.NewStaticLookup(),
		fixtures: testutil.NewFixtureFactory(testNow),
		clock:    &fakeClock{now: testNow},
	}

	options := service.Options{
		Prescriptions: h.lookup,
		Publisher:     eventsWith(h.events),
		Logger:        logger.Nop(),
		Clock:         h.clock.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	ledger, err := service.NewLedger(context.Background(), h.store, options)
	require.NoError(t, err)
	h.ledger = ledger
	return h
}

// operatorCtx is a request context carrying a nurse as the acting operator.
func operatorCtx() context.Context {
	return actor.WithActor(context.Background(), &actor.Actor{ID: "nurse-1", Email: "nurse@medflow.local"})
}

func eventsWith(p *testutil.MockPublisher) *events.LedgerEventPublisher {
	return events.NewLedgerEventPublisherWith(p, logger.Nop())
}
