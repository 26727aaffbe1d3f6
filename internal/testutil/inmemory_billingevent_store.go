package testutil

import (
	"context"
	"sync"

	"github.com/motorsouq/billing/internal/domain/billingevent"
	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/types"
)

// InMemoryBillingEventStore implements billingevent.Repository. Records are
// keyed by provider event ID so a second insert surfaces the duplicate mark
// the same way the unique constraint does. FailReadsRemaining injects
// transient read failures for retry tests.
type InMemoryBillingEventStore struct {
	mu      sync.RWMutex
	records map[string]*billingevent.BillingEvent

	// FailReadsRemaining makes the next N GetByEventID calls fail with a
	// database-marked error
	FailReadsRemaining int
	// ReadAttempts counts GetByEventID calls
	ReadAttempts int
}

// NewInMemoryBillingEventStore creates a new in-memory ledger repository
func NewInMemoryBillingEventStore() *InMemoryBillingEventStore {
	return &InMemoryBillingEventStore{
		records: make(map[string]*billingevent.BillingEvent),
	}
}

// Clear resets all stored data
func (m *InMemoryBillingEventStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*billingevent.BillingEvent)
	m.FailReadsRemaining = 0
	m.ReadAttempts = 0
}

func (m *InMemoryBillingEventStore) Create(ctx context.Context, event *billingevent.BillingEvent) error {
	if event == nil {
		return ierr.NewError("event cannot be nil").
			WithHint("Event cannot be nil").
			Mark(ierr.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[event.EventID]; exists {
		return ierr.NewError("event already recorded").
			WithHint("An event with this provider event ID already exists").
			Mark(ierr.ErrAlreadyExists)
	}

	m.records[event.EventID] = event
	return nil
}

func (m *InMemoryBillingEventStore) GetByEventID(ctx context.Context, eventID string) (*billingevent.BillingEvent, error) {
	m.mu.Lock()
	m.ReadAttempts++
	if m.FailReadsRemaining > 0 {
		m.FailReadsRemaining--
		m.mu.Unlock()
		return nil, ierr.NewError("connection reset").
			WithHint("Failed to read billing event").
			Mark(ierr.ErrDatabase)
	}
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.records[eventID]
	if !exists {
		return nil, ierr.NewError("billing event not found").
			WithHint("No record for this provider event ID").
			Mark(ierr.ErrNotFound)
	}
	return record, nil
}

func (m *InMemoryBillingEventStore) UpdateStatus(ctx context.Context, id string, status types.BillingEventStatus, errorMessage *string, durationMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range m.records {
		if record.ID != id {
			continue
		}
		if record.Status != types.BillingEventStatusProcessing {
			return ierr.NewError("billing event already finalized").
				WithHint("Only processing records can transition").
				Mark(ierr.ErrInvalidOperation)
		}
		record.Status = status
		record.ErrorMessage = errorMessage
		record.DurationMs = durationMs
		return nil
	}

	return ierr.NewError("billing event not found").
		WithHint("No record with this ID").
		Mark(ierr.ErrNotFound)
}

func (m *InMemoryBillingEventStore) Reopen(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range m.records {
		if record.ID != id {
			continue
		}
		if record.Status != types.BillingEventStatusFailed {
			return ierr.NewError("billing event is not in failed state").
				WithHint("Only failed records can be reopened").
				Mark(ierr.ErrInvalidOperation)
		}
		record.Status = types.BillingEventStatusProcessing
		record.ErrorMessage = nil
		return nil
	}

	return ierr.NewError("billing event not found").
		WithHint("No record with this ID").
		Mark(ierr.ErrNotFound)
}

func (m *InMemoryBillingEventStore) List(ctx context.Context, limit int) ([]*billingevent.BillingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*billingevent.BillingEvent, 0, len(m.records))
	for _, record := range m.records {
		result = append(result, record)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// CountByEventID reports how many records exist for the event ID
func (m *InMemoryBillingEventStore) CountByEventID(eventID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, exists := m.records[eventID]; exists {
		return 1
	}
	return 0
}
