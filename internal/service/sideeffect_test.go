package service

import (
	"context"
	"testing"
	"time"

	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/stretchr/testify/assert"
)

func newTestExecutor() (*SideEffectExecutor, *[]time.Duration) {
	executor := NewSideEffectExecutor(logger.NewNopLogger())
	slept := &[]time.Duration{}
	executor.sleep = func(d time.Duration) {
		*slept = append(*slept, d)
	}
	return executor, slept
}

func TestSideEffectExecutorRetriesUntilSuccess(t *testing.T) {
	executor, slept := newTestExecutor()

	attempts := 0
	op := SideEffectOperation{
		Name: "toggle_highlight",
		Run: func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return ierr.NewError("connection reset").Mark(ierr.ErrDatabase)
			}
			return nil
		},
	}

	err := executor.Execute(context.Background(), op, 3)
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{400 * time.Millisecond, 800 * time.Millisecond}, *slept)
}

func TestSideEffectExecutorGivesUpAfterMaxRetries(t *testing.T) {
	executor, _ := newTestExecutor()

	attempts := 0
	op := SideEffectOperation{
		Name: "mark_listing_paid",
		Run: func(ctx context.Context) error {
			attempts++
			return ierr.NewError("connection reset").Mark(ierr.ErrDatabase)
		},
	}

	err := executor.Execute(context.Background(), op, 3)
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, ierr.IsSystem(err))
	assert.Contains(t, err.Error(), "mark_listing_paid")
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestSideEffectExecutorFirstAttemptSuccessSkipsSleep(t *testing.T) {
	executor, slept := newTestExecutor()

	op := SideEffectOperation{
		Name: "mark_listing_paid",
		Run: func(ctx context.Context) error {
			return nil
		},
	}

	err := executor.Execute(context.Background(), op, 3)
	assert.NoError(t, err)
	assert.Empty(t, *slept)
}

func TestSideEffectExecutorDefaultsRetryBound(t *testing.T) {
	executor, _ := newTestExecutor()

	attempts := 0
	op := SideEffectOperation{
		Name: "mark_listing_paid",
		Run: func(ctx context.Context) error {
			attempts++
			return ierr.NewError("connection reset").Mark(ierr.ErrDatabase)
		},
	}

	err := executor.Execute(context.Background(), op, 0)
	assert.Error(t, err)
	assert.Equal(t, DefaultMaxSideEffectRetries, attempts)
}
