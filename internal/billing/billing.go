package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/AxlesAI/axles-voice-service/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultInitialInterval = 5 * time.Millisecond
	defaultMaxInterval     = 250 * time.Millisecond
	// Upper bound when the caller's context carries no deadline.
	defaultMaxElapsed = 30 * time.Second
)

// BillableMinutes rounds a call duration up to whole minutes, minimum 1.
func BillableMinutes(seconds float64) int {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 1
	}
	minutes := int(math.Ceil(seconds / 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Accruer adds billed minutes onto a dealer line's minutes_used counter
// using optimistic compare-and-set, so concurrent calls on one line never lose updates.
// Conflicts are retried with randomized exponential backoff until the context ends.
type Accruer struct {
	tenants         repository.TenantRepository
	metrics         *metrics.Metrics
	initialInterval time.Duration
	maxInterval     time.Duration
	maxElapsed      time.Duration
}

// NewAccruer creates an accruer over the tenant repository.
func NewAccruer(tenants repository.TenantRepository, m *metrics.Metrics) *Accruer {
	return &Accruer{
		tenants:         tenants,
		metrics:         m,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		maxElapsed:      defaultMaxElapsed,
	}
}

func (a *Accruer) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.initialInterval
	b.MaxInterval = a.maxInterval
	b.MaxElapsedTime = a.maxElapsed
	if _, ok := ctx.Deadline(); ok {
		b.MaxElapsedTime = 0
	}
	return backoff.WithContext(b, ctx)
}

// Accrue adds minutes to the tenant's counter and returns the new total.
func (a *Accruer) Accrue(ctx context.Context, tenantID string, minutes int) (int, error) {
	if tenantID == "" {
		return 0, errors.New("tenant id required")
	}
	if minutes <= 0 {
		return 0, fmt.Errorf("invalid minute count %d", minutes)
	}

	attempt := 0
	var total int
	operation := func() error {
		attempt++
		tenant, err := a.tenants.GetByID(ctx, tenantID)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to read minutes used: %w", err))
		}

		next := tenant.MinutesUsed + minutes
		ok, err := a.tenants.CompareAndSetMinutes(ctx, tenantID, tenant.MinutesUsed, next)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return repository.ErrConflict
		}
		total = next
		return nil
	}

	notify := func(err error, wait time.Duration) {
		a.metrics.IncBillingConflict()
		logger.Base().Debug("minutes_used changed underneath accrual, retrying",
			zap.String("tenant_id", tenantID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait))
	}

	if err := backoff.RetryNotify(operation, a.newBackOff(ctx), notify); err != nil {
		if errors.Is(err, repository.ErrConflict) || ctx.Err() != nil {
			return 0, fmt.Errorf("minutes accrual for %s gave up after %d attempts: %w", tenantID, attempt, err)
		}
		return 0, err
	}

	a.metrics.AddBilledMinutes(minutes)
	return total, nil
}
