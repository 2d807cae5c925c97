package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/internal/phone"
	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/AxlesAI/axles-voice-service/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Match kinds reported on a Resolution
const (
	MatchExact     = "exact"
	MatchAlternate = "alternate"
	MatchGlobal    = "global"
)

const defaultLookupTimeout = 3 * time.Second

// Resolution is the outcome of resolving a dialed number. A nil Tenant is the global line.
type Resolution struct {
	Tenant    *domain.TenantConfig
	Canonical string
	Match     string
}

// IsGlobal reports whether the call belongs to the main marketplace line.
func (r Resolution) IsGlobal() bool {
	return r.Tenant == nil
}

// TenantID returns the dealer id, empty on the global line.
func (r Resolution) TenantID() string {
	if r.Tenant == nil {
		return ""
	}
	return r.Tenant.ID
}

// Registry resolves dialed numbers to dealer voice lines.
type Registry struct {
	tenants repository.TenantRepository
	timeout time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
}

// NewRegistry creates a registry. A zero timeout uses the default.
func NewRegistry(tenants repository.TenantRepository, timeout time.Duration, m *metrics.Metrics) *Registry {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &Registry{tenants: tenants, timeout: timeout, metrics: m}
}

// Resolve never fails: lookups that error or time out fall back to the global line.
func (r *Registry) Resolve(ctx context.Context, dialed string) Resolution {
	canonical := phone.Canonicalize(dialed)
	if canonical == "" {
		r.metrics.IncTenantResolution(MatchGlobal)
		return Resolution{Match: MatchGlobal}
	}

	tenant, err := r.lookup(ctx, canonical)
	if err == nil {
		r.metrics.IncTenantResolution(MatchExact)
		return Resolution{Tenant: tenant, Canonical: canonical, Match: MatchExact}
	}
	if !errors.Is(err, repository.ErrNotFound) {
		logger.Base().Warn("Tenant lookup failed, using global line",
			zap.String("dialed", dialed),
			zap.String("canonical", canonical),
			zap.Error(err))
		r.metrics.IncTenantResolution(MatchGlobal)
		return Resolution{Canonical: canonical, Match: MatchGlobal}
	}

	if alt := phone.Alternate(canonical); alt != "" {
		tenant, err = r.lookup(ctx, alt)
		if err == nil {
			r.metrics.IncTenantResolution(MatchAlternate)
			return Resolution{Tenant: tenant, Canonical: alt, Match: MatchAlternate}
		}
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Base().Warn("Tenant lookup failed on alternate form, using global line",
				zap.String("alternate", alt),
				zap.Error(err))
		}
	}

	r.metrics.IncTenantResolution(MatchGlobal)
	return Resolution{Canonical: canonical, Match: MatchGlobal}
}

// lookup collapses concurrent lookups of the same number into one store query.
func (r *Registry) lookup(ctx context.Context, canonical string) (*domain.TenantConfig, error) {
	ch := r.group.DoChan(canonical, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.tenants.FindActiveByPhone(lookupCtx, canonical)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		tenant := *res.Val.(*domain.TenantConfig)
		return &tenant, nil
	}
}
