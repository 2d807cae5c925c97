package staff

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/config"
	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/AxlesAI/axles-voice-service/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotAuthenticated is returned by Query when the caller has not verified a PIN.
var ErrNotAuthenticated = errors.New("staff authentication required")

// Denial reasons
const (
	ReasonGranted      = "granted"
	ReasonGlobalLine   = "global_line"
	ReasonThrottled    = "throttled"
	ReasonBadPINFormat = "invalid_pin_format"
	ReasonUnknownPIN   = "unknown_pin"
	ReasonNameMismatch = "name_mismatch"
	ReasonLocked       = "locked"
)

// Spoken replies
const (
	MsgGlobalLine   = "Staff verification is only available on a dealer's own line."
	MsgThrottled    = "That's a lot of attempts in a row. Please wait a moment and try again."
	MsgUnknownPIN   = "I couldn't verify that PIN."
	MsgNameMismatch = "Sorry, that name and PIN combination doesn't verify."
	MsgLocked       = "That staff account is temporarily locked after too many failed attempts. Please try again later."
	MsgVerifyFirst  = "I need to verify your staff PIN first. What's your name and PIN?"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

// AuthRequest is one verify_staff_pin attempt.
type AuthRequest struct {
	TenantID    string
	ClaimedName string
	PIN         string
	CallerPhone string
	SessionID   string
}

// AuthResult is the outcome of an attempt. Message is meant to be spoken.
type AuthResult struct {
	Granted bool
	Staff   *domain.StaffCredential
	Message string
	Reason  string
}

// Policy is the lockout policy: Threshold consecutive failures lock the
// credential for LockoutDuration. Only a successful verification resets the count.
type Policy struct {
	Threshold       int
	LockoutDuration time.Duration
}

// DefaultPolicy locks after 3 consecutive failures for 15 minutes.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:       config.DefaultLockoutThreshold,
		LockoutDuration: config.DefaultLockoutMinutes * time.Minute,
	}
}

// Directory authenticates staff callers of one tenant at a time and answers their internal queries.
type Directory struct {
	staff    repository.StaffRepository
	audit    repository.AccessLogRepository
	listings repository.ListingRepository
	leads    repository.LeadRepository
	tenants  repository.TenantRepository

	policy  Policy
	metrics *metrics.Metrics
	now     func() time.Time

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

type Option func(*Directory)

func WithPolicy(p Policy) Option {
	return func(d *Directory) {
		if p.Threshold > 0 {
			d.policy.Threshold = p.Threshold
		}
		if p.LockoutDuration > 0 {
			d.policy.LockoutDuration = p.LockoutDuration
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Directory) {
		d.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		d.now = now
	}
}

// WithThrottle sets the per-session attempt rate. A zero limit disables throttling.
func WithThrottle(limit rate.Limit, burst int) Option {
	return func(d *Directory) {
		d.limit = limit
		d.burst = burst
	}
}

// NewDirectory creates a staff directory over the repositories.
func NewDirectory(repos repository.RepositoryManager, opts ...Option) *Directory {
	d := &Directory{
		staff:    repos.Staff(),
		audit:    repos.AccessLogs(),
		listings: repos.Listings(),
		leads:    repos.Leads(),
		tenants:  repos.Tenants(),
		policy:   DefaultPolicy(),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(2 * time.Second),
		burst:    3,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Authenticate verifies a name and PIN against the tenant's active credentials.
// Denials are returned as results; the error is only set for store failures.
func (d *Directory) Authenticate(ctx context.Context, req AuthRequest) (AuthResult, error) {
	log := logger.ForSession(req.SessionID).With(zap.String("tenant_id", req.TenantID))

	if req.TenantID == "" {
		d.recordAttempt(ctx, req, nil, false, ReasonGlobalLine)
		return d.deny(MsgGlobalLine, ReasonGlobalLine), nil
	}

	if !d.allow(req.SessionID) {
		log.Warn("Staff PIN attempt throttled")
		return d.deny(MsgThrottled, ReasonThrottled), nil
	}

	pin := strings.TrimSpace(req.PIN)
	if !pinPattern.MatchString(pin) {
		d.recordAttempt(ctx, req, nil, false, ReasonBadPINFormat)
		return d.deny(MsgUnknownPIN, ReasonBadPINFormat), nil
	}

	candidates, err := d.staff.FindActiveByPIN(ctx, req.TenantID, pin)
	if err != nil {
		return AuthResult{}, fmt.Errorf("failed to load staff credentials: %w", err)
	}
	if len(candidates) == 0 {
		d.recordAttempt(ctx, req, nil, false, ReasonUnknownPIN)
		return d.deny(MsgUnknownPIN, ReasonUnknownPIN), nil
	}

	now := d.now()
	matched := matchByName(candidates, req.ClaimedName)
	if len(matched) == 0 {
		// Right PIN, wrong name: every PIN holder absorbs the failure.
		for _, c := range candidates {
			if c.IsLocked(now) {
				continue
			}
			if err := d.staff.RecordFailure(ctx, c.ID, d.policy.Threshold, now, now.Add(d.policy.LockoutDuration)); err != nil {
				log.Error("Failed to record staff auth failure", zap.String("staff_id", c.ID), zap.Error(err))
			}
		}
		d.recordAttempt(ctx, req, nil, false, ReasonNameMismatch)
		return d.deny(MsgNameMismatch, ReasonNameMismatch), nil
	}

	var chosen *domain.StaffCredential
	for _, c := range matched {
		if !c.IsLocked(now) {
			chosen = c
			break
		}
	}
	if chosen == nil {
		d.recordAttempt(ctx, req, &matched[0].ID, false, ReasonLocked)
		log.Warn("Staff credential locked", zap.String("staff_id", matched[0].ID), zap.Timep("locked_until", matched[0].LockedUntil))
		return d.deny(MsgLocked, ReasonLocked), nil
	}

	if err := d.staff.RecordSuccess(ctx, chosen.ID, now); err != nil {
		log.Error("Failed to record staff auth success", zap.String("staff_id", chosen.ID), zap.Error(err))
	}
	d.recordAttempt(ctx, req, &chosen.ID, true, ReasonGranted)
	d.metrics.IncStaffAuth(ReasonGranted)

	log.Info("Staff verified", zap.String("staff_id", chosen.ID))
	return AuthResult{
		Granted: true,
		Staff:   chosen,
		Message: fmt.Sprintf("Thanks, %s. You're verified. What would you like to look up?", firstName(chosen.Name)),
		Reason:  ReasonGranted,
	}, nil
}

func (d *Directory) deny(msg, reason string) AuthResult {
	d.metrics.IncStaffAuth(reason)
	return AuthResult{Message: msg, Reason: reason}
}

// allow applies the per-session token bucket.
func (d *Directory) allow(sessionID string) bool {
	if d.limit == 0 || sessionID == "" {
		return true
	}
	d.limitMu.Lock()
	lim, ok := d.limiters[sessionID]
	if !ok {
		lim = rate.NewLimiter(d.limit, d.burst)
		d.limiters[sessionID] = lim
	}
	d.limitMu.Unlock()
	return lim.Allow()
}

// Forget drops per-session throttle state once a call ends.
func (d *Directory) Forget(sessionID string) {
	d.limitMu.Lock()
	delete(d.limiters, sessionID)
	d.limitMu.Unlock()
}

func (d *Directory) recordAttempt(ctx context.Context, req AuthRequest, staffID *string, success bool, detail string) {
	entry := &domain.AccessLogEntry{
		TenantID:    domain.StringPtr(req.TenantID),
		StaffID:     staffID,
		SessionID:   req.SessionID,
		CallerPhone: req.CallerPhone,
		Action:      domain.AccessActionPINVerify,
		Success:     success,
		Detail:      detail,
		CreatedAt:   d.now().UTC(),
	}
	if err := d.audit.Append(ctx, entry); err != nil {
		logger.ForSession(req.SessionID).Error("Failed to append staff access log", zap.String("detail", detail), zap.Error(err))
	}
}

func matchByName(candidates []*domain.StaffCredential, claimed string) []*domain.StaffCredential {
	claimed = strings.ToLower(strings.TrimSpace(claimed))
	if claimed == "" {
		return nil
	}
	var out []*domain.StaffCredential
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Name), claimed) {
			out = append(out, c)
		}
	}
	return out
}

func firstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return name
}
