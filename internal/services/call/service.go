package call

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/billing"
	"github.com/AxlesAI/axles-voice-service/internal/config"
	"github.com/AxlesAI/axles-voice-service/internal/core/tool"
	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/internal/enrichment"
	"github.com/AxlesAI/axles-voice-service/internal/inventory"
	"github.com/AxlesAI/axles-voice-service/internal/lead"
	"github.com/AxlesAI/axles-voice-service/internal/phone"
	"github.com/AxlesAI/axles-voice-service/internal/prompts"
	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/AxlesAI/axles-voice-service/internal/session"
	"github.com/AxlesAI/axles-voice-service/internal/staff"
	"github.com/AxlesAI/axles-voice-service/internal/telephony"
	"github.com/AxlesAI/axles-voice-service/internal/tenant"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/AxlesAI/axles-voice-service/pkg/metrics"
	"github.com/AxlesAI/axles-voice-service/pkg/redis"
	"go.uber.org/zap"
)

const (
	defaultStepTimeout       = 10 * time.Second
	defaultEnrichmentTimeout = 30 * time.Second
	defaultHangupDelay       = 3 * time.Second
)

// Deps wires the orchestrator. Repos, Store and Platform are required; the
// domain services are built from Repos when left nil.
type Deps struct {
	Repos      repository.RepositoryManager
	Store      *session.Store
	Monitor    *session.Monitor
	Platform   telephony.Platform
	Recorder   Recorder
	Enrichment enrichment.Enqueuer
	Metrics    *metrics.Metrics

	Registry  *tenant.Registry
	Hours     tenant.HoursPredicate
	Staff     *staff.Directory
	Inventory *inventory.Service
	Leads     *lead.Service
	Billing   *billing.Accruer

	Defaults         config.SessionSettings
	StepTimeout      time.Duration
	MinEnrichSeconds float64
	HangupDelay      time.Duration
	Now              func() time.Time
}

// CallService is the session orchestrator: it owns the lifecycle of every
// call on this instance and the tool surface the engine calls into.
type CallService struct {
	repos      repository.RepositoryManager
	store      *session.Store
	monitor    *session.Monitor
	platform   telephony.Platform
	recorder   Recorder
	enrichment enrichment.Enqueuer
	metrics    *metrics.Metrics

	registry  *tenant.Registry
	hours     tenant.HoursPredicate
	staff     *staff.Directory
	inventory *inventory.Service
	leads     *lead.Service
	billing   *billing.Accruer
	tools     *tool.ToolManager

	defaults         config.SessionSettings
	stepTimeout      time.Duration
	minEnrichSeconds float64
	hangupDelay      time.Duration
	now              func() time.Time

	background sync.WaitGroup
}

// NewCallService creates the orchestrator and registers its tools.
func NewCallService(d Deps) *CallService {
	s := &CallService{
		repos:            d.Repos,
		store:            d.Store,
		monitor:          d.Monitor,
		platform:         d.Platform,
		recorder:         d.Recorder,
		enrichment:       d.Enrichment,
		metrics:          d.Metrics,
		registry:         d.Registry,
		hours:            d.Hours,
		staff:            d.Staff,
		inventory:        d.Inventory,
		leads:            d.Leads,
		billing:          d.Billing,
		defaults:         d.Defaults,
		stepTimeout:      d.StepTimeout,
		minEnrichSeconds: d.MinEnrichSeconds,
		hangupDelay:      d.HangupDelay,
		now:              d.Now,
		tools:            tool.NewToolManager(),
	}

	if s.store == nil {
		s.store = session.NewStore(nil)
	}
	if s.registry == nil {
		s.registry = tenant.NewRegistry(d.Repos.Tenants(), 0, d.Metrics)
	}
	if s.hours == nil {
		s.hours = tenant.WeeklySchedule{}
	}
	if s.staff == nil {
		s.staff = staff.NewDirectory(d.Repos, staff.WithMetrics(d.Metrics))
	}
	if s.inventory == nil {
		s.inventory = inventory.NewService(d.Repos.Listings(), d.Repos.Tenants())
	}
	if s.leads == nil {
		s.leads = lead.NewService(d.Repos.Leads(), s.inventory)
	}
	if s.billing == nil {
		s.billing = billing.NewAccruer(d.Repos.Tenants(), d.Metrics)
	}
	if s.enrichment == nil {
		s.enrichment = enrichment.Noop{}
	}
	if s.defaults.Instructions == "" {
		s.defaults = config.DefaultSessionSettings()
	}
	if s.stepTimeout <= 0 {
		s.stepTimeout = defaultStepTimeout
	}
	if s.minEnrichSeconds <= 0 {
		s.minEnrichSeconds = config.DefaultMinEnrichmentSeconds
	}
	if s.hangupDelay < 0 {
		s.hangupDelay = 0
	} else if s.hangupDelay == 0 {
		s.hangupDelay = defaultHangupDelay
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.registerTools()
	return s
}

// StartCall opens a session for a newly connected caller and returns the
// engine bootstrap. If the platform connect fails the session goes straight
// to Completed and nothing else happens.
func (s *CallService) StartCall(ctx context.Context, start CallStart) (*Bootstrap, error) {
	if start.SessionID == "" {
		return nil, errors.New("session id required")
	}
	if start.RoomName == "" {
		start.RoomName = start.SessionID
	}
	log := logger.ForSession(start.SessionID)

	cs := session.CallSession{
		ID:             start.SessionID,
		RoomName:       start.RoomName,
		PlatformCallID: start.PlatformCallID,
		CallerPhone:    phone.Normalize(start.CallerPhone),
		DialedNumber:   start.DialedNumber,
		StartedAt:      s.now(),
		Status:         session.StatusStarting,
	}
	if err := s.store.Open(ctx, cs); err != nil {
		return nil, err
	}
	s.metrics.SetActiveSessions(s.store.Len())

	if err := s.platform.Connect(ctx, start.RoomName); err != nil {
		log.Error("Failed to connect call", zap.Error(err))
		_ = s.store.Mutate(cs.ID, func(c *session.CallSession) error {
			return c.Transition(session.StatusCompleted)
		})
		s.store.Close(ctx, cs.ID)
		s.metrics.SetActiveSessions(s.store.Len())
		return nil, fmt.Errorf("failed to connect call: %w", err)
	}

	res := s.registry.Resolve(ctx, start.DialedNumber)
	settings := tenant.SelectSettings(res, s.defaults, s.hours, cs.StartedAt)

	// record the tenant first so an end signal from here on bills the right line
	err := s.store.Mutate(cs.ID, func(c *session.CallSession) error {
		if c.Status != session.StatusStarting {
			return errEndedDuringStart
		}
		c.TenantID = res.TenantID()
		c.TenantName = settings.TenantName
		c.Settings = settings
		c.Resolved = true
		return nil
	})
	if err != nil {
		log.Info("Call ended during start", zap.Error(err))
		return nil, err
	}

	var handle *domain.RecordingHandle
	if s.recorder != nil && s.recorder.Enabled() {
		handle = s.recorder.Start(ctx, cs.ID, cs.RoomName)
	}

	callLogID := s.createCallLog(ctx, cs, res)

	err = s.store.Mutate(cs.ID, func(c *session.CallSession) error {
		if err := c.Transition(session.StatusActive); err != nil {
			return err
		}
		c.Recording = handle
		c.CallLogID = callLogID
		return nil
	})
	if err != nil {
		// the caller hung up while we were starting
		log.Info("Call ended during start", zap.Error(err))
		s.abandonStart(ctx, cs, handle, callLogID)
		return nil, err
	}

	s.metrics.IncCallStarted(res.IsGlobal())
	log.Info("Call started",
		zap.String("tenant_id", res.TenantID()),
		zap.String("match", res.Match),
		zap.String("caller", cs.CallerPhone),
		zap.Bool("after_hours", settings.AfterHours),
		zap.Bool("recording", handle != nil))

	cs.TenantID = res.TenantID()
	cs.Settings = settings
	return s.bootstrapFor(cs), nil
}

// Bootstrap returns the engine bootstrap of an active session.
func (s *CallService) Bootstrap(sessionID string) (*Bootstrap, error) {
	cs, ok := s.store.Get(sessionID)
	if !ok || cs.Status != session.StatusActive {
		return nil, session.ErrSessionNotFound
	}
	return s.bootstrapFor(cs), nil
}

func (s *CallService) bootstrapFor(cs session.CallSession) *Bootstrap {
	rendered := prompts.Render(cs.Settings, cs.CallerPhone)
	return &Bootstrap{
		SessionID:    cs.ID,
		TenantID:     cs.TenantID,
		TenantName:   cs.Settings.TenantName,
		Greeting:     rendered.Greeting,
		Instructions: rendered.Instructions,
		Voice:        cs.Settings.Voice,
		Temperature:  cs.Settings.Temperature,
		AfterHours:   cs.Settings.AfterHours,
		Tools:        s.tools.Definitions(toolsFor(cs.Settings)...),
	}
}

func toolsFor(settings config.SessionSettings) []string {
	names := []string{
		tool.ToolNameSearchInventory,
		tool.ToolNameListingDetails,
		tool.ToolNameCaptureLead,
	}
	if !settings.IsGlobal() {
		names = append(names, tool.ToolNameVerifyStaffPIN, tool.ToolNameQueryInternalData)
	}
	if settings.TransferEnabled && settings.TransferNumber != "" {
		names = append(names, tool.ToolNameTransferCall)
	}
	return append(names, tool.ToolNameEndCall)
}

func (s *CallService) createCallLog(ctx context.Context, cs session.CallSession, res tenant.Resolution) string {
	entry := &domain.CallLog{
		SessionID:    cs.ID,
		CallerPhone:  cs.CallerPhone,
		DialedNumber: res.Canonical,
		Status:       domain.CallLogStatusInProgress,
		StartedAt:    cs.StartedAt,
	}
	if !res.IsGlobal() {
		entry.TenantID = domain.StringPtr(res.TenantID())
	}
	if entry.DialedNumber == "" {
		entry.DialedNumber = cs.DialedNumber
	}
	if err := s.repos.CallLogs().Create(ctx, entry); err != nil {
		logger.ForSession(cs.ID).Warn("Failed to create call log", zap.Error(err))
		return ""
	}
	return entry.ID
}

// abandonStart releases what StartCall acquired when the session was ended
// before it became active.
func (s *CallService) abandonStart(ctx context.Context, cs session.CallSession, handle *domain.RecordingHandle, callLogID string) {
	base := context.WithoutCancel(ctx)
	if handle != nil {
		s.runStep(base, cs.ID, StepStopRecording, func(stepCtx context.Context) error {
			_, err := s.recorder.Stop(stepCtx, handle)
			return err
		})
	}
	if callLogID != "" {
		ended := s.now()
		seconds := ended.Sub(cs.StartedAt).Seconds()
		s.runStep(base, cs.ID, StepCallLog, func(stepCtx context.Context) error {
			return s.repos.CallLogs().Finalize(stepCtx, callLogID, domain.CallLogUpdate{
				Status:          domain.CallLogStatusCompleted,
				DurationSeconds: seconds,
				EndedAt:         ended,
			})
		})
	}
}

var (
	errAlreadyEnding    = errors.New("call already ending")
	errEndedDuringStart = errors.New("call ended during start")
)

// EndCall ends a session and finalizes it. Duplicate or late end signals are no-ops.
func (s *CallService) EndCall(ctx context.Context, sessionID, reason string) error {
	_, err := s.endCall(ctx, sessionID, reason)
	return err
}

func (s *CallService) endCall(ctx context.Context, sessionID, reason string) (*Summary, error) {
	log := logger.ForSession(sessionID)
	now := s.now()

	err := s.store.Mutate(sessionID, func(c *session.CallSession) error {
		if c.Status != session.StatusStarting && c.Status != session.StatusActive {
			return errAlreadyEnding
		}
		if err := c.Transition(session.StatusEnding); err != nil {
			return err
		}
		c.EndReason = reason
		c.EndedAt = now
		return nil
	})
	if errors.Is(err, session.ErrSessionNotFound) {
		s.forwardEnd(ctx, sessionID, reason)
		return nil, nil
	}
	if errors.Is(err, errAlreadyEnding) {
		log.Debug("Ignoring duplicate end signal", zap.String("reason", reason))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.Mutate(sessionID, func(c *session.CallSession) error {
		return c.Transition(session.StatusFinalizing)
	}); err != nil {
		return nil, err
	}

	cs, ok := s.store.Close(ctx, sessionID)
	if !ok {
		return nil, nil
	}
	s.metrics.SetActiveSessions(s.store.Len())
	s.staff.Forget(sessionID)

	summary := s.finalize(ctx, cs)
	s.metrics.IncCallCompleted(summary.Status)

	log.Info("Call completed",
		zap.String("reason", reason),
		zap.String("status", summary.Status),
		zap.Float64("duration_seconds", summary.DurationSeconds),
		zap.Int("billable_minutes", summary.BillableMinutes),
		zap.Strings("failed_steps", summary.Failed))
	return summary, nil
}

// finalize runs every end-of-call step. Each step has its own timeout and a
// failing step never prevents the others.
func (s *CallService) finalize(ctx context.Context, cs session.CallSession) *Summary {
	started := time.Now()
	defer s.metrics.ObserveFinalize(started)

	base := context.WithoutCancel(ctx)
	if !cs.Resolved {
		// ended before its line was resolved
		res := s.registry.Resolve(base, cs.DialedNumber)
		cs.TenantID = res.TenantID()
	}
	summary := &Summary{
		SessionID: cs.ID,
		TenantID:  cs.TenantID,
		Status:    domain.CallLogStatusCompleted,
		EndedAt:   cs.EndedAt,
	}
	if summary.EndedAt.IsZero() {
		summary.EndedAt = s.now()
	}
	if cs.TransferredTo != "" {
		summary.Status = domain.CallLogStatusTransferred
	}
	fail := func(step string) { summary.Failed = append(summary.Failed, step) }

	var mediaSeconds *float64
	if cs.Recording != nil && s.recorder != nil {
		ok := s.runStep(base, cs.ID, StepStopRecording, func(stepCtx context.Context) error {
			result, err := s.recorder.Stop(stepCtx, cs.Recording)
			if err != nil {
				return err
			}
			summary.RecordingURL = result.URL
			mediaSeconds = result.Duration
			return nil
		})
		if !ok {
			fail(StepStopRecording)
		}
	}

	if mediaSeconds != nil && *mediaSeconds > 0 {
		summary.DurationSeconds = *mediaSeconds
	} else {
		summary.DurationSeconds = math.Max(0, summary.EndedAt.Sub(cs.StartedAt).Seconds())
	}
	summary.BillableMinutes = billing.BillableMinutes(summary.DurationSeconds)

	if !cs.IsGlobal() {
		ok := s.runStep(base, cs.ID, StepBilling, func(stepCtx context.Context) error {
			total, err := s.billing.Accrue(stepCtx, cs.TenantID, summary.BillableMinutes)
			summary.MinutesUsed = total
			return err
		})
		if !ok {
			fail(StepBilling)
		}
	}

	if cs.LeadID != "" && summary.RecordingURL != "" {
		ok := s.runStep(base, cs.ID, StepLeadRecording, func(stepCtx context.Context) error {
			return s.repos.Leads().UpdateRecording(stepCtx, cs.LeadID, summary.RecordingURL, int(math.Round(summary.DurationSeconds)))
		})
		if !ok {
			fail(StepLeadRecording)
		}
	}

	if cs.CallLogID != "" {
		update := domain.CallLogUpdate{
			CallerName:      cs.CallerName,
			Interest:        cs.Interest,
			EquipmentType:   cs.EquipmentType,
			Intent:          cs.Intent,
			LeadID:          cs.LeadID,
			StaffID:         cs.StaffID,
			TransferredTo:   cs.TransferredTo,
			Status:          summary.Status,
			RecordingURL:    summary.RecordingURL,
			DurationSeconds: summary.DurationSeconds,
			BillableMinutes: summary.BillableMinutes,
			EndedAt:         summary.EndedAt,
		}
		ok := s.runStep(base, cs.ID, StepCallLog, func(stepCtx context.Context) error {
			return s.repos.CallLogs().Finalize(stepCtx, cs.CallLogID, update)
		})
		if !ok {
			fail(StepCallLog)
		}
	}

	if summary.RecordingURL != "" && summary.DurationSeconds > s.minEnrichSeconds && cs.CallLogID != "" {
		s.enqueueEnrichment(enrichment.Job{
			CallLogID:       cs.CallLogID,
			SessionID:       cs.ID,
			TenantID:        cs.TenantID,
			LeadID:          cs.LeadID,
			RecordingURL:    summary.RecordingURL,
			DurationSeconds: summary.DurationSeconds,
			EnqueuedAt:      s.now(),
		})
	}

	return summary
}

// runStep runs fn with the step timeout. Failures are logged and counted, never returned.
func (s *CallService) runStep(ctx context.Context, sessionID, step string, fn func(context.Context) error) bool {
	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	if err := fn(stepCtx); err != nil {
		s.metrics.IncFinalizeFailure(step)
		logger.ForSession(sessionID).Error("Finalization step failed", zap.String("step", step), zap.Error(err))
		return false
	}
	return true
}

// enqueueEnrichment is detached from the call: it outlives the request that ended it.
func (s *CallService) enqueueEnrichment(job enrichment.Job) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), defaultEnrichmentTimeout)
		defer cancel()

		if err := s.enrichment.Enqueue(ctx, job); err != nil {
			s.metrics.IncEnrichment("error")
			s.metrics.IncFinalizeFailure(StepEnrichment)
			logger.ForSession(job.SessionID).Error("Failed to enqueue enrichment", zap.String("step", StepEnrichment), zap.Error(err))
			return
		}
		s.metrics.IncEnrichment("ok")
	}()
}

// Wait blocks until background work (enrichment, delayed hangups) has finished or ctx is done.
func (s *CallService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forwardEnd relays an end signal for a session this instance does not hold.
// If another instance registered it, every instance is asked to end it.
func (s *CallService) forwardEnd(ctx context.Context, sessionID, reason string) {
	log := logger.ForSession(sessionID)
	if s.monitor == nil {
		log.Debug("Ignoring end signal for unknown session", zap.String("reason", reason))
		return
	}

	info, err := s.monitor.Lookup(ctx, sessionID)
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotExist) {
			log.Debug("Ignoring end signal for unknown session", zap.String("reason", reason))
		} else {
			log.Warn("Failed to look up session owner", zap.String("reason", reason), zap.Error(err))
		}
		return
	}
	if info.PodID == s.monitor.PodID() {
		// closed here; the registration is still being removed
		log.Debug("Ignoring duplicate end signal", zap.String("reason", reason))
		return
	}

	log.Info("Session owned by another instance, broadcasting cleanup",
		zap.String("owner_pod", info.PodID),
		zap.String("reason", reason))
	if err := s.monitor.NotifyCleanup(ctx, sessionID); err != nil {
		log.Error("Failed to broadcast cleanup", zap.Error(err))
	}
}

// HandleCleanup ends a session on behalf of another instance's broadcast.
// Sessions not owned here are ignored.
func (s *CallService) HandleCleanup(sessionID string) {
	if _, ok := s.store.Get(sessionID); !ok {
		return
	}
	logger.ForSession(sessionID).Info("Received cleanup broadcast for local session")
	if err := s.EndCall(context.Background(), sessionID, "cleanup_broadcast"); err != nil {
		logger.ForSession(sessionID).Error("Failed to end call from cleanup broadcast", zap.Error(err))
	}
}

// ActiveSessions returns the number of sessions open on this instance.
func (s *CallService) ActiveSessions() int {
	return s.store.Len()
}
