package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/core/tool"
	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/internal/enrichment"
	"github.com/AxlesAI/axles-voice-service/internal/lead"
	"github.com/AxlesAI/axles-voice-service/internal/recording"
	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/AxlesAI/axles-voice-service/internal/session"
	"github.com/AxlesAI/axles-voice-service/internal/staff"
	"github.com/AxlesAI/axles-voice-service/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
)

type fakePlatform struct {
	mu         sync.Mutex
	connectErr error
	onConnect  func(roomName string)
	hangups    []string
	transfers  [][2]string
}

func (p *fakePlatform) Connect(ctx context.Context, roomName string) error {
	if p.onConnect != nil {
		p.onConnect(roomName)
	}
	return p.connectErr
}

func (p *fakePlatform) Hangup(ctx context.Context, roomName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hangups = append(p.hangups, roomName)
	return nil
}

func (p *fakePlatform) Transfer(ctx context.Context, callID, destination string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, [2]string{callID, destination})
	return nil
}

type fakeRecorder struct {
	mu         sync.Mutex
	result     recording.StopResult
	startFails bool
	stopErr    error
	starts     int
	stops      int
}

func (r *fakeRecorder) Enabled() bool { return true }

func (r *fakeRecorder) Start(ctx context.Context, sessionID, roomName string) *domain.RecordingHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startFails {
		return nil
	}
	r.starts++
	return &domain.RecordingHandle{EgressID: "EG_" + sessionID, RoomName: roomName, Filepath: "call-recordings/" + sessionID + ".ogg"}
}

func (r *fakeRecorder) Stop(ctx context.Context, handle *domain.RecordingHandle) (recording.StopResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return r.result, r.stopErr
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []enrichment.Job
}

func (e *fakeEnqueuer) Enqueue(ctx context.Context, job enrichment.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func seconds(v float64) *float64 { return &v }

type CallServiceSuite struct {
	suite.Suite
	ctx      context.Context
	repos    *repository.MemoryRepositoryManager
	platform *fakePlatform
	recorder *fakeRecorder
	queue    *fakeEnqueuer
	clock    *clock
	metrics  *metrics.Metrics
	svc      *CallService
	dealer   *domain.TenantConfig
}

func TestCallServiceSuite(t *testing.T) {
	suite.Run(t, new(CallServiceSuite))
}

func (s *CallServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.repos = repository.NewMemoryRepositoryManager()
	s.platform = &fakePlatform{}
	s.recorder = &fakeRecorder{result: recording.StopResult{
		URL:      "https://storage.googleapis.com/recordings/call-recordings/room.ogg",
		Duration: seconds(125.4),
	}}
	s.queue = &fakeEnqueuer{}
	s.clock = &clock{now: time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)}
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())

	s.dealer = &domain.TenantConfig{
		PhoneNumber:     "+15551234567",
		DisplayName:     "Lone Star Trailers",
		IsActive:        true,
		TransferEnabled: true,
		TransferNumber:  "+15125550111",
	}
	s.Require().NoError(s.repos.Tenants().Create(s.ctx, s.dealer))

	s.svc = NewCallService(Deps{
		Repos:       s.repos,
		Store:       session.NewStore(nil),
		Platform:    s.platform,
		Recorder:    s.recorder,
		Enrichment:  s.queue,
		Metrics:     s.metrics,
		Staff:       staff.NewDirectory(s.repos, staff.WithThrottle(0, 0), staff.WithClock(s.clock.Now)),
		HangupDelay: -1,
		Now:         s.clock.Now,
	})
}

func (s *CallServiceSuite) TearDownTest() {
	s.Require().NoError(s.svc.Wait(s.ctx))
}

func (s *CallServiceSuite) start(id, dialed string) *Bootstrap {
	b, err := s.svc.StartCall(s.ctx, CallStart{
		SessionID:      id,
		CallerPhone:    "sip:+15125550100@pstn.twilio.com",
		DialedNumber:   dialed,
		PlatformCallID: "CA" + id,
	})
	s.Require().NoError(err)
	return b
}

func (s *CallServiceSuite) tool(id, name string, args interface{}) (string, error) {
	raw, err := json.Marshal(args)
	s.Require().NoError(err)
	return s.svc.ExecuteTool(s.ctx, id, name, raw)
}

func (s *CallServiceSuite) callLogID(id string) string {
	cs, ok := s.svc.store.Get(id)
	s.Require().True(ok)
	return cs.CallLogID
}

func (s *CallServiceSuite) toolNames(b *Bootstrap) []string {
	var names []string
	for _, t := range b.Tools {
		names = append(names, t["name"].(string))
	}
	return names
}

func (s *CallServiceSuite) TestUnregisteredNumberRunsGlobalLine() {
	b := s.start("room-global", "+18005550000")

	s.Empty(b.TenantID)
	s.Equal("Axles AI", b.TenantName)
	s.Contains(b.Instructions, "calling from +15125550100")
	s.NotContains(s.toolNames(b), tool.ToolNameVerifyStaffPIN)
	s.NotContains(s.toolNames(b), tool.ToolNameTransferCall)

	reply, err := s.tool("room-global", tool.ToolNameCaptureLead, map[string]string{"name": "Dana", "interest": "a reefer trailer"})
	s.Require().NoError(err)
	s.Contains(reply, "A team member will follow up")

	cs, _ := s.svc.store.Get("room-global")
	captured, err := s.repos.Leads().GetByID(s.ctx, cs.LeadID)
	s.Require().NoError(err)
	s.Nil(captured.TenantID)
	s.Equal("+15125550100", captured.Phone)

	summary, err := s.svc.endCall(s.ctx, "room-global", "participant_left")
	s.Require().NoError(err)
	s.Equal(3, summary.BillableMinutes)
	s.Empty(summary.Failed)

	tenant, err := s.repos.Tenants().GetByID(s.ctx, s.dealer.ID)
	s.Require().NoError(err)
	s.Equal(0, tenant.MinutesUsed, "global calls are not billed to any dealer")
}

func (s *CallServiceSuite) TestDealerCallCapturesLeadAndFinalizes() {
	b := s.start("room-1", "sip:15551234567@axles.sip.livekit.cloud")
	s.Equal(s.dealer.ID, b.TenantID)
	s.Equal("Thanks for calling Lone Star Trailers! How can I help you find the right equipment today?", b.Greeting)
	s.Contains(s.toolNames(b), tool.ToolNameTransferCall)
	logID := s.callLogID("room-1")
	s.Require().NotEmpty(logID)

	reply, err := s.tool("room-1", tool.ToolNameCaptureLead, map[string]string{
		"name": "Dana", "interest": "a flatbed", "equipment_type": "flatbed trailer",
	})
	s.Require().NoError(err)
	s.Equal("I've captured your information. A dealer will reach out to you at +15125550100 soon about a flatbed.", reply)

	s.clock.Advance(2 * time.Minute)
	summary, err := s.svc.endCall(s.ctx, "room-1", "participant_left")
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Wait(s.ctx))

	s.InDelta(125.4, summary.DurationSeconds, 0.001, "media duration wins over wall clock")
	s.Equal(3, summary.BillableMinutes)

	tenant, err := s.repos.Tenants().GetByID(s.ctx, s.dealer.ID)
	s.Require().NoError(err)
	s.Equal(3, tenant.MinutesUsed)

	entry, err := s.repos.CallLogs().GetByID(s.ctx, logID)
	s.Require().NoError(err)
	s.Equal(domain.CallLogStatusCompleted, entry.Status)
	s.Equal("Dana", entry.CallerName)
	s.Equal(IntentLead, entry.Intent)
	s.Equal(s.recorder.result.URL, entry.RecordingURL)
	s.Require().NotNil(entry.LeadID)

	captured, err := s.repos.Leads().GetByID(s.ctx, *entry.LeadID)
	s.Require().NoError(err)
	s.Equal(s.dealer.ID, domain.StringValue(captured.TenantID))
	s.Equal(s.recorder.result.URL, captured.RecordingURL)
	s.Require().NotNil(captured.RecordingDurationSeconds)
	s.Equal(125, *captured.RecordingDurationSeconds)

	s.Require().Len(s.queue.jobs, 1)
	s.Equal(logID, s.queue.jobs[0].CallLogID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.EnrichmentEnqueued.WithLabelValues("ok")))
}

func (s *CallServiceSuite) TestRecordingStopFailureFallsBackToWallClock() {
	s.recorder.stopErr = errors.New("egress not found")
	s.start("room-2", "+15551234567")
	s.clock.Advance(61 * time.Second)

	summary, err := s.svc.endCall(s.ctx, "room-2", "room_finished")
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Wait(s.ctx))

	s.InDelta(61.0, summary.DurationSeconds, 0.001)
	s.Equal(2, summary.BillableMinutes)
	s.Empty(summary.RecordingURL)
	s.Equal([]string{StepStopRecording}, summary.Failed)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.FinalizeFailures.WithLabelValues(StepStopRecording)))
	s.Empty(s.queue.jobs, "no enrichment without a recording")
}

func (s *CallServiceSuite) TestRecordingStartFailureStillCompletesCall() {
	s.recorder.startFails = true
	b := s.start("room-9", "+15551234567")
	s.Equal(s.dealer.ID, b.TenantID)
	logID := s.callLogID("room-9")

	_, err := s.tool("room-9", tool.ToolNameCaptureLead, map[string]string{"name": "Dana", "interest": "a dump trailer"})
	s.Require().NoError(err)

	s.clock.Advance(95 * time.Second)
	summary, err := s.svc.endCall(s.ctx, "room-9", "participant_left")
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Wait(s.ctx))

	s.InDelta(95.0, summary.DurationSeconds, 0.001)
	s.Equal(2, summary.BillableMinutes)
	s.Empty(summary.RecordingURL)
	s.Empty(summary.Failed)
	s.Equal(0, s.recorder.stops)
	s.Empty(s.queue.jobs)

	entry, err := s.repos.CallLogs().GetByID(s.ctx, logID)
	s.Require().NoError(err)
	s.Equal(domain.CallLogStatusCompleted, entry.Status)
	s.Empty(entry.RecordingURL)
	s.Require().NotNil(entry.LeadID)

	captured, err := s.repos.Leads().GetByID(s.ctx, *entry.LeadID)
	s.Require().NoError(err)
	s.Empty(captured.RecordingURL)
	s.Nil(captured.RecordingDurationSeconds)
}

func (s *CallServiceSuite) TestShortCallSkipsEnrichment() {
	s.recorder.result.Duration = seconds(4.2)
	s.start("room-short", "+15551234567")

	summary, err := s.svc.endCall(s.ctx, "room-short", "participant_left")
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Wait(s.ctx))

	s.Equal(1, summary.BillableMinutes)
	s.Empty(s.queue.jobs)
}

func (s *CallServiceSuite) TestConnectFailureCompletesImmediately() {
	s.platform.connectErr = errors.New("room gone")

	_, err := s.svc.StartCall(s.ctx, CallStart{SessionID: "room-3", DialedNumber: "+15551234567"})
	s.Error(err)
	s.Equal(0, s.svc.ActiveSessions())
	s.Equal(0, s.recorder.stops)

	reply, err := s.svc.ExecuteTool(s.ctx, "room-3", tool.ToolNameSearchInventory, nil)
	s.ErrorIs(err, session.ErrSessionNotFound)
	s.Equal(MsgCallEnding, reply)
}

func (s *CallServiceSuite) TestLockedStaffPINIsDenied() {
	until := s.clock.Now().Add(10 * time.Minute)
	s.Require().NoError(s.repos.Staff().Create(s.ctx, &domain.StaffCredential{
		TenantID: s.dealer.ID, Name: "Mike Johnson", PIN: "4821", IsActive: true, FailedAttempts: 3, LockedUntil: &until,
	}))
	s.start("room-4", "+15551234567")

	reply, err := s.tool("room-4", tool.ToolNameVerifyStaffPIN, map[string]string{"name": "Mike", "pin": "4821"})
	s.Require().NoError(err)
	s.Equal(staff.MsgLocked, reply)

	reply, err = s.tool("room-4", tool.ToolNameQueryInternalData, map[string]string{"query_type": "inventory"})
	s.Require().NoError(err)
	s.Equal(staff.MsgVerifyFirst, reply)
}

func (s *CallServiceSuite) TestVerifiedStaffCanQuery() {
	s.Require().NoError(s.repos.Staff().Create(s.ctx, &domain.StaffCredential{
		TenantID: s.dealer.ID, Name: "Mike Johnson", PIN: "4821", IsActive: true,
	}))
	s.start("room-5", "+15551234567")

	reply, err := s.tool("room-5", tool.ToolNameVerifyStaffPIN, map[string]string{"name": "mike", "pin": "4821"})
	s.Require().NoError(err)
	s.Contains(reply, "You're verified")

	reply, err = s.tool("room-5", tool.ToolNameQueryInternalData, map[string]string{"query_type": "inventory"})
	s.Require().NoError(err)
	s.Equal("You don't have any active listings right now.", reply)

	logID := s.callLogID("room-5")
	s.Require().NoError(s.svc.EndCall(s.ctx, "room-5", "participant_left"))
	entry, err := s.repos.CallLogs().GetByID(s.ctx, logID)
	s.Require().NoError(err)
	s.Equal(IntentStaff, entry.Intent)
	s.NotNil(entry.StaffID)
}

func (s *CallServiceSuite) TestStaffVerificationDoesNotCarryToOtherSessions() {
	s.Require().NoError(s.repos.Staff().Create(s.ctx, &domain.StaffCredential{
		TenantID: s.dealer.ID, Name: "Mike Johnson", PIN: "4821", IsActive: true,
	}))
	s.start("room-a", "+15551234567")
	s.start("room-b", "+15551234567")

	reply, err := s.tool("room-a", tool.ToolNameVerifyStaffPIN, map[string]string{"name": "mike", "pin": "4821"})
	s.Require().NoError(err)
	s.Contains(reply, "You're verified")

	reply, err = s.tool("room-b", tool.ToolNameQueryInternalData, map[string]string{"query_type": "inventory"})
	s.Require().NoError(err)
	s.Equal(staff.MsgVerifyFirst, reply)

	reply, err = s.tool("room-a", tool.ToolNameQueryInternalData, map[string]string{"query_type": "inventory"})
	s.Require().NoError(err)
	s.Equal("You don't have any active listings right now.", reply)
}

func (s *CallServiceSuite) TestDuplicateEndSignalsFinalizeOnce() {
	s.start("room-6", "+15551234567")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.svc.EndCall(s.ctx, "room-6", "participant_left"))
		}()
	}
	wg.Wait()
	s.Require().NoError(s.svc.Wait(s.ctx))

	tenant, err := s.repos.Tenants().GetByID(s.ctx, s.dealer.ID)
	s.Require().NoError(err)
	s.Equal(3, tenant.MinutesUsed)
	s.Equal(1, s.recorder.stops)
	s.Len(s.queue.jobs, 1)
}

func (s *CallServiceSuite) TestConcurrentCallsOnOneLineAllBill() {
	const calls = 6
	for i := 0; i < calls; i++ {
		s.start("room-c"+string(rune('a'+i)), "+15551234567")
	}

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.NoError(s.svc.EndCall(s.ctx, id, "participant_left"))
		}("room-c" + string(rune('a'+i)))
	}
	wg.Wait()

	tenant, err := s.repos.Tenants().GetByID(s.ctx, s.dealer.ID)
	s.Require().NoError(err)
	s.Equal(calls*3, tenant.MinutesUsed)
}

func (s *CallServiceSuite) TestTransferDialsDealerAndMarksCallLog() {
	s.start("room-7", "+15551234567")
	logID := s.callLogID("room-7")

	reply, err := s.tool("room-7", tool.ToolNameTransferCall, map[string]string{"reason": "wants sales"})
	s.Require().NoError(err)
	s.Equal(MsgTransferring, reply)
	s.Equal([][2]string{{"CAroom-7", "+15125550111"}}, s.platform.transfers)

	cs, ok := s.svc.store.Get("room-7")
	s.Require().True(ok)
	s.Equal(session.StatusActive, cs.Status)

	s.Require().NoError(s.svc.EndCall(s.ctx, "room-7", "participant_left"))
	entry, err := s.repos.CallLogs().GetByID(s.ctx, logID)
	s.Require().NoError(err)
	s.Equal(domain.CallLogStatusTransferred, entry.Status)
	s.Equal("+15125550111", entry.TransferredTo)
}

func (s *CallServiceSuite) TestTransferUnavailableOnGlobalLine() {
	s.start("room-8", "+18005550000")

	reply, err := s.tool("room-8", tool.ToolNameTransferCall, map[string]string{})
	s.Require().NoError(err)
	s.Equal(MsgTransferUnavailable, reply)
	s.Empty(s.platform.transfers)
}

func (s *CallServiceSuite) TestEndCallToolHangsUpAndFinalizes() {
	s.start("room-9", "+15551234567")

	reply, err := s.tool("room-9", tool.ToolNameEndCall, map[string]string{"reason": "caller said goodbye"})
	s.Require().NoError(err)
	s.Equal(MsgGoodbye, reply)
	s.Require().NoError(s.svc.Wait(s.ctx))

	s.Equal([]string{"room-9"}, s.platform.hangups)
	s.Equal(0, s.svc.ActiveSessions())

	reply, err = s.tool("room-9", tool.ToolNameSearchInventory, map[string]string{})
	s.ErrorIs(err, session.ErrSessionNotFound)
	s.Equal(MsgCallEnding, reply)
}

func (s *CallServiceSuite) TestEndDuringStartStillBillsDealerLine() {
	s.platform.onConnect = func(roomName string) {
		s.clock.Advance(20 * time.Second)
		s.NoError(s.svc.EndCall(s.ctx, roomName, "participant_left"))
	}

	_, err := s.svc.StartCall(s.ctx, CallStart{
		SessionID:    "room-early",
		CallerPhone:  "+15125550100",
		DialedNumber: "+15551234567",
	})
	s.Require().Error(err)
	s.Require().NoError(s.svc.Wait(s.ctx))

	s.Equal(0, s.recorder.starts, "no recording after the room ended")
	s.Equal(0, s.svc.ActiveSessions())

	tenant, err := s.repos.Tenants().GetByID(s.ctx, s.dealer.ID)
	s.Require().NoError(err)
	s.Equal(1, tenant.MinutesUsed)
}

func (s *CallServiceSuite) TestDuplicateStartIsRejected() {
	s.start("room-10", "+15551234567")

	_, err := s.svc.StartCall(s.ctx, CallStart{SessionID: "room-10", DialedNumber: "+15551234567"})
	s.ErrorIs(err, session.ErrSessionExists)
}

func (s *CallServiceSuite) TestBootstrapForActiveSession() {
	s.start("room-11", "+15551234567")

	b, err := s.svc.Bootstrap("room-11")
	s.Require().NoError(err)
	s.Equal(s.dealer.ID, b.TenantID)
	s.NotEmpty(b.Tools)

	_, err = s.svc.Bootstrap("missing")
	s.ErrorIs(err, session.ErrSessionNotFound)
}

func (s *CallServiceSuite) TestCaptureLeadWithoutCallerNumberAsksForOne() {
	_, err := s.svc.StartCall(s.ctx, CallStart{SessionID: "room-12", DialedNumber: "+15551234567"})
	s.Require().NoError(err)

	reply, err := s.tool("room-12", tool.ToolNameCaptureLead, map[string]string{"name": "Dana", "interest": "dump truck"})
	s.Require().NoError(err)
	s.Equal(lead.MsgMissingPhone, reply)
}
