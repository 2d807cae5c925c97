package call

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/session"
	"github.com/AxlesAI/axles-voice-service/internal/staff"
	"github.com/AxlesAI/axles-voice-service/pkg/redis"
)

// sharedRedis is one Redis seen by several instances; Publish fans out to every subscriber.
type sharedRedis struct {
	mu        sync.Mutex
	values    map[string]string
	handlers  map[string][]func(string)
	published []string
}

func newSharedRedis() *sharedRedis {
	return &sharedRedis{values: map[string]string{}, handlers: map[string][]func(string){}}
}

func (f *sharedRedis) GenerateKey(keyType redis.KeyType, identifier string) string {
	return string(keyType) + ":" + identifier
}

func (f *sharedRedis) GetValue(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", redis.ErrKeyNotExist
	}
	return v, nil
}

func (f *sharedRedis) SetValue(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *sharedRedis) DelValue(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *sharedRedis) PushJSON(ctx context.Context, key string, value interface{}) error { return nil }

func (f *sharedRedis) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.published = append(f.published, string(data))
	handlers := append([]func(string){}, f.handlers[channel]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(string(data))
	}
	return nil
}

func (f *sharedRedis) Subscribe(ctx context.Context, channel string, handler func(string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[channel] = append(f.handlers[channel], handler)
	return nil
}

func (f *sharedRedis) registered(sessionID string) bool {
	_, err := f.GetValue(context.Background(), f.GenerateKey(redis.SESSION_INFO, sessionID))
	return err == nil
}

func (f *sharedRedis) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

// instance builds a second orchestrator over the suite's repositories, as another pod would.
func (s *CallServiceSuite) instance(shared *sharedRedis, podID string) *CallService {
	monitor := session.NewMonitor(shared, podID)
	svc := NewCallService(Deps{
		Repos:       s.repos,
		Store:       session.NewStore(monitor),
		Monitor:     monitor,
		Platform:    s.platform,
		Recorder:    s.recorder,
		Enrichment:  s.queue,
		Metrics:     s.metrics,
		Staff:       staff.NewDirectory(s.repos, staff.WithThrottle(0, 0), staff.WithClock(s.clock.Now)),
		HangupDelay: -1,
		Now:         s.clock.Now,
	})
	s.Require().NoError(monitor.SubscribeToCleanup(s.ctx, svc.HandleCleanup))
	return svc
}

func (s *CallServiceSuite) TestEndSignalOnOtherInstanceFinalizesOwner() {
	shared := newSharedRedis()
	owner := s.instance(shared, "pod-a")
	other := s.instance(shared, "pod-b")

	_, err := owner.StartCall(s.ctx, CallStart{
		SessionID:    "room-x",
		CallerPhone:  "+15125550100",
		DialedNumber: "+15551234567",
	})
	s.Require().NoError(err)
	s.Eventually(func() bool { return shared.registered("room-x") }, time.Second, 5*time.Millisecond)

	s.Require().NoError(other.EndCall(s.ctx, "room-x", "room_finished"))
	s.Require().NoError(owner.Wait(s.ctx))

	s.Equal(0, owner.ActiveSessions())
	s.Equal(1, shared.publishCount())
	s.Equal(1, s.recorder.stops)

	tenant, err := s.repos.Tenants().GetByID(s.ctx, s.dealer.ID)
	s.Require().NoError(err)
	s.Equal(3, tenant.MinutesUsed)
}

func (s *CallServiceSuite) TestEndSignalForUnknownSessionIsNotBroadcast() {
	shared := newSharedRedis()
	owner := s.instance(shared, "pod-a")
	other := s.instance(shared, "pod-b")

	s.Require().NoError(other.EndCall(s.ctx, "room-missing", "room_finished"))
	s.Equal(0, shared.publishCount())

	_, err := owner.StartCall(s.ctx, CallStart{SessionID: "room-y", DialedNumber: "+15551234567"})
	s.Require().NoError(err)
	s.Eventually(func() bool { return shared.registered("room-y") }, time.Second, 5*time.Millisecond)

	// the owner ends it, then a late duplicate arrives before its registration is gone
	s.Require().NoError(owner.EndCall(s.ctx, "room-y", "participant_left"))
	s.Require().NoError(owner.EndCall(s.ctx, "room-y", "room_finished"))
	s.Equal(0, shared.publishCount())
	s.Require().NoError(owner.Wait(s.ctx))
}
