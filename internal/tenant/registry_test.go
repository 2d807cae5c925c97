package tenant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/config"
	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistryWithLine(t *testing.T, number string) (*Registry, *domain.TenantConfig) {
	t.Helper()
	repos := repository.NewMemoryRepositoryManager()
	line := &domain.TenantConfig{PhoneNumber: number, DisplayName: "Lone Star Trailers", IsActive: true}
	require.NoError(t, repos.Tenants().Create(context.Background(), line))
	return NewRegistry(repos.Tenants(), time.Second, nil), line
}

func TestResolveStripsTransportPrefixAndHost(t *testing.T) {
	registry, line := newRegistryWithLine(t, "+15551234567")

	plain := registry.Resolve(context.Background(), "+15551234567")
	sip := registry.Resolve(context.Background(), "sip:+15551234567@pstn.twilio.com")

	require.False(t, plain.IsGlobal())
	require.False(t, sip.IsGlobal())
	assert.Equal(t, line.ID, plain.TenantID())
	assert.Equal(t, plain.TenantID(), sip.TenantID())
	assert.Equal(t, MatchExact, sip.Match)
}

func TestResolveAlternateForms(t *testing.T) {
	t.Run("bare number finds plus form", func(t *testing.T) {
		registry, line := newRegistryWithLine(t, "+15551234567")
		res := registry.Resolve(context.Background(), "15551234567")
		assert.Equal(t, line.ID, res.TenantID())
		assert.Equal(t, MatchAlternate, res.Match)
	})

	t.Run("plus form finds bare number", func(t *testing.T) {
		registry, line := newRegistryWithLine(t, "15551234567")
		res := registry.Resolve(context.Background(), "+15551234567")
		assert.Equal(t, line.ID, res.TenantID())
	})

	t.Run("ten digit national number", func(t *testing.T) {
		registry, line := newRegistryWithLine(t, "+15551234567")
		res := registry.Resolve(context.Background(), "(555) 123-4567")
		assert.Equal(t, line.ID, res.TenantID())
	})
}

func TestResolveFallsBackToGlobal(t *testing.T) {
	registry, _ := newRegistryWithLine(t, "+15551234567")

	for _, dialed := range []string{"", "sip:@host", "+18005550199"} {
		res := registry.Resolve(context.Background(), dialed)
		assert.True(t, res.IsGlobal(), "dialed=%q", dialed)
		assert.Equal(t, MatchGlobal, res.Match)
		assert.Empty(t, res.TenantID())
	}
}

type failingTenants struct {
	repository.TenantRepository
	calls int32
}

func (f *failingTenants) FindActiveByPhone(ctx context.Context, phone string) (*domain.TenantConfig, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, errors.New("connection refused")
}

func TestResolveStoreErrorIsGlobal(t *testing.T) {
	store := &failingTenants{}
	registry := NewRegistry(store, time.Second, nil)

	res := registry.Resolve(context.Background(), "+15551234567")

	assert.True(t, res.IsGlobal())
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.calls), "store errors do not retry the alternate form")
}

type slowTenants struct {
	repository.TenantRepository
	release chan struct{}
	calls   int32
	line    *domain.TenantConfig
}

func (s *slowTenants) FindActiveByPhone(ctx context.Context, phone string) (*domain.TenantConfig, error) {
	atomic.AddInt32(&s.calls, 1)
	<-s.release
	return s.line, nil
}

func TestResolveCollapsesConcurrentLookups(t *testing.T) {
	store := &slowTenants{release: make(chan struct{}), line: &domain.TenantConfig{ID: "dealer-1", IsActive: true}}
	registry := NewRegistry(store, time.Second, nil)

	var wg sync.WaitGroup
	results := make([]Resolution, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = registry.Resolve(context.Background(), "+15551234567")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(store.release)
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, "dealer-1", res.TenantID())
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&store.calls), int32(5))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&store.calls), int32(1))
}

func TestWeeklySchedule(t *testing.T) {
	schedule := domain.JSONB{
		"timezone": "America/Chicago",
		"mon":      []interface{}{"08:00", "17:00"},
		"sat":      []string{"09:00", "12:00"},
	}
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	var hours WeeklySchedule
	// 2026-10-19 is a Monday
	assert.True(t, hours.IsOpen(schedule, time.Date(2026, 10, 19, 9, 30, 0, 0, chicago)))
	assert.False(t, hours.IsOpen(schedule, time.Date(2026, 10, 19, 17, 0, 0, 0, chicago)))
	assert.False(t, hours.IsOpen(schedule, time.Date(2026, 10, 18, 10, 0, 0, 0, chicago)), "sunday has no entry")
	assert.True(t, hours.IsOpen(schedule, time.Date(2026, 10, 24, 11, 0, 0, 0, chicago)))
	assert.True(t, hours.IsOpen(nil, time.Now()))
}

type fixedHours bool

func (f fixedHours) IsOpen(domain.JSONB, time.Time) bool { return bool(f) }

func TestSelectSettings(t *testing.T) {
	defaults := config.DefaultSessionSettings()

	global := SelectSettings(Resolution{Match: MatchGlobal}, defaults, fixedHours(true), time.Now())
	assert.True(t, global.IsGlobal())
	assert.Equal(t, config.DefaultGreeting, global.Greeting)
	assert.False(t, global.TransferEnabled)

	line := &domain.TenantConfig{
		ID:              "dealer-1",
		DisplayName:     "Lone Star Trailers",
		Greeting:        "Howdy, Lone Star Trailers!",
		Instructions:    "We only sell trailers.",
		TransferEnabled: true,
		TransferNumber:  "+15557654321",
		Temperature:     0.5,
	}
	open := SelectSettings(Resolution{Tenant: line}, defaults, fixedHours(true), time.Now())
	assert.Equal(t, "dealer-1", open.TenantID)
	assert.Equal(t, "Howdy, Lone Star Trailers!", open.Greeting)
	assert.Contains(t, open.Instructions, "We only sell trailers.")
	assert.Equal(t, defaults.Voice, open.Voice)
	assert.Equal(t, 0.5, open.Temperature)
	assert.True(t, open.TransferEnabled)
	assert.False(t, open.AfterHours)

	closed := SelectSettings(Resolution{Tenant: line}, defaults, fixedHours(false), time.Now())
	assert.True(t, closed.AfterHours)
	assert.False(t, closed.TransferEnabled)
	assert.Equal(t, config.DefaultAfterHoursGreeting, closed.Greeting)
	assert.Contains(t, closed.Instructions, config.DefaultAfterHoursNote)
}
