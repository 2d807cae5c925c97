package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillableMinutes(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int
	}{
		{0, 1},
		{0.4, 1},
		{1, 1},
		{60, 1},
		{60.01, 2},
		{61, 2},
		{119.9, 2},
		{120, 2},
		{3601, 61},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BillableMinutes(tt.seconds), "seconds=%v", tt.seconds)
	}
}

func TestAccrueAddsMinutes(t *testing.T) {
	ctx := context.Background()
	repos := repository.NewMemoryRepositoryManager()
	line := &domain.TenantConfig{PhoneNumber: "+15551234567", IsActive: true, MinutesUsed: 7}
	require.NoError(t, repos.Tenants().Create(ctx, line))

	total, err := NewAccruer(repos.Tenants(), nil).Accrue(ctx, line.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestAccrueConcurrentCallsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	repos := repository.NewMemoryRepositoryManager()
	line := &domain.TenantConfig{PhoneNumber: "+15551234567", IsActive: true}
	require.NoError(t, repos.Tenants().Create(ctx, line))

	accruer := NewAccruer(repos.Tenants(), nil)

	const callers = 25
	var wg sync.WaitGroup
	for i := 1; i <= callers; i++ {
		wg.Add(1)
		go func(minutes int) {
			defer wg.Done()
			_, err := accruer.Accrue(ctx, line.ID, minutes)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := repos.Tenants().GetByID(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, callers*(callers+1)/2, got.MinutesUsed)
}

// slowTenants adds store latency so concurrent accruals overlap their read and write.
type slowTenants struct {
	repository.TenantRepository
	delay time.Duration
}

func (r *slowTenants) GetByID(ctx context.Context, id string) (*domain.TenantConfig, error) {
	time.Sleep(r.delay)
	return r.TenantRepository.GetByID(ctx, id)
}

func (r *slowTenants) CompareAndSetMinutes(ctx context.Context, id string, expectedUsed, newUsed int) (bool, error) {
	time.Sleep(r.delay)
	return r.TenantRepository.CompareAndSetMinutes(ctx, id, expectedUsed, newUsed)
}

func TestAccrueConcurrentCallsWithStoreLatency(t *testing.T) {
	for _, callers := range []int{5, 10, 20} {
		repos := repository.NewMemoryRepositoryManager()
		line := &domain.TenantConfig{PhoneNumber: "+15551234567", IsActive: true}
		require.NoError(t, repos.Tenants().Create(context.Background(), line))

		accruer := NewAccruer(&slowTenants{TenantRepository: repos.Tenants(), delay: 3 * time.Millisecond}, nil)

		// Same bound the call service puts on each finalize step.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := accruer.Accrue(ctx, line.ID, 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		cancel()

		got, err := repos.Tenants().GetByID(context.Background(), line.ID)
		require.NoError(t, err)
		assert.Equal(t, callers, got.MinutesUsed, "callers=%d", callers)
	}
}

// contendedTenants always loses the compare-and-set.
type contendedTenants struct {
	repository.TenantRepository
}

func (contendedTenants) CompareAndSetMinutes(ctx context.Context, id string, expectedUsed, newUsed int) (bool, error) {
	return false, nil
}

func TestAccrueGivesUpWhenContextEnds(t *testing.T) {
	repos := repository.NewMemoryRepositoryManager()
	line := &domain.TenantConfig{PhoneNumber: "+15551234567", IsActive: true}
	require.NoError(t, repos.Tenants().Create(context.Background(), line))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewAccruer(contendedTenants{repos.Tenants()}, nil).Accrue(ctx, line.ID, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAccrueRejectsGlobalTenant(t *testing.T) {
	_, err := NewAccruer(repository.NewMemoryRepositoryManager().Tenants(), nil).Accrue(context.Background(), "", 1)
	assert.Error(t, err)
}
