package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func seed(t *testing.T) (*Service, *repository.MemoryRepositoryManager, *domain.TenantConfig) {
	t.Helper()
	ctx := context.Background()
	repos := repository.NewMemoryRepositoryManager()
	dealer := &domain.TenantConfig{PhoneNumber: "+15551234567", DisplayName: "Lone Star Trailers", IsActive: true}
	require.NoError(t, repos.Tenants().Create(ctx, dealer))

	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repos.Listings().Create(ctx, &domain.Listing{
		ID: "l-1", DealerID: dealer.ID, Title: "2020 Fontaine Infinity Flatbed", Year: 2020, Make: "Fontaine", Model: "Infinity",
		Condition: "used", Price: i64(38500), Mileage: i64(120000), City: "Dallas", State: "TX", CategorySlug: "flatbed-trailers",
		Description: "Spread axle flatbed with aluminum floor. New tires.", Status: domain.ListingStatusActive, CreatedAt: base,
	}))
	require.NoError(t, repos.Listings().Create(ctx, &domain.Listing{
		ID: "l-2", DealerID: "other-dealer", Year: 2019, Make: "Fontaine", Model: "Revolution", Condition: "used",
		CategorySlug: "flatbed-trailers", Status: domain.ListingStatusActive, CreatedAt: base.Add(time.Hour),
	}))
	return NewService(repos.Listings(), repos.Tenants()), repos, dealer
}

func TestSearchFormatsReply(t *testing.T) {
	svc, _, _ := seed(t)

	reply, err := svc.Search(context.Background(), "", SearchParams{Make: "fontaine"})
	require.NoError(t, err)
	assert.Equal(t, "I found 2 listings: 1. 2019 Fontaine Revolution, used, Call for price "+
		"2. 2020 Fontaine Infinity, used, $38,500, located in Dallas, TX", reply)
}

func TestSearchScopedToDealer(t *testing.T) {
	svc, _, dealer := seed(t)

	reply, err := svc.Search(context.Background(), dealer.ID, SearchParams{Category: "flatbed"})
	require.NoError(t, err)
	assert.Contains(t, reply, "I found 1 listing:")
	assert.NotContains(t, reply, "Revolution")
}

func TestSearchNoResults(t *testing.T) {
	svc, _, _ := seed(t)
	reply, err := svc.Search(context.Background(), "", SearchParams{MaxPrice: i64(1000)})
	require.NoError(t, err)
	assert.Equal(t, MsgNoResults, reply)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, clampLimit(0))
	assert.Equal(t, 3, clampLimit(3))
	assert.Equal(t, MaxLimit, clampLimit(50))
}

func TestDetails(t *testing.T) {
	svc, _, dealer := seed(t)

	reply, err := svc.Details(context.Background(), "", "l-1")
	require.NoError(t, err)
	assert.Equal(t, "This is a 2020 Fontaine Infinity Flatbed, priced at $38,500. It's in used condition. "+
		"It has 120,000 miles. Located in Dallas, TX. This is listed by Lone Star Trailers. "+
		"Spread axle flatbed with aluminum floor.", reply)

	reply, err = svc.Details(context.Background(), dealer.ID, "l-2")
	require.NoError(t, err)
	assert.Equal(t, MsgNotFound, reply, "dealer lines only describe their own listings")

	reply, err = svc.Details(context.Background(), "", "missing")
	require.NoError(t, err)
	assert.Equal(t, MsgNotFound, reply)
}

type brokenListings struct{ repository.ListingRepository }

func (brokenListings) Search(context.Context, repository.ListingFilter) ([]*domain.Listing, error) {
	return nil, errors.New("connection reset")
}

func TestSearchStoreError(t *testing.T) {
	svc := NewService(brokenListings{}, nil)
	reply, err := svc.Search(context.Background(), "", SearchParams{})
	assert.Error(t, err)
	assert.Equal(t, MsgSearchFailed, reply)
}
