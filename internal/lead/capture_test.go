package lead

import (
	"context"
	"testing"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/internal/inventory"
	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTenantPrecedence(t *testing.T) {
	assert.Equal(t, "line", *ResolveTenant("line", "owner"))
	assert.Equal(t, "owner", *ResolveTenant("", "owner"))
	assert.Nil(t, ResolveTenant("", ""))
}

func newService(t *testing.T) (*Service, *repository.MemoryRepositoryManager) {
	t.Helper()
	repos := repository.NewMemoryRepositoryManager()
	require.NoError(t, repos.Listings().Create(context.Background(), &domain.Listing{
		ID: "listing-1", DealerID: "dealer-9", Make: "Peterbilt", Status: domain.ListingStatusActive,
	}))
	return NewService(repos.Leads(), inventory.NewService(repos.Listings(), repos.Tenants())), repos
}

func TestCaptureOnDealerLine(t *testing.T) {
	svc, repos := newService(t)

	lead, reply, err := svc.Capture(context.Background(), CaptureRequest{
		SessionID:    "room-1",
		LineTenantID: "dealer-1",
		CallerPhone:  "sip:+15125550100@pstn.example.com",
		Name:         "Dana",
		Interest:     "a flatbed trailer",
		ListingID:    "listing-1",
	})
	require.NoError(t, err)
	require.NotNil(t, lead.TenantID)
	assert.Equal(t, "dealer-1", *lead.TenantID, "line tenant wins over listing owner")
	assert.Equal(t, "+15125550100", lead.Phone)
	assert.Equal(t, domain.LeadSourcePhoneCall, lead.Source)
	assert.Equal(t, domain.LeadStatusNew, lead.Status)
	assert.Equal(t, "room-1", lead.SessionID)
	assert.Equal(t, "I've captured your information. A dealer will reach out to you at +15125550100 soon about a flatbed trailer.", reply)

	stored, err := repos.Leads().GetByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "listing-1", domain.StringValue(stored.ListingID))
}

func TestCaptureOnGlobalLineUsesListingOwner(t *testing.T) {
	svc, _ := newService(t)

	lead, _, err := svc.Capture(context.Background(), CaptureRequest{
		SessionID:   "room-2",
		CallerPhone: "+15125550100",
		Phone:       "(512) 555-0199",
		ListingID:   "listing-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "dealer-9", domain.StringValue(lead.TenantID))
	assert.Equal(t, "+15125550199", lead.Phone)
}

func TestCaptureOnGlobalLineWithoutListing(t *testing.T) {
	svc, _ := newService(t)

	lead, reply, err := svc.Capture(context.Background(), CaptureRequest{
		SessionID:   "room-3",
		CallerPhone: "+15125550100",
		ListingID:   "gone",
	})
	require.NoError(t, err)
	assert.Nil(t, lead.TenantID)
	assert.Nil(t, lead.ListingID)
	assert.Contains(t, reply, "A team member will follow up")
}

func TestCaptureWithoutPhone(t *testing.T) {
	svc, _ := newService(t)

	_, reply, err := svc.Capture(context.Background(), CaptureRequest{SessionID: "room-4"})
	assert.ErrorIs(t, err, ErrNoContact)
	assert.Equal(t, MsgMissingPhone, reply)
}
