// Package lead captures prospective customers from calls and decides which
// tenant owns them.
package lead

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/internal/phone"
	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	MsgCaptureFailed = "I've noted your information. Someone will be in touch with you soon."
	MsgMissingPhone  = "Could I get a good phone number to reach you at?"
)

// ErrNoContact is returned when neither the caller nor the tool supplied a phone number.
var ErrNoContact = errors.New("lead has no contact phone")

// ResolveTenant picks the owning tenant of a lead: the dialed line's tenant
// first, then the listing's dealer, otherwise nil for a marketplace-wide lead.
func ResolveTenant(lineTenantID, listingOwnerID string) *string {
	if lineTenantID != "" {
		return domain.StringPtr(lineTenantID)
	}
	if listingOwnerID != "" {
		return domain.StringPtr(listingOwnerID)
	}
	return nil
}

// CaptureRequest is one capture_lead invocation plus its session context.
type CaptureRequest struct {
	SessionID     string
	LineTenantID  string
	CallerPhone   string
	Name          string
	Phone         string
	Email         string
	Interest      string
	EquipmentType string
	ListingID     string
}

// ListingOwners resolves the dealer that owns a listing. An unknown listing
// yields an empty owner and no error.
type ListingOwners interface {
	Owner(ctx context.Context, listingID string) (string, error)
}

type Service struct {
	leads  repository.LeadRepository
	owners ListingOwners
}

func NewService(leads repository.LeadRepository, owners ListingOwners) *Service {
	return &Service{leads: leads, owners: owners}
}

// Capture persists a new lead and returns it with the spoken confirmation.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*domain.Lead, string, error) {
	log := logger.ForSession(req.SessionID)

	contact := phone.Normalize(req.Phone)
	if contact == "" {
		contact = phone.Normalize(req.CallerPhone)
	}
	if contact == "" {
		return nil, MsgMissingPhone, ErrNoContact
	}

	var listingID *string
	var owner string
	if id := strings.TrimSpace(req.ListingID); id != "" {
		dealerID, err := s.owners.Owner(ctx, id)
		switch {
		case err != nil:
			log.Warn("Failed to look up lead listing", zap.String("listing_id", id), zap.Error(err))
		case dealerID == "":
			log.Info("Lead references unknown listing", zap.String("listing_id", id))
		default:
			listingID = domain.StringPtr(id)
			owner = dealerID
		}
	}

	lead := &domain.Lead{
		TenantID:      ResolveTenant(req.LineTenantID, owner),
		ListingID:     listingID,
		Name:          strings.TrimSpace(req.Name),
		Phone:         contact,
		Email:         strings.TrimSpace(req.Email),
		Message:       strings.TrimSpace(req.Interest),
		EquipmentType: strings.TrimSpace(req.EquipmentType),
		Source:        domain.LeadSourcePhoneCall,
		Status:        domain.LeadStatusNew,
		SessionID:     req.SessionID,
	}
	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, MsgCaptureFailed, fmt.Errorf("failed to create lead: %w", err)
	}

	log.Info("Lead captured",
		zap.String("lead_id", lead.ID),
		zap.String("tenant_id", domain.StringValue(lead.TenantID)))
	return lead, confirmation(lead), nil
}

func confirmation(l *domain.Lead) string {
	interest := l.Message
	if interest == "" {
		interest = l.EquipmentType
	}
	if interest == "" {
		interest = "your equipment needs"
	}
	if l.TenantID == nil {
		return fmt.Sprintf("I've noted your information. A team member will follow up with you at %s shortly about %s.", l.Phone, interest)
	}
	return fmt.Sprintf("I've captured your information. A dealer will reach out to you at %s soon about %s.", l.Phone, interest)
}
