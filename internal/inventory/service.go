package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 5
	MaxLimit     = 10

	MsgNoResults     = "No listings found matching your criteria. Would you like to try different filters?"
	MsgSearchFailed  = "I'm having trouble searching our inventory right now. Would you like me to take your information for a callback?"
	MsgNotFound      = "I couldn't find that listing. It may no longer be available."
	MsgDetailsFailed = "I'm having trouble getting the details right now. Would you like me to take your information for a callback?"

	maxDescriptionSentence = 200
)

// SearchParams are the search_inventory tool arguments.
type SearchParams struct {
	Category  string
	Make      string
	Condition string
	MinPrice  *int64
	MaxPrice  *int64
	Limit     int
}

// Service answers inventory questions in short spoken form.
type Service struct {
	listings repository.ListingRepository
	tenants  repository.TenantRepository
}

func NewService(listings repository.ListingRepository, tenants repository.TenantRepository) *Service {
	return &Service{listings: listings, tenants: tenants}
}

// Search lists matching active listings. A non-empty scopeTenantID limits the
// search to that dealer's inventory.
func (s *Service) Search(ctx context.Context, scopeTenantID string, params SearchParams) (string, error) {
	filter := repository.ListingFilter{
		DealerID:     scopeTenantID,
		CategorySlug: strings.TrimSpace(params.Category),
		Make:         strings.TrimSpace(params.Make),
		Condition:    strings.TrimSpace(params.Condition),
		MinPrice:     positive(params.MinPrice),
		MaxPrice:     positive(params.MaxPrice),
		Limit:        clampLimit(params.Limit),
	}

	listings, err := s.listings.Search(ctx, filter)
	if err != nil {
		return MsgSearchFailed, fmt.Errorf("failed to search inventory: %w", err)
	}
	if len(listings) == 0 {
		return MsgNoResults, nil
	}

	parts := []string{fmt.Sprintf("I found %d %s:", len(listings), pluralListings(len(listings)))}
	for i, l := range listings {
		line := fmt.Sprintf("%d. %s, %s, %s", i+1, yearMakeModel(l), l.Condition, priceText(l.Price))
		if loc := location(l); loc != "" {
			line += ", located in " + loc
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " "), nil
}

// Details describes one listing.
func (s *Service) Details(ctx context.Context, scopeTenantID, listingID string) (string, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return MsgNotFound, nil
	}

	l, err := s.listings.GetByID(ctx, listingID)
	if errors.Is(err, repository.ErrNotFound) {
		return MsgNotFound, nil
	}
	if err != nil {
		return MsgDetailsFailed, fmt.Errorf("failed to get listing details: %w", err)
	}
	if scopeTenantID != "" && l.DealerID != scopeTenantID {
		return MsgNotFound, nil
	}

	title := l.Title
	if title == "" {
		title = yearMakeModel(l)
	}
	parts := []string{fmt.Sprintf("This is a %s, priced at %s.", title, priceText(l.Price))}

	if l.Condition != "" {
		parts = append(parts, fmt.Sprintf("It's in %s condition.", l.Condition))
	}
	if l.Mileage != nil && *l.Mileage > 0 {
		parts = append(parts, fmt.Sprintf("It has %s miles.", humanize.Comma(*l.Mileage)))
	}
	if l.Hours != nil && *l.Hours > 0 {
		parts = append(parts, fmt.Sprintf("It has %s hours.", humanize.Comma(*l.Hours)))
	}
	if loc := location(l); loc != "" {
		parts = append(parts, fmt.Sprintf("Located in %s.", loc))
	}
	if dealer := s.dealerName(ctx, l.DealerID); dealer != "" {
		parts = append(parts, fmt.Sprintf("This is listed by %s.", dealer))
	}
	if l.Description != "" {
		first := strings.TrimSpace(strings.SplitN(l.Description, ".", 2)[0])
		if first != "" && len(first) < maxDescriptionSentence {
			parts = append(parts, first+".")
		}
	}
	return strings.Join(parts, " "), nil
}

// Owner returns the dealer id owning a listing, or "" when unknown.
func (s *Service) Owner(ctx context.Context, listingID string) (string, error) {
	l, err := s.listings.GetByID(ctx, listingID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return l.DealerID, nil
}

func (s *Service) dealerName(ctx context.Context, dealerID string) string {
	if dealerID == "" || s.tenants == nil {
		return ""
	}
	t, err := s.tenants.GetByID(ctx, dealerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Base().Warn("Failed to load dealer name", zap.String("dealer_id", dealerID), zap.Error(err))
		}
		return ""
	}
	return t.DisplayName
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func positive(v *int64) *int64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func priceText(price *int64) string {
	if price == nil || *price <= 0 {
		return "Call for price"
	}
	return "$" + humanize.Comma(*price)
}

func yearMakeModel(l *domain.Listing) string {
	var fields []string
	if l.Year > 0 {
		fields = append(fields, fmt.Sprintf("%d", l.Year))
	}
	for _, f := range []string{l.Make, l.Model} {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return strings.Join(fields, " ")
}

func location(l *domain.Listing) string {
	return strings.Trim(strings.TrimSpace(l.City+", "+l.State), ", ")
}

func pluralListings(n int) string {
	if n == 1 {
		return "listing"
	}
	return "listings"
}
