package staff

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

// Internal query kinds
const (
	QueryListing   = "listing"
	QueryInventory = "inventory"
	QueryLeads     = "leads"
	QueryUsage     = "usage"
)

const (
	recentLeadLimit = 5
	msgQueryFailed  = "I'm having trouble pulling that up right now."
	msgQueryKinds   = "I can look up a listing by stock number, your inventory totals, recent leads, or minute usage."
)

// Principal is the staff identity attached to a call session after verification.
type Principal struct {
	TenantID      string
	StaffID       string
	StaffName     string
	Permissions   domain.StaffPermissions
	SessionID     string
	CallerPhone   string
	Authenticated bool
}

// InternalQuery is a query_internal_data request.
type InternalQuery struct {
	Kind        string
	ListingID   string
	StockNumber string
}

// Query answers an internal data question for a verified staff member.
// The reply is always speakable; err is ErrNotAuthenticated or a wrapped store failure.
func (d *Directory) Query(ctx context.Context, p Principal, q InternalQuery) (string, error) {
	if !p.Authenticated || p.StaffID == "" || p.TenantID == "" {
		return MsgVerifyFirst, ErrNotAuthenticated
	}

	kind := strings.ToLower(strings.TrimSpace(q.Kind))
	var (
		reply string
		err   error
	)
	switch kind {
	case QueryListing:
		reply, err = d.queryListing(ctx, p, q)
	case QueryInventory:
		reply, err = d.queryInventory(ctx, p)
	case QueryLeads:
		reply, err = d.queryLeads(ctx, p)
	case QueryUsage:
		reply, err = d.queryUsage(ctx, p)
	default:
		reply = msgQueryKinds
	}

	d.recordQuery(ctx, p, kind, err == nil)
	if err != nil {
		logger.ForSession(p.SessionID).Error("Internal query failed",
			zap.String("kind", kind),
			zap.String("staff_id", p.StaffID),
			zap.Error(err))
		return msgQueryFailed, err
	}
	return reply, nil
}

func (d *Directory) queryListing(ctx context.Context, p Principal, q InternalQuery) (string, error) {
	var (
		listing *domain.Listing
		err     error
	)
	switch {
	case q.StockNumber != "":
		listing, err = d.listings.GetByStockNumber(ctx, p.TenantID, strings.TrimSpace(q.StockNumber))
	case q.ListingID != "":
		listing, err = d.listings.GetByID(ctx, strings.TrimSpace(q.ListingID))
	default:
		return "Which listing? Give me a stock number or listing ID.", nil
	}
	if errors.Is(err, repository.ErrNotFound) || (err == nil && listing.DealerID != p.TenantID) {
		return "I couldn't find that listing in your inventory.", nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(describe(listing))
	if listing.StockNumber != "" {
		fmt.Fprintf(&b, ", stock number %s", listing.StockNumber)
	}
	fmt.Fprintf(&b, ", listed at %s, status %s.", money(listing.Price), listing.Status)

	if p.Permissions.CanViewCosts && listing.Cost != nil {
		fmt.Fprintf(&b, " Cost is %s.", money(listing.Cost))
	}
	if p.Permissions.CanViewMargins && listing.Cost != nil && listing.Price != nil {
		margin := *listing.Price - *listing.Cost
		fmt.Fprintf(&b, " Margin is %s", money(&margin))
		if *listing.Price > 0 {
			fmt.Fprintf(&b, ", about %d percent", margin*100 / *listing.Price)
		}
		b.WriteString(".")
	}
	return b.String(), nil
}

func (d *Directory) queryInventory(ctx context.Context, p Principal) (string, error) {
	summary, err := d.listings.Summarize(ctx, p.TenantID)
	if err != nil {
		return "", err
	}
	if summary.ActiveCount == 0 {
		return "You don't have any active listings right now.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %s active %s with a total asking price of $%s.",
		humanize.Comma(summary.ActiveCount), plural(summary.ActiveCount, "listing", "listings"), humanize.Comma(summary.AskingTotal))
	if p.Permissions.CanViewCosts && summary.CostTotal > 0 {
		fmt.Fprintf(&b, " Total cost on file is $%s.", humanize.Comma(summary.CostTotal))
	}
	if p.Permissions.CanViewMargins && summary.CostTotal > 0 {
		fmt.Fprintf(&b, " Gross margin across costed units is $%s.", humanize.Comma(summary.CostedAskingTotal-summary.CostTotal))
	}
	return b.String(), nil
}

func (d *Directory) queryLeads(ctx context.Context, p Principal) (string, error) {
	leads, err := d.leads.ListRecent(ctx, p.TenantID, recentLeadLimit)
	if err != nil {
		return "", err
	}
	if len(leads) == 0 {
		return "There are no recent leads.", nil
	}

	parts := []string{fmt.Sprintf("Here are the %d most recent leads:", len(leads))}
	for i, l := range leads {
		about := l.Message
		if about == "" {
			about = "general inquiry"
		}
		if p.Permissions.CanViewAllLeads {
			parts = append(parts, fmt.Sprintf("%d. %s at %s, about %s.", i+1, l.Name, l.Phone, about))
		} else {
			parts = append(parts, fmt.Sprintf("%d. A lead about %s.", i+1, about))
		}
	}
	return strings.Join(parts, " "), nil
}

func (d *Directory) queryUsage(ctx context.Context, p Principal) (string, error) {
	tenant, err := d.tenants.GetByID(ctx, p.TenantID)
	if err != nil {
		return "", err
	}
	if tenant.MinutesIncluded > 0 {
		return fmt.Sprintf("This line has used %s of its %s included minutes.",
			humanize.Comma(int64(tenant.MinutesUsed)), humanize.Comma(int64(tenant.MinutesIncluded))), nil
	}
	return fmt.Sprintf("This line has used %s minutes.", humanize.Comma(int64(tenant.MinutesUsed))), nil
}

func (d *Directory) recordQuery(ctx context.Context, p Principal, kind string, success bool) {
	entry := &domain.AccessLogEntry{
		TenantID:    domain.StringPtr(p.TenantID),
		StaffID:     domain.StringPtr(p.StaffID),
		SessionID:   p.SessionID,
		CallerPhone: p.CallerPhone,
		Action:      domain.AccessActionInternalQuery,
		Success:     success,
		Detail:      kind,
		CreatedAt:   d.now().UTC(),
	}
	if err := d.audit.Append(ctx, entry); err != nil {
		logger.ForSession(p.SessionID).Error("Failed to append staff access log", zap.String("kind", kind), zap.Error(err))
	}
}

func describe(l *domain.Listing) string {
	var fields []string
	if l.Year > 0 {
		fields = append(fields, fmt.Sprintf("%d", l.Year))
	}
	for _, f := range []string{l.Make, l.Model} {
		if f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return l.Title
	}
	return strings.Join(fields, " ")
}

func money(v *int64) string {
	if v == nil {
		return "no price on file"
	}
	return "$" + humanize.Comma(*v)
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
