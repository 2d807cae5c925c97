package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/core/tool"
	"github.com/AxlesAI/axles-voice-service/internal/inventory"
	"github.com/AxlesAI/axles-voice-service/internal/lead"
	"github.com/AxlesAI/axles-voice-service/internal/phone"
	"github.com/AxlesAI/axles-voice-service/internal/session"
	"github.com/AxlesAI/axles-voice-service/internal/staff"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"go.uber.org/zap"
)

func (s *CallService) registerTools() {
	s.tools.RegisterTool(&tool.ToolDefinition{
		Name:        tool.ToolNameSearchInventory,
		Description: "Search available trucks, trailers and heavy equipment. On a dealer's line only that dealer's inventory is searched.",
		Parameters:  tool.SearchInventorySchema,
		Executor:    s.searchInventory,
	})
	s.tools.RegisterTool(&tool.ToolDefinition{
		Name:        tool.ToolNameListingDetails,
		Description: "Get the details of one listing by its id, e.g. after a search.",
		Parameters:  tool.ListingDetailsSchema,
		Executor:    s.listingDetails,
	})
	s.tools.RegisterTool(&tool.ToolDefinition{
		Name:        tool.ToolNameCaptureLead,
		Description: "Save the caller's contact details and interest so a dealer can call them back.",
		Parameters:  tool.CaptureLeadSchema,
		Executor:    s.captureLead,
	})
	s.tools.RegisterTool(&tool.ToolDefinition{
		Name:        tool.ToolNameVerifyStaffPIN,
		Description: "Verify a dealer staff member by name and PIN before sharing internal data.",
		Parameters:  tool.VerifyStaffPINSchema,
		Executor:    s.verifyStaffPIN,
	})
	s.tools.RegisterTool(&tool.ToolDefinition{
		Name:        tool.ToolNameQueryInternalData,
		Description: "Look up internal dealer data (listing cost, inventory totals, recent leads, minute usage). Staff only.",
		Parameters:  tool.QueryInternalDataSchema,
		Executor:    s.queryInternalData,
	})
	s.tools.RegisterTool(&tool.ToolDefinition{
		Name:        tool.ToolNameTransferCall,
		Description: "Transfer the caller to a person at the dealership.",
		Parameters:  tool.TransferCallSchema,
		Executor:    s.transferCall,
	})
	s.tools.RegisterTool(&tool.ToolDefinition{
		Name:        tool.ToolNameEndCall,
		Description: "Hang up once the caller has said goodbye.",
		Parameters:  tool.EndCallSchema,
		Executor:    s.endCallTool,
	})
}

// ExecuteTool runs a tool for an active session. The reply is always speakable;
// err reports system failures for logging.
func (s *CallService) ExecuteTool(ctx context.Context, sessionID, name string, arguments json.RawMessage) (string, error) {
	cs, ok := s.store.Get(sessionID)
	if !ok {
		return MsgCallEnding, session.ErrSessionNotFound
	}
	if cs.Status != session.StatusActive {
		return MsgCallEnding, nil
	}

	reply, err := s.tools.ExecuteTool(ctx, name, sessionID, arguments)
	s.metrics.IncToolCall(name, err != nil)
	if err != nil {
		logger.ForSession(sessionID).Error("Tool failed", zap.String("tool", name), zap.Error(err))
		if reply == "" {
			reply = MsgToolFailed
		}
	}
	return reply, err
}

// active returns the snapshot a tool works on.
func (s *CallService) active(sessionID string) (session.CallSession, error) {
	cs, ok := s.store.Get(sessionID)
	if !ok || cs.Status != session.StatusActive {
		return session.CallSession{}, session.ErrSessionNotFound
	}
	return cs, nil
}

func decodeArgs(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

func (s *CallService) searchInventory(ctx context.Context, sessionID string, raw json.RawMessage) (string, error) {
	var args searchInventoryArgs
	if err := decodeArgs(raw, &args); err != nil {
		return inventory.MsgSearchFailed, err
	}
	cs, err := s.active(sessionID)
	if err != nil {
		return MsgCallEnding, err
	}

	reply, err := s.inventory.Search(ctx, cs.TenantID, inventory.SearchParams{
		Category:  args.Category,
		Make:      args.Make,
		Condition: args.Condition,
		MinPrice:  dollars(args.MinPrice),
		MaxPrice:  dollars(args.MaxPrice),
		Limit:     intArg(args.Limit),
	})

	s.note(sessionID, func(c *session.CallSession) {
		if c.Intent == "" {
			c.Intent = IntentInventory
		}
		if c.EquipmentType == "" && args.Category != "" {
			c.EquipmentType = args.Category
		}
	})
	return reply, err
}

func (s *CallService) listingDetails(ctx context.Context, sessionID string, raw json.RawMessage) (string, error) {
	var args listingDetailsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return inventory.MsgDetailsFailed, err
	}
	cs, err := s.active(sessionID)
	if err != nil {
		return MsgCallEnding, err
	}
	return s.inventory.Details(ctx, cs.TenantID, args.ListingID)
}

func (s *CallService) captureLead(ctx context.Context, sessionID string, raw json.RawMessage) (string, error) {
	var args captureLeadArgs
	if err := decodeArgs(raw, &args); err != nil {
		return lead.MsgCaptureFailed, err
	}
	cs, err := s.active(sessionID)
	if err != nil {
		return MsgCallEnding, err
	}

	captured, reply, err := s.leads.Capture(ctx, lead.CaptureRequest{
		SessionID:     sessionID,
		LineTenantID:  cs.TenantID,
		CallerPhone:   cs.CallerPhone,
		Name:          args.Name,
		Phone:         args.Phone,
		Email:         args.Email,
		Interest:      args.Interest,
		EquipmentType: args.EquipmentType,
		ListingID:     args.ListingID,
	})
	if errors.Is(err, lead.ErrNoContact) {
		return reply, nil
	}
	if err != nil {
		return reply, err
	}

	s.note(sessionID, func(c *session.CallSession) {
		c.LeadID = captured.ID
		c.Intent = IntentLead
		if captured.Name != "" {
			c.CallerName = captured.Name
		}
		if captured.Message != "" {
			c.Interest = captured.Message
		}
		if captured.EquipmentType != "" {
			c.EquipmentType = captured.EquipmentType
		}
	})
	return reply, nil
}

func (s *CallService) verifyStaffPIN(ctx context.Context, sessionID string, raw json.RawMessage) (string, error) {
	var args verifyStaffArgs
	if err := decodeArgs(raw, &args); err != nil {
		return staff.MsgUnknownPIN, err
	}
	cs, err := s.active(sessionID)
	if err != nil {
		return MsgCallEnding, err
	}

	result, err := s.staff.Authenticate(ctx, staff.AuthRequest{
		TenantID:    cs.TenantID,
		ClaimedName: args.Name,
		PIN:         args.PIN,
		CallerPhone: cs.CallerPhone,
		SessionID:   sessionID,
	})
	if err != nil {
		return staff.MsgUnknownPIN, err
	}
	if !result.Granted {
		return result.Message, nil
	}

	s.note(sessionID, func(c *session.CallSession) {
		c.StaffAuthenticated = true
		c.StaffID = result.Staff.ID
		c.StaffName = result.Staff.Name
		c.StaffPermissions = result.Staff.Permissions()
		c.Intent = IntentStaff
	})
	return result.Message, nil
}

func (s *CallService) queryInternalData(ctx context.Context, sessionID string, raw json.RawMessage) (string, error) {
	var args queryInternalArgs
	if err := decodeArgs(raw, &args); err != nil {
		return staff.MsgVerifyFirst, err
	}
	cs, err := s.active(sessionID)
	if err != nil {
		return MsgCallEnding, err
	}

	reply, err := s.staff.Query(ctx, staff.Principal{
		TenantID:      cs.TenantID,
		StaffID:       cs.StaffID,
		StaffName:     cs.StaffName,
		Permissions:   cs.StaffPermissions,
		SessionID:     sessionID,
		CallerPhone:   cs.CallerPhone,
		Authenticated: cs.StaffAuthenticated,
	}, staff.InternalQuery{
		Kind:        args.QueryType,
		ListingID:   args.ListingID,
		StockNumber: args.StockNumber,
	})
	if errors.Is(err, staff.ErrNotAuthenticated) {
		return reply, nil
	}
	return reply, err
}

func (s *CallService) transferCall(ctx context.Context, sessionID string, raw json.RawMessage) (string, error) {
	var args reasonArgs
	if err := decodeArgs(raw, &args); err != nil {
		return MsgTransferFailed, err
	}
	cs, err := s.active(sessionID)
	if err != nil {
		return MsgCallEnding, err
	}
	log := logger.ForSession(sessionID)

	destination := phone.Normalize(cs.Settings.TransferNumber)
	if !cs.Settings.TransferEnabled || !phone.IsValidE164(destination) {
		log.Info("Transfer requested but unavailable",
			zap.Bool("enabled", cs.Settings.TransferEnabled),
			zap.String("destination", cs.Settings.TransferNumber))
		return MsgTransferUnavailable, nil
	}
	if cs.PlatformCallID == "" {
		return MsgTransferFailed, errors.New("no platform call id for transfer")
	}

	if err := s.platform.Transfer(ctx, cs.PlatformCallID, destination); err != nil {
		return MsgTransferFailed, fmt.Errorf("failed to transfer call: %w", err)
	}

	s.note(sessionID, func(c *session.CallSession) {
		c.TransferredTo = destination
		c.Intent = IntentTransfer
	})
	log.Info("Call transferred", zap.String("destination", destination), zap.String("reason", strings.TrimSpace(args.Reason)))
	return MsgTransferring, nil
}

// endCallTool lets the goodbye play out, then hangs up and finalizes.
// Finalization also runs if the hangup fails.
func (s *CallService) endCallTool(ctx context.Context, sessionID string, raw json.RawMessage) (string, error) {
	var args reasonArgs
	_ = json.Unmarshal(raw, &args)
	cs, err := s.active(sessionID)
	if err != nil {
		return MsgCallEnding, err
	}

	reason := strings.TrimSpace(args.Reason)
	if reason == "" {
		reason = "agent_hangup"
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if s.hangupDelay > 0 {
			time.Sleep(s.hangupDelay)
		}
		hangupCtx, cancel := context.WithTimeout(context.Background(), s.stepTimeout)
		defer cancel()
		if err := s.platform.Hangup(hangupCtx, cs.RoomName); err != nil {
			logger.ForSession(sessionID).Warn("Failed to hang up call", zap.Error(err))
		}
		if err := s.EndCall(hangupCtx, sessionID, reason); err != nil {
			logger.ForSession(sessionID).Error("Failed to end call", zap.Error(err))
		}
	}()
	return MsgGoodbye, nil
}

// note records conversation facts on the session. A session that closed in
// the meantime is left alone.
func (s *CallService) note(sessionID string, fn func(*session.CallSession)) {
	err := s.store.Mutate(sessionID, func(c *session.CallSession) error {
		fn(c)
		return nil
	})
	if err != nil {
		logger.ForSession(sessionID).Debug("Session closed before update", zap.Error(err))
	}
}
