package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AxlesAI/axles-voice-service/internal/services/call"
	"github.com/AxlesAI/axles-voice-service/internal/session"
	"github.com/AxlesAI/axles-voice-service/internal/telephony"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
)

// LiveKit webhook event names
const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventRoomFinished      = "room_finished"
	EventEgressEnded       = "egress_ended"
)

const maxWebhookBody = 1 << 20

// CallOrchestrator is the part of the call service driven over HTTP.
type CallOrchestrator interface {
	StartCall(ctx context.Context, start call.CallStart) (*call.Bootstrap, error)
	EndCall(ctx context.Context, sessionID, reason string) error
	Bootstrap(sessionID string) (*call.Bootstrap, error)
	ExecuteTool(ctx context.Context, sessionID, name string, arguments json.RawMessage) (string, error)
}

// LiveKitWebhookHandler turns LiveKit room events into call lifecycle calls.
type LiveKitWebhookHandler struct {
	calls CallOrchestrator
	keys  auth.KeyProvider
}

// NewLiveKitWebhookHandler creates the handler. With a nil key provider
// webhook signatures are not verified.
func NewLiveKitWebhookHandler(calls CallOrchestrator, keys auth.KeyProvider) *LiveKitWebhookHandler {
	if keys == nil {
		logger.Base().Warn("LiveKit webhook signature verification disabled")
	}
	return &LiveKitWebhookHandler{calls: calls, keys: keys}
}

// HandleLiveKitWebhook always answers 200 so LiveKit does not retry; failures are logged.
func (h *LiveKitWebhookHandler) HandleLiveKitWebhook(w http.ResponseWriter, r *http.Request) {
	event, err := h.receive(r)
	if err != nil {
		logger.Base().Warn("Rejected LiveKit webhook", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	roomName := event.GetRoom().GetName()
	logger.Base().Debug("LiveKit webhook", zap.String("event", event.GetEvent()), zap.String("room", roomName))

	ctx := context.WithoutCancel(r.Context())
	switch event.GetEvent() {
	case EventParticipantJoined:
		h.handleParticipantJoined(ctx, roomName, event.GetParticipant())
	case EventParticipantLeft:
		if event.GetParticipant().GetKind() == livekit.ParticipantInfo_SIP {
			h.endCall(ctx, roomName, EventParticipantLeft)
		}
	case EventRoomFinished:
		h.endCall(ctx, roomName, EventRoomFinished)
	case EventEgressEnded:
		info := event.GetEgressInfo()
		if info.GetError() != "" {
			logger.Base().Error("Egress failed", zap.String("egress_id", info.GetEgressId()), zap.String("room", info.GetRoomName()), zap.String("error", info.GetError()))
		}
	default:
		logger.Base().Debug("Unhandled LiveKit event", zap.String("event", event.GetEvent()))
	}

	w.WriteHeader(http.StatusOK)
}

func (h *LiveKitWebhookHandler) receive(r *http.Request) (*livekit.WebhookEvent, error) {
	if h.keys != nil {
		return webhook.ReceiveWebhookEvent(r, h.keys)
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, err
	}
	event := &livekit.WebhookEvent{}
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(body, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (h *LiveKitWebhookHandler) handleParticipantJoined(ctx context.Context, roomName string, p *livekit.ParticipantInfo) {
	if roomName == "" || !telephony.IsSIPCaller(p) {
		return
	}
	id := telephony.IdentityOf(p)

	_, err := h.calls.StartCall(ctx, call.CallStart{
		SessionID:      roomName,
		RoomName:       roomName,
		CallerPhone:    id.CallerPhone,
		DialedNumber:   id.DialedNumber,
		PlatformCallID: id.PlatformCallID,
	})
	switch {
	case errors.Is(err, session.ErrSessionExists):
		logger.ForSession(roomName).Debug("Call already started")
	case err != nil:
		logger.ForSession(roomName).Error("Failed to start call", zap.Error(err))
	}
}

func (h *LiveKitWebhookHandler) endCall(ctx context.Context, roomName, reason string) {
	if roomName == "" {
		return
	}
	if err := h.calls.EndCall(ctx, roomName, reason); err != nil {
		logger.ForSession(roomName).Error("Failed to end call", zap.String("reason", reason), zap.Error(err))
	}
}
