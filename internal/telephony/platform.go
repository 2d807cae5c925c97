package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/livekit/protocol/livekit"
	"go.uber.org/zap"
)

// SIP participant attributes set by LiveKit SIP
const (
	AttrCallerNumber = "sip.phoneNumber"
	AttrTrunkNumber  = "sip.trunkPhoneNumber"
	AttrTwilioCallID = "sip.twilio.callSid"
	AttrCallID       = "sip.callID"
)

var ErrNoCaller = errors.New("no SIP participant in room")

// Platform is the telephony/media platform as seen by the call orchestrator.
type Platform interface {
	// Connect confirms the room carries a live SIP caller.
	Connect(ctx context.Context, roomName string) error
	// Hangup tears the call down.
	Hangup(ctx context.Context, roomName string) error
	// Transfer dials destination on the call's PSTN leg.
	Transfer(ctx context.Context, platformCallID, destination string) error
}

// RoomService is the part of the LiveKit room API used here.
// *lksdk.RoomServiceClient satisfies it.
type RoomService interface {
	ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error)
	DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error)
}

// TransferDialer dials a transfer leg on the PSTN side of a call.
// *twilio.CallService satisfies it.
type TransferDialer interface {
	DialTransfer(ctx context.Context, callSID, destination string) error
}

// LiveKitPlatform drives calls that arrive through LiveKit SIP over a Twilio trunk.
type LiveKitPlatform struct {
	rooms    RoomService
	transfer TransferDialer
}

// NewLiveKitPlatform creates the platform. rooms or transfer may be nil when
// LiveKit or Twilio are not configured; the matching operations then degrade.
func NewLiveKitPlatform(rooms RoomService, transfer TransferDialer) *LiveKitPlatform {
	return &LiveKitPlatform{rooms: rooms, transfer: transfer}
}

func (p *LiveKitPlatform) Connect(ctx context.Context, roomName string) error {
	if p.rooms == nil {
		return nil
	}
	resp, err := p.rooms.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: roomName})
	if err != nil {
		return fmt.Errorf("failed to list participants of %s: %w", roomName, err)
	}
	for _, participant := range resp.GetParticipants() {
		if IsSIPCaller(participant) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNoCaller, roomName)
}

func (p *LiveKitPlatform) Hangup(ctx context.Context, roomName string) error {
	if p.rooms == nil {
		return nil
	}
	if _, err := p.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: roomName}); err != nil {
		return fmt.Errorf("failed to delete room %s: %w", roomName, err)
	}
	logger.Base().Info("Room deleted", zap.String("room_name", roomName))
	return nil
}

func (p *LiveKitPlatform) Transfer(ctx context.Context, platformCallID, destination string) error {
	if p.transfer == nil {
		return errors.New("transfer dialer not configured")
	}
	if platformCallID == "" {
		return errors.New("call has no platform call id")
	}
	return p.transfer.DialTransfer(ctx, platformCallID, destination)
}

// IsSIPCaller reports whether the participant is an active SIP caller.
func IsSIPCaller(p *livekit.ParticipantInfo) bool {
	if p == nil || p.GetKind() != livekit.ParticipantInfo_SIP {
		return false
	}
	return p.GetState() != livekit.ParticipantInfo_DISCONNECTED
}

// CallerIdentity holds the identities LiveKit SIP attaches to a caller.
type CallerIdentity struct {
	CallerPhone    string
	DialedNumber   string
	PlatformCallID string
}

// IdentityOf extracts SIP attributes from a participant.
func IdentityOf(p *livekit.ParticipantInfo) CallerIdentity {
	attrs := p.GetAttributes()
	id := CallerIdentity{
		CallerPhone:    attrs[AttrCallerNumber],
		DialedNumber:   attrs[AttrTrunkNumber],
		PlatformCallID: attrs[AttrTwilioCallID],
	}
	if id.CallerPhone == "" {
		id.CallerPhone = p.GetIdentity()
	}
	return id
}
