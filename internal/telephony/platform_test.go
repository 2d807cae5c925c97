package telephony

import (
	"context"
	"errors"
	"testing"

	"github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRooms struct {
	participants []*livekit.ParticipantInfo
	listErr      error
	deleted      []string
}

func (f *fakeRooms) ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &livekit.ListParticipantsResponse{Participants: f.participants}, nil
}

func (f *fakeRooms) DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error) {
	f.deleted = append(f.deleted, req.Room)
	return &livekit.DeleteRoomResponse{}, nil
}

type fakeDialer struct {
	sid, destination string
}

func (f *fakeDialer) DialTransfer(ctx context.Context, callSID, destination string) error {
	f.sid, f.destination = callSID, destination
	return nil
}

func sipCaller() *livekit.ParticipantInfo {
	return &livekit.ParticipantInfo{
		Identity: "sip_+15550001111",
		Kind:     livekit.ParticipantInfo_SIP,
		State:    livekit.ParticipantInfo_ACTIVE,
		Attributes: map[string]string{
			AttrCallerNumber: "+15550001111",
			AttrTrunkNumber:  "+15551234567",
			AttrTwilioCallID: "CA123",
		},
	}
}

func TestConnect(t *testing.T) {
	rooms := &fakeRooms{participants: []*livekit.ParticipantInfo{{Identity: "agent", Kind: livekit.ParticipantInfo_AGENT}, sipCaller()}}
	assert.NoError(t, NewLiveKitPlatform(rooms, nil).Connect(context.Background(), "room-1"))

	empty := &fakeRooms{participants: []*livekit.ParticipantInfo{{Identity: "agent", Kind: livekit.ParticipantInfo_AGENT}}}
	assert.ErrorIs(t, NewLiveKitPlatform(empty, nil).Connect(context.Background(), "room-1"), ErrNoCaller)

	broken := &fakeRooms{listErr: errors.New("unavailable")}
	assert.Error(t, NewLiveKitPlatform(broken, nil).Connect(context.Background(), "room-1"))
}

func TestHangupAndTransfer(t *testing.T) {
	rooms := &fakeRooms{}
	dialer := &fakeDialer{}
	p := NewLiveKitPlatform(rooms, dialer)

	require.NoError(t, p.Hangup(context.Background(), "room-1"))
	assert.Equal(t, []string{"room-1"}, rooms.deleted)

	require.NoError(t, p.Transfer(context.Background(), "CA123", "+15557654321"))
	assert.Equal(t, "CA123", dialer.sid)
	assert.Equal(t, "+15557654321", dialer.destination)

	assert.Error(t, p.Transfer(context.Background(), "", "+15557654321"))
	assert.Error(t, NewLiveKitPlatform(rooms, nil).Transfer(context.Background(), "CA123", "+15557654321"))
}

func TestIdentityOf(t *testing.T) {
	id := IdentityOf(sipCaller())
	assert.Equal(t, "+15550001111", id.CallerPhone)
	assert.Equal(t, "+15551234567", id.DialedNumber)
	assert.Equal(t, "CA123", id.PlatformCallID)

	bare := IdentityOf(&livekit.ParticipantInfo{Identity: "sip_caller"})
	assert.Equal(t, "sip_caller", bare.CallerPhone)
}
