package recording

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEgress struct {
	startReq  *livekit.RoomCompositeEgressRequest
	startErr  error
	stopErr   error
	stopCalls int
	stopInfo  *livekit.EgressInfo
}

func (f *fakeEgress) StartRoomCompositeEgress(ctx context.Context, req *livekit.RoomCompositeEgressRequest) (*livekit.EgressInfo, error) {
	f.startReq = req
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &livekit.EgressInfo{EgressId: "EG_123", RoomName: req.RoomName, Status: livekit.EgressStatus_EGRESS_STARTING}, nil
}

func (f *fakeEgress) StopEgress(ctx context.Context, req *livekit.StopEgressRequest) (*livekit.EgressInfo, error) {
	f.stopCalls++
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	if f.stopInfo != nil {
		return f.stopInfo, nil
	}
	return &livekit.EgressInfo{EgressId: req.EgressId, Status: livekit.EgressStatus_EGRESS_ENDING}, nil
}

func enabledConfig() Config {
	return Config{
		Bucket:            "axles-recordings",
		CredentialsBase64: base64.StdEncoding.EncodeToString([]byte(`{"type":"service_account"}`)),
		Timeout:           time.Second,
	}
}

func TestDisabledWithoutCredentials(t *testing.T) {
	egress := &fakeEgress{}
	c := NewController(egress, Config{Bucket: "axles-recordings"}, nil)

	assert.False(t, c.Enabled())
	assert.Nil(t, c.Start(context.Background(), "room-1", "room-1"))
	assert.Nil(t, egress.startReq, "egress must not be called when disabled")
}

func TestStartBuildsAudioOnlyGCSRequest(t *testing.T) {
	egress := &fakeEgress{}
	c := NewController(egress, enabledConfig(), nil)

	handle := c.Start(context.Background(), "room-1", "room-1")
	require.NotNil(t, handle)
	assert.Equal(t, "EG_123", handle.EgressID)
	assert.Equal(t, "call-recordings/room-1.ogg", handle.Filepath)

	require.NotNil(t, egress.startReq)
	assert.True(t, egress.startReq.AudioOnly)
	require.Len(t, egress.startReq.FileOutputs, 1)
	out := egress.startReq.FileOutputs[0]
	assert.Equal(t, livekit.EncodedFileType_OGG, out.FileType)
	assert.Equal(t, "axles-recordings", out.GetGcp().GetBucket())
	assert.Equal(t, `{"type":"service_account"}`, out.GetGcp().GetCredentials())
}

func TestStartFailureReturnsNil(t *testing.T) {
	c := NewController(&fakeEgress{startErr: errors.New("storage outage")}, enabledConfig(), nil)
	assert.Nil(t, c.Start(context.Background(), "room-1", "room-1"))
}

func TestStopUsesFileResult(t *testing.T) {
	egress := &fakeEgress{stopInfo: &livekit.EgressInfo{
		EgressId: "EG_123",
		Status:   livekit.EgressStatus_EGRESS_COMPLETE,
		FileResults: []*livekit.FileInfo{{
			Location: "https://storage.googleapis.com/axles-recordings/call-recordings/room-1.ogg",
			Duration: int64(95500 * time.Millisecond),
		}},
	}}
	c := NewController(egress, enabledConfig(), nil)

	res, err := c.Stop(context.Background(), &domain.RecordingHandle{EgressID: "EG_123", Filepath: "call-recordings/room-1.ogg"})
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/axles-recordings/call-recordings/room-1.ogg", res.URL)
	require.NotNil(t, res.Duration)
	assert.InDelta(t, 95.5, *res.Duration, 0.001)
}

func TestStopWithoutFileResultFallsBackToBucketURL(t *testing.T) {
	c := NewController(&fakeEgress{}, enabledConfig(), nil)

	res, err := c.Stop(context.Background(), &domain.RecordingHandle{EgressID: "EG_123", Filepath: "call-recordings/room-1.ogg"})
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/axles-recordings/call-recordings/room-1.ogg", res.URL)
	assert.Nil(t, res.Duration)
}

func TestStopRunsOnce(t *testing.T) {
	egress := &fakeEgress{}
	c := NewController(egress, enabledConfig(), nil)
	handle := &domain.RecordingHandle{EgressID: "EG_123", Filepath: "call-recordings/room-1.ogg"}

	_, err := c.Stop(context.Background(), handle)
	require.NoError(t, err)
	_, err = c.Stop(context.Background(), handle)
	assert.ErrorIs(t, err, ErrAlreadyStopped)
	assert.Equal(t, 1, egress.stopCalls)
}

func TestStopErrorIsReturned(t *testing.T) {
	c := NewController(&fakeEgress{stopErr: errors.New("timeout")}, enabledConfig(), nil)
	_, err := c.Stop(context.Background(), &domain.RecordingHandle{EgressID: "EG_123"})
	assert.Error(t, err)
}
