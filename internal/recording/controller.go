package recording

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/config"
	"github.com/AxlesAI/axles-voice-service/internal/domain"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/AxlesAI/axles-voice-service/pkg/metrics"
	"github.com/livekit/protocol/livekit"
	"go.uber.org/zap"
)

var ErrAlreadyStopped = errors.New("recording already stopped")

// Egress is the part of the LiveKit egress API used for call recording.
// *lksdk.EgressClient satisfies it.
type Egress interface {
	StartRoomCompositeEgress(ctx context.Context, req *livekit.RoomCompositeEgressRequest) (*livekit.EgressInfo, error)
	StopEgress(ctx context.Context, req *livekit.StopEgressRequest) (*livekit.EgressInfo, error)
}

// Config selects where recordings are written.
type Config struct {
	Bucket            string
	CredentialsBase64 string
	PathPrefix        string
	Timeout           time.Duration
}

// StopResult carries what is known once a recording is stopped. Duration is
// the media length in seconds and is nil when the platform did not report one.
type StopResult struct {
	URL      string
	Duration *float64
}

// Controller starts and stops best-effort audio recordings of call rooms.
type Controller struct {
	egress      Egress
	bucket      string
	credentials string
	pathPrefix  string
	timeout     time.Duration
	metrics     *metrics.Metrics

	stopped sync.Map // egress id -> struct{}
}

// NewController returns a controller. Recording is disabled when egress is nil
// or the bucket/credentials are missing or unreadable.
func NewController(egress Egress, cfg Config, m *metrics.Metrics) *Controller {
	c := &Controller{
		egress:     egress,
		bucket:     cfg.Bucket,
		pathPrefix: cfg.PathPrefix,
		timeout:    cfg.Timeout,
		metrics:    m,
	}
	if c.pathPrefix == "" {
		c.pathPrefix = config.DefaultRecordingPathPrefix
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}

	if cfg.CredentialsBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(cfg.CredentialsBase64)
		if err != nil {
			logger.Base().Error("Failed to decode recording credentials, recording disabled", zap.Error(err))
		} else {
			c.credentials = string(decoded)
		}
	}

	if !c.Enabled() {
		logger.Base().Warn("Call recording disabled: GCS bucket or credentials not configured")
	}
	return c
}

// Enabled reports whether Start will attempt a recording.
func (c *Controller) Enabled() bool {
	return c != nil && c.egress != nil && c.bucket != "" && c.credentials != ""
}

// Start begins an audio-only recording of the room. Failures are logged and
// return nil; the call continues unrecorded.
func (c *Controller) Start(ctx context.Context, sessionID, roomName string) *domain.RecordingHandle {
	if !c.Enabled() {
		return nil
	}
	log := logger.ForSession(sessionID).With(zap.String("room_name", roomName))

	filepath := fmt.Sprintf("%s%s%s", c.pathPrefix, sessionID, config.DefaultRecordingExtension)
	req := &livekit.RoomCompositeEgressRequest{
		RoomName:  roomName,
		AudioOnly: true,
		FileOutputs: []*livekit.EncodedFileOutput{{
			FileType: livekit.EncodedFileType_OGG,
			Filepath: filepath,
			Output: &livekit.EncodedFileOutput_Gcp{
				Gcp: &livekit.GCPUpload{
					Bucket:      c.bucket,
					Credentials: c.credentials,
				},
			},
		}},
	}

	startCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	info, err := c.egress.StartRoomCompositeEgress(startCtx, req)
	if err != nil {
		c.metrics.IncRecordingFailure("start")
		log.Error("Failed to start recording", zap.Error(err))
		return nil
	}
	if info.GetError() != "" {
		c.metrics.IncRecordingFailure("start")
		log.Error("Recording egress reported an error", zap.String("egress_id", info.GetEgressId()), zap.String("error", info.GetError()))
		return nil
	}

	log.Info("Recording started", zap.String("egress_id", info.GetEgressId()), zap.String("status", info.GetStatus().String()))
	return &domain.RecordingHandle{
		EgressID:  info.GetEgressId(),
		RoomName:  roomName,
		Filepath:  filepath,
		StartedAt: time.Now(),
	}
}

// Stop ends the recording. It runs at most once per handle.
func (c *Controller) Stop(ctx context.Context, handle *domain.RecordingHandle) (StopResult, error) {
	if handle == nil || handle.EgressID == "" {
		return StopResult{}, errors.New("no recording handle")
	}
	if c.egress == nil {
		return StopResult{}, errors.New("recording not configured")
	}
	if _, loaded := c.stopped.LoadOrStore(handle.EgressID, struct{}{}); loaded {
		return StopResult{}, ErrAlreadyStopped
	}

	stopCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	info, err := c.egress.StopEgress(stopCtx, &livekit.StopEgressRequest{EgressId: handle.EgressID})
	if err != nil {
		c.metrics.IncRecordingFailure("stop")
		return StopResult{}, fmt.Errorf("failed to stop egress %s: %w", handle.EgressID, err)
	}

	result := StopResult{URL: c.publicURL(handle.Filepath)}
	if files := info.GetFileResults(); len(files) > 0 {
		if loc := files[0].GetLocation(); loc != "" {
			result.URL = loc
		}
		if files[0].GetDuration() > 0 {
			seconds := float64(files[0].GetDuration()) / float64(time.Second)
			result.Duration = &seconds
		}
	}

	logger.Base().Info("Recording stopped",
		zap.String("egress_id", handle.EgressID),
		zap.String("room_name", handle.RoomName),
		zap.String("status", info.GetStatus().String()),
		zap.String("url", result.URL))
	return result, nil
}

func (c *Controller) publicURL(filepath string) string {
	if c.bucket == "" || filepath == "" {
		return ""
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", c.bucket, filepath)
}
