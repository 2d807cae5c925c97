package livekit

import (
	"errors"

	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"go.uber.org/zap"
)

// LiveKitConfig holds LiveKit server configuration
type LiveKitConfig struct {
	ServerURL string // LiveKit server URL
	APIKey    string // LiveKit API key
	APISecret string // LiveKit API secret
	GCSBucket string // GCS bucket name for egress recordings
}

// NewLiveKitConfig creates a new LiveKit configuration with validation
func NewLiveKitConfig(serverURL, apiKey, apiSecret, gcsBucket string) (*LiveKitConfig, error) {
	config := &LiveKitConfig{
		ServerURL: serverURL,
		APIKey:    apiKey,
		APISecret: apiSecret,
		GCSBucket: gcsBucket,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.Base().Info("LiveKit configuration initialized", zap.String("server_url", serverURL))
	if gcsBucket != "" {
		logger.Base().Info("LiveKit egress GCS bucket", zap.String("gcs_bucket", gcsBucket))
	}
	return config, nil
}

// Validate validates the LiveKit configuration
func (c *LiveKitConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("LiveKit server URL is required")
	}
	if c.APIKey == "" {
		return errors.New("LiveKit API key is required")
	}
	if c.APISecret == "" {
		return errors.New("LiveKit API secret is required")
	}
	return nil
}
