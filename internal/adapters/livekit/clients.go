package livekit

import (
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/livekit/protocol/auth"
	lksdk "github.com/livekit/server-sdk-go"
	"go.uber.org/zap"
)

// Clients bundles the LiveKit server API clients used by the service.
type Clients struct {
	Config *LiveKitConfig
	Egress *lksdk.EgressClient
	Rooms  *lksdk.RoomServiceClient
	Keys   auth.KeyProvider
}

// NewClients creates LiveKit API clients for the configured server.
func NewClients(config *LiveKitConfig) (*Clients, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clients := &Clients{
		Config: config,
		Egress: lksdk.NewEgressClient(config.ServerURL, config.APIKey, config.APISecret),
		Rooms:  lksdk.NewRoomServiceClient(config.ServerURL, config.APIKey, config.APISecret),
		Keys:   auth.NewSimpleKeyProvider(config.APIKey, config.APISecret),
	}

	logger.Base().Info("LiveKit API clients initialized", zap.String("server_url", config.ServerURL))
	return clients, nil
}
