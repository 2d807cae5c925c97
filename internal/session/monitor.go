package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/AxlesAI/axles-voice-service/pkg/redis"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

const (
	CleanupChannel = "axles:voice:session:cleanup"
	SessionTTL     = 1 * time.Hour
)

// SessionInfo is the monitoring record mirrored to Redis for an open call.
type SessionInfo struct {
	ID           string    `json:"sessionId"`
	PodID        string    `json:"podId"`
	TenantID     string    `json:"tenantId,omitempty"`
	TenantName   string    `json:"tenantName"`
	CallerPhone  string    `json:"callerPhone"`
	DialedNumber string    `json:"dialedNumber"`
	StartedAt    time.Time `json:"startedAt"`
}

// CleanupMessage is the payload for cleanup broadcast
type CleanupMessage struct {
	SessionID string `json:"sessionId"`
}

// Monitor mirrors open sessions into Redis so operators and other pods can see
// which pod owns a call, and relays cross-pod end-of-call requests.
type Monitor struct {
	redisSvc redis.RedisServiceInterface
	podID    string
}

func NewMonitor(redisSvc redis.RedisServiceInterface, podID string) *Monitor {
	return &Monitor{
		redisSvc: redisSvc,
		podID:    podID,
	}
}

// PodID is the instance id this monitor registers sessions under.
func (m *Monitor) PodID() string {
	return m.podID
}

// InfoFor projects a call session onto its monitoring record.
func (m *Monitor) InfoFor(cs CallSession) SessionInfo {
	var info SessionInfo
	if err := copier.Copy(&info, &cs); err != nil {
		logger.ForSession(cs.ID).Warn("Failed to project session info", zap.Error(err))
		info.ID = cs.ID
	}
	info.PodID = m.podID
	return info
}

// Register session for monitoring
func (m *Monitor) Register(ctx context.Context, info SessionInfo) error {
	info.PodID = m.podID
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}

	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	if err := m.redisSvc.SetValue(ctx, m.redisSvc.GenerateKey(redis.SESSION_INFO, info.ID), string(data), SessionTTL); err != nil {
		return err
	}
	logger.Base().Info("Session registered in Redis", zap.String("session_id", info.ID), zap.String("pod_id", m.podID))
	return nil
}

// Unregister session from monitoring
func (m *Monitor) Unregister(ctx context.Context, sessionID string) error {
	return m.redisSvc.DelValue(ctx, m.redisSvc.GenerateKey(redis.SESSION_INFO, sessionID))
}

// Lookup returns the monitoring record of a session, if any pod registered it.
func (m *Monitor) Lookup(ctx context.Context, sessionID string) (*SessionInfo, error) {
	raw, err := m.redisSvc.GetValue(ctx, m.redisSvc.GenerateKey(redis.SESSION_INFO, sessionID))
	if err != nil {
		return nil, err
	}
	var info SessionInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// NotifyCleanup broadcasts an end-of-call request to all pods
func (m *Monitor) NotifyCleanup(ctx context.Context, sessionID string) error {
	logger.Base().Info("Broadcasting cleanup request", zap.String("session_id", sessionID))
	return m.redisSvc.Publish(ctx, CleanupChannel, CleanupMessage{SessionID: sessionID})
}

// SubscribeToCleanup listens for cleanup broadcasts
func (m *Monitor) SubscribeToCleanup(ctx context.Context, handler func(sessionID string)) error {
	return m.redisSvc.Subscribe(ctx, CleanupChannel, func(payload string) {
		var msg CleanupMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			logger.Base().Error("Failed to unmarshal cleanup message", zap.Error(err))
			return
		}
		handler(msg.SessionID)
	})
}
