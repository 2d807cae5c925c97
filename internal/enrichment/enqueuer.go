// Package enrichment hands finished call recordings to the transcription and
// summarization pipeline.
package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/AxlesAI/axles-voice-service/pkg/redis"
	"go.uber.org/zap"
)

// Job is one recording waiting for enrichment.
type Job struct {
	CallLogID       string    `json:"call_log_id"`
	SessionID       string    `json:"session_id"`
	TenantID        string    `json:"tenant_id,omitempty"`
	LeadID          string    `json:"lead_id,omitempty"`
	RecordingURL    string    `json:"recording_url"`
	DurationSeconds float64   `json:"duration_seconds"`
	EnqueuedAt      time.Time `json:"enqueued_at"`
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Publisher is the subset of pkg/pubsub used here.
type Publisher interface {
	PublishJSON(ctx context.Context, payload interface{}, attrs map[string]string) (string, error)
}

// URLSigner is the subset of pkg/gcs used here.
type URLSigner interface {
	GetPresignedURL(ctx context.Context, objectURL string, expiresAt time.Time) (string, error)
}

type PubSubEnqueuer struct {
	publisher Publisher
}

func NewPubSubEnqueuer(publisher Publisher) *PubSubEnqueuer {
	return &PubSubEnqueuer{publisher: publisher}
}

func (e *PubSubEnqueuer) Enqueue(ctx context.Context, job Job) error {
	id, err := e.publisher.PublishJSON(ctx, job, map[string]string{
		"call_log_id": job.CallLogID,
		"session_id":  job.SessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to publish enrichment job: %w", err)
	}
	logger.ForSession(job.SessionID).Info("Enrichment job published",
		zap.String("call_log_id", job.CallLogID), zap.String("message_id", id))
	return nil
}

// RedisEnqueuer pushes jobs onto a list consumed by the enrichment worker.
type RedisEnqueuer struct {
	redis redis.RedisServiceInterface
	key   string
}

func NewRedisEnqueuer(svc redis.RedisServiceInterface) *RedisEnqueuer {
	return &RedisEnqueuer{redis: svc, key: string(redis.ENRICHMENT_QUEUE)}
}

func (e *RedisEnqueuer) Enqueue(ctx context.Context, job Job) error {
	if err := e.redis.PushJSON(ctx, e.key, job); err != nil {
		return fmt.Errorf("failed to push enrichment job: %w", err)
	}
	logger.ForSession(job.SessionID).Info("Enrichment job queued", zap.String("call_log_id", job.CallLogID))
	return nil
}

// Noop drops jobs. Used when no queue is configured.
type Noop struct{}

func (Noop) Enqueue(ctx context.Context, job Job) error {
	logger.ForSession(job.SessionID).Info("Enrichment disabled, skipping job", zap.String("call_log_id", job.CallLogID))
	return nil
}

// Signing wraps an Enqueuer and replaces the recording URL with a signed one.
// A signing failure falls back to the unsigned URL.
type Signing struct {
	next   Enqueuer
	signer URLSigner
	expiry time.Duration
}

func NewSigning(next Enqueuer, signer URLSigner, expiry time.Duration) *Signing {
	return &Signing{next: next, signer: signer, expiry: expiry}
}

func (s *Signing) Enqueue(ctx context.Context, job Job) error {
	signed, err := s.signer.GetPresignedURL(ctx, job.RecordingURL, time.Now().Add(s.expiry))
	if err != nil {
		logger.ForSession(job.SessionID).Warn("Failed to sign recording URL", zap.Error(err))
	} else {
		job.RecordingURL = signed
	}
	return s.next.Enqueue(ctx, job)
}
