package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PubSubConfig struct {
	ProjectID string
	TopicName string
	// PubID prefixes the "name" attribute so subscriptions can filter by environment.
	PubID string
}

type PubSubService struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	config *PubSubConfig
}

func NewPubSubService(ctx context.Context, cfg *PubSubConfig) (*PubSubService, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PubSub project ID is required")
	}
	if cfg.TopicName == "" {
		return nil, fmt.Errorf("PubSub topic name is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create PubSub client: %w", err)
	}

	topic := client.Topic(cfg.TopicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check if topic exists: %w", err)
	}

	if !exists {
		logger.Base().Info("Topic does not exist, creating", zap.String("topic", cfg.TopicName))
		topic, err = client.CreateTopic(ctx, cfg.TopicName)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create topic %s: %w", cfg.TopicName, err)
		}
	}

	return &PubSubService{
		client: client,
		topic:  topic,
		config: cfg,
	}, nil
}

// PublishJSON marshals payload and blocks until the server acknowledges it.
// It returns the server-assigned message id.
func (p *PubSubService) PublishJSON(ctx context.Context, payload interface{}, attrs map[string]string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pubsub payload: %w", err)
	}

	taskID := uuid.New().String()
	attributes := map[string]string{"name": p.messageName(taskID)}
	for k, v := range attrs {
		attributes[k] = v
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Attributes: attributes, Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		logger.Base().Error("Failed to publish message", zap.String("topic", p.config.TopicName), zap.String("task_id", taskID), zap.Error(err))
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	logger.Base().Debug("Published message", zap.String("topic", p.config.TopicName), zap.String("message_id", id), zap.String("task_id", taskID))
	return id, nil
}

func (p *PubSubService) messageName(taskID string) string {
	if p.config.PubID == "" {
		return taskID
	}
	return p.config.PubID + ":" + taskID
}

func (p *PubSubService) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
