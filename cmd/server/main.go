package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AxlesAI/axles-voice-service/internal/adapters/livekit"
	"github.com/AxlesAI/axles-voice-service/internal/config"
	"github.com/AxlesAI/axles-voice-service/internal/enrichment"
	"github.com/AxlesAI/axles-voice-service/internal/handler"
	"github.com/AxlesAI/axles-voice-service/internal/recording"
	"github.com/AxlesAI/axles-voice-service/internal/repository"
	"github.com/AxlesAI/axles-voice-service/internal/services/call"
	"github.com/AxlesAI/axles-voice-service/internal/session"
	"github.com/AxlesAI/axles-voice-service/internal/staff"
	"github.com/AxlesAI/axles-voice-service/internal/telephony"
	"github.com/AxlesAI/axles-voice-service/internal/tenant"
	"github.com/AxlesAI/axles-voice-service/pkg/gcs"
	"github.com/AxlesAI/axles-voice-service/pkg/logger"
	"github.com/AxlesAI/axles-voice-service/pkg/metrics"
	"github.com/AxlesAI/axles-voice-service/pkg/pubsub"
	"github.com/AxlesAI/axles-voice-service/pkg/redis"
	"github.com/AxlesAI/axles-voice-service/pkg/twilio"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	lkauth "github.com/livekit/protocol/auth"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// Server is the voice service process: HTTP surface plus the call orchestrator.
type Server struct {
	config  *config.ServiceConfig
	router  *mux.Router
	calls   *call.CallService
	closers []func() error
}

// NewServer wires every dependency. Optional integrations (LiveKit, Twilio,
// Redis, Pub/Sub, GCS) degrade to disabled when unconfigured or unreachable.
func NewServer(ctx context.Context, cfg *config.ServiceConfig) (*Server, error) {
	s := &Server{config: cfg, router: mux.NewRouter()}

	repos, err := repository.NewRepositoryManager(cfg.PersistenceMode)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}
	s.closers = append(s.closers, repos.Close)

	m := metrics.New()

	// LiveKit: room control, egress, webhook verification
	var (
		rooms       telephony.RoomService
		egress      recording.Egress
		webhookKeys lkauth.KeyProvider
	)
	if cfg.LiveKitConfigured() {
		lkConfig, err := livekit.NewLiveKitConfig(cfg.LiveKitServerURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.RecordingGCSBucket)
		if err != nil {
			return nil, fmt.Errorf("invalid livekit config: %w", err)
		}
		clients, err := livekit.NewClients(lkConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create livekit clients: %w", err)
		}
		rooms, egress, webhookKeys = clients.Rooms, clients.Egress, clients.Keys
	} else {
		logger.Base().Warn("LiveKit not configured, running without media platform control")
	}

	var transfer telephony.TransferDialer
	if cfg.TwilioConfigured() {
		transfer = twilio.NewCallService(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
	} else {
		logger.Base().Info("Twilio not configured, call transfer disabled")
	}

	recorder := recording.NewController(egress, recording.Config{
		Bucket:            cfg.RecordingGCSBucket,
		CredentialsBase64: cfg.RecordingCredentialsB64,
		PathPrefix:        cfg.RecordingPathPrefix,
		Timeout:           cfg.RecordingStartTimeout,
	}, m)

	// Redis: session monitor and enrichment fallback
	var redisSvc *redis.RedisService
	var monitor *session.Monitor
	if cfg.RedisConfigured() {
		redisSvc, err = redis.NewRedisService(&redis.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Base().Warn("Failed to initialize redis service, running without session monitor", zap.Error(err))
			redisSvc = nil
		} else {
			s.closers = append(s.closers, redisSvc.Close)
			monitor = session.NewMonitor(redisSvc, cfg.InstanceID)
		}
	}

	enqueuer, err := s.newEnqueuer(ctx, cfg, redisSvc)
	if err != nil {
		return nil, err
	}

	directory := staff.NewDirectory(repos,
		staff.WithPolicy(staff.Policy{
			Threshold:       cfg.StaffLockoutThreshold,
			LockoutDuration: cfg.StaffLockoutDuration,
		}),
		staff.WithMetrics(m),
	)

	s.calls = call.NewCallService(call.Deps{
		Repos:            repos,
		Store:            session.NewStore(monitor),
		Monitor:          monitor,
		Platform:         telephony.NewLiveKitPlatform(rooms, transfer),
		Recorder:         recorder,
		Enrichment:       enqueuer,
		Metrics:          m,
		Registry:         tenant.NewRegistry(repos.Tenants(), cfg.TenantLookupTimeout, m),
		Staff:            directory,
		Defaults:         cfg.Defaults,
		StepTimeout:      cfg.FinalizeStepTimeout,
		MinEnrichSeconds: cfg.RecordingMinEnrichSeconds,
	})

	if monitor != nil {
		if err := monitor.SubscribeToCleanup(ctx, s.calls.HandleCleanup); err != nil {
			logger.Base().Warn("Failed to subscribe to cleanup channel", zap.Error(err))
		}
	}

	handler.NewHandlerManager(handler.RouterConfig{
		Calls:        s.calls,
		Sessions:     s.calls,
		WebhookKeys:  webhookKeys,
		EngineSecret: cfg.EngineSharedSecret,
	}).SetupAllRoutes(s.router)

	return s, nil
}

// newEnqueuer picks Pub/Sub, then Redis, then a no-op enrichment queue.
func (s *Server) newEnqueuer(ctx context.Context, cfg *config.ServiceConfig, redisSvc *redis.RedisService) (enrichment.Enqueuer, error) {
	var enqueuer enrichment.Enqueuer
	switch {
	case cfg.PubSubConfigured():
		ps, err := pubsub.NewPubSubService(ctx, &pubsub.PubSubConfig{
			ProjectID: cfg.PubSubProjectID,
			TopicName: cfg.PubSubTopicName,
			PubID:     cfg.InstanceID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize pubsub: %w", err)
		}
		s.closers = append(s.closers, ps.Close)
		enqueuer = enrichment.NewPubSubEnqueuer(ps)
		logger.Base().Info("Enrichment jobs go to Pub/Sub", zap.String("topic", cfg.PubSubTopicName))
	case redisSvc != nil:
		enqueuer = enrichment.NewRedisEnqueuer(redisSvc)
		logger.Base().Info("Enrichment jobs go to the Redis queue")
	default:
		logger.Base().Warn("No enrichment queue configured, recordings will not be enriched")
		return enrichment.Noop{}, nil
	}

	if !cfg.EnrichSignedURLs {
		return enqueuer, nil
	}
	signer, err := gcs.NewGCSClient(ctx, cfg.RecordingCredentialsB64)
	if err != nil {
		logger.Base().Warn("Failed to create GCS client, enrichment URLs stay unsigned", zap.Error(err))
		return enqueuer, nil
	}
	s.closers = append(s.closers, signer.Close)
	return enrichment.NewSigning(enqueuer, signer, cfg.EnrichURLExpiry), nil
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// detached enrichment work.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Base().Info("Starting server", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Base().Info("Shutting down server", zap.Int("active_sessions", s.calls.ActiveSessions()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Base().Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := s.calls.Wait(shutdownCtx); err != nil {
		logger.Base().Warn("Enrichment work still running at shutdown", zap.Error(err))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Base().Warn("Close failed", zap.Error(err))
		}
	}
	return nil
}

func main() {
	// Load .env file for local development if it exists.
	// This will not override environment variables set by Helm/Docker.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	cfg := config.LoadFromEnv()
	if _, err := logger.Init(cfg.LogEnv); err != nil {
		log.Printf("Failed to initialize zap logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(ctx, cfg)
	if err != nil {
		logger.Base().Fatal("Failed to initialize server", zap.Error(err))
	}
	logger.Base().Info("Server initialized",
		zap.String("port", cfg.Port),
		zap.String("instance_id", cfg.InstanceID),
		zap.Bool("recording", cfg.RecordingEnabled()))

	if err := server.Run(ctx); err != nil {
		logger.Base().Fatal("Server failed", zap.Error(err))
	}
}
