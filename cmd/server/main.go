package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"skill-chat/auth"
	"skill-chat/contract"
	"skill-chat/domain"
	"skill-chat/infrastructure/http/server"
	"skill-chat/infrastructure/realtime"
	"skill-chat/internal"
	"skill-chat/moderation"
	"skill-chat/notification"
	"skill-chat/presence"
	"skill-chat/repositories"
	"skill-chat/runtime"
	"skill-chat/runtime/workers"
	"skill-chat/services"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const (
	shutdownTimeout  = 10 * time.Second
	backlogWarnRatio = 0.8
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and owns the process lifecycle, so that every
// defer runs before the exit code is returned.
func run() (int, error) {
	// 1. Configuration & Logger
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return exitConfig, fmt.Errorf(".env error: %w", err)
	}
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	if logger.Enabled(ctx, slog.LevelDebug) {
		debugPort := config.Port + 1
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", debugPort, endpoint))
		database.StartDebugServer(db, debugPort, endpoint, inspectMapper)
	}

	// 3. Redis (optional): cross-node presence and the notification queue
	var mirror contract.PresenceMirror
	var scheduler contract.NotificationScheduler = notification.NewLogScheduler(logger)
	if config.RedisURL != "" {
		redisClient, err := presence.Connect(ctx, config.RedisURL)
		if err != nil {
			return exitRuntime, err
		}
		defer func() { _ = redisClient.Close() }()
		mirror = presence.NewRedisMirror(redisClient, presence.DefaultPrefix, config.PresenceTTL)

		asynqScheduler, err := notification.NewAsynqScheduler(config.RedisURL, config.NotificationMaxRetry)
		if err != nil {
			return exitConfig, err
		}
		defer func() { _ = asynqScheduler.Close() }()
		scheduler = asynqScheduler
	} else {
		logger.Info("REDIS_URL not set, presence stays local and notifications are logged")
	}

	// 4. Stores, hub and services
	ordering := domain.LexicalOrdering
	if config.UUIDOrdering {
		ordering = domain.UUIDOrdering
	}
	conversationRepository := repositories.NewConversationRepository(db, logger, config.StoreMaxRetries)
	messageRepository := repositories.NewMessageRepository(db, logger, repositories.MessageRepositoryConfig{
		MaxRetries:      config.StoreMaxRetries,
		DefaultPageSize: config.DefaultPageSize,
		MaxPageSize:     config.MaxPageSize,
	})
	hub := runtime.NewHub(runtime.NewRegistry(), conversationRepository, mirror, logger)

	var filter contract.ContentFilter
	if config.ModerationEnabled {
		dictionary, err := moderation.LoadEmbedded()
		if err != nil {
			return exitConfig, err
		}
		moderator, err := moderation.NewModerator(dictionary.Words, charReplacement, logger)
		if err != nil {
			return exitConfig, err
		}
		logger.Info("Moderation enabled", "languages", dictionary.Languages, "words", len(dictionary.Words))
		filter = moderator
	}

	bridge := notification.NewBridge(hub, notification.StaticNames{}, scheduler, config.NotificationPreviewLength, logger)
	notificationWorker := workers.NewNotificationWorker(logger, bridge, config.DeliveryBufferSize, config.SinkTimeout)

	conversationService := services.NewConversationService(conversationRepository, ordering, logger)
	messageService := services.NewMessageService(conversationService, messageRepository, hub, notificationWorker, filter,
		services.MessageServiceConfig{MaxContentLength: config.MaxContentLength}, logger)

	// 5. Workers
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(notificationWorker, workers.NewBacklogMonitor(logger,
		[]workers.NamedBacklog{{Name: "notifications", Backlog: notificationWorker}},
		config.BacklogInterval, backlogWarnRatio))
	if mirror != nil {
		supervisor.Add(workers.NewPresenceHeartbeat(logger, hub, mirror, config.PresenceHeartbeat))
	}
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		supervisor.Run(ctx)
	}()

	// 6. REST + websocket
	identities := auth.NewJWTValidator(config.JWTSecret, config.JWTIssuer)
	socket := realtime.NewHandler(hub, messageService, identities, realtime.SessionConfig{
		BufferSize:     config.ConnectionBufferSize,
		RequestTimeout: config.RequestTimeout,
		RateLimit:      config.SocketRateLimit,
		RateBurst:      config.SocketRateBurst,
	}, logger)
	router := server.NewRouter(server.Dependencies{
		Conversations: conversationService,
		Messages:      messageService,
		Identities:    identities,
		Directory:     conversationRepository,
		Presence:      hub,
		Socket:        socket,
	}, server.Config{RequestTimeout: config.RequestTimeout}, logger)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: config.ConnectTimeout,
	}

	errChan := make(chan error, 2)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. gRPC health endpoint for orchestrators
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GRPCPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(logger)))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		logger.Info("Starting gRPC health server", "address", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 9. Graceful shutdown: stop accepting, drain sockets, then workers
	logger.Info("Shutting down gracefully...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	logger.Info("Closing sockets", "count", hub.CloseAll())
	if err := socket.Wait(shutdownCtx); err != nil {
		logger.Warn("Socket sessions still running", "error", err)
	}
	grpcServer.GracefulStop()
	supervisor.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

func inspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	entry := repositories.InspectEntry([]byte(key), val)
	row.Type = entry.Kind
	row.Detail = entry.Detail
	return row
}
