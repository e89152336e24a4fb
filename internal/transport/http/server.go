package http

import (
	"context"
	"fmt"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expanddesk/internal/config"
	"expanddesk/internal/database"
	"expanddesk/internal/email"
	"expanddesk/internal/handler"
	"expanddesk/internal/presence"
	"expanddesk/internal/queue"
	appredis "expanddesk/internal/redis"
	"expanddesk/internal/repository"
	"expanddesk/internal/service"
	"expanddesk/internal/worker"
	"expanddesk/internal/ws"
)

// tokenSweepInterval is how often the device token table is swept for
// tokens that fail the shape check.
const tokenSweepInterval = 24 * time.Hour

// Run wires the whole application together and serves until SIGINT/SIGTERM.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	redisClient, err := appredis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := redisClient.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	ticketRepo := repository.NewTicketRepository(db)
	chatRepo := repository.NewChatRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	tokenRepo := repository.NewDeviceTokenRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	// Event stream
	publisher := queue.NewPublisher(redisClient.Client)
	consumer := queue.NewConsumer(redisClient.Client)

	// Real-time hub and presence
	hub := ws.NewHub()
	tracker := presence.NewTracker(hub, cfg.PresenceOfflineDelay)

	// Services
	chatService := service.NewChatService(db, chatRepo, msgRepo, ticketRepo, userRepo, publisher, hub)
	ticketService := service.NewTicketService(ticketRepo, userRepo, msgRepo, chatService, publisher)
	notifService := service.NewNotificationService(notifRepo, tokenRepo)

	// Push gateway (optional: disabled when Firebase creds are absent)
	var pushService *service.PushService
	if cfg.FirebaseProjectID != "" {
		fcmClient, err := service.NewFCMClient(ctx, cfg.FirebaseProjectID, cfg.FirebaseClientEmail, cfg.FirebasePrivateKey)
		if err != nil {
			log.Printf("[Server] FCM init FAILED, push disabled: %v", err)
			pushService = service.NewPushService(nil, tokenRepo, notifRepo)
		} else {
			pushService = service.NewPushService(fcmClient, tokenRepo, notifRepo)
		}
	} else {
		log.Println("[Server] Firebase not configured, push disabled")
		pushService = service.NewPushService(nil, tokenRepo, notifRepo)
	}

	// Event workers: all notification/push/email/audit side effects
	eventHandler := worker.NewHandler(userRepo, notifRepo, chatRepo, activityRepo)
	eventHandler.SetNotifier(hub)
	if pushService.Enabled() {
		eventHandler.SetPusher(pushService)
	}
	if cfg.SMTPHost != "" {
		eventHandler.SetMailer(email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}))
	} else {
		log.Println("[Server] SMTP not configured, email disabled")
	}

	manager := worker.NewManager(consumer, eventHandler, worker.DefaultManagerConfig())
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	defer manager.Stop()

	if pushService.Enabled() {
		go runTokenSweep(ctx, pushService)
	}

	// HTTP layer
	gateway := ws.NewGateway(hub, chatService, tracker)
	userLoader := handler.NewRepoUserLoader(userRepo)

	router := NewRouter(RouterConfig{
		TicketHandler:       handler.NewTicketHandler(ticketService, userLoader),
		ChatHandler:         handler.NewChatHandler(chatService),
		NotificationHandler: handler.NewNotificationHandler(notifService),
		WSGateway:           gateway,
		JWTSecret:           cfg.JWTSecret,
	})

	server := &stdhttp.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runTokenSweep periodically prunes device tokens that fail the shape
// check, once at startup and then on an interval.
func runTokenSweep(ctx context.Context, pushService *service.PushService) {
	if _, err := pushService.CleanupInvalidTokens(ctx); err != nil {
		log.Printf("[Server] Token sweep FAILED: %v", err)
	}

	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := pushService.CleanupInvalidTokens(ctx); err != nil {
				log.Printf("[Server] Token sweep FAILED: %v", err)
			}
		}
	}
}
