package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"opomelilla_bot/internal/command"
	"opomelilla_bot/internal/config"
	"opomelilla_bot/internal/domain"
	"opomelilla_bot/internal/events"
	"opomelilla_bot/internal/feature/group"
	"opomelilla_bot/internal/feature/profile"
	"opomelilla_bot/internal/gamification"
	"opomelilla_bot/internal/logging"
	"opomelilla_bot/internal/notify"
	"opomelilla_bot/internal/payment"
	"opomelilla_bot/internal/quiz"
	"opomelilla_bot/internal/server"
	"opomelilla_bot/internal/store"
	"opomelilla_bot/internal/study"
	"opomelilla_bot/internal/subscription"
	"opomelilla_bot/internal/telegram"
	"opomelilla_bot/internal/tournament"
	"opomelilla_bot/internal/webhook"
)

const (
	mongoConnectTimeout    = 10 * time.Second
	mongoIndexTimeout      = 5 * time.Second
	mongoDisconnectTimeout = 5 * time.Second
	webhookRegisterTimeout = 10 * time.Second
	httpShutdownTimeout    = 10 * time.Second
)

var processStart = time.Now()

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
		"kafka":    cfg.KafkaEnabled(),
	}).Info("configuration loaded")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	var publisher events.Publisher = events.Nop{}
	if cfg.KafkaEnabled() {
		kafka, err := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, logger)
		if err != nil {
			logger.WithError(err).Error("kafka producer setup error")
			fmt.Fprintf(os.Stderr, "kafka producer setup error: %v\n", err)
			os.Exit(1)
		}
		publisher = kafka
	}

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	statsProvider := store.NewStatsProvider(mongoManager.Profiles(), mongoManager.Groups())
	profileRegistrar := profile.NewRegistrar(mongoManager.Profiles(), logger)
	groupJoins := group.NewJoinLedger(mongoManager.Groups(), logger)
	scoring := gamification.NewService(mongoManager.Profiles(), statsProvider, logger)
	subscriptions := subscription.NewService(mongoManager.Subscriptions(), logger)
	payments := payment.NewService(subscriptions, publisher, logger)
	studySessions := study.NewService(mongoManager.StudySessions(), logger)
	tournaments := tournament.NewService(mongoManager.TournamentPolls(), mongoManager.TournamentAnswers(), logger)
	sender := notify.NewSender(tgClient, logger)

	pipeline := quiz.NewPipeline(domain.NewQuestionRepository(mongoManager.Questions()), scoring, sender, publisher, logger)

	dispatcher := command.NewDispatcher(command.Options{
		Profiles:       profileRegistrar,
		Subscriptions:  subscriptions,
		Study:          studySessions,
		Stats:          scoring,
		Leaderboard:    statsProvider,
		Sender:         sender,
		Invoices:       tgClient,
		ProviderToken:  cfg.PaymentProviderToken,
		SupportContact: cfg.SupportContact,
		Logger:         logger,
	})

	router := webhook.NewRouter(cfg, webhook.Dependencies{
		Tournament:  tournaments,
		Quiz:        pipeline,
		Members:     profileRegistrar,
		Groups:      groupJoins,
		Payments:    payments,
		PreCheckout: tgClient,
		Commands:    dispatcher,
		Sender:      sender,
	}, logger)

	httpServer := server.NewServer(server.Options{
		Port:         cfg.HTTPPort,
		MongoChecker: mongoManager,
		Counter:      statsProvider,
		StartedAt:    processStart,
		Routes:       []server.RouteRegistrar{webhook.NewHandler(router, cfg.WebhookSecret, logger)},
		Logger:       logger,
	})

	if cfg.WebhookURL != "" {
		registerCtx, cancelRegister := context.WithTimeout(context.Background(), webhookRegisterTimeout)
		if err := tgClient.RegisterWebhook(registerCtx, cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			logging.WithContext(logging.Context{Event: "webhook_register_failed"}).WithError(err).
				Warn("failed to register webhook, relying on existing registration")
		}
		cancelRegister()
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping http server")
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).WithField("event", "http_stopped_early").Error("http server stopped before shutdown signal")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).WithField("event", "http_shutdown_error").Warn("http server shutdown error")
	}
	cancelShutdown()

	if err := publisher.Close(); err != nil {
		logger.WithError(err).WithField("event", "kafka_close_error").Warn("failed to close event publisher")
	}

	disconnectCtx, cancelDisconnect := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(disconnectCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelDisconnect()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
