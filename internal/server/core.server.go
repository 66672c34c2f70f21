package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"notification-service/internal/config"
	"notification-service/internal/consumer"
	httphandler "notification-service/internal/handler/http"
	wshandler "notification-service/internal/handler/ws"
	"notification-service/internal/middleware"
	"notification-service/internal/push"
	"notification-service/internal/repository"
	"notification-service/internal/router"
	"notification-service/internal/usecase"
	"notification-service/pkg/jwtutil"
)

// Server wires the store, the session registry, the event consumer and the
// HTTP surface together and owns their lifecycle.
type Server struct {
	httpServer *http.Server
	consumer   *consumer.Consumer
	dbpool     *pgxpool.Pool
	rdb        *redis.Client
	logger     *zap.Logger
}

// NewServer builds the full service. Any unreachable dependency, the
// broker included, fails construction: the service never reports ready
// without its event source.
func NewServer(cfg config.AppConfig, logger *zap.Logger) (*Server, error) {
	ctx := context.Background()

	dbpool, err := config.ConnectDB()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repository.EnsureSchema(ctx, dbpool); err != nil {
		dbpool.Close()
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})

	verifier, err := jwtutil.LoadAndBuild(jwtutil.JWTConfig{
		PubPath:  cfg.JWTPubKeyPath,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		dbpool.Close()
		return nil, err
	}

	notifRepo := repository.NewRepository(dbpool)
	wsManager := push.NewManager(logger)
	uc := usecase.NewNotificationUsecase(notifRepo, wsManager, logger)

	dispatcher := consumer.NewDispatcher(uc, logger)
	dedup := consumer.NewRedisDeduper(rdb, cfg.DedupTTL)
	eventConsumer, err := consumer.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, dispatcher, dedup, logger)
	if err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	auth := middleware.NewAuthMiddleware(verifier)
	restHandler := httphandler.NewNotificationHandler(uc)
	wsHandler := wshandler.NewWSHandler(wsManager, verifier, logger)

	r := chi.NewRouter()
	router.SetupRoutes(r, restHandler, wsHandler, auth, rdb)

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: r,
		},
		consumer: eventConsumer,
		dbpool:   dbpool,
		rdb:      rdb,
		logger:   logger,
	}, nil
}

// Start runs the event consumer and the HTTP listener. It blocks until the
// HTTP server stops.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		if err := s.consumer.Start(ctx); err != nil {
			s.logger.Error("consumer stopped", zap.Error(err))
		}
	}()

	s.logger.Info("notification service listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains the HTTP server, then closes the consumer and backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if cerr := s.consumer.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.dbpool.Close()
	_ = s.rdb.Close()
	return err
}
