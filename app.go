package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"reveal-service/internal/auth"
	"reveal-service/internal/changefeed"
	"reveal-service/internal/config"
	"reveal-service/internal/db"
	"reveal-service/internal/handlers"
	"reveal-service/internal/middleware"
	"reveal-service/internal/observability"
	"reveal-service/internal/rabbitmq"
	"reveal-service/internal/repositories"
	"reveal-service/internal/reveal"
	"reveal-service/internal/service"
	"reveal-service/internal/storage"
	"reveal-service/internal/telemetry"
	"reveal-service/internal/ws"
)

const (
	serviceName     = "reveal-service"
	auditRoutingKey = "audit.reveal"
)

// app holds every long-lived component. closers run in reverse order on shutdown.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	auth      auth.Authenticator
	groups    *service.GroupService
	messages  *service.MessageService
	sweeper   *service.Sweeper
	blobs     storage.BlobStore
	publisher rabbitmq.Publisher
	audit     *telemetry.AuditEmitter
	hub       *ws.Hub
	limiter   *middleware.RateLimiter
	closers   []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, hub: ws.NewHub()}
	if err := a.init(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg, log := a.cfg, a.log
	var err error
	a.auth, err = auth.New(cfg.Auth.Mode, cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	var database *sqlx.DB
	var groupRepo repositories.GroupRepository
	var messageRepo repositories.MessageRepository
	switch cfg.Store.Driver {
	case "postgres":
		database, err = db.Connect(ctx, cfg.Store.PostgresDSN, log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return database.Close() })
		groupRepo = repositories.NewGroupRepo(database)
		messageRepo = repositories.NewMessageRepo(database)
	default:
		store := repositories.NewMemoryStore(nil)
		groupRepo, messageRepo = store, store
		log.Warn("using in-memory document store, data is lost on restart")
	}

	feed, err := a.newFeed(ctx, database)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return feed.Close() })

	if err := a.newBlobs(ctx); err != nil {
		return err
	}

	a.publisher = rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log.Named("rabbitmq"))
	a.closers = append(a.closers, func(context.Context) error { return a.publisher.Close() })
	observability.SetPublisher(a.publisher)
	a.audit = telemetry.NewAuditEmitter(a.publisher, auditRoutingKey, serviceName, cfg.Env, log.Named("audit"))

	deps := service.Deps{
		Groups:        groupRepo,
		Messages:      messageRepo,
		Feed:          feed,
		Blobs:         a.blobs,
		Clock:         reveal.SystemClock{},
		Log:           log.Named("service"),
		MaxMediaBytes: cfg.Blob.MaxMediaBytes,
		MaxCoverBytes: cfg.Blob.MaxCoverBytes,
	}
	a.groups = service.NewGroupService(deps)
	a.messages = service.NewMessageService(deps)
	a.sweeper = service.NewSweeper(a.messages, cfg.Reconcile.Interval, cfg.Reconcile.BatchSize, cfg.GCOrphans)
	a.limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	return nil
}

func (a *app) newFeed(ctx context.Context, database *sqlx.DB) (changefeed.Feed, error) {
	switch a.cfg.Feed.Driver {
	case "postgres":
		return changefeed.NewPostgresFeed(a.cfg.Store.PostgresDSN, database, a.log.Named("changefeed"))
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: a.cfg.Feed.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		return changefeed.NewRedisFeed(ctx, client, a.log.Named("changefeed"))
	default:
		return changefeed.NewBroker(), nil
	}
}

func (a *app) newBlobs(ctx context.Context) error {
	switch a.cfg.Blob.Driver {
	case "gridfs":
		store, err := storage.NewGridFSStore(ctx, a.cfg.Blob.MongoURI, a.cfg.Blob.MongoDB, a.cfg.Blob.PublicBaseURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		a.blobs = store
	default:
		a.blobs = storage.NewMemoryBlobStore(a.cfg.Blob.PublicBaseURL)
	}
	return nil
}

// background runs the reveal sweeper and limiter pruning until ctx is done.
func (a *app) background(ctx context.Context) {
	go a.sweeper.Run(ctx)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.limiter.Prune(10 * time.Minute)
			}
		}
	}()
}

func (a *app) close(ctx context.Context) {
	a.hub.CloseAll()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("shutdown step failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *app) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.RequestLogger(a.log.Named("http")))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(cors.New(corsConfig(a.cfg.HTTP.CORSOrigin)))

	groupHandler := handlers.NewGroupHandler(a.groups, a.audit)
	messageHandler := handlers.NewMessageHandler(a.messages, a.audit)
	mediaHandler := handlers.NewMediaHandler(a.blobs)
	healthHandler := handlers.NewHealthHandler(a.groups, a.log.Named("health"))
	groupWS := ws.NewGroupWebSocketHandler(a.hub, a.groups, a.messages, a.log)

	requireCaller := middleware.RequireCaller(a.auth)
	optionalCaller := middleware.OptionalCaller(a.auth)
	sendLimit := middleware.RateLimit(a.limiter)

	router.GET("/healthz", healthHandler.Health)
	router.POST("/connectivity/reconnect", healthHandler.Reconnect)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/media/*path", mediaHandler.Serve)

	router.GET("/groups/public", optionalCaller, groupHandler.ListPublicGroups)
	router.GET("/groups/:group_id", optionalCaller, groupHandler.GetGroup)

	authed := router.Group("/", requireCaller)
	authed.POST("/groups", groupHandler.CreateGroup)
	authed.GET("/groups", groupHandler.ListGroups)
	authed.PATCH("/groups/:group_id", groupHandler.UpdateGroup)
	authed.DELETE("/groups/:group_id", groupHandler.DeleteGroup)
	authed.POST("/groups/:group_id/join", groupHandler.JoinGroup)
	authed.POST("/groups/:group_id/leave", groupHandler.LeaveGroup)
	authed.POST("/groups/:group_id/cover", groupHandler.UploadCover)

	authed.GET("/groups/:group_id/messages", messageHandler.GetGroupMessages)
	authed.POST("/groups/:group_id/messages", sendLimit, messageHandler.PostGroupMessage)
	authed.POST("/groups/:group_id/messages/media", sendLimit, messageHandler.PostMediaMessage)
	authed.POST("/groups/:group_id/messages/reconcile", messageHandler.ReconcileGroup)
	authed.DELETE("/messages/:message_id", messageHandler.DeleteMessage)
	authed.POST("/messages/:message_id/reactions", messageHandler.ToggleReaction)

	authed.GET("/ws/groups", groupWS.UserGroups)
	authed.GET("/ws/groups/:group_id/messages", groupWS.GroupMessages)

	handlers.RegisterDebugRoutes(authed, a.audit, a.sweeper, a.cfg.Debug.Enabled, a.cfg.Debug.Operators)
	return router
}

func corsConfig(origin string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = []string{origin}
	cfg.AllowCredentials = true
	return cfg
}
