package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Hyung-98/ChatbotSocket-sub000/config"
	"github.com/Hyung-98/ChatbotSocket-sub000/logger"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/archive"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/chat"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/fanout"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/llm"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
	redisstore "github.com/Hyung-98/ChatbotSocket-sub000/service/storage/redis"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/throttle"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/ids"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/security"
)

func main() {
	cfg := config.Load()
	ids.SetNodeID(cfg.NodeID)
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Redis: throttle counters + presence mirror
	if err := redisstore.InitRedis(redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}); err != nil {
		logger.Errorf("[main] redis init: %v", err)
		os.Exit(1)
	}
	defer redisstore.CloseRedis()

	// Mongo: rooms, messages, users
	db, err := storage.ConnectMongo(ctx, storage.MongoConfig{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		logger.Errorf("[main] mongo connect: %v", err)
		os.Exit(1)
	}
	store := storage.NewMongoStore(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Errorf("[main] mongo indexes: %v", err)
		os.Exit(1)
	}
	users := storage.NewMongoUserStore(db)

	// NATS: cross-instance fanout
	bus, err := fanout.NewNatsBus(fanout.Config{
		Servers: cfg.Nats.Servers,
		Name:    cfg.Nats.Name,
	})
	if err != nil {
		logger.Errorf("[main] nats connect: %v", err)
		os.Exit(1)
	}
	defer bus.Close()

	// Kafka firehose is optional
	var arch *archive.Producer
	if cfg.Kafka.Enabled {
		arch, err = archive.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Errorf("[main] kafka producer: %v", err)
			os.Exit(1)
		}
		defer arch.Close()
	}

	guard := throttle.NewGuard(throttle.NewRedisStore(redisstore.GetRedis()), throttle.DefaultTable())
	pres := storage.NewRedisPresence(redisstore.GetRedis(), cfg.PresenceTTL)

	gen := &llm.SSEClient{
		Endpoint: cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
	}

	reg := chat.NewRegistry(chat.RegistryConf{MaxPerUser: cfg.MaxConnsPerUser})
	rooms := chat.NewRooms(reg, store, bus, guard, cfg.GatewayID)
	relay := chat.NewRelay(rooms, reg, store, guard, gen, arch, chat.RelayConf{
		History:   cfg.HistoryWindow,
		MaxRunes:  cfg.MaxMessageRunes,
		LongRunes: cfg.LongMessageRunes,
	})
	gate := &chat.AuthGate{
		Verifier: chat.JWTVerifier{Opts: security.DefaultOptions(cfg.JWTSecretBytes())},
		Users:    users,
	}
	srv := chat.NewServer(cfg.GatewayID, reg, rooms, relay, gate, guard, store, bus, pres)
	if err := srv.Start(); err != nil {
		logger.Errorf("[main] server start: %v", err)
		os.Exit(1)
	}

	ws := chat.NewWSHandler(srv, gate, cfg.AuthTimeout)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", ws.Handle)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "gateway": cfg.GatewayID})
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, reg.Stats())
	})

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		logger.Infof("[main] gateway %s listening on %s", cfg.GatewayID, cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[main] http serve: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("[main] shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	_ = httpSrv.Shutdown(shutCtx)
	srv.Shutdown()
}
