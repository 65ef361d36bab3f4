package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	redisv9 "github.com/redis/go-redis/v9"

	"pairchat/internal/auth"
	"pairchat/internal/cache"
	"pairchat/internal/chat"
	"pairchat/internal/config"
	"pairchat/internal/hub"
	"pairchat/internal/model"
	"pairchat/internal/notify"
	mysqlClient "pairchat/internal/platform/mysql"
	rabbitmqClient "pairchat/internal/platform/rabbitmq"
	redisClient "pairchat/internal/platform/redis"
	"pairchat/internal/store"
)

// App owns every long-lived resource of the process. With the memory storage
// driver only the in-process pieces are wired; mysql mode also brings up
// redis and the rabbitmq notification pipeline.
type App struct {
	Config *config.Config
	Log    *slog.Logger

	Store store.Store
	Hub   *hub.Hub
	Chat  *chat.Service

	Redis  *redisv9.Client
	MQConn *amqp.Connection
	Worker *notify.Worker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	app := &App{
		Config:    cfg,
		Log:       log,
		Hub:       hub.New(),
		StartedAt: time.Now(),
	}

	if cfg.Storage.Driver == config.StorageMemory {
		app.Store = store.NewMemory()
		app.Chat = chat.NewService(app.Store, app.Hub, nil, nil, nil, log)
		return app, nil
	}

	db, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Contact{}, &model.Message{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}
	app.Store = store.NewMySQL(db)

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	app.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	app.MQConn = mqConn

	historyCache := cache.NewHistoryCache(redisCli,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second)
	unreadCounters := cache.NewUnreadCounters(redisCli)
	publisher := notify.NewPublisher(mqConn, cfg.RabbitMQ.NotifyQueue)

	app.Worker = notify.NewWorker(mqConn, unreadCounters, cfg.RabbitMQ.NotifyQueue, log)
	if err := app.Worker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start notify worker failed: %w", err)
	}

	app.Chat = chat.NewService(app.Store, app.Hub, historyCache, unreadCounters, publisher, log)
	return app, nil
}

func (a *App) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: a.Config.Auth.JWTSecret,
		Expiry: time.Duration(a.Config.Auth.JWTExpireMinute) * time.Minute,
		Issuer: a.Config.App.Name,
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.Worker != nil {
		a.Worker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
