package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	gorm_mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"optlab.com/pkg/api"
	"optlab.com/pkg/config"
	"optlab.com/pkg/kafka"
	"optlab.com/pkg/marketdata"
	pnats "optlab.com/pkg/nats"
	"optlab.com/pkg/quote"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (toml)")
	flag.Parse()

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "pricer: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// 2. Logger
	logger, err := config.NewLogger(cfg.Service, cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	quoteCfg, err := cfg.Pricing.QuoteConfig()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ids, err := quote.NewIDGenerator(cfg.Service.NodeID)
	if err != nil {
		return err
	}
	deps := quote.Deps{
		IDs:     ids,
		Metrics: quote.NewMetrics(reg),
		Logger:  logger,
	}

	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	// 3. Redis: 收盘价 + 快照缓存
	var closes *marketdata.RedisCloseStore
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		cleanups = append(cleanups, func() { _ = rdb.Close() })

		closes = marketdata.NewRedisCloseStore(rdb)
		deps.Market = marketdata.NewLoader(closes, marketdata.NewRedisSnapshotCache(rdb, cfg.Redis.SnapshotTTL), logger)
		logger.Info("market data enabled", "redis", cfg.Redis.Addr)
	}

	// 4. MySQL: 报价流水
	if cfg.MySQL.Enabled {
		db, err := gorm.Open(gorm_mysql.Open(cfg.MySQL.DSN), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("connect mysql: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
		cleanups = append(cleanups, func() { _ = sqlDB.Close() })

		journal := quote.NewMySQLJournal(db)
		if cfg.MySQL.AutoMigrate {
			if err := journal.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migrate quote journal: %w", err)
			}
		}
		deps.Journal = journal
		logger.Info("quote journal enabled")
	}

	// 5. 事件出口
	var publishers quote.MultiPublisher

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewProducer(cfg.Kafka.KafkaProducer(), logger)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, func() { _ = producer.Close() })
		publishers = append(publishers, quote.NewKafkaPublisher(producer, cfg.Kafka.QuoteTopic))
	}

	var natsSub *pnats.Subscriber
	if cfg.NATS.Enabled {
		conn, err := pnats.Connect(cfg.NATS.Config, logger)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, conn.Close)
		publishers = append(publishers, quote.NewNatsPublisher(pnats.NewPublisher(conn, cfg.NATS.RequestTimeout), cfg.NATS.QuoteSubject))
		natsSub = pnats.NewSubscriber(conn, cfg.NATS.RequestTimeout, logger)
	}

	if len(publishers) > 0 {
		deps.Events = publishers
	}

	// 6. Application
	svc := quote.NewService(quoteCfg, deps)

	// 7. Interfaces
	var recorder api.CloseRecorder
	if closes != nil {
		recorder = closes
	}
	bus := api.NewBus(svc, recorder, logger)
	if natsSub != nil {
		if err := bus.Register(natsSub, api.Subjects{
			Queue:    cfg.NATS.Queue,
			Option:   cfg.NATS.OptionSubject,
			Strategy: cfg.NATS.StrategySubject,
			Closes:   cfg.NATS.ClosesSubject,
		}); err != nil {
			return err
		}
		cleanups = append(cleanups, func() { _ = natsSub.Close() })
	}

	router := api.NewRouter(cfg.HTTP.Mode, api.NewHandler(svc, logger), reg)
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// 8. Start
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(cfg.Kafka.KafkaConsumer(), bus.HandleBatch, logger)
		if err != nil {
			return err
		}
		consumer.Start(ctx)
		logger.Info("kafka batch consumer started", "topic", cfg.Kafka.RequestTopic)
		g.Go(func() error {
			<-ctx.Done()
			return consumer.Stop()
		})
	}

	// 9. Graceful Shutdown
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
