// closefeed 为演示/压测环境生成合成收盘价
//
//	直接写 Redis:  closefeed -redis localhost:6379 -tickers AAPL,MSFT -days 300
//	经 NATS 推送:  closefeed -nats nats://127.0.0.1:4222 -tickers AAPL
//
// 同时写入一条国债收益率 (^IRX/^FVX/^TNX/^TYX)，让 ticker 报价能拿到利率。
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"optlab.com/pkg/api"
	"optlab.com/pkg/config"
	"optlab.com/pkg/marketdata"
	pnats "optlab.com/pkg/nats"
)

var treasuryYields = map[string]float64{
	"^IRX": 4.3,
	"^FVX": 4.0,
	"^TNX": 4.2,
	"^TYX": 4.5,
}

func main() {
	var (
		redisAddr = flag.String("redis", "", "redis address, writes closes directly")
		natsURL   = flag.String("nats", "", "nats url, publishes close updates")
		subject   = flag.String("subject", "marketdata.closes", "nats subject for close updates")
		tickers   = flag.String("tickers", "AAPL", "comma separated tickers")
		days      = flag.Int("days", 300, "trading days per ticker")
		spot      = flag.Float64("spot", 100, "starting price")
		vol       = flag.Float64("vol", 0.25, "annualized volatility")
		drift     = flag.Float64("drift", 0.05, "annualized drift")
		seed      = flag.Uint64("seed", 0, "random seed, 0 for random")
	)
	flag.Parse()

	logger, err := config.NewLogger(config.ServiceConfig{Name: "closefeed"}, config.LogConfig{Level: "info", Format: "text"}, os.Stdout)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, closeSink, err := openSink(*redisAddr, *natsURL, *subject, logger)
	if err != nil {
		logger.Error("open sink failed", "error", err)
		os.Exit(1)
	}
	defer closeSink()

	end := time.Now()
	for i, raw := range strings.Split(*tickers, ",") {
		ticker := marketdata.SanitizeTicker(raw)
		sp := marketdata.SynthParams{Spot: *spot, Drift: *drift, Volatility: *vol, Days: *days}
		if *seed != 0 {
			s := *seed + uint64(i)
			sp.Seed = &s
		}
		closes, err := marketdata.SyntheticCloses(ctx, sp, end)
		if err != nil {
			logger.Error("simulate closes failed", "ticker", ticker, "error", err)
			os.Exit(1)
		}
		if err := sink(ctx, ticker, closes); err != nil {
			logger.Error("write closes failed", "ticker", ticker, "error", err)
			os.Exit(1)
		}
		last := closes[len(closes)-1]
		logger.Info("closes written", "ticker", ticker, "days", len(closes), "last", last.Price)
	}

	today := marketdata.TradingDays(end, 1)[0]
	for symbol, yield := range treasuryYields {
		if err := sink(ctx, symbol, []marketdata.Close{{Day: today, Price: yield}}); err != nil {
			logger.Error("write treasury yield failed", "symbol", symbol, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("treasury yields written", "count", len(treasuryYields))
}

type sinkFunc func(ctx context.Context, ticker string, closes []marketdata.Close) error

func openSink(redisAddr, natsURL, subject string, logger *slog.Logger) (sinkFunc, func(), error) {
	switch {
	case redisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect redis %s: %w", redisAddr, err)
		}
		store := marketdata.NewRedisCloseStore(rdb)
		sink := func(ctx context.Context, ticker string, closes []marketdata.Close) error {
			return marketdata.Backfill(ctx, store, ticker, closes)
		}
		return sink, func() { _ = rdb.Close() }, nil

	case natsURL != "":
		cfg := pnats.DefaultConfig()
		cfg.URL = natsURL
		cfg.Name = "closefeed"
		conn, err := pnats.Connect(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		pub := pnats.NewPublisher(conn, cfg.RequestTimeout)
		sink := func(_ context.Context, ticker string, closes []marketdata.Close) error {
			for _, c := range closes {
				u := api.CloseUpdate{Ticker: ticker, Date: c.Day.Format(time.DateOnly), Close: c.Price}
				if err := pub.Publish(subject, u); err != nil {
					return err
				}
			}
			return pub.Flush()
		}
		return sink, conn.Close, nil
	}
	return nil, nil, fmt.Errorf("one of -redis or -nats is required")
}
