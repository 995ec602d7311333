// cmd/server/main.go

// 本服務提供帳戶建立、查詢、更新、刪除與原子轉帳的 RESTful API。
// 此檔案負責讀取設定、初始化 logger 與各模組（bank, server），
// 並啟動 HTTP 伺服器；收到 SIGINT/SIGTERM 時在期限內優雅關閉。
// 所有狀態只存在記憶體中，程序結束即消失。

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"moneytransfer/internal/bank"
	"moneytransfer/internal/config"
	"moneytransfer/internal/logging"
	"moneytransfer/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化銀行核心模組
	b := bank.NewBank(
		bank.WithLogger(logger.Named("bank")),
		bank.WithPolicy(bank.Policy{
			AllowExactDrain:    cfg.AllowExactDrain,
			RejectSelfTransfer: cfg.RejectSelfTransfer,
		}),
	)

	opts := []server.Option{server.WithLogger(logger.Named("http"))}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		opts = append(opts, server.WithIdempotency(rdb, cfg.IdempotencyTTL))
		logger.Info("idempotency enabled", zap.String("redis_addr", cfg.RedisAddr), zap.Duration("ttl", cfg.IdempotencyTTL))
	} else {
		logger.Warn("REDIS_ADDR not set, Idempotency-Key header is ignored")
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewServer(b, opts...).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("bank server running",
			zap.String("addr", srv.Addr),
			zap.Bool("allow_exact_drain", b.Policy().AllowExactDrain),
			zap.Bool("reject_self_transfer", b.Policy().RejectSelfTransfer),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
