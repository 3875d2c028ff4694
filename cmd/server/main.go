package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pointmarket/internal/config"
	"pointmarket/internal/handler"
	"pointmarket/internal/infrastructure/cache"
	"pointmarket/internal/infrastructure/database"
	"pointmarket/internal/infrastructure/lock"
	"pointmarket/internal/infrastructure/logger"
	"pointmarket/internal/infrastructure/mq"
	"pointmarket/internal/job"
	"pointmarket/internal/service"
	"pointmarket/pkg/idgen"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("服务异常退出", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Snowflake.NodeID); err != nil {
		return err
	}

	if cfg.MySQL.RunMigrations {
		if err := database.RunMigrations(&cfg.MySQL); err != nil {
			return err
		}
		log.Info("数据库迁移完成")
	}

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL, log)
	if err != nil {
		return err
	}

	// 分布式锁，未启用 Redis 时只依赖数据库行锁
	var locker lock.Locker = lock.NopLocker{}
	if cfg.Redis.Enabled {
		client, err := cache.InitRedis(&cfg.Redis, log)
		if err != nil {
			return err
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, cfg.Business.LockExpiration(),
			cfg.Business.LockRetryInterval(), cfg.Business.LockMaxRetries)
	}

	// 事件投递
	var publisher mq.Publisher = mq.NewLogPublisher(log)
	if cfg.Kafka.Enabled {
		producer, err := mq.NewSyncProducer(&cfg.Kafka)
		if err != nil {
			return err
		}
		kafkaPublisher := mq.NewKafkaPublisher(producer, log)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	svc := service.NewServices(db, cfg, service.Options{
		Locker: locker,
		IDs:    idgen.Default(),
		Logger: log,
	})

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, publisher, cfg, log)
	jobs := []interface {
		Start(ctx context.Context)
		Stop()
	}{outboxSender}
	if cfg.Jobs.TimeoutSweepEnabled {
		jobs = append(jobs, job.NewOrderTimeoutJob(svc.Sweeper, cfg, log))
	}
	if cfg.Jobs.AutoCompleteEnabled {
		jobs = append(jobs, job.NewAutoCompleteJob(svc.Sweeper, cfg, log))
	}
	if cfg.Jobs.LedgerAuditEnabled {
		jobs = append(jobs, job.NewLedgerAuditJob(svc.Ledger, cfg, log))
	}
	for _, j := range jobs {
		go j.Start(ctx)
	}

	// 设置路由
	router := handler.SetupRouter(handler.NewHandler(svc, cfg, outboxSender), cfg, log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	log.Info("正在关闭服务...")

	// 先停止后台任务，再关闭 HTTP 服务（等待最多5秒）
	for _, j := range jobs {
		j.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("服务关闭异常", zap.Error(err))
	}

	log.Info("服务已关闭")
	return nil
}
