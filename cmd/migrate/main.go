package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"pointmarket/internal/config"
	"pointmarket/internal/infrastructure/database"
	"pointmarket/internal/infrastructure/logger"

	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"
)

// 用法:
//
//	migrate -config config/config.yaml -cmd up
//	migrate -cmd down -steps 1
//	migrate -cmd force -version 1
func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	cmd := flag.String("cmd", "up", "up / down / force / version")
	steps := flag.Int("steps", 0, "down 回滚的步数，0 表示全部")
	version := flag.Int("version", -1, "force 使用的版本号")
	flag.Parse()

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

	m, err := database.NewMigrator(&cfg.MySQL)
	if err != nil {
		log.Fatal("创建迁移实例失败", zap.Error(err))
	}
	defer m.Close()

	switch *cmd {
	case "up":
		err = m.Up()
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "force":
		if *version < 0 {
			log.Fatal("force 需要指定 -version")
		}
		err = m.Force(*version)
	case "version":
	default:
		log.Fatal("未知命令", zap.String("cmd", *cmd))
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("迁移失败", zap.String("cmd", *cmd), zap.Error(err))
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatal("读取迁移版本失败", zap.Error(err))
	}
	log.Info("迁移完成", zap.String("cmd", *cmd), zap.Uint("version", v), zap.Bool("dirty", dirty))
}
