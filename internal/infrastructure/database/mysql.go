package database

import (
	"embed"
	"errors"
	"fmt"
	"time"

	"pointmarket/internal/config"
	"pointmarket/internal/model"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationsDir embed.FS

// InitMySQL 初始化 MySQL 连接
func InitMySQL(cfg *config.MySQLConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if cfg.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	log.Info("MySQL 连接成功", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return db, nil
}

// AutoMigrate 按模型同步本服务拥有的表，开发环境使用
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Order{},
		&model.PointAccount{},
		&model.PointTransaction{},
		&model.SellerLiability{},
		&model.OrderLog{},
		&model.OutboxMessage{},
		&model.WalletAccount{},
		&model.WalletEntry{},
	)
	if err != nil {
		return fmt.Errorf("自动迁移表结构失败: %w", err)
	}
	return nil
}

// MigrateURL golang-migrate mysql 驱动使用的连接串
func MigrateURL(cfg *config.MySQLConfig) string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?multiStatements=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

// NewMigrator 基于内嵌 SQL 文件创建迁移实例
func NewMigrator(cfg *config.MySQLConfig) (*migrate.Migrate, error) {
	d, err := iofs.New(migrationsDir, "migrations")
	if err != nil {
		return nil, fmt.Errorf("加载迁移文件失败: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, MigrateURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("创建迁移实例失败: %w", err)
	}
	return m, nil
}

// RunMigrations 执行全部未应用的迁移
func RunMigrations(cfg *config.MySQLConfig) error {
	m, err := NewMigrator(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("执行迁移失败: %w", err)
	}
	return nil
}
