package testutil

import (
	"testing"

	"pointmarket/internal/infrastructure/database"
	"pointmarket/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB 内存 SQLite，单连接，保证同一个测试内看到同一份数据
//
// 单连接意味着事务内的查询必须使用事务句柄，否则会互相等待。
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	if err := db.AutoMigrate(&model.ProjectRecord{}, &model.UserRecord{}); err != nil {
		t.Fatalf("迁移外部表失败: %v", err)
	}
	return db
}

// SeedUser 写入用户中心的用户
func SeedUser(t *testing.T, db *gorm.DB, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		if err := db.Create(&model.UserRecord{ID: id}).Error; err != nil {
			t.Fatalf("写入用户失败: %v", err)
		}
	}
}

// SeedProject 写入商品目录的项目
func SeedProject(t *testing.T, db *gorm.DB, p model.ProjectRecord) {
	t.Helper()
	if p.Status == "" {
		p.Status = model.ProjectStatusPublished
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("写入项目失败: %v", err)
	}
}
