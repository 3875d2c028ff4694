package repository

import (
	"errors"

	"pointmarket/internal/apperr"

	"gorm.io/gorm"
)

// conn 传入事务时使用事务，否则使用默认连接
func conn(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}

// notFound 将 gorm 的记录不存在转换为 NotFound
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.KindNotFound, format, args...)
	}
	return err
}

func offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}

// ErrOptimisticLock 版本号不匹配
var ErrOptimisticLock = apperr.New(apperr.KindConflict, "乐观锁冲突，请重试")
