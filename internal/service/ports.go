package service

import (
	"context"
)

// Catalog 商品目录（外部模块）
type Catalog interface {
	ProjectPrice(ctx context.Context, projectID int64) (int64, error)
	ProjectOwner(ctx context.Context, projectID int64) (int64, error)
	ProjectTitle(ctx context.Context, projectID int64) (string, error)
	IsPublished(ctx context.Context, projectID int64) (bool, error)
}

// Identity 用户中心（外部模块）
type Identity interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// BalanceStore 现金余额存储
//
// Debit/Credit 金额精确、要么全部成功要么不生效；
// 相同 reference 的同向操作重复调用只生效一次。
type BalanceStore interface {
	Debit(ctx context.Context, userID, amount int64, reference string) error
	Credit(ctx context.Context, userID, amount int64, reference string) error
}
