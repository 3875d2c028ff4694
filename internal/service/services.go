package service

import (
	"pointmarket/internal/config"
	"pointmarket/internal/infrastructure/lock"
	"pointmarket/internal/repository"
	"pointmarket/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options 可替换的外部协作者，为空时使用基于数据库的默认实现
type Options struct {
	Catalog  Catalog
	Identity Identity
	Balance  BalanceStore
	Locker   lock.Locker
	IDs      *idgen.Generator
	Logger   *zap.Logger
}

// Services 组装后的全部业务服务
type Services struct {
	Ledger  *LedgerService
	Refund  *RefundEngine
	Orders  *OrderService
	Sweeper *Sweeper
	Wallet  *WalletService
}

func NewServices(db *gorm.DB, cfg *config.Config, opts Options) *Services {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ids := opts.IDs
	if ids == nil {
		ids = idgen.Default()
	}
	locker := opts.Locker
	if locker == nil {
		locker = lock.NopLocker{}
	}

	walletRepo := repository.NewWalletRepository(db)
	balance := opts.Balance
	if balance == nil {
		balance = walletRepo
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = repository.NewCatalogRepository(db)
	}
	identity := opts.Identity
	if identity == nil {
		identity = repository.NewIdentityRepository(db)
	}

	ledger := NewLedgerService(db, ids, log)
	refund := NewRefundEngine(db, ledger, balance, ids, log)
	orders := NewOrderService(db, cfg, OrderDeps{
		Catalog:    catalog,
		Identity:   identity,
		Balance:    balance,
		Dispatcher: NewPaymentDispatcher(ledger),
		Refund:     refund,
		Locker:     locker,
		IDs:        ids,
		Logger:     log,
	})

	return &Services{
		Ledger:  ledger,
		Refund:  refund,
		Orders:  orders,
		Sweeper: NewSweeper(orders, cfg.Business.SweepBatchSize, log),
		Wallet:  NewWalletService(walletRepo, ids, log),
	}
}
