package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"pointmarket/internal/apperr"
	"pointmarket/internal/metrics"
	"pointmarket/internal/model"
	"pointmarket/internal/repository"
	"pointmarket/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// LedgerService 积分账本
//
// 每次余额变动都在同一事务内写一条流水，流水记录可用余额的变动前后值。
// 涉及多个账户时按 user_id 升序加锁。
type LedgerService struct {
	db              *gorm.DB
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	ids             *idgen.Generator
	log             *zap.Logger
}

func NewLedgerService(db *gorm.DB, ids *idgen.Generator, log *zap.Logger) *LedgerService {
	return &LedgerService{
		db:              db,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		ids:             ids,
		log:             log.Named("ledger"),
	}
}

type ledgerOp int

const (
	opCredit ledgerOp = iota
	opDebit
	opFreeze
	opUnfreeze
)

// lockAccounts 按 user_id 升序创建并锁定账户
func (s *LedgerService) lockAccounts(ctx context.Context, tx *gorm.DB, userIDs ...int64) (map[int64]*model.PointAccount, error) {
	ids := make([]int64, 0, len(userIDs))
	seen := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	accounts := make(map[int64]*model.PointAccount, len(ids))
	for _, id := range ids {
		if err := s.accountRepo.EnsureExists(ctx, tx, id); err != nil {
			return nil, fmt.Errorf("创建积分账户失败: %w", err)
		}
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("锁定积分账户失败: %w", err)
		}
		accounts[id] = account
	}
	return accounts, nil
}

// apply 修改账户余额并写入流水，调用方已持有账户行锁
func (s *LedgerService) apply(ctx context.Context, tx *gorm.DB, account *model.PointAccount, op ledgerOp,
	amount int64, txType, orderNo, remark string) (*model.PointTransaction, error) {
	var before, after int64
	var err error
	switch op {
	case opCredit:
		before, after, err = account.Credit(amount, txType)
	case opDebit:
		before, after, err = account.Debit(amount, txType)
	case opFreeze:
		before, after, err = account.Freeze(amount)
	case opUnfreeze:
		before, after, err = account.Unfreeze(amount)
	default:
		err = apperr.New(apperr.KindInternal, "未知的账本操作: %d", op)
	}
	if err != nil {
		metrics.LedgerOperationsTotal.WithLabelValues(txType, metrics.ResultFailed).Inc()
		return nil, err
	}
	if err := account.CheckInvariant(); err != nil {
		return nil, err
	}

	if err := s.accountRepo.SaveBalances(ctx, tx, account); err != nil {
		return nil, fmt.Errorf("更新积分账户失败: %w", err)
	}

	trans := &model.PointTransaction{
		TransactionNo: s.ids.TransactionNo(),
		UserID:        account.UserID,
		Type:          txType,
		Amount:        after - before,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        model.TransactionStatusSuccess,
		Remark:        remark,
	}
	if orderNo != "" {
		trans.RelatedOrderNo = &orderNo
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, fmt.Errorf("记录积分流水失败: %w", err)
	}

	metrics.LedgerOperationsTotal.WithLabelValues(txType, metrics.ResultSuccess).Inc()
	return trans, nil
}

func (s *LedgerService) creditTx(ctx context.Context, tx *gorm.DB, account *model.PointAccount, amount int64, txType, orderNo, remark string) (*model.PointTransaction, error) {
	return s.apply(ctx, tx, account, opCredit, amount, txType, orderNo, remark)
}

func (s *LedgerService) debitTx(ctx context.Context, tx *gorm.DB, account *model.PointAccount, amount int64, txType, orderNo, remark string) (*model.PointTransaction, error) {
	return s.apply(ctx, tx, account, opDebit, amount, txType, orderNo, remark)
}

func checkBalanceType(txType string) error {
	if !model.IsValidTransactionType(txType) || txType == model.TransactionTypeFreeze || txType == model.TransactionTypeUnfreeze {
		return apperr.New(apperr.KindInvalidArgument, "不支持的流水类型: %s", txType)
	}
	return nil
}

// single 锁定单个账户并执行一次变动
func (s *LedgerService) single(ctx context.Context, userID int64, op ledgerOp, amount int64, txType, orderNo, remark string) (*model.PointTransaction, error) {
	var trans *model.PointTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts, err := s.lockAccounts(ctx, tx, userID)
		if err != nil {
			return err
		}
		trans, err = s.apply(ctx, tx, accounts[userID], op, amount, txType, orderNo, remark)
		return err
	})
	if err != nil {
		return nil, err
	}
	return trans, nil
}

// GetOrCreateAccount 幂等，不存在时创建零余额账户
func (s *LedgerService) GetOrCreateAccount(ctx context.Context, userID int64) (*model.PointAccount, error) {
	if err := s.accountRepo.EnsureExists(ctx, nil, userID); err != nil {
		return nil, fmt.Errorf("创建积分账户失败: %w", err)
	}
	return s.accountRepo.GetByUserID(ctx, nil, userID)
}

// GetAccount 账户快照，不存在时返回零余额且不创建
func (s *LedgerService) GetAccount(ctx context.Context, userID int64) (*model.PointAccount, error) {
	account, err := s.accountRepo.GetByUserID(ctx, nil, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &model.PointAccount{UserID: userID}, nil
	}
	return account, err
}

func (s *LedgerService) Credit(ctx context.Context, userID, amount int64, txType, relatedOrderNo string) (*model.PointTransaction, error) {
	if err := checkBalanceType(txType); err != nil {
		return nil, err
	}
	return s.single(ctx, userID, opCredit, amount, txType, relatedOrderNo, "")
}

func (s *LedgerService) Debit(ctx context.Context, userID, amount int64, txType, relatedOrderNo string) (*model.PointTransaction, error) {
	if err := checkBalanceType(txType); err != nil {
		return nil, err
	}
	return s.single(ctx, userID, opDebit, amount, txType, relatedOrderNo, "")
}

func (s *LedgerService) Freeze(ctx context.Context, userID, amount int64) (*model.PointTransaction, error) {
	return s.single(ctx, userID, opFreeze, amount, model.TransactionTypeFreeze, "", "")
}

func (s *LedgerService) Unfreeze(ctx context.Context, userID, amount int64) (*model.PointTransaction, error) {
	return s.single(ctx, userID, opUnfreeze, amount, model.TransactionTypeUnfreeze, "", "")
}

// Recharge 充值（简化版，实际应该走支付渠道）
func (s *LedgerService) Recharge(ctx context.Context, userID, amount int64) (*model.PointTransaction, error) {
	return s.single(ctx, userID, opCredit, amount, model.TransactionTypeRecharge, "", "充值")
}

// Adjust 管理员调整，amount 为正入账，为负出账
func (s *LedgerService) Adjust(ctx context.Context, userID, amount int64, reason string, operatorID int64) (*model.PointTransaction, error) {
	if amount == 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "调整金额不能为0")
	}
	if reason == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "调整原因不能为空")
	}

	remark := fmt.Sprintf("管理员[%d]调整: %s", operatorID, reason)
	op := opCredit
	if amount < 0 {
		op, amount = opDebit, -amount
	}

	trans, err := s.single(ctx, userID, op, amount, model.TransactionTypeAdminAdjust, "", remark)
	if err != nil {
		return nil, err
	}
	s.log.Info("积分调整",
		zap.Int64("user_id", userID), zap.Int64("delta", trans.Amount),
		zap.Int64("operator_id", operatorID), zap.String("reason", reason))
	return trans, nil
}

type TransferResult struct {
	Out *model.PointTransaction `json:"out"`
	In  *model.PointTransaction `json:"in"`
}

// Transfer 转出和转入在同一事务中，任一失败整体回滚
func (s *LedgerService) Transfer(ctx context.Context, fromUserID, toUserID, amount int64, description string) (*TransferResult, error) {
	if fromUserID == toUserID {
		return nil, apperr.New(apperr.KindInvalidArgument, "不能给自己转账")
	}

	result := &TransferResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts, err := s.lockAccounts(ctx, tx, fromUserID, toUserID)
		if err != nil {
			return err
		}
		result.Out, err = s.debitTx(ctx, tx, accounts[fromUserID], amount, model.TransactionTypeTransferOut, "", description)
		if err != nil {
			return err
		}
		result.In, err = s.creditTx(ctx, tx, accounts[toUserID], amount, model.TransactionTypeTransferIn, "", description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// ListTransactions txType 为空时返回全部类型
func (s *LedgerService) ListTransactions(ctx context.Context, userID int64, txType string, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	if txType != "" && !model.IsValidTransactionType(txType) {
		return nil, 0, apperr.New(apperr.KindInvalidArgument, "不支持的流水类型: %s", txType)
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.transactionRepo.ListByUserID(ctx, userID, txType, page, pageSize)
}

// Inconsistency 对账不一致的账户
type Inconsistency struct {
	UserID          int64 `json:"user_id"`
	TotalPoints     int64 `json:"total_points"`
	AvailablePoints int64 `json:"available_points"`
	FrozenPoints    int64 `json:"frozen_points"`
	LoggedAvailable int64 `json:"logged_available"`
	LoggedFrozen    int64 `json:"logged_frozen"`
}

// FindInconsistentAccounts 对账：可用余额等于流水合计，冻结余额等于冻结类流水合计取反，
// 且总额等于可用加冻结。只报告，不修正。
func (s *LedgerService) FindInconsistentAccounts(ctx context.Context, batchSize int) ([]Inconsistency, error) {
	if batchSize <= 0 {
		batchSize = maxPageSize
	}

	var result []Inconsistency
	var afterID int64
	for {
		var accounts []*model.PointAccount
		var sums map[int64]repository.LedgerSum

		// 同一批账户和流水在一个事务内读取，得到一致的快照
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			accounts, err = s.accountRepo.ListBatch(ctx, tx, afterID, batchSize)
			if err != nil || len(accounts) == 0 {
				return err
			}
			ids := make([]int64, len(accounts))
			for i, a := range accounts {
				ids[i] = a.UserID
			}
			sums, err = s.transactionRepo.SumByUserIDs(ctx, tx, ids)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("对账查询失败: %w", err)
		}
		if len(accounts) == 0 {
			break
		}

		for _, a := range accounts {
			sum := sums[a.UserID]
			if a.AvailablePoints == sum.Available && a.FrozenPoints == sum.Frozen &&
				a.TotalPoints == a.AvailablePoints+a.FrozenPoints {
				continue
			}
			result = append(result, Inconsistency{
				UserID:          a.UserID,
				TotalPoints:     a.TotalPoints,
				AvailablePoints: a.AvailablePoints,
				FrozenPoints:    a.FrozenPoints,
				LoggedAvailable: sum.Available,
				LoggedFrozen:    sum.Frozen,
			})
		}

		afterID = accounts[len(accounts)-1].ID
		if len(accounts) < batchSize {
			break
		}
	}

	metrics.LedgerInconsistentAccounts.Set(float64(len(result)))
	return result, nil
}
