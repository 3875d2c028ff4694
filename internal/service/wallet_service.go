package service

import (
	"context"
	"fmt"

	"pointmarket/internal/apperr"
	"pointmarket/internal/model"
	"pointmarket/internal/repository"
	"pointmarket/pkg/idgen"

	"go.uber.org/zap"
)

// WalletService 现金余额的查询和管理员充值
type WalletService struct {
	walletRepo *repository.WalletRepository
	ids        *idgen.Generator
	log        *zap.Logger
}

func NewWalletService(walletRepo *repository.WalletRepository, ids *idgen.Generator, log *zap.Logger) *WalletService {
	return &WalletService{walletRepo: walletRepo, ids: ids, log: log.Named("wallet")}
}

func (s *WalletService) Balance(ctx context.Context, userID int64) (int64, error) {
	return s.walletRepo.GetBalance(ctx, userID)
}

func (s *WalletService) ListEntries(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletEntry, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.walletRepo.ListEntries(ctx, userID, page, pageSize)
}

// TopUp 管理员为用户充值现金余额，返回本次使用的 reference
func (s *WalletService) TopUp(ctx context.Context, userID, amount, operatorID int64) (string, error) {
	if amount <= 0 {
		return "", apperr.New(apperr.KindInvalidArgument, "充值金额必须大于0")
	}
	ref := fmt.Sprintf("TOPUP:%d", s.ids.NextID())
	if err := s.walletRepo.Credit(ctx, userID, amount, ref); err != nil {
		return "", err
	}
	s.log.Info("余额充值", zap.Int64("user_id", userID), zap.Int64("amount", amount),
		zap.Int64("operator_id", operatorID), zap.String("reference", ref))
	return ref, nil
}
