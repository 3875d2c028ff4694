package service

import (
	"errors"
	"testing"

	"pointmarket/internal/apperr"
	"pointmarket/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestPaymentRequest_Split(t *testing.T) {
	tests := []struct {
		name        string
		req         PaymentRequest
		wantPoints  int64
		wantBalance int64
		wantErr     error
	}{
		{name: "积分", req: PaymentRequest{Method: model.PaymentMethodPoints, TotalAmount: 500}, wantPoints: 500},
		{name: "余额", req: PaymentRequest{Method: model.PaymentMethodBalance, TotalAmount: 500}, wantBalance: 500},
		{name: "组合", req: PaymentRequest{Method: model.PaymentMethodMixed, TotalAmount: 500, PointsAmount: 120, BalanceAmount: 380}, wantPoints: 120, wantBalance: 380},
		{name: "总额不一致", req: PaymentRequest{Method: model.PaymentMethodPoints, TotalAmount: 499}, wantErr: apperr.ErrAmountMismatch},
		{name: "组合拆分不一致", req: PaymentRequest{Method: model.PaymentMethodMixed, TotalAmount: 500, PointsAmount: 100, BalanceAmount: 100}, wantErr: apperr.ErrAmountMismatch},
		{name: "组合缺少余额部分", req: PaymentRequest{Method: model.PaymentMethodMixed, TotalAmount: 500, PointsAmount: 500}, wantErr: apperr.ErrInvalidArgument},
		{name: "未知方式", req: PaymentRequest{Method: "ALIPAY", TotalAmount: 500}, wantErr: apperr.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, balance, err := tt.req.Split(500)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantPoints, points)
			assert.Equal(t, tt.wantBalance, balance)
		})
	}
}

func TestIsSettlementFailure(t *testing.T) {
	assert.True(t, IsSettlementFailure(apperr.ErrInsufficientBalance))
	assert.True(t, IsSettlementFailure(apperr.Wrap(apperr.KindPartialSettlementFailure, errors.New("x"), "y")))
	assert.False(t, IsSettlementFailure(apperr.ErrUnauthorized))
}
