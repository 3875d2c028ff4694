package service

import (
	"context"
	"errors"
	"testing"

	"pointmarket/internal/apperr"
	"pointmarket/internal/repository"
	"pointmarket/internal/testutil"
	"pointmarket/pkg/idgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWalletService_TopUp(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	ids, err := idgen.NewGenerator(5)
	require.NoError(t, err)
	svc := NewWalletService(repository.NewWalletRepository(db), ids, zap.NewNop())

	balance, err := svc.Balance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	ref, err := svc.TopUp(ctx, 7, 300, 1)
	require.NoError(t, err)
	assert.Contains(t, ref, "TOPUP:")

	_, err = svc.TopUp(ctx, 7, 200, 1)
	require.NoError(t, err)

	balance, err = svc.Balance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	entries, total, err := svc.ListEntries(ctx, 7, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(500), entries[0].BalanceAfter)

	_, err = svc.TopUp(ctx, 7, 0, 1)
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))
}
