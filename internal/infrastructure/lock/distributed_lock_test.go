package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"pointmarket/internal/apperr"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributedLock_TryLock(t *testing.T) {
	tests := []struct {
		name    string
		mockFn  func(mock redismock.ClientMock)
		want    bool
		wantErr bool
	}{
		{
			name: "加锁成功",
			mockFn: func(mock redismock.ClientMock) {
				mock.ExpectSetNX("k", "owner-1", 30*time.Second).SetVal(true)
			},
			want: true,
		},
		{
			name: "锁已被占用",
			mockFn: func(mock redismock.ClientMock) {
				mock.ExpectSetNX("k", "owner-1", 30*time.Second).SetVal(false)
			},
			want: false,
		},
		{
			name: "Redis返回错误",
			mockFn: func(mock redismock.ClientMock) {
				mock.ExpectSetNX("k", "owner-1", 30*time.Second).SetErr(assert.AnError)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rds, mock := redismock.NewClientMock()
			tt.mockFn(mock)

			ok, err := NewDistributedLock(rds, "k", "owner-1", 30*time.Second).TryLock(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, ok)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDistributedLock_LockRetriesThenFails(t *testing.T) {
	rds, mock := redismock.NewClientMock()
	for i := 0; i < 3; i++ {
		mock.ExpectSetNX("k", "owner-1", time.Second).SetVal(false)
	}

	err := NewDistributedLock(rds, "k", "owner-1", time.Second).Lock(context.Background(), time.Millisecond, 3)

	assert.True(t, errors.Is(err, ErrLockFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributedLock_Unlock(t *testing.T) {
	t.Run("持有者释放", func(t *testing.T) {
		rds, mock := redismock.NewClientMock()
		mock.ExpectEval(unlockScript, []string{"k"}, "owner-1").SetVal(int64(1))

		released, err := NewDistributedLock(rds, "k", "owner-1", time.Second).Unlock(context.Background())
		require.NoError(t, err)
		assert.True(t, released)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("锁已被他人持有", func(t *testing.T) {
		rds, mock := redismock.NewClientMock()
		mock.ExpectEval(unlockScript, []string{"k"}, "owner-1").SetVal(int64(0))

		released, err := NewDistributedLock(rds, "k", "owner-1", time.Second).Unlock(context.Background())
		require.NoError(t, err)
		assert.False(t, released)
	})
}

func TestRedisLocker_WithLock(t *testing.T) {
	rds, mock := redismock.NewClientMock()
	locker := NewRedisLocker(rds, 30*time.Second, time.Millisecond, 2)
	locker.newOwner = func() string { return "req-1" }

	key := OrderLockKey("MO1")
	mock.ExpectSetNX(key, "req-1", 30*time.Second).SetVal(true)
	mock.ExpectEval(unlockScript, []string{key}, "req-1").SetVal(int64(1))

	called := false
	err := locker.WithLock(context.Background(), key, func() error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_WithLockBusy(t *testing.T) {
	rds, mock := redismock.NewClientMock()
	locker := NewRedisLocker(rds, 30*time.Second, time.Millisecond, 1)
	locker.newOwner = func() string { return "req-2" }

	key := OrderLockKey("MO2")
	mock.ExpectSetNX(key, "req-2", 30*time.Second).SetVal(false)

	err := locker.WithLock(context.Background(), key, func() error {
		t.Fatal("未持有锁时不应执行")
		return nil
	})

	assert.True(t, errors.Is(err, ErrLockFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNopLocker(t *testing.T) {
	err := NopLocker{}.WithLock(context.Background(), "any", func() error { return assert.AnError })
	assert.Equal(t, assert.AnError, err)
}

func TestLockKeys(t *testing.T) {
	assert.Equal(t, "market:lock:order:MO20260101000000123", OrderLockKey("MO20260101000000123"))
	assert.Equal(t, "market:lock:purchase:7:42", PurchaseLockKey(7, 42))
	assert.True(t, errors.Is(ErrLockFailed, apperr.ErrConflict))
}
